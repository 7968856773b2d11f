package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
)

// tokenLifetime and refreshWindow model spec.md §4.9's "tokens carry an
// expiry; a wrapper refreshes when within 5 minutes of expiry" requirement.
const (
	tokenLifetime = time.Hour
	refreshWindow = 5 * time.Minute
)

// MockClient is a deterministic in-memory brokerage used for tests, paper
// trading, and backtesting fixtures. Prices are seeded explicitly rather
// than generated randomly so assertions stay reproducible.
type MockClient struct {
	mu          sync.Mutex
	prices      map[string]domain.StockPrice
	cash        float64
	holdings    map[string]domain.AccountHolding
	connected   bool
	tokenExpiry time.Time
	log         zerolog.Logger
	now         func() time.Time
}

// NewMockClient creates a mock broker seeded with starting cash.
func NewMockClient(startingCash float64, log zerolog.Logger) *MockClient {
	return &MockClient{
		prices:    map[string]domain.StockPrice{},
		cash:      startingCash,
		holdings:  map[string]domain.AccountHolding{},
		connected: false,
		log:       log.With().Str("component", "mock_broker").Logger(),
		now:       time.Now,
	}
}

// SetPrice seeds or updates the mock's quote for a symbol.
func (m *MockClient) SetPrice(p domain.StockPrice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[p.Symbol] = p
}

// Authenticate "logs in", issuing a token valid for tokenLifetime. Callers
// should call it again once within refreshWindow of expiry; IsConnected
// reports false once the token has actually expired.
func (m *MockClient) Authenticate() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.tokenExpiry = m.now().Add(tokenLifetime)
	return true, nil
}

// NeedsRefresh reports whether the current token is within the refresh
// window of expiring, mirroring the real adapter's proactive-refresh rule.
func (m *MockClient) NeedsRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Add(refreshWindow).After(m.tokenExpiry)
}

func (m *MockClient) GetStockPrice(symbol string) (domain.StockPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	if !ok {
		return domain.StockPrice{}, fmt.Errorf("no quote available for %s", symbol)
	}
	return p, nil
}

func (m *MockClient) GetAccountBalance() (AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return AccountInfo{Cash: m.cash, Currency: "USD"}, nil
}

func (m *MockClient) GetAccountHoldings() ([]domain.AccountHolding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AccountHolding, 0, len(m.holdings))
	for _, h := range m.holdings {
		out = append(out, h)
	}
	return out, nil
}

// PlaceOrder fills at the mock's current quote for the symbol. Per
// spec.md §4.9 this never returns an error for a business-rule failure
// (e.g. unknown symbol, insufficient cash) — it returns a FAILED
// TradeResult so the caller can still record the attempt.
func (m *MockClient) PlaceOrder(order Order) (TradeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, ok := m.prices[order.Symbol]
	if !ok {
		return TradeResult{
			OrderID: uuid.NewString(),
			Status:  OrderFailed,
			Reason:  fmt.Sprintf("no quote available for %s", order.Symbol),
		}, nil
	}

	cost := order.Quantity * price.Last
	switch order.Side {
	case domain.SideBuy:
		if cost > m.cash {
			return TradeResult{
				OrderID: uuid.NewString(),
				Status:  OrderFailed,
				Reason:  "insufficient cash",
			}, nil
		}
		m.cash -= cost
		h := m.holdings[order.Symbol]
		newQty := h.Quantity + order.Quantity
		h.AvgCost = (h.AvgCost*h.Quantity + price.Last*order.Quantity) / newQty
		h.Quantity = newQty
		h.Symbol = order.Symbol
		h.LastPrice = price.Last
		h.UpdatedAt = m.now()
		m.holdings[order.Symbol] = h

	case domain.SideSell:
		h, held := m.holdings[order.Symbol]
		if !held || h.Quantity < order.Quantity {
			return TradeResult{
				OrderID: uuid.NewString(),
				Status:  OrderFailed,
				Reason:  "insufficient holding to sell",
			}, nil
		}
		m.cash += cost
		h.Quantity -= order.Quantity
		if h.Quantity <= 0 {
			delete(m.holdings, order.Symbol)
		} else {
			m.holdings[order.Symbol] = h
		}

	default:
		return TradeResult{
			OrderID: uuid.NewString(),
			Status:  OrderFailed,
			Reason:  fmt.Sprintf("unknown side %q", order.Side),
		}, nil
	}

	return TradeResult{
		OrderID:       uuid.NewString(),
		Status:        OrderFilled,
		ExecutedPrice: price.Last,
		ExecutedQty:   order.Quantity,
		ExecutedAt:    m.now(),
	}, nil
}

func (m *MockClient) CancelOrder(orderID string) (bool, error) {
	// Orders fill synchronously in the mock; there is never anything to
	// cancel by the time a caller could reference an order ID.
	return false, nil
}

func (m *MockClient) GetOrderStatus(orderID string) (StatusInfo, error) {
	return StatusInfo{OrderID: orderID, Status: OrderFilled}, nil
}

func (m *MockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected && m.now().Before(m.tokenExpiry)
}

var _ Client = (*MockClient)(nil)
