// Package broker defines the brokerage adapter contract (C9): authenticated
// price/balance/holdings queries and order placement, plus a deterministic
// mock implementation for tests and paper trading.
package broker

import (
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
)

// OrderStatus is the lifecycle state of a submitted order.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderPending  OrderStatus = "PENDING"
	OrderRejected OrderStatus = "REJECTED"
	OrderFailed   OrderStatus = "FAILED"
)

// Order is a request to buy or sell a quantity of a symbol at market.
type Order struct {
	Symbol   string
	Side     domain.TradeSide
	Quantity float64
}

// TradeResult is the outcome of a PlaceOrder call. Per spec.md §4.9,
// PlaceOrder never returns an error for a rejected/failed order — it
// returns a TradeResult with Status=FAILED so the engine can record the
// attempt as a TradeHistory row instead of losing it to an exception path.
// Transport-level failures (network, auth) still return an error.
type TradeResult struct {
	OrderID       string
	Status        OrderStatus
	ExecutedPrice float64
	ExecutedQty   float64
	Reason        string
	ExecutedAt    time.Time
}

// AccountInfo is the broker's view of cash available for trading.
type AccountInfo struct {
	Cash     float64
	Currency string
}

// StatusInfo is the result of an order-status poll.
type StatusInfo struct {
	OrderID string
	Status  OrderStatus
}

// AuthError wraps an authentication failure against the brokerage API.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string { return fmt.Sprintf("broker authentication failed: %v", e.Cause) }
func (e *AuthError) Unwrap() error  { return e.Cause }

// Client is the brokerage adapter contract. Concrete implementations exist
// for a real brokerage (not included here — wired through configuration)
// and the deterministic *MockClient below.
type Client interface {
	Authenticate() (bool, error)
	GetStockPrice(symbol string) (domain.StockPrice, error)
	GetAccountBalance() (AccountInfo, error)
	GetAccountHoldings() ([]domain.AccountHolding, error)
	PlaceOrder(order Order) (TradeResult, error)
	CancelOrder(orderID string) (bool, error)
	GetOrderStatus(orderID string) (StatusInfo, error)
	IsConnected() bool
}
