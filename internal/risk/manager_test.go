package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
)

type fakeHoldings struct {
	holdings map[string]*domain.AccountHolding
	invested float64
	realized float64
}

func (f *fakeHoldings) Get(userID, symbol string) (*domain.AccountHolding, error) {
	return f.holdings[symbol], nil
}

func (f *fakeHoldings) InvestedAmount(userID string) (float64, error) {
	return f.invested, nil
}

func (f *fakeHoldings) DailyRealizedPL(userID string, day time.Time) (float64, error) {
	return f.realized, nil
}

func testWindow() domain.TradingWindow {
	return domain.TradingWindow{
		Start: time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(0, 1, 1, 23, 59, 59, 0, time.UTC),
	}
}

func baseConfig() domain.AutoTradeConfig {
	return domain.AutoTradeConfig{
		UserID:           "u1",
		Enabled:          true,
		MaxTotalInvested: 10000,
		MaxPositionSize:  1000,
		RiskLevel:        domain.RiskMedium,
		BuyThreshold:     71,
		SellThreshold:    30,
		StopLossPct:      5,
		Window:           testWindow(),
	}
}

func TestValidateTradeRejectsWhenDisabled(t *testing.T) {
	m := New(&fakeHoldings{}, zerolog.Nop())
	cfg := baseConfig()
	cfg.Enabled = false

	ok, reason := m.ValidateTrade(cfg, "AAPL", domain.SideBuy, 1, 100, 1000)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

func TestValidateTradeRejectsExcludedSymbol(t *testing.T) {
	m := New(&fakeHoldings{}, zerolog.Nop())
	cfg := baseConfig()
	cfg.ExcludedSymbols = map[string]struct{}{"AAPL": {}}

	ok, _ := m.ValidateTrade(cfg, "AAPL", domain.SideBuy, 1, 100, 1000)
	assert.False(t, ok)
}

func TestValidateTradeRejectsSymbolNotInAllowedList(t *testing.T) {
	m := New(&fakeHoldings{}, zerolog.Nop())
	cfg := baseConfig()
	cfg.AllowedSymbols = map[string]struct{}{"MSFT": {}}

	ok, _ := m.ValidateTrade(cfg, "AAPL", domain.SideBuy, 1, 100, 1000)
	assert.False(t, ok)
}

func TestValidateTradeRejectsWhenDailyLossLimitBreached(t *testing.T) {
	limit := 50.0
	m := New(&fakeHoldings{realized: -100}, zerolog.Nop())
	cfg := baseConfig()
	cfg.DailyLossLimit = &limit

	ok, reason := m.ValidateTrade(cfg, "AAPL", domain.SideBuy, 1, 100, 1000)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily loss limit")
}

func TestValidateTradeBuyRejectsWhenExceedingMaxPositionSize(t *testing.T) {
	m := New(&fakeHoldings{}, zerolog.Nop())
	cfg := baseConfig()

	ok, _ := m.ValidateTrade(cfg, "AAPL", domain.SideBuy, 100, 100, 100000)
	assert.False(t, ok)
}

func TestValidateTradeBuyRejectsInsufficientCash(t *testing.T) {
	m := New(&fakeHoldings{}, zerolog.Nop())
	cfg := baseConfig()

	ok, reason := m.ValidateTrade(cfg, "AAPL", domain.SideBuy, 5, 100, 10)
	assert.False(t, ok)
	assert.Contains(t, reason, "insufficient cash")
}

func TestValidateTradeBuySucceedsWithinLimits(t *testing.T) {
	m := New(&fakeHoldings{}, zerolog.Nop())
	cfg := baseConfig()

	ok, reason := m.ValidateTrade(cfg, "AAPL", domain.SideBuy, 5, 100, 1000)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestValidateTradeSellRejectsWithoutHolding(t *testing.T) {
	m := New(&fakeHoldings{holdings: map[string]*domain.AccountHolding{}}, zerolog.Nop())
	cfg := baseConfig()

	ok, _ := m.ValidateTrade(cfg, "AAPL", domain.SideSell, 5, 100, 1000)
	assert.False(t, ok)
}

func TestValidateTradeSellSucceedsWithSufficientHolding(t *testing.T) {
	m := New(&fakeHoldings{holdings: map[string]*domain.AccountHolding{
		"AAPL": {Symbol: "AAPL", Quantity: 10, AvgCost: 90},
	}}, zerolog.Nop())
	cfg := baseConfig()

	ok, _ := m.ValidateTrade(cfg, "AAPL", domain.SideSell, 5, 100, 0)
	assert.True(t, ok)
}

func TestPositionSizeScalesByRiskAndSignal(t *testing.T) {
	m := New(&fakeHoldings{invested: 0}, zerolog.Nop())
	cfg := baseConfig()
	cfg.RiskLevel = domain.RiskHigh
	cfg.MaxPositionSize = 1000

	qty, err := m.PositionSize(cfg, 100, 100, 10000)
	require.NoError(t, err)
	// base 1000 * risk 1.0 * signal 1.0 = 1000 target / 100 price = 10 shares
	assert.Equal(t, 10.0, qty)
}

func TestPositionSizeClampsToAvailableCash(t *testing.T) {
	m := New(&fakeHoldings{invested: 0}, zerolog.Nop())
	cfg := baseConfig()
	cfg.RiskLevel = domain.RiskHigh
	cfg.MaxPositionSize = 1000

	qty, err := m.PositionSize(cfg, 100, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, 0.0, qty)
}

func TestPositionSizeReturnsOneShareWhenTargetCoversOnlyOneShare(t *testing.T) {
	m := New(&fakeHoldings{invested: 9900}, zerolog.Nop())
	cfg := baseConfig()
	cfg.MaxTotalInvested = 10000
	cfg.MaxPositionSize = 1000
	cfg.RiskLevel = domain.RiskHigh

	qty, err := m.PositionSize(cfg, 90, 100, 10000)
	require.NoError(t, err)
	assert.Equal(t, 1.0, qty)
}

func TestPositionSizeReturnsZeroWhenPriceIsZero(t *testing.T) {
	m := New(&fakeHoldings{invested: 0}, zerolog.Nop())
	cfg := baseConfig()
	cfg.RiskLevel = domain.RiskHigh
	cfg.MaxPositionSize = 1000

	qty, err := m.PositionSize(cfg, 0, 100, 10000)
	require.NoError(t, err)
	assert.Equal(t, 0.0, qty)
}

func TestCheckStopLossTriggersBelowThreshold(t *testing.T) {
	m := New(&fakeHoldings{}, zerolog.Nop())
	cfg := baseConfig()
	cfg.StopLossPct = 5

	holding := domain.AccountHolding{Symbol: "AAPL", Quantity: 10, AvgCost: 100}
	decision := m.CheckStopLoss(cfg, holding, 94)
	assert.True(t, decision.ShouldSell)
	assert.Equal(t, 10.0, decision.Quantity)
}

func TestCheckStopLossDoesNotTriggerAboveThreshold(t *testing.T) {
	m := New(&fakeHoldings{}, zerolog.Nop())
	cfg := baseConfig()
	cfg.StopLossPct = 5

	holding := domain.AccountHolding{Symbol: "AAPL", Quantity: 10, AvgCost: 100}
	decision := m.CheckStopLoss(cfg, holding, 98)
	assert.False(t, decision.ShouldSell)
}

func TestDetectAbnormalMarket(t *testing.T) {
	assert.True(t, DetectAbnormalMarket(45))
	assert.False(t, DetectAbnormalMarket(35))
}

type recordingAlerts struct {
	title, message string
}

func (r *recordingAlerts) Critical(title, message string) {
	r.title, r.message = title, message
}

func TestEmergencyStopDisablesConfigAndAlerts(t *testing.T) {
	cfg := baseConfig()
	alerts := &recordingAlerts{}

	EmergencyStop(&cfg, "VIX spike", alerts)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "VIX spike", alerts.message)
}
