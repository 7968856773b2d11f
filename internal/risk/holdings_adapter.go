package risk

import (
	"time"

	"github.com/aristath/sentinel/internal/domain"
)

// positionStore is the position half of Holdings. Satisfied by
// *database.HoldingRepository.
type positionStore interface {
	Get(userID, symbol string) (*domain.AccountHolding, error)
	InvestedAmount(userID string) (float64, error)
}

// realizedPLStore is the realized-P/L half of Holdings. Satisfied by
// *database.TradeRepository.
type realizedPLStore interface {
	DailyRealizedPL(userID string, day time.Time) (float64, error)
}

// RepositoryHoldings satisfies Holdings by combining the open-positions
// repository and the executed-trade ledger — the two halves live on
// separate repositories (HoldingRepository tracks what is currently held,
// TradeRepository tracks what has been bought and sold), so the manager's
// single read contract needs both wired together.
type RepositoryHoldings struct {
	positions positionStore
	trades    realizedPLStore
}

// NewRepositoryHoldings wires a holding repository and a trade repository
// into the combined Holdings contract risk.New requires.
func NewRepositoryHoldings(positions positionStore, trades realizedPLStore) *RepositoryHoldings {
	return &RepositoryHoldings{positions: positions, trades: trades}
}

func (h *RepositoryHoldings) Get(userID, symbol string) (*domain.AccountHolding, error) {
	return h.positions.Get(userID, symbol)
}

func (h *RepositoryHoldings) InvestedAmount(userID string) (float64, error) {
	return h.positions.InvestedAmount(userID)
}

func (h *RepositoryHoldings) DailyRealizedPL(userID string, day time.Time) (float64, error) {
	return h.trades.DailyRealizedPL(userID, day)
}
