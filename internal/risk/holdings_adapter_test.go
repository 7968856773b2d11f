package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
)

type fakePositionStore struct {
	holdings map[string]*domain.AccountHolding
	invested float64
}

func (f *fakePositionStore) Get(userID, symbol string) (*domain.AccountHolding, error) {
	return f.holdings[symbol], nil
}

func (f *fakePositionStore) InvestedAmount(userID string) (float64, error) {
	return f.invested, nil
}

type fakeRealizedPLStore struct {
	realized float64
}

func (f *fakeRealizedPLStore) DailyRealizedPL(userID string, day time.Time) (float64, error) {
	return f.realized, nil
}

func TestRepositoryHoldingsDelegatesToBothUnderlyingRepositories(t *testing.T) {
	positions := &fakePositionStore{
		holdings: map[string]*domain.AccountHolding{"AAPL": {Symbol: "AAPL", Quantity: 10}},
		invested: 1500,
	}
	trades := &fakeRealizedPLStore{realized: 42.5}

	holdings := NewRepositoryHoldings(positions, trades)

	held, err := holdings.Get("u1", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", held.Symbol)

	invested, err := holdings.InvestedAmount("u1")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, invested)

	pl, err := holdings.DailyRealizedPL("u1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 42.5, pl)
}
