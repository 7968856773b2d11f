package learning

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/database"
	"github.com/aristath/sentinel/internal/domain"
)

type fakeSessions struct {
	started   []domain.LearningSession
	completed []domain.LearningSession
}

func (f *fakeSessions) StartSession(sess domain.LearningSession) error {
	f.started = append(f.started, sess)
	return nil
}

func (f *fakeSessions) CompleteSession(sess domain.LearningSession) error {
	f.completed = append(f.completed, sess)
	return nil
}

func TestRunCycleExtractsAndOptimizesThenCompletesSession(t *testing.T) {
	trEpoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := &fakeTradeSource{
		pairs: []database.UserSymbol{{UserID: "u1", Symbol: "AAPL"}},
		trades: map[string][]domain.TradeHistory{
			"u1/AAPL": {
				mkTrade(domain.SideBuy, 100, 85, trEpoch),
				mkTrade(domain.SideSell, 110, 25, trEpoch.AddDate(0, 0, 1)),
			},
		},
	}
	patternStore := &fakePatternStore{}
	analyzer := NewAnalyzer(trades, patternStore, zerolog.Nop())

	strategyStore := &fakeStrategyStore{}
	optimizer := NewOptimizer(strategyStore, 10, zerolog.Nop())

	sessions := &fakeSessions{}
	svc := NewService(analyzer, optimizer, sessions, zerolog.Nop())

	session, err := svc.RunCycle("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.LearningCompleted, session.Status)
	assert.Equal(t, 1, session.PatternsExtracted)
	assert.NotEmpty(t, session.StrategyID)
	require.Len(t, sessions.started, 1)
	require.Len(t, sessions.completed, 1)
	assert.Equal(t, domain.LearningCompleted, sessions.completed[0].Status)
}
