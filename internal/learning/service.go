package learning

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
)

// Sessions records the start/completion bookkeeping of a learning run.
// Satisfied by *database.LearningRepository.
type Sessions interface {
	StartSession(sess domain.LearningSession) error
	CompleteSession(sess domain.LearningSession) error
}

// Service ties pattern extraction and strategy optimization together into
// one learning cycle, bracketed by a LearningSession record.
type Service struct {
	analyzer  *Analyzer
	optimizer *Optimizer
	sessions  Sessions
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a learning service.
func NewService(analyzer *Analyzer, optimizer *Optimizer, sessions Sessions, log zerolog.Logger) *Service {
	return &Service{
		analyzer:  analyzer,
		optimizer: optimizer,
		sessions:  sessions,
		log:       log.With().Str("component", "learning_service").Logger(),
		now:       time.Now,
	}
}

// RunCycle extracts patterns from the full trade ledger, then optimizes
// the named strategy from the accumulated pattern set, recording a
// LearningSession row bracketing both steps.
func (s *Service) RunCycle(strategyName string) (domain.LearningSession, error) {
	session := domain.LearningSession{
		ID:          uuid.NewString(),
		SessionType: "pattern_extraction_and_optimization",
		StartedAt:   s.now(),
		Status:      domain.LearningRunning,
	}
	if err := s.sessions.StartSession(session); err != nil {
		return session, fmt.Errorf("failed to start learning session: %w", err)
	}

	extracted, err := s.analyzer.ExtractPatterns()
	if err != nil {
		session.Status = domain.LearningFailed
		session.CompletedAt = s.now()
		_ = s.sessions.CompleteSession(session)
		return session, fmt.Errorf("pattern extraction failed: %w", err)
	}
	session.PatternsExtracted = extracted

	strategy, err := s.optimizer.Optimize(strategyName)
	if err != nil {
		session.Status = domain.LearningFailed
		session.CompletedAt = s.now()
		_ = s.sessions.CompleteSession(session)
		return session, fmt.Errorf("strategy optimization failed: %w", err)
	}
	session.PatternsAnalyzed = extracted
	session.StrategyID = strategy.ID
	session.Status = domain.LearningCompleted
	session.CompletedAt = s.now()

	if err := s.sessions.CompleteSession(session); err != nil {
		return session, fmt.Errorf("failed to complete learning session: %w", err)
	}
	s.log.Info().
		Str("strategy", strategyName).
		Int("patterns_extracted", extracted).
		Int("strategy_version", strategy.Version).
		Msg("learning cycle completed")
	return session, nil
}
