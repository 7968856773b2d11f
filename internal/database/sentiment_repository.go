package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/rs/zerolog"
)

// SentimentRepository persists SentimentAnalysis rows in market.db.
type SentimentRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSentimentRepository creates a sentiment repository over the market database.
func NewSentimentRepository(db *sql.DB, log zerolog.Logger) *SentimentRepository {
	return &SentimentRepository{db: db, log: log.With().Str("repo", "sentiment").Logger()}
}

// Create inserts a new sentiment verdict for an article. A unique index on
// article_id enforces the one-to-one relationship.
func (r *SentimentRepository) Create(s domain.SentimentAnalysis) error {
	_, err := r.db.Exec(
		`INSERT INTO sentiment_analyses (id, article_id, label, score, reasoning, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.ArticleID, string(s.Label), s.Score, s.Reasoning, s.AnalyzedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sentiment analysis: %w", err)
	}
	return nil
}

// InWindow returns all sentiment rows analyzed within [from, to], ordered
// by analyzed_at, for signal generation.
func (r *SentimentRepository) InWindow(from, to time.Time) ([]domain.SentimentAnalysis, error) {
	rows, err := r.db.Query(
		`SELECT id, article_id, label, score, reasoning, analyzed_at
		 FROM sentiment_analyses
		 WHERE analyzed_at >= ? AND analyzed_at <= ?
		 ORDER BY analyzed_at ASC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiments in window: %w", err)
	}
	defer rows.Close()

	var out []domain.SentimentAnalysis
	for rows.Next() {
		var s domain.SentimentAnalysis
		var label string
		if err := rows.Scan(&s.ID, &s.ArticleID, &label, &s.Score, &s.Reasoning, &s.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment: %w", err)
		}
		s.Label = domain.Sentiment(label)
		out = append(out, s)
	}
	return out, rows.Err()
}
