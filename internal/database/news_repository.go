package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/rs/zerolog"
)

// newsColumns lists the news_articles columns in scan order, avoiding
// SELECT * so the scanner stays correct across schema changes.
const newsColumns = `id, title, body, published_at, source, url, asset_type, created_at`

// NewsRepository persists NewsArticle rows in market.db.
type NewsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewNewsRepository creates a news repository over the market database.
func NewNewsRepository(db *sql.DB, log zerolog.Logger) *NewsRepository {
	return &NewsRepository{db: db, log: log.With().Str("repo", "news").Logger()}
}

// ExistsByURL reports whether an article with this URL is already stored.
func (r *NewsRepository) ExistsByURL(url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	var count int
	err := r.db.QueryRow(`SELECT COUNT(1) FROM news_articles WHERE url = ?`, url).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check article existence by url: %w", err)
	}
	return count > 0, nil
}

// ExistsByTitleAndPublished reports whether an article with this exact
// title and published timestamp is already stored (the fallback dedupe key
// when the source omits a URL).
func (r *NewsRepository) ExistsByTitleAndPublished(title string, publishedAt time.Time) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(1) FROM news_articles WHERE title = ? AND published_at = ?`,
		title, publishedAt.UTC(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check article existence by title/date: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new article. Callers are expected to have already run
// the dedupe checks (ExistsByURL, ExistsByTitleAndPublished) — Create does
// not itself re-validate uniqueness beyond the URL unique index.
func (r *NewsRepository) Create(a domain.NewsArticle) error {
	_, err := r.db.Exec(
		`INSERT INTO news_articles (`+newsColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Body, a.PublishedAt.UTC(), a.Source, nullString(a.URL), a.AssetType, a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}
	return nil
}

// UnanalyzedArticles returns articles without a corresponding
// sentiment_analyses row, oldest first, for the sentiment analyzer to pick
// up.
func (r *NewsRepository) UnanalyzedArticles(limit int) ([]domain.NewsArticle, error) {
	rows, err := r.db.Query(
		`SELECT a.id, a.title, a.body, a.published_at, a.source, a.url, a.asset_type, a.created_at
		 FROM news_articles a
		 LEFT JOIN sentiment_analyses s ON s.article_id = a.id
		 WHERE s.id IS NULL
		 ORDER BY a.published_at ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unanalyzed articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// PruneOlderThan deletes articles published before the cutoff (retention
// sweep). Returns the number of rows removed.
func (r *NewsRepository) PruneOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM news_articles WHERE published_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune articles: %w", err)
	}
	return res.RowsAffected()
}

func scanArticles(rows *sql.Rows) ([]domain.NewsArticle, error) {
	var out []domain.NewsArticle
	for rows.Next() {
		var a domain.NewsArticle
		var url sql.NullString
		if err := rows.Scan(&a.ID, &a.Title, &a.Body, &a.PublishedAt, &a.Source, &url, &a.AssetType, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		a.URL = url.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating articles: %w", err)
	}
	return out, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
