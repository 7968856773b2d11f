package news

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
)

// Store is the persistence contract the ingestor needs. Satisfied by
// *database.NewsRepository.
type Store interface {
	ExistsByURL(url string) (bool, error)
	ExistsByTitleAndPublished(title string, publishedAt time.Time) (bool, error)
	Create(a domain.NewsArticle) error
	PruneOlderThan(cutoff time.Time) (int64, error)
}

// Fetcher fetches raw articles from the news source. *Client satisfies it.
type Fetcher interface {
	FetchSince(ctx context.Context, from, to time.Time) ([]RawArticle, error)
}

// SentimentTrigger is called after new articles are stored so the sentiment
// analyzer (C5) can pick up the unanalyzed backlog. Errors are logged, not
// propagated — a sentiment failure must not unwind the ingestion run.
type SentimentTrigger interface {
	AnalyzeUnanalyzed(ctx context.Context) (int, error)
}

// Ingestor runs the C4 fetch -> dedupe-and-store -> trigger-sentiment ->
// prune pipeline.
type Ingestor struct {
	fetcher       Fetcher
	store         Store
	sentiment     SentimentTrigger
	retention     time.Duration
	lookback      time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

// NewIngestor creates an ingestor. retention is how long articles are kept
// before the prune step removes them; lookback is how far back each run
// fetches (spec default: 7 days).
func NewIngestor(fetcher Fetcher, store Store, sentiment SentimentTrigger, retention, lookback time.Duration, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		fetcher:   fetcher,
		store:     store,
		sentiment: sentiment,
		retention: retention,
		lookback:  lookback,
		log:       log.With().Str("component", "news_ingestor").Logger(),
		now:       time.Now,
	}
}

// Result summarizes one ingestion run.
type Result struct {
	Fetched  int
	Stored   int
	Analyzed int
	Pruned   int64
}

// Run executes fetch -> keyword-filter -> dedupe-and-store ->
// trigger-sentiment -> prune. A fetch error ends the run at once: it is
// returned with an empty Result and no later stage runs. Per-article store
// failures and sentiment or prune failures are logged and do not abort the
// run.
func (i *Ingestor) Run(ctx context.Context) (Result, error) {
	now := i.now()
	articles, err := i.fetcher.FetchSince(ctx, now.Add(-i.lookback), now)
	if err != nil {
		i.log.Error().Err(err).Msg("news fetch failed, skipping this run")
		return Result{}, err
	}

	var res Result
	res.Fetched = len(articles)

	for _, raw := range filterFinancial(articles) {
		stored, err := i.storeIfNew(raw, now)
		if err != nil {
			i.log.Warn().Err(err).Str("title", raw.Title).Msg("failed to store article")
			continue
		}
		if stored {
			res.Stored++
		}
	}

	if i.sentiment != nil {
		analyzed, err := i.sentiment.AnalyzeUnanalyzed(ctx)
		if err != nil {
			i.log.Error().Err(err).Msg("sentiment trigger failed after ingestion")
		}
		res.Analyzed = analyzed
	}

	cutoff := now.Add(-i.retention)
	pruned, err := i.store.PruneOlderThan(cutoff)
	if err != nil {
		i.log.Error().Err(err).Msg("failed to prune old articles")
	} else {
		res.Pruned = pruned
	}

	i.log.Info().
		Int("fetched", res.Fetched).
		Int("stored", res.Stored).
		Int("analyzed", res.Analyzed).
		Int64("pruned", res.Pruned).
		Msg("news ingestion run complete")

	return res, nil
}

// storeIfNew applies the dedupe rule: reject on URL match, and always
// fall through to a title+published-timestamp match even when the URL
// check found no match — two fetches of the same article under
// different tracking-parameter URLs still dedupe correctly.
func (i *Ingestor) storeIfNew(raw RawArticle, now time.Time) (bool, error) {
	if raw.URL != "" {
		exists, err := i.store.ExistsByURL(raw.URL)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}

	exists, err := i.store.ExistsByTitleAndPublished(raw.Title, raw.PublishedAt)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	article := domain.NewsArticle{
		ID:          uuid.NewString(),
		Title:       raw.Title,
		Body:        raw.Body,
		PublishedAt: raw.PublishedAt,
		Source:      raw.Source,
		URL:         raw.URL,
		AssetType:   "general",
		CreatedAt:   now,
	}
	if err := i.store.Create(article); err != nil {
		return false, err
	}
	return true, nil
}
