package news

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
)

type fakeFetcher struct {
	articles []RawArticle
	err      error
}

func (f *fakeFetcher) FetchSince(context.Context, time.Time, time.Time) ([]RawArticle, error) {
	return f.articles, f.err
}

type fakeStore struct {
	byURL     map[string]bool
	byTitle   map[string]bool
	created   []domain.NewsArticle
	prunedAt  time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{byURL: map[string]bool{}, byTitle: map[string]bool{}}
}

func (s *fakeStore) ExistsByURL(url string) (bool, error) { return s.byURL[url], nil }
func (s *fakeStore) ExistsByTitleAndPublished(title string, at time.Time) (bool, error) {
	return s.byTitle[title], nil
}
func (s *fakeStore) Create(a domain.NewsArticle) error {
	s.created = append(s.created, a)
	return nil
}
func (s *fakeStore) PruneOlderThan(cutoff time.Time) (int64, error) {
	s.prunedAt = cutoff
	return 3, nil
}

type fakeSentiment struct{ called int }

func (f *fakeSentiment) AnalyzeUnanalyzed(context.Context) (int, error) {
	f.called++
	return 2, nil
}

func TestIngestorStoresNewArticles(t *testing.T) {
	fetcher := &fakeFetcher{articles: []RawArticle{
		{Title: "Fed hikes rates", Body: "stock market reacts", URL: "https://a.example/1", PublishedAt: time.Now()},
		{Title: "Sports news", Body: "unrelated content", URL: "https://a.example/2", PublishedAt: time.Now()},
	}}
	store := newFakeStore()
	sentiment := &fakeSentiment{}

	ing := NewIngestor(fetcher, store, sentiment, 30*24*time.Hour, 7*24*time.Hour, zerolog.Nop())
	res, err := ing.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 2, res.Analyzed)
	assert.Equal(t, int64(3), res.Pruned)
	assert.Equal(t, 1, sentiment.called)
	require.Len(t, store.created, 1)
	assert.Equal(t, "Fed hikes rates", store.created[0].Title)
}

func TestIngestorDedupesByURL(t *testing.T) {
	fetcher := &fakeFetcher{articles: []RawArticle{
		{Title: "Fed hikes rates", Body: "stock market reacts", URL: "https://a.example/1", PublishedAt: time.Now()},
	}}
	store := newFakeStore()
	store.byURL["https://a.example/1"] = true

	ing := NewIngestor(fetcher, store, &fakeSentiment{}, time.Hour, time.Hour, zerolog.Nop())
	res, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stored)
}

func TestIngestorDedupesByTitleAndPublishedEvenWhenURLDiffers(t *testing.T) {
	publishedAt := time.Now()
	fetcher := &fakeFetcher{articles: []RawArticle{
		{Title: "Fed hikes rates", Body: "stock market reacts", URL: "https://a.example/1?utm=x", PublishedAt: publishedAt},
	}}
	store := newFakeStore()
	store.byTitle["Fed hikes rates"] = true

	ing := NewIngestor(fetcher, store, &fakeSentiment{}, time.Hour, time.Hour, zerolog.Nop())
	res, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stored)
}

func TestIngestorSourceErrorIsReturnedAndDoesNotPanic(t *testing.T) {
	fetcher := &fakeFetcher{err: &SourceError{Cause: assertErr{}}}
	store := newFakeStore()

	ing := NewIngestor(fetcher, store, &fakeSentiment{}, time.Hour, time.Hour, zerolog.Nop())
	_, err := ing.Run(context.Background())
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestFilterFinancialKeepsOnlyRelevantArticles(t *testing.T) {
	articles := []RawArticle{
		{Title: "Stock market rallies", Body: "investors cheer"},
		{Title: "Local bakery opens", Body: "fresh bread every morning"},
	}
	filtered := filterFinancial(articles)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Stock market rallies", filtered[0].Title)
}
