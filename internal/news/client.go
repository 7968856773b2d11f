// Package news implements news ingestion (C4): fetching financial articles
// from an external source, filtering for domain relevance, deduping
// against storage, and a scheduled collection-and-prune job.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// financialKeywords gates articles for topical relevance. Matched
// case-insensitively against title+body.
var financialKeywords = []string{
	"stock", "market", "trading", "investment", "finance",
	"economy", "cryptocurrency", "bitcoin", "ethereum",
	"nasdaq", "dow jones", "s&p 500", "forex", "bond",
}

// RawArticle is a single article as returned by the source API.
type RawArticle struct {
	Title       string
	Body        string
	PublishedAt time.Time
	Source      string
	URL         string
}

// SourceError wraps a failure talking to the news source; callers (the
// scheduler) log it and move on rather than aborting the run.
type SourceError struct {
	Cause error
}

func (e *SourceError) Error() string { return fmt.Sprintf("news source error: %v", e.Cause) }
func (e *SourceError) Unwrap() error  { return e.Cause }

// Client fetches financial news from a News API-compatible source.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a news client. apiKey must be non-empty for live use;
// an empty key is tolerated so tests can construct a Client without one.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("component", "news_client").Logger(),
	}
}

type apiResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	TotalCount int    `json:"totalResults"`
	Articles   []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		PublishedAt string `json:"publishedAt"`
		URL         string `json:"url"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// FetchSince fetches financial articles published since `from`, already
// filtered by financial-keyword relevance.
func (c *Client) FetchSince(ctx context.Context, from, to time.Time) ([]RawArticle, error) {
	if c.apiKey == "" {
		return nil, &SourceError{Cause: fmt.Errorf("news API key not configured")}
	}

	params := url.Values{}
	params.Set("q", "finance OR stock OR market OR cryptocurrency")
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", "100")
	params.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, &SourceError{Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SourceError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{Cause: fmt.Errorf("news source returned status %d", resp.StatusCode)}
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &SourceError{Cause: fmt.Errorf("failed to decode news response: %w", err)}
	}
	if parsed.Status != "ok" {
		return nil, &SourceError{Cause: fmt.Errorf("news source error: %s", parsed.Message)}
	}

	articles := make([]RawArticle, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		body := strings.TrimSpace(a.Description + "\n\n" + a.Content)
		if a.Title == "" || body == "" {
			continue
		}

		published, err := time.Parse(time.RFC3339, a.PublishedAt)
		if err != nil {
			published = time.Now().UTC()
		}

		articles = append(articles, RawArticle{
			Title:       a.Title,
			Body:        body,
			PublishedAt: published,
			Source:      a.Source.Name,
			URL:         a.URL,
		})
	}

	return filterFinancial(articles), nil
}

// filterFinancial keeps articles whose title+body mention at least one
// financial keyword, case-insensitively.
func filterFinancial(articles []RawArticle) []RawArticle {
	out := make([]RawArticle, 0, len(articles))
	for _, a := range articles {
		text := strings.ToLower(a.Title + " " + a.Body)
		for _, kw := range financialKeywords {
			if strings.Contains(text, kw) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}
