// Package sentiment implements the sentiment analyzer (C5): scoring each
// ingested news article with the LLM request optimizer and persisting the
// verdict.
package sentiment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/llm"
)

const systemPrompt = `You are a financial news analyst. Read the given article and assess its
likely impact on the market.

Respond with JSON in exactly this shape:
{
  "sentiment": "Positive" | "Negative" | "Neutral",
  "reasoning": "two to three sentences explaining the call"
}

Classification guide:
- Positive: news that is bullish for prices
- Negative: news that is bearish for prices
- Neutral: unclear or no material market impact`

const userPromptTemplate = `Analyze the following news article:

Title: %s
Content: %s
Source: %s
Published: %s

Assess its sentiment and respond in the required JSON format.`

const maxContentChars = 2000

// ArticleStore is the subset of the news repository the analyzer reads from.
type ArticleStore interface {
	UnanalyzedArticles(limit int) ([]domain.NewsArticle, error)
}

// ResultStore persists sentiment verdicts.
type ResultStore interface {
	Create(s domain.SentimentAnalysis) error
}

// Generator is the JSON-completion contract the analyzer drives; satisfied
// by *llm.Optimizer.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int, priority llm.Priority, dest interface{}) error
}

// Config tunes the analyzer's LLM calls and batch size.
type Config struct {
	Temperature float64
	MaxTokens   int
	BatchLimit  int
}

// DefaultConfig mirrors the original analyzer's temperature/token budget.
func DefaultConfig() Config {
	return Config{Temperature: 0.3, MaxTokens: 500, BatchLimit: 50}
}

// Analyzer scores unanalyzed articles one at a time and stores the verdict.
type Analyzer struct {
	articles  ArticleStore
	results   ResultStore
	generator Generator
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a sentiment analyzer.
func New(articles ArticleStore, results ResultStore, generator Generator, cfg Config, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		articles:  articles,
		results:   results,
		generator: generator,
		cfg:       cfg,
		log:       log.With().Str("component", "sentiment_analyzer").Logger(),
		now:       time.Now,
	}
}

type llmVerdict struct {
	Sentiment string `json:"sentiment"`
	Reasoning string `json:"reasoning"`
}

// AnalyzeUnanalyzed scores every currently-unanalyzed article. Satisfies
// news.SentimentTrigger. Per-article failures are logged and skipped so one
// malformed LLM response never stalls the batch.
func (a *Analyzer) AnalyzeUnanalyzed(ctx context.Context) (int, error) {
	articles, err := a.articles.UnanalyzedArticles(a.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to load unanalyzed articles: %w", err)
	}

	analyzed := 0
	for _, article := range articles {
		if err := a.analyzeOne(ctx, article); err != nil {
			a.log.Error().Err(err).Str("article_id", article.ID).Msg("failed to analyze article")
			continue
		}
		analyzed++
	}

	a.log.Info().Int("total", len(articles)).Int("analyzed", analyzed).Msg("sentiment analysis batch complete")
	return analyzed, nil
}

func (a *Analyzer) analyzeOne(ctx context.Context, article domain.NewsArticle) error {
	content := article.Body
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	prompt := fmt.Sprintf(userPromptTemplate, article.Title, content, article.Source, article.PublishedAt.Format("2006-01-02 15:04"))

	var verdict llmVerdict
	if err := a.generator.GenerateJSON(ctx, prompt, systemPrompt, a.cfg.Temperature, a.cfg.MaxTokens, llm.PriorityNormal, &verdict); err != nil {
		return fmt.Errorf("llm request failed: %w", err)
	}

	label, err := normalizeSentiment(verdict.Sentiment)
	if err != nil {
		return err
	}

	reasoning := strings.TrimSpace(verdict.Reasoning)
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}

	result := domain.SentimentAnalysis{
		ID:         uuid.NewString(),
		ArticleID:  article.ID,
		Label:      label,
		Score:      label.Quantify(),
		Reasoning:  reasoning,
		AnalyzedAt: a.now(),
	}

	if err := a.results.Create(result); err != nil {
		return fmt.Errorf("failed to store sentiment result: %w", err)
	}
	return nil
}

// normalizeSentiment title-cases and validates the LLM's sentiment label.
func normalizeSentiment(raw string) (domain.Sentiment, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		return "", fmt.Errorf("empty sentiment label in LLM response")
	}
	normalized = strings.ToUpper(normalized[:1]) + strings.ToLower(normalized[1:])

	switch domain.Sentiment(normalized) {
	case domain.SentimentPositive, domain.SentimentNegative, domain.SentimentNeutral:
		return domain.Sentiment(normalized), nil
	default:
		return "", fmt.Errorf("invalid sentiment label %q", raw)
	}
}
