// Package signal implements the signal generator (C6): aggregating
// sentiment into a daily/weekly score, weighting it by market volatility,
// and mapping the result onto a 0-100 buy/sell ratio.
package signal

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
)

// NormalizationMethod selects how a raw weekly signal score is mapped onto
// the 0-100 ratio.
type NormalizationMethod string

const (
	MethodSigmoid NormalizationMethod = "sigmoid"
	MethodLinear  NormalizationMethod = "linear"
)

const (
	sigmoidSteepness = 0.3
	sigmoidCenter    = 0.0

	linearMin = -15.0
	linearMax = 10.0
)

// Interpretation classifies a ratio into the three trading bands.
type Interpretation string

const (
	StrongSell Interpretation = "Strong Sell"
	Neutral    Interpretation = "Neutral"
	StrongBuy  Interpretation = "Strong Buy"
)

// Interpret classifies a ratio per spec: <=30 Strong Sell, 31-70 Neutral,
// >=71 Strong Buy.
func Interpret(ratio int) Interpretation {
	switch {
	case ratio <= 30:
		return StrongSell
	case ratio <= 70:
		return Neutral
	default:
		return StrongBuy
	}
}

// SentimentStore supplies the sentiment rows a signal calculation reads
// over a window. Satisfied by *database.SentimentRepository.
type SentimentStore interface {
	InWindow(from, to time.Time) ([]domain.SentimentAnalysis, error)
}

// Result is the full output of one signal calculation, including the
// intermediate values tests and callers may want to inspect.
type Result struct {
	Ratio          int
	SignalScore    float64
	DailyScores    map[string]float64 // "2006-01-02" -> mean quantified score
	VIXNormalized  float64
	Interpretation Interpretation
}

// Config tunes the generator's window and normalization method.
type Config struct {
	Window             time.Duration
	NormalizationMethod NormalizationMethod
	FallbackVIX        float64
}

// DefaultConfig mirrors the original generator's defaults: 7-day window,
// sigmoid normalization, and a moderate fallback VIX on fetch failure.
func DefaultConfig() Config {
	return Config{
		Window:              7 * 24 * time.Hour,
		NormalizationMethod: MethodSigmoid,
		FallbackVIX:         20.0,
	}
}

// Generator computes buy/sell signals from stored sentiment and an
// external VIX reading.
type Generator struct {
	sentiments SentimentStore
	vix        VIXSource
	cfg        Config
	log        zerolog.Logger
}

// New creates a signal generator.
func New(sentiments SentimentStore, vix VIXSource, cfg Config, log zerolog.Logger) *Generator {
	return &Generator{
		sentiments: sentiments,
		vix:        vix,
		cfg:        cfg,
		log:        log.With().Str("component", "signal_generator").Logger(),
	}
}

// Calculate runs the full pipeline as of `asOf`: group sentiment in
// [asOf-window, asOf] by day, compute the weekly signal weighted by VIX,
// and normalize to a ratio. asOf is a parameter (not time.Now()) so the
// backtest engine (C10) can replay this exact logic against a historical
// date without any parallel implementation.
func (g *Generator) Calculate(ctx context.Context, asOf time.Time) (Result, error) {
	from := asOf.Add(-g.cfg.Window)
	rows, err := g.sentiments.InWindow(from, asOf)
	if err != nil {
		return Result{}, err
	}

	dailyScores := groupByDay(rows)

	if len(dailyScores) == 0 {
		g.log.Warn().Msg("no sentiment data in window, returning neutral signal")
		return Result{
			Ratio:          50,
			SignalScore:    0,
			DailyScores:    map[string]float64{},
			VIXNormalized:  0,
			Interpretation: Neutral,
		}, nil
	}

	vixNormalized := g.resolveVIX(ctx)

	scores := make([]float64, 0, len(dailyScores))
	for _, v := range dailyScores {
		scores = append(scores, v)
	}
	signalScore := WeeklySignal(scores, vixNormalized)
	ratio := NormalizeToRatio(signalScore, g.cfg.NormalizationMethod)

	g.log.Info().
		Float64("signal_score", signalScore).
		Int("ratio", ratio).
		Float64("vix_normalized", vixNormalized).
		Int("days", len(dailyScores)).
		Msg("signal calculated")

	return Result{
		Ratio:          ratio,
		SignalScore:    signalScore,
		DailyScores:    dailyScores,
		VIXNormalized:  vixNormalized,
		Interpretation: Interpret(ratio),
	}, nil
}

// resolveVIX fetches and normalizes the current VIX, falling back to the
// configured neutral value on any error so a quote-source outage never
// blocks signal generation.
func (g *Generator) resolveVIX(ctx context.Context) float64 {
	if g.vix == nil {
		return NormalizeVIX(g.cfg.FallbackVIX)
	}
	raw, err := g.vix.CurrentVIX(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("vix fetch failed, using fallback value")
		raw = g.cfg.FallbackVIX
	}
	return NormalizeVIX(raw)
}

// groupByDay buckets sentiment rows by UTC calendar date (keyed by
// analyzed_at) and averages each day's quantified score.
func groupByDay(rows []domain.SentimentAnalysis) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}

	for _, r := range rows {
		day := r.AnalyzedAt.UTC().Format("2006-01-02")
		sums[day] += r.Label.Quantify()
		counts[day]++
	}

	out := make(map[string]float64, len(sums))
	for day, sum := range sums {
		out[day] = sum / float64(counts[day])
	}
	return out
}

// WeeklySignal computes Σ(daily_score) × (1 + vix_normalized).
func WeeklySignal(dailyScores []float64, vixNormalized float64) float64 {
	if len(dailyScores) == 0 {
		return 0
	}
	weight := 1.0 + vixNormalized
	var sum float64
	for _, s := range dailyScores {
		sum += s
	}
	return sum * weight
}

// sigmoid maps x to (0, 1), centered at `center` with the given steepness.
func sigmoid(x, center, steepness float64) float64 {
	exponent := -steepness * (x - center)
	if exponent > 700 {
		return 0.0
	}
	if exponent < -700 {
		return 1.0
	}
	return 1.0 / (1.0 + math.Exp(exponent))
}

// NormalizeToRatio maps a raw weekly signal score to a 0-100 ratio using
// the requested method.
func NormalizeToRatio(signalScore float64, method NormalizationMethod) int {
	var normalized float64

	switch method {
	case MethodLinear:
		clamped := signalScore
		if clamped < linearMin {
			clamped = linearMin
		}
		if clamped > linearMax {
			clamped = linearMax
		}
		normalized = (clamped - linearMin) / (linearMax - linearMin)
	default:
		normalized = sigmoid(signalScore, sigmoidCenter, sigmoidSteepness)
	}

	ratio := int(normalized * 100)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 100 {
		ratio = 100
	}
	return ratio
}
