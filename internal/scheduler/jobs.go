package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/engine"
	"github.com/aristath/sentinel/internal/market_regime"
	"github.com/aristath/sentinel/internal/news"
	"github.com/aristath/sentinel/internal/risk"
	"github.com/aristath/sentinel/internal/signal"
)

// NewsCollectionJob runs the full fetch -> store -> sentiment-trigger ->
// prune pipeline (C4) once.
type NewsCollectionJob struct {
	ingestor *news.Ingestor
	log      zerolog.Logger
}

// NewNewsCollectionJob creates the news-collection job. It carries no
// schedule of its own; cmd/sentinel registers it to run every hour, and
// there is no configured daily clock time for it.
func NewNewsCollectionJob(ingestor *news.Ingestor, log zerolog.Logger) *NewsCollectionJob {
	return &NewsCollectionJob{ingestor: ingestor, log: log.With().Str("job", "news_collection").Logger()}
}

func (j *NewsCollectionJob) Name() string { return "news_collection" }

func (j *NewsCollectionJob) Run(ctx context.Context) error {
	result, err := j.ingestor.Run(ctx)
	if err != nil {
		return fmt.Errorf("news collection failed: %w", err)
	}
	j.log.Info().
		Int("fetched", result.Fetched).
		Int("stored", result.Stored).
		Int("analyzed", result.Analyzed).
		Int64("pruned", result.Pruned).
		Msg("news collection cycle completed")
	return nil
}

// PriceSource fetches a live quote. Satisfied by broker.Client.
type PriceSource interface {
	GetStockPrice(symbol string) (domain.StockPrice, error)
}

// PriceSink persists a price observation. Satisfied by *database.PriceRepository.
type PriceSink interface {
	Record(p domain.StockPrice) error
}

// HeldSymbols supplies the symbols currently held by any user. Satisfied
// by *database.HoldingRepository.
type HeldSymbols interface {
	AllSymbols() ([]string, error)
}

// PricePollJob fetches and records a fresh quote for every symbol in
// current holdings plus a configured watch-list, once per firing.
type PricePollJob struct {
	source    PriceSource
	sink      PriceSink
	held      HeldSymbols
	watchlist []string
	log       zerolog.Logger
}

// NewPricePollJob creates the per-minute price-poll job. watchlist adds
// symbols beyond whatever is currently held (e.g. symbols under active
// evaluation but not yet bought).
func NewPricePollJob(source PriceSource, sink PriceSink, held HeldSymbols, watchlist []string, log zerolog.Logger) *PricePollJob {
	return &PricePollJob{source: source, sink: sink, held: held, watchlist: watchlist, log: log.With().Str("job", "price_poll").Logger()}
}

func (j *PricePollJob) Name() string { return "price_poll" }

func (j *PricePollJob) Run(ctx context.Context) error {
	held, err := j.held.AllSymbols()
	if err != nil {
		return fmt.Errorf("failed to load held symbols: %w", err)
	}

	seen := make(map[string]struct{}, len(held)+len(j.watchlist))
	symbols := make([]string, 0, len(held)+len(j.watchlist))
	for _, symbol := range append(held, j.watchlist...) {
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}

	polled := 0
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		price, err := j.source.GetStockPrice(symbol)
		if err != nil {
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to fetch quote, skipping")
			continue
		}
		if err := j.sink.Record(price); err != nil {
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to record price, skipping")
			continue
		}
		polled++
	}
	j.log.Debug().Int("polled", polled).Int("total", len(symbols)).Msg("price poll cycle completed")
	return nil
}

// Sweeper expires durable-tier cache entries past their TTL. Satisfied by
// *cache.Cache.
type Sweeper interface {
	Sweep() (int64, error)
}

// CacheSweepJob runs the hourly cache-expiry sweep.
type CacheSweepJob struct {
	cache Sweeper
	log   zerolog.Logger
}

// NewCacheSweepJob creates the cache-expiry sweep job.
func NewCacheSweepJob(cache Sweeper, log zerolog.Logger) *CacheSweepJob {
	return &CacheSweepJob{cache: cache, log: log.With().Str("job", "cache_sweep").Logger()}
}

func (j *CacheSweepJob) Name() string { return "cache_sweep" }

func (j *CacheSweepJob) Run(ctx context.Context) error {
	removed, err := j.cache.Sweep()
	if err != nil {
		return fmt.Errorf("cache sweep failed: %w", err)
	}
	j.log.Debug().Int64("removed", removed).Msg("cache sweep completed")
	return nil
}

// EnabledConfigs lists every user with auto-trading enabled. Satisfied by
// *database.ConfigRepository.
type EnabledConfigs interface {
	Enabled() ([]domain.AutoTradeConfig, error)
}

// PositionMonitorJob runs each enabled user's stop-loss sweep (C8's
// MonitorPositions) through the engine registry, so concurrent per-user
// monitoring still serializes per user (spec §5).
type PositionMonitorJob struct {
	registry *engine.Registry
	configs  EnabledConfigs
	log      zerolog.Logger
}

// NewPositionMonitorJob creates the optional periodic position-monitor job.
func NewPositionMonitorJob(registry *engine.Registry, configs EnabledConfigs, log zerolog.Logger) *PositionMonitorJob {
	return &PositionMonitorJob{registry: registry, configs: configs, log: log.With().Str("job", "position_monitor").Logger()}
}

func (j *PositionMonitorJob) Name() string { return "position_monitor" }

func (j *PositionMonitorJob) Run(ctx context.Context) error {
	configs, err := j.configs.Enabled()
	if err != nil {
		return fmt.Errorf("failed to load enabled configs: %w", err)
	}

	for _, cfg := range configs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cfg := cfg
		err := j.registry.WithEngine(cfg.UserID, func(e *engine.Engine) error {
			_, err := e.MonitorPositions(cfg)
			return err
		})
		if err != nil {
			j.log.Warn().Err(err).Str("user_id", cfg.UserID).Msg("position monitor sweep failed for user")
		}
	}
	return nil
}

// SignalProcessingJob computes one market-wide sentiment signal (C6) per
// firing and runs it through C8's process_signal for every symbol on the
// watchlist, for every enabled user. The ratio is market-wide rather than
// per-symbol (see signal.Generator.Calculate), so it is computed once per
// firing and reused across the whole watchlist instead of recomputed per
// symbol.
type SignalProcessingJob struct {
	generator    *signal.Generator
	registry     *engine.Registry
	configs      EnabledConfigs
	watchlist    []string
	vix          signal.VIXSource
	corroborator *market_regime.TechnicalCorroborator
	alerts       risk.AlertPublisher
	log          zerolog.Logger
}

// NewSignalProcessingJob creates the periodic signal-generation-and-trading job.
// vix, corroborator, and alerts are optional (nil-safe): without them the
// job still generates signals and trades, it just skips the abnormal-market
// corroboration check.
func NewSignalProcessingJob(generator *signal.Generator, registry *engine.Registry, configs EnabledConfigs, watchlist []string, vix signal.VIXSource, corroborator *market_regime.TechnicalCorroborator, alerts risk.AlertPublisher, log zerolog.Logger) *SignalProcessingJob {
	return &SignalProcessingJob{
		generator:    generator,
		registry:     registry,
		configs:      configs,
		watchlist:    watchlist,
		vix:          vix,
		corroborator: corroborator,
		alerts:       alerts,
		log:          log.With().Str("job", "signal_processing").Logger(),
	}
}

func (j *SignalProcessingJob) Name() string { return "signal_processing" }

func (j *SignalProcessingJob) Run(ctx context.Context) error {
	now := time.Now()
	result, err := j.generator.Calculate(ctx, now)
	if err != nil {
		return fmt.Errorf("signal calculation failed: %w", err)
	}

	j.checkAbnormalMarket(ctx, now)

	configs, err := j.configs.Enabled()
	if err != nil {
		return fmt.Errorf("failed to load enabled configs: %w", err)
	}

	reasoning := fmt.Sprintf("market sentiment signal: %s (score=%.2f, vix=%.1f)", result.Interpretation, result.SignalScore, result.VIXNormalized)

	for _, cfg := range configs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cfg := cfg
		for _, symbol := range j.watchlist {
			if !symbolAllowed(cfg, symbol) {
				continue
			}

			symbol := symbol
			err := j.registry.WithEngine(cfg.UserID, func(e *engine.Engine) error {
				_, err := e.ProcessSignal(cfg, symbol, result.Ratio, reasoning)
				return err
			})
			if err != nil {
				j.log.Warn().Err(err).Str("user_id", cfg.UserID).Str("symbol", symbol).Msg("signal processing failed for user/symbol")
			}
		}
	}
	return nil
}

// checkAbnormalMarket corroborates risk.DetectAbnormalMarket(vix) with an
// ATR-based volatility read on the watchlist (SPEC §4.14): VIX > 40 OR any
// symbol's ATR z-score > 3 raises a single CRITICAL alert. Errors from the
// VIX source or the corroborator are logged and swallowed — this check
// must never block signal processing or trading.
func (j *SignalProcessingJob) checkAbnormalMarket(ctx context.Context, asOf time.Time) {
	if j.vix == nil || j.alerts == nil {
		return
	}

	vix, err := j.vix.CurrentVIX(ctx)
	if err != nil {
		j.log.Warn().Err(err).Msg("failed to fetch VIX for abnormal-market check")
		return
	}
	abnormal := risk.DetectAbnormalMarket(vix)
	var trigger string
	if abnormal {
		trigger = fmt.Sprintf("VIX %.1f > 40", vix)
	}

	if !abnormal && j.corroborator != nil {
		for _, symbol := range j.watchlist {
			report, err := j.corroborator.Corroborate(symbol, asOf)
			if err != nil {
				j.log.Warn().Err(err).Str("symbol", symbol).Msg("technical corroboration failed")
				continue
			}
			if report.AbnormalByATR {
				abnormal = true
				trigger = fmt.Sprintf("%s ATR z-score %.2f > 3", symbol, report.ATRZScore)
				break
			}
		}
	}

	if abnormal {
		j.alerts.Critical("Abnormal market conditions detected", trigger)
	}
}

// symbolAllowed applies the config's allow/exclude lists: a nil or empty
// AllowedSymbols means every symbol is allowed unless explicitly excluded.
func symbolAllowed(cfg domain.AutoTradeConfig, symbol string) bool {
	if _, excluded := cfg.ExcludedSymbols[symbol]; excluded {
		return false
	}
	if len(cfg.AllowedSymbols) == 0 {
		return true
	}
	_, allowed := cfg.AllowedSymbols[symbol]
	return allowed
}
