package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/backtest"
	"github.com/aristath/sentinel/internal/broker"
	"github.com/aristath/sentinel/internal/cache"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/database"
	"github.com/aristath/sentinel/internal/engine"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/learning"
	"github.com/aristath/sentinel/internal/llm"
	"github.com/aristath/sentinel/internal/market_regime"
	"github.com/aristath/sentinel/internal/modules/settings"
	"github.com/aristath/sentinel/internal/news"
	"github.com/aristath/sentinel/internal/observability"
	"github.com/aristath/sentinel/internal/reliability"
	"github.com/aristath/sentinel/internal/risk"
	"github.com/aristath/sentinel/internal/scheduler"
	"github.com/aristath/sentinel/internal/sentiment"
	"github.com/aristath/sentinel/internal/server"
	"github.com/aristath/sentinel/internal/signal"
)

// App holds every wired component so main() and the cobra subcommands can
// each use the slice they need without repeating construction.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	market   *database.DB
	trading  *database.DB
	cacheDB  *database.DB
	learning *database.DB

	news       *database.NewsRepository
	sentRepo   *database.SentimentRepository
	prices     *database.PriceRepository
	holdings   *database.HoldingRepository
	trades     *database.TradeRepository
	configRepo *database.ConfigRepository
	backtests  *database.BacktestRepository
	cacheRepo  *database.CacheRepository
	learnRepo  *database.LearningRepository
	settings   *settings.Repository

	cache *cache.Cache

	llmClient    *llm.Client
	llmOptimizer *llm.Optimizer

	newsClient   *news.Client
	newsIngest   *news.Ingestor
	sentiment    *sentiment.Analyzer
	vixClient    *signal.VIXClient
	signalGen    *signal.Generator
	corroborator *market_regime.TechnicalCorroborator
	riskManager  *risk.Manager
	brokerClient broker.Client
	registry    *engine.Registry
	backtest    *backtest.Engine

	learningSvc *learning.Service

	bus        *events.Bus
	metrics    *observability.Collector
	alerts     *observability.Publisher
	objStore   *reliability.ObjectStoreClient
	backups    *reliability.BackupService
	objBackups *reliability.ObjectStoreBackupService

	scheduler *scheduler.Scheduler
	server    *server.Server
}

// buildApp opens every logical database, migrates it, and wires the full
// dependency graph described by the platform's components. Subcommands
// that only need part of the graph (e.g. `news collect`) still pay for
// the whole wire-up; that cost is a handful of SQLite connections and is
// cheap relative to running a one-shot CLI command.
func buildApp(cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{cfg: cfg, log: log}

	var err error
	if app.market, err = openDB(cfg, "market", database.ProfileStandard); err != nil {
		return nil, err
	}
	if app.trading, err = openDB(cfg, "trading", database.ProfileLedger); err != nil {
		return nil, err
	}
	if app.cacheDB, err = openDB(cfg, "cache", database.ProfileCache); err != nil {
		return nil, err
	}
	if app.learning, err = openDB(cfg, "learning", database.ProfileStandard); err != nil {
		return nil, err
	}

	app.news = database.NewNewsRepository(app.market.Conn(), log)
	app.sentRepo = database.NewSentimentRepository(app.market.Conn(), log)
	app.prices = database.NewPriceRepository(app.market.Conn(), log)
	app.holdings = database.NewHoldingRepository(app.trading.Conn(), log)
	app.trades = database.NewTradeRepository(app.trading.Conn(), app.holdings, log)
	app.configRepo = database.NewConfigRepository(app.trading.Conn(), log)
	app.backtests = database.NewBacktestRepository(app.trading.Conn(), log)
	app.cacheRepo = database.NewCacheRepository(app.cacheDB.Conn(), log)
	app.learnRepo = database.NewLearningRepository(app.learning.Conn(), log)
	app.settings = settings.NewRepository(app.trading.Conn(), log)

	if err := cfg.UpdateFromSettings(app.settings); err != nil {
		log.Warn().Err(err).Msg("failed to update config from settings database, using environment values")
	}

	app.cache = cache.New(app.cacheRepo, 10*time.Minute, log)

	app.llmClient = llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, log)
	app.llmOptimizer = llm.New(app.llmClient, llm.DefaultConfig(), log)

	app.newsClient = news.NewClient(cfg.NewsBaseURL, cfg.NewsAPIKey, log)
	app.sentiment = sentiment.New(app.news, app.sentRepo, app.llmOptimizer, sentiment.DefaultConfig(), log)
	app.newsIngest = news.NewIngestor(
		app.newsClient, app.news, app.sentiment,
		time.Duration(cfg.NewsRetentionDays)*24*time.Hour,
		time.Duration(cfg.NewsLookbackDays)*24*time.Hour,
		log,
	)

	app.vixClient = signal.NewVIXClient(cfg.VIXBaseURL, log)
	app.signalGen = signal.New(app.sentRepo, app.vixClient, signal.DefaultConfig(), log)
	app.corroborator = market_regime.NewTechnicalCorroborator(app.prices, log)

	app.riskManager = risk.New(risk.NewRepositoryHoldings(app.holdings, app.trades), log)

	app.brokerClient = broker.NewMockClient(cfg.StartingCash, log)

	app.bus = events.NewBus(log)
	app.metrics = observability.NewCollector(500, log)

	var emailSender observability.EmailSender
	if cfg.SMTPHost != "" {
		emailSender = observability.NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, []string{cfg.SMTPTo})
	}
	var smsSender observability.SMSSender
	if cfg.SMSWebhookURL != "" {
		smsSender = observability.NewHTTPSMSTransport(cfg.SMSWebhookURL, cfg.SMSAPIKey, cfg.SMSToNumber)
	}
	app.alerts = observability.NewPublisher(time.Duration(cfg.AlertCooldownMinutes)*time.Minute, emailSender, smsSender, log)

	app.registry = engine.NewDefaultRegistry(app.brokerClient, app.holdings, app.trades, app.riskManager, app.alerts, log)
	app.backtest = backtest.New(app.backtests, app.prices, app.signalGen, app.riskManager, log)

	patternAnalyzer := learning.NewAnalyzer(app.trades, app.learnRepo, log)
	optimizer := learning.NewOptimizer(app.learnRepo, 20, log)
	app.learningSvc = learning.NewService(patternAnalyzer, optimizer, app.learnRepo, log)

	databases := map[string]*database.DB{
		"market":   app.market,
		"trading":  app.trading,
		"cache":    app.cacheDB,
		"learning": app.learning,
	}
	app.backups = reliability.NewBackupService(databases, cfg.DataDir, log)

	if cfg.ObjectStoreBucket != "" {
		ctx := context.Background()
		app.objStore, err = reliability.NewObjectStoreClient(ctx, reliability.ObjectStoreConfig{
			Endpoint:        cfg.ObjectStoreEndpoint,
			Region:          cfg.ObjectStoreRegion,
			Bucket:          cfg.ObjectStoreBucket,
			AccessKeyID:     cfg.ObjectStoreAccessKeyID,
			SecretAccessKey: cfg.ObjectStoreSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build object store client: %w", err)
		}
		app.objBackups = reliability.NewObjectStoreBackupService(app.objStore, app.backups, cfg.DataDir, log)
	}

	app.scheduler = scheduler.New(log)

	app.server = server.New(server.Config{
		Log:      log,
		Port:     cfg.Port,
		DevMode:  cfg.DevMode,
		EventBus: app.bus,
		Metrics:  app.metrics,
		Alerts:   app.alerts,
		Backtest: app.backtest,
		Backups:  app.objBackups,
		DataDir:  cfg.DataDir,
	})

	return app, nil
}

func openDB(cfg *config.Config, name string, profile database.DatabaseProfile) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("%s/%s.db", cfg.DataDir, name),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", name, err)
	}
	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
	}
	return db, nil
}

// registerJobs wires every scheduled job (C12) onto the scheduler's cron.
func (a *App) registerJobs() error {
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"@every 1h", scheduler.NewNewsCollectionJob(a.newsIngest, a.log)},
		{"@every 1m", scheduler.NewPricePollJob(a.brokerClient, a.prices, a.holdings, a.cfg.Watchlist, a.log)},
		{"0 * * * *", scheduler.NewCacheSweepJob(a.cache, a.log)},
		{"@every 5m", scheduler.NewPositionMonitorJob(a.registry, a.configRepo, a.log)},
		{"@every 1m", scheduler.NewSignalProcessingJob(a.signalGen, a.registry, a.configRepo, a.cfg.Watchlist, a.vixClient, a.corroborator, a.alerts, a.log)},
		{"0 2 * * *", reliability.NewDailyMaintenanceJob(map[string]*database.DB{
			"market": a.market, "trading": a.trading, "cache": a.cacheDB, "learning": a.learning,
		}, a.cfg.DataDir, a.log)},
	}
	if a.objBackups != nil {
		jobs = append(jobs, struct {
			schedule string
			job      scheduler.Job
		}{"0 3 * * *", reliability.NewBackupJob(a.objBackups, a.cfg.BackupRetentionDays)})
	}

	for _, j := range jobs {
		if err := a.scheduler.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.job.Name(), err)
		}
	}
	return nil
}

// Close shuts down every logical database. Call after the scheduler and
// server have both stopped.
func (a *App) Close() {
	a.llmOptimizer.Close()
	for _, db := range []*database.DB{a.market, a.trading, a.cacheDB, a.learning} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			a.log.Error().Err(err).Str("database", db.Name()).Msg("error closing database")
		}
	}
}
