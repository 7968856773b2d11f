// Package domain defines the core business entities shared across the
// sentiment-trading pipeline: news ingestion, sentiment scoring, signal
// generation, risk validation, trade execution, backtesting, and learning.
//
// Types here are plain domain values, not database rows. Repositories in
// internal/database translate between these values and SQL, so a domain
// struct never carries a sql.DB handle or scan-only fields.
package domain

import "time"

// Sentiment is the three-way classification produced by the sentiment
// analyzer for a single news article.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

// Quantify converts a sentiment label to its signed numeric score, applying
// the conservative bias to negative sentiment (1.5x the nominal magnitude).
func (s Sentiment) Quantify() float64 {
	switch s {
	case SentimentPositive:
		return 1.0
	case SentimentNegative:
		return -1.0 * 1.5
	default:
		return 0.0
	}
}

// NewsArticle is a single ingested article. Immutable after insert; pruned
// by the retention sweep once older than the configured window.
type NewsArticle struct {
	ID          string
	Title       string
	Body        string
	PublishedAt time.Time
	Source      string
	URL         string // optional, empty when the source omitted it
	AssetType   string // asset-category tag, e.g. "equity", "crypto"
	CreatedAt   time.Time
}

// SentimentAnalysis is the one-to-one sentiment verdict for a NewsArticle.
// Immutable once created.
type SentimentAnalysis struct {
	ID         string
	ArticleID  string
	Label      Sentiment
	Score      float64
	Reasoning  string
	AnalyzedAt time.Time
}

// StockPrice is a single timestamped price observation for a symbol.
type StockPrice struct {
	Symbol    string
	Last      float64
	Open      float64
	High      float64
	Low       float64
	Volume    int64
	Timestamp time.Time
}

// RiskLevel governs how aggressively position sizing scales with signal
// strength (see risk.PositionSize).
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// TradeSide distinguishes buy and sell orders throughout the pipeline.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// TradeStatus is the terminal state recorded for a trade attempt.
type TradeStatus string

const (
	TradeCompleted TradeStatus = "COMPLETED"
	TradeFailed    TradeStatus = "FAILED"
)

// AccountHolding is a user's current position in a symbol. Rows with
// Quantity == 0 are deleted rather than persisted (enforced by the
// persistence layer, not by callers).
type AccountHolding struct {
	UserID      string
	Symbol      string
	Quantity    float64
	AvgCost     float64 // weighted-average cost basis, never reduced by sells
	LastPrice   float64
	UpdatedAt   time.Time
}

// TradingWindow is an inclusive local clock-time range during which
// auto-trading is permitted to submit new orders.
type TradingWindow struct {
	Start time.Time // only the Hour/Minute/Second fields are meaningful
	End   time.Time
}

// AutoTradeConfig is a user's auto-trading policy. Treated as an immutable
// value at the domain boundary; mutation happens through a dedicated
// persistence-layer update, never by mutating a shared pointer in place.
type AutoTradeConfig struct {
	UserID           string
	Enabled          bool
	MaxTotalInvested float64
	MaxPositionSize  float64
	RiskLevel        RiskLevel
	BuyThreshold     int // 0-100
	SellThreshold    int // 0-100, invariant: SellThreshold < BuyThreshold
	StopLossPct      float64 // positive magnitude
	DailyLossLimit   *float64 // optional, positive magnitude
	Window           TradingWindow
	AllowedSymbols   map[string]struct{} // nil/empty means "all symbols allowed"
	ExcludedSymbols  map[string]struct{}
	NotifyTarget     string
}

// TradeHistory is one append-only record of an executed (or failed) order.
type TradeHistory struct {
	ID             string
	UserID         string
	BrokerOrderID  string
	Symbol         string
	Side           TradeSide
	Quantity       float64
	SubmittedPrice float64
	ExecutedPrice  float64
	TotalAmount    float64
	ProfitLoss     *float64 // non-nil only on SELL
	Status         TradeStatus
	SignalRatio    int
	Reasoning      string
	ExecutedAt     time.Time
	CreatedAt      time.Time
}

// AnalysisCache is one opaque cache row backing the durable tier of the
// two-tier cache (see internal/cache).
type AnalysisCache struct {
	Key       string
	Payload   []byte // JSON, primitives wrapped as {"value": ...}
	ExpiresAt time.Time
}

// BacktestStatus is the lifecycle state of a BacktestRun.
type BacktestStatus string

const (
	BacktestPending   BacktestStatus = "PENDING"
	BacktestRunning   BacktestStatus = "RUNNING"
	BacktestCompleted BacktestStatus = "COMPLETED"
	BacktestFailed    BacktestStatus = "FAILED"
)

// BacktestRun is one historical-replay request and its resulting metrics.
type BacktestRun struct {
	ID              string
	UserID          string
	Name            string
	StrategyConfig  []byte // JSON snapshot of the strategy parameters used
	StartDate       time.Time
	EndDate         time.Time
	InitialCapital  float64
	Status          BacktestStatus
	FinalCapital    float64
	ReturnPct       float64
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	WinRate         float64
	MaxDrawdownPct  float64
	Sharpe          float64
	Sortino         float64
	Error           string
	StartedAt       time.Time
	CompletedAt     time.Time
}

// BacktestTrade mirrors TradeHistory but is scoped to one BacktestRun.
type BacktestTrade struct {
	ID           string
	RunID        string
	Symbol       string
	Side         TradeSide
	Quantity     float64
	Price        float64
	TotalAmount  float64
	ProfitLoss   *float64
	Reasoning    string
	ExecutedAt   time.Time
}

// BacktestDailyStats is one day's portfolio snapshot within a BacktestRun.
type BacktestDailyStats struct {
	RunID            string
	Date             time.Time
	PortfolioValue   float64
	Cash             float64
	Invested         float64
	DailyReturnPct   float64
	CumulativeReturn float64
	DrawdownPct      float64
	Holdings         map[string]float64 // symbol -> quantity
	Regime           string
}

// PatternType labels a realized trade pair as a learning example.
type PatternType string

const (
	PatternWinning PatternType = "winning"
	PatternLosing  PatternType = "losing"
)

// TradePattern is a feature snapshot around one realized buy-then-sell pair,
// used as input to strategy optimization (internal/learning).
type TradePattern struct {
	ID              string
	UserID          string
	Symbol          string
	PatternType     PatternType
	EntrySignal     int
	HoldingDuration time.Duration
	ProfitLossPct   float64
	MarketRegime    string
	CreatedAt       time.Time
}

// LearnedStrategy is a versioned, optimizable parameter set. At most one row
// per Name may have IsActive == true (enforced transactionally).
type LearnedStrategy struct {
	ID              string
	Name            string
	Version         int
	BuyThreshold    int
	SellThreshold   int
	StopLossPct     float64
	RiskLevel       RiskLevel
	TrainingSamples int
	WinRate         float64
	ProfitFactor    float64
	IsActive        bool
	CreatedAt       time.Time
}

// LearningSessionStatus tracks progress of one pattern-extraction +
// optimization cycle.
type LearningSessionStatus string

const (
	LearningRunning   LearningSessionStatus = "RUNNING"
	LearningCompleted LearningSessionStatus = "COMPLETED"
	LearningFailed    LearningSessionStatus = "FAILED"
)

// LearningSession records one run of the learning subsystem.
type LearningSession struct {
	ID                string
	SessionType       string
	StartedAt         time.Time
	CompletedAt        time.Time
	PatternsExtracted int
	PatternsAnalyzed  int
	Status            LearningSessionStatus
	StrategyID        string
}
