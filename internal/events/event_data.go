package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface every typed event payload implements, so the
// bus can carry heterogeneous payloads while each subscriber that cares
// about a specific type can assert down to it.
type EventData interface {
	// EventType returns the event type this data is associated with.
	EventType() EventType
}

// NewsIngestedData reports a batch of articles pulled in by C4.
type NewsIngestedData struct {
	Symbol        string `json:"symbol"`
	ArticlesFound int    `json:"articles_found"`
	ArticlesNew   int    `json:"articles_new"`
}

func (d *NewsIngestedData) EventType() EventType { return NewsIngested }

// SentimentScoredData reports a completed C5 scoring pass for one symbol.
type SentimentScoredData struct {
	Symbol        string  `json:"symbol"`
	ArticleCount  int     `json:"article_count"`
	AverageScore  float64 `json:"average_score"`
	WeightedScore float64 `json:"weighted_score"`
}

func (d *SentimentScoredData) EventType() EventType { return SentimentScored }

// SignalGeneratedData reports a C6 signal computation.
type SignalGeneratedData struct {
	Symbol     string  `json:"symbol"`
	Signal     float64 `json:"signal"`
	Action     string  `json:"action"` // "buy", "sell", "hold"
	Confidence float64 `json:"confidence"`
}

func (d *SignalGeneratedData) EventType() EventType { return SignalGenerated }

// TradeExecutedData reports a fill from C9/C8.
type TradeExecutedData struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	OrderID  string  `json:"order_id,omitempty"`
	UserID   string  `json:"user_id,omitempty"`
}

func (d *TradeExecutedData) EventType() EventType { return TradeExecuted }

// PositionOpenedData reports a new open position.
type PositionOpenedData struct {
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"`
	EntryPrice  float64 `json:"entry_price"`
	UserID      string  `json:"user_id,omitempty"`
	StopLossPct float64 `json:"stop_loss_pct,omitempty"`
}

func (d *PositionOpenedData) EventType() EventType { return PositionOpened }

// PositionClosedData reports a position exit, win or loss.
type PositionClosedData struct {
	Symbol     string  `json:"symbol"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	PnL        float64 `json:"pnl"`
	PnLPct     float64 `json:"pnl_pct"`
	Reason     string  `json:"reason"` // "signal", "stop_loss", "take_profit", "manual"
	UserID     string  `json:"user_id,omitempty"`
}

func (d *PositionClosedData) EventType() EventType { return PositionClosed }

// AlertRaisedData mirrors an observability.Alert for bus subscribers that
// only need the shape, not an import on the observability package.
type AlertRaisedData struct {
	Type    string         `json:"type"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (d *AlertRaisedData) EventType() EventType { return AlertRaised }

// RiskHaltedData reports the risk manager halting trading for a user.
type RiskHaltedData struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

func (d *RiskHaltedData) EventType() EventType { return RiskHalted }

// BacktestCompletedData reports a finished C10 backtest run.
type BacktestCompletedData struct {
	RunID          int64   `json:"run_id"`
	Symbol         string  `json:"symbol"`
	TotalReturnPct float64 `json:"total_return_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	TradeCount     int     `json:"trade_count"`
}

func (d *BacktestCompletedData) EventType() EventType { return BacktestCompleted }

// LearningCycleCompletedData reports a finished C11 weight-optimization cycle.
type LearningCycleCompletedData struct {
	ParametersUpdated int     `json:"parameters_updated"`
	ImprovementPct    float64 `json:"improvement_pct"`
}

func (d *LearningCycleCompletedData) EventType() EventType { return LearningCycleCompleted }

// BackupCompletedData reports a finished C15 backup-and-upload cycle.
type BackupCompletedData struct {
	ArchiveName string `json:"archive_name"`
	SizeBytes   int64  `json:"size_bytes"`
}

func (d *BackupCompletedData) EventType() EventType { return BackupCompleted }

// SystemStatusChangedData reports a coarse system health transition.
type SystemStatusChangedData struct {
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (d *SystemStatusChangedData) EventType() EventType { return SystemStatusChanged }

// ErrorEventData reports an unhandled error worth surfacing to the dashboard.
type ErrorEventData struct {
	Error   string         `json:"error"`
	Context map[string]any `json:"context,omitempty"`
}

func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }

// JobProgressInfo carries incremental progress for a long-running job
// (a backtest sweep, a learning cycle, a news-collection pass).
type JobProgressInfo struct {
	Current int            `json:"current"`
	Total   int            `json:"total"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// JobStatusData contains data for job lifecycle events. Its EventType is
// derived from Status rather than fixed, since one struct covers the whole
// started/progress/completed/failed lifecycle.
type JobStatusData struct {
	JobID       string          `json:"job_id"`
	JobType     string          `json:"job_type"`
	Status      string          `json:"status"` // "started", "progress", "completed", "failed"
	Description string          `json:"description"`
	Progress    *JobProgressInfo `json:"progress,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationSec float64         `json:"duration_sec,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "started":
		return JobStarted
	case "progress":
		return JobProgress
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobStarted
	}
}

// Event is one published occurrence: a typed payload plus routing metadata.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON flattens Data's concrete payload into the "data" field,
// since EventData is an interface and encoding/json can't do that on its
// own without help.
func (e *Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON restores Data to its concrete type based on Type, falling
// back to GenericEventData for any type this package doesn't define a
// struct for (forward-compatible with dashboard-only event types).
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) == 0 {
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case NewsIngested:
		eventData = &NewsIngestedData{}
	case SentimentScored:
		eventData = &SentimentScoredData{}
	case SignalGenerated:
		eventData = &SignalGeneratedData{}
	case TradeExecuted:
		eventData = &TradeExecutedData{}
	case PositionOpened:
		eventData = &PositionOpenedData{}
	case PositionClosed:
		eventData = &PositionClosedData{}
	case AlertRaised:
		eventData = &AlertRaisedData{}
	case RiskHalted:
		eventData = &RiskHaltedData{}
	case BacktestCompleted:
		eventData = &BacktestCompletedData{}
	case LearningCycleCompleted:
		eventData = &LearningCycleCompletedData{}
	case BackupCompleted:
		eventData = &BackupCompletedData{}
	case SystemStatusChanged:
		eventData = &SystemStatusChangedData{}
	case ErrorOccurred:
		eventData = &ErrorEventData{}
	case JobStarted, JobProgress, JobCompleted, JobFailed:
		eventData = &JobStatusData{}
	default:
		var rawData map[string]interface{}
		if err := json.Unmarshal(aux.Data, &rawData); err != nil {
			return err
		}
		eventData = &GenericEventData{Type: aux.Type, Data: rawData}
	}

	if eventData != nil {
		if _, ok := eventData.(*GenericEventData); !ok {
			if err := json.Unmarshal(aux.Data, eventData); err != nil {
				return err
			}
		}
		e.Data = eventData
	}

	return nil
}

// GenericEventData is a fallback for event types this package has no
// specific struct for.
type GenericEventData struct {
	Type EventType      `json:"-"`
	Data map[string]any `json:"-"`
}

func (d *GenericEventData) EventType() EventType { return d.Type }

func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
