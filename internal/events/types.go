// Package events implements the event stream component (C16): a small
// in-process publish/subscribe bus that the trading pipeline's components
// emit onto, and that the dashboard websocket stream fans out from.
package events

// EventType identifies the kind of event carried by an Event.
type EventType string

const (
	NewsIngested           EventType = "NEWS_INGESTED"
	SentimentScored        EventType = "SENTIMENT_SCORED"
	SignalGenerated        EventType = "SIGNAL_GENERATED"
	TradeExecuted          EventType = "TRADE_EXECUTED"
	PositionOpened         EventType = "POSITION_OPENED"
	PositionClosed         EventType = "POSITION_CLOSED"
	AlertRaised            EventType = "ALERT_RAISED"
	RiskHalted             EventType = "RISK_HALTED"
	BacktestCompleted      EventType = "BACKTEST_COMPLETED"
	LearningCycleCompleted EventType = "LEARNING_CYCLE_COMPLETED"
	BackupCompleted        EventType = "BACKUP_COMPLETED"
	SystemStatusChanged    EventType = "SYSTEM_STATUS_CHANGED"
	ErrorOccurred          EventType = "ERROR_OCCURRED"

	JobStarted   EventType = "JOB_STARTED"
	JobProgress  EventType = "JOB_PROGRESS"
	JobCompleted EventType = "JOB_COMPLETED"
	JobFailed    EventType = "JOB_FAILED"
)
