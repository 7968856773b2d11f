// Package observability implements the metrics collector and alerting
// component (C13): rolling-window metrics per category (API timings, LLM
// inference, trade outcomes) with percentile reporting, plus cooldown-gated
// alerts with email/SMS transports.
package observability

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindowSize matches the teacher's metrics collector default.
const DefaultWindowSize = 1000

// window is a fixed-capacity circular buffer of recent samples.
type window struct {
	samples []float64
	cap     int
	next    int
	filled  bool
}

func newWindow(cap int) *window {
	if cap <= 0 {
		cap = DefaultWindowSize
	}
	return &window{samples: make([]float64, cap), cap: cap}
}

func (w *window) add(v float64) {
	w.samples[w.next] = v
	w.next = (w.next + 1) % w.cap
	if w.next == 0 {
		w.filled = true
	}
}

// values returns a defensive copy of the samples currently held, in no
// particular order (callers sort before computing percentiles).
func (w *window) values() []float64 {
	if w.filled {
		out := make([]float64, w.cap)
		copy(out, w.samples)
		return out
	}
	out := make([]float64, w.next)
	copy(out, w.samples[:w.next])
	return out
}

type apiStats struct {
	times    *window
	requests int64
	errors   int64
}

// Collector accumulates rolling-window metrics under a single mutex,
// mirroring the teacher's per-category lock on the monitoring service but
// generalized to one lock guarding one struct (the categories here are
// small enough that per-category locks would only add ceremony).
type Collector struct {
	mu         sync.Mutex
	windowSize int

	api map[string]*apiStats

	llmTimes    *window
	llmTokens   *window
	llmRequests int64
	llmErrors   int64

	tradeAmounts *window
	tradeProfits *window
	tradeSuccess int64
	tradeFailure int64

	startedAt time.Time
	proc      *process.Process
	log       zerolog.Logger
}

// NewCollector creates a metrics collector with the given rolling-window
// size (DefaultWindowSize if zero or negative). Process metrics are best
// effort: if gopsutil cannot resolve the current process, System() simply
// omits CPU/memory figures rather than failing.
func NewCollector(windowSize int, log zerolog.Logger) *Collector {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &Collector{
		windowSize:   windowSize,
		api:          make(map[string]*apiStats),
		llmTimes:     newWindow(windowSize),
		llmTokens:    newWindow(windowSize),
		tradeAmounts: newWindow(windowSize),
		tradeProfits: newWindow(windowSize),
		startedAt:    time.Now(),
		proc:         proc,
		log:          log.With().Str("component", "metrics_collector").Logger(),
	}
}

// RecordAPIRequest records one endpoint call's latency and outcome.
func (c *Collector) RecordAPIRequest(endpoint string, elapsed time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.api[endpoint]
	if !ok {
		st = &apiStats{times: newWindow(c.windowSize)}
		c.api[endpoint] = st
	}
	st.times.add(elapsed.Seconds())
	st.requests++
	if !success {
		st.errors++
	}
}

// RecordLLMInference records one completion call's latency, token count
// (0 if unknown), and outcome.
func (c *Collector) RecordLLMInference(elapsed time.Duration, tokens int, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.llmTimes.add(elapsed.Seconds())
	c.llmRequests++
	if tokens > 0 {
		c.llmTokens.add(float64(tokens))
	}
	if !success {
		c.llmErrors++
	}
}

// RecordTrade records one executed or failed order. profit is nil for
// trades that have not yet been closed out.
func (c *Collector) RecordTrade(amount float64, profit *float64, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tradeAmounts.add(amount)
	if profit != nil {
		c.tradeProfits.add(*profit)
	}
	if success {
		c.tradeSuccess++
	} else {
		c.tradeFailure++
	}
}

// EndpointMetrics summarizes one API endpoint's rolling window.
type EndpointMetrics struct {
	Endpoint        string
	RequestCount    int64
	ErrorCount      int64
	AvgResponseTime time.Duration
	MinResponseTime time.Duration
	MaxResponseTime time.Duration
	P95ResponseTime time.Duration
	P99ResponseTime time.Duration
}

// LLMMetrics summarizes the LLM optimizer's rolling window.
type LLMMetrics struct {
	RequestCount      int64
	ErrorCount        int64
	SuccessRate       float64
	AvgInferenceTime  time.Duration
	P95InferenceTime  time.Duration
	P99InferenceTime  time.Duration
	AvgTokens         float64
	TotalTokensWindow float64
}

// TradingMetrics summarizes the auto-trading engine's rolling window.
type TradingMetrics struct {
	TotalTrades     int64
	SuccessCount    int64
	FailureCount    int64
	SuccessRate     float64
	TotalVolume     float64
	AvgTradeAmount  float64
	TotalProfit     float64
	AvgProfit       float64
	WinRate         float64
}

// SystemMetrics reports process uptime and, when available, resource use.
type SystemMetrics struct {
	UptimeSeconds float64
	StartedAt     time.Time
	CPUPercent    float64
	MemoryUsedMB  float64
}

// Snapshot is a point-in-time read of every category, safe to serialize
// or hand to the CLI's "metrics show" subcommand.
type Snapshot struct {
	Timestamp time.Time
	API       map[string]EndpointMetrics
	LLM       LLMMetrics
	Trading   TradingMetrics
	System    SystemMetrics
}

// Snapshot computes a consistent read across every category. Percentiles
// are computed on a sorted copy of each window, never on the live buffer.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	api := make(map[string]EndpointMetrics, len(c.api))
	for endpoint, st := range c.api {
		times := st.times.values()
		api[endpoint] = EndpointMetrics{
			Endpoint:        endpoint,
			RequestCount:    st.requests,
			ErrorCount:      st.errors,
			AvgResponseTime: secondsToDuration(mean(times)),
			MinResponseTime: secondsToDuration(minOf(times)),
			MaxResponseTime: secondsToDuration(maxOf(times)),
			P95ResponseTime: secondsToDuration(percentile(times, 0.95)),
			P99ResponseTime: secondsToDuration(percentile(times, 0.99)),
		}
	}

	llmTimes := c.llmTimes.values()
	llmTokens := c.llmTokens.values()
	llm := LLMMetrics{
		RequestCount:      c.llmRequests,
		ErrorCount:        c.llmErrors,
		SuccessRate:       successRate(c.llmRequests, c.llmErrors),
		AvgInferenceTime:  secondsToDuration(mean(llmTimes)),
		P95InferenceTime:  secondsToDuration(percentile(llmTimes, 0.95)),
		P99InferenceTime:  secondsToDuration(percentile(llmTimes, 0.99)),
		AvgTokens:         mean(llmTokens),
		TotalTokensWindow: sum(llmTokens),
	}

	amounts := c.tradeAmounts.values()
	profits := c.tradeProfits.values()
	totalTrades := c.tradeSuccess + c.tradeFailure
	trading := TradingMetrics{
		TotalTrades:    totalTrades,
		SuccessCount:   c.tradeSuccess,
		FailureCount:   c.tradeFailure,
		SuccessRate:    successRate(totalTrades, c.tradeFailure),
		TotalVolume:    sum(amounts),
		AvgTradeAmount: mean(amounts),
		TotalProfit:    sum(profits),
		AvgProfit:      mean(profits),
		WinRate:        winRate(profits),
	}

	system := SystemMetrics{
		UptimeSeconds: time.Since(c.startedAt).Seconds(),
		StartedAt:     c.startedAt,
	}
	if c.proc != nil {
		if cpuPct, err := c.proc.CPUPercent(); err == nil {
			system.CPUPercent = cpuPct
		}
		if memInfo, err := c.proc.MemoryInfo(); err == nil && memInfo != nil {
			system.MemoryUsedMB = float64(memInfo.RSS) / 1024 / 1024
		}
	}

	return Snapshot{
		Timestamp: time.Now(),
		API:       api,
		LLM:       llm,
		Trading:   trading,
		System:    system,
	}
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func successRate(total, errors int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(total-errors) / float64(total)
}

func winRate(profits []float64) float64 {
	if len(profits) == 0 {
		return 0
	}
	wins := 0
	for _, p := range profits {
		if p > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(profits))
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
