package observability

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAPIRequestAccumulatesPerEndpoint(t *testing.T) {
	c := NewCollector(100, zerolog.Nop())

	c.RecordAPIRequest("/signal", 100*time.Millisecond, true)
	c.RecordAPIRequest("/signal", 200*time.Millisecond, true)
	c.RecordAPIRequest("/signal", 300*time.Millisecond, false)
	c.RecordAPIRequest("/trade", 50*time.Millisecond, true)

	snap := c.Snapshot()
	require.Contains(t, snap.API, "/signal")
	signal := snap.API["/signal"]
	assert.Equal(t, int64(3), signal.RequestCount)
	assert.Equal(t, int64(1), signal.ErrorCount)
	assert.InDelta(t, 200*time.Millisecond, signal.AvgResponseTime, float64(5*time.Millisecond))

	require.Contains(t, snap.API, "/trade")
	assert.Equal(t, int64(1), snap.API["/trade"].RequestCount)
}

func TestRecordLLMInferenceComputesSuccessRateAndTokens(t *testing.T) {
	c := NewCollector(100, zerolog.Nop())

	c.RecordLLMInference(500*time.Millisecond, 120, true)
	c.RecordLLMInference(700*time.Millisecond, 80, true)
	c.RecordLLMInference(900*time.Millisecond, 0, false)

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.LLM.RequestCount)
	assert.Equal(t, int64(1), snap.LLM.ErrorCount)
	assert.InDelta(t, 2.0/3.0, snap.LLM.SuccessRate, 0.001)
	assert.InDelta(t, 100.0, snap.LLM.AvgTokens, 0.001)
}

func TestRecordTradeComputesWinRateAndVolume(t *testing.T) {
	c := NewCollector(100, zerolog.Nop())

	win := 10.0
	loss := -4.0
	c.RecordTrade(1000, &win, true)
	c.RecordTrade(500, &loss, true)
	c.RecordTrade(200, nil, false)

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.Trading.TotalTrades)
	assert.Equal(t, int64(2), snap.Trading.SuccessCount)
	assert.Equal(t, int64(1), snap.Trading.FailureCount)
	assert.InDelta(t, 1700.0, snap.Trading.TotalVolume, 0.001)
	assert.InDelta(t, 0.5, snap.Trading.WinRate, 0.001)
}

func TestWindowEvictsOldestSampleOnceFull(t *testing.T) {
	c := NewCollector(3, zerolog.Nop())

	c.RecordAPIRequest("/x", 1*time.Second, true)
	c.RecordAPIRequest("/x", 2*time.Second, true)
	c.RecordAPIRequest("/x", 3*time.Second, true)
	c.RecordAPIRequest("/x", 100*time.Millisecond, true) // evicts the 1s sample

	snap := c.Snapshot()
	x := snap.API["/x"]
	assert.Equal(t, int64(4), x.RequestCount)
	// average of {2s, 3s, 0.1s} ~= 1.7s, not the {1s,2s,3s,0.1s} average (~1.525s)
	assert.InDelta(t, 1.7*float64(time.Second), float64(x.AvgResponseTime), float64(20*time.Millisecond))
}

func TestSnapshotWithNoSamplesReturnsZeroValues(t *testing.T) {
	c := NewCollector(100, zerolog.Nop())

	snap := c.Snapshot()
	assert.Empty(t, snap.API)
	assert.Equal(t, int64(0), snap.LLM.RequestCount)
	assert.Equal(t, float64(0), snap.LLM.SuccessRate)
	assert.Equal(t, int64(0), snap.Trading.TotalTrades)
	assert.Equal(t, float64(0), snap.Trading.WinRate)
}
