package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishDeliversToSubscriberOfMatchingType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received *Event
	bus.Subscribe(TradeExecuted, func(e *Event) { received = e })
	bus.Subscribe(SignalGenerated, func(e *Event) { t.Fatal("should not be called") })

	bus.Publish(TradeExecuted, "engine", &TradeExecutedData{Symbol: "AAPL"})

	require.NotNil(t, received)
	assert.Equal(t, TradeExecuted, received.Type)
	assert.Equal(t, "engine", received.Module)
	assert.Equal(t, "AAPL", received.Data.(*TradeExecutedData).Symbol)
}

func TestBusPublishFansOutToMultipleSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var calls int
	bus.Subscribe(AlertRaised, func(e *Event) { calls++ })
	bus.Subscribe(AlertRaised, func(e *Event) { calls++ })

	bus.Publish(AlertRaised, "observability", &AlertRaisedData{Level: "critical"})

	assert.Equal(t, 2, calls)
}

func TestBusPublishWithNoSubscribersDoesNotPanic(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	assert.NotPanics(t, func() {
		bus.Publish(BacktestCompleted, "backtest", &BacktestCompletedData{Symbol: "AAPL"})
	})
}

func TestBusPublishErrorEmitsErrorEventData(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { received = e })

	bus.PublishError("news", errors.New("feed unreachable"), map[string]any{"symbol": "AAPL"})

	require.NotNil(t, received)
	errData := received.Data.(*ErrorEventData)
	assert.Equal(t, "feed unreachable", errData.Error)
	assert.Equal(t, "AAPL", errData.Context["symbol"])
}

func TestBusSubscribeIsSafeForConcurrentUse(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Subscribe(TradeExecuted, func(e *Event) {})
		}()
	}
	wg.Wait()

	bus.Publish(TradeExecuted, "engine", &TradeExecutedData{Symbol: "AAPL"})
}
