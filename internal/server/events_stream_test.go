package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"

	"github.com/aristath/sentinel/internal/events"
)

func TestEventsStreamHandlerSendsJSONByDefault(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	handler := NewEventsStreamHandler(bus, zerolog.Nop())

	ts := httptest.NewServer(handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the server goroutine a moment to register its subscriptions
	// before publishing, since Subscribe happens inside ServeHTTP.
	time.Sleep(50 * time.Millisecond)
	bus.Publish(events.TradeExecuted, "engine", &events.TradeExecutedData{Symbol: "AAPL"})

	typ, payload, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var decoded events.Event
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, events.TradeExecuted, decoded.Type)
}

func TestEventsStreamHandlerSendsMsgpackWhenNegotiated(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	handler := NewEventsStreamHandler(bus, zerolog.Nop())

	ts := httptest.NewServer(handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):], &websocket.DialOptions{
		Subprotocols: []string{"msgpack"},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	assert.Equal(t, "msgpack", conn.Subprotocol())

	time.Sleep(50 * time.Millisecond)
	bus.Publish(events.AlertRaised, "observability", &events.AlertRaisedData{Level: "critical", Message: "stop loss"})

	typ, payload, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageBinary, typ)

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(payload, &decoded))
	assert.Equal(t, string(events.AlertRaised), decoded["type"])
}
