package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"

	"github.com/aristath/sentinel/internal/events"
)

// eventStreamBuffer is the per-connection backlog before events start
// getting dropped, matching the teacher's events_stream.go SSE handler's
// buffered channel sizing.
const eventStreamBuffer = 100

// EventsStreamHandler serves the dashboard event feed over a websocket
// connection, adapted from the teacher's SSE-based events_stream.go.
// Binary subprotocol negotiation picks msgpack over JSON when the client
// offers it, since msgpack is smaller on the wire for the same payload.
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsStreamHandler creates the websocket event stream handler.
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus: bus,
		log: log.With().Str("component", "events_stream").Logger(),
	}
}

// eventTypesStreamed is every event type the dashboard cares about;
// unlike the SSE handler's optional type filter, every connection
// subscribes to all of them and the client filters client-side.
var eventTypesStreamed = []events.EventType{
	events.NewsIngested,
	events.SentimentScored,
	events.SignalGenerated,
	events.TradeExecuted,
	events.PositionOpened,
	events.PositionClosed,
	events.AlertRaised,
	events.RiskHalted,
	events.BacktestCompleted,
	events.LearningCycleCompleted,
	events.BackupCompleted,
	events.SystemStatusChanged,
	events.ErrorOccurred,
	events.JobStarted,
	events.JobProgress,
	events.JobCompleted,
	events.JobFailed,
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"msgpack", "json"},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to accept websocket connection")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	useMsgpack := conn.Subprotocol() == "msgpack"
	h.log.Info().Bool("msgpack", useMsgpack).Msg("client connected to event stream")

	ctx := conn.CloseRead(r.Context())
	eventChan := make(chan *events.Event, eventStreamBuffer)

	handler := func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("event channel full, dropping event")
		}
	}
	for _, eventType := range eventTypesStreamed {
		h.bus.Subscribe(eventType, handler)
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("client disconnected from event stream")
			return

		case event := <-eventChan:
			if err := h.send(ctx, conn, useMsgpack, event); err != nil {
				h.log.Warn().Err(err).Msg("failed to send event, closing stream")
				return
			}

		case <-heartbeat.C:
			if err := h.sendHeartbeat(ctx, conn, useMsgpack); err != nil {
				h.log.Warn().Err(err).Msg("failed to send heartbeat, closing stream")
				return
			}
		}
	}
}

func (h *EventsStreamHandler) send(ctx context.Context, conn *websocket.Conn, useMsgpack bool, event *events.Event) error {
	if useMsgpack {
		// msgpack can't encode Event.Data (an interface) through struct
		// reflection the way Event's custom MarshalJSON does, so the
		// event is first flattened through its own JSON encoding into a
		// plain map and re-encoded from there — one extra hop, but it
		// reuses the same field names and avoids a second bespoke
		// marshaler to keep in sync with EventData's growing type set.
		asMap, err := eventToMap(event)
		if err != nil {
			return err
		}
		payload, err := msgpack.Marshal(asMap)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageBinary, payload)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

func eventToMap(event *events.Event) (map[string]any, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	return asMap, nil
}

func (h *EventsStreamHandler) sendHeartbeat(ctx context.Context, conn *websocket.Conn, useMsgpack bool) error {
	heartbeat := map[string]any{"type": "heartbeat", "timestamp": time.Now().UTC().Format(time.RFC3339)}
	if useMsgpack {
		payload, err := msgpack.Marshal(heartbeat)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageBinary, payload)
	}

	payload, err := json.Marshal(heartbeat)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}
