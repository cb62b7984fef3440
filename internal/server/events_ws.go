package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/tender/internal/events"
)

const wsWriteTimeout = 5 * time.Second

// EventsWebSocketHandler pushes bus events to websocket clients as JSON text frames
type EventsWebSocketHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsWebSocketHandler creates a new websocket events handler
func NewEventsWebSocketHandler(eventBus *events.Bus, log zerolog.Logger) *EventsWebSocketHandler {
	return &EventsWebSocketHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_ws").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws?types=...
func (h *EventsWebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	sub := subscribe(h.eventBus, r.URL.Query().Get("types"), h.log)
	defer sub.close()

	// Clients only listen; CloseRead handles control frames and cancels ctx on close
	ctx := conn.CloseRead(r.Context())
	h.log.Info().Msg("WebSocket client connected")

	if err := h.write(ctx, conn, map[string]interface{}{"type": "connected"}); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("WebSocket client disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event := <-sub.events:
			if err := h.write(ctx, conn, eventPayload(event)); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

func (h *EventsWebSocketHandler) write(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	err := wsjson.Write(writeCtx, conn, v)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.Warn().Err(err).Msg("WebSocket write failed")
	}
	return err
}
