package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/events"
)

const (
	eventBuffer       = 100
	heartbeatInterval = 30 * time.Second
)

// subscription forwards bus events of the selected types to a buffered channel
type subscription struct {
	events      chan *events.Event
	unsubscribe []func()
}

// subscribe listens for the comma-separated types in filter, or every type when filter is empty.
// Events are dropped when the buffer is full so a slow client never blocks the bus.
func subscribe(bus *events.Bus, filter string, log zerolog.Logger) *subscription {
	types := events.AllEventTypes()
	if filter != "" {
		types = types[:0:0]
		for _, t := range strings.Split(filter, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, events.EventType(strings.ToUpper(t)))
			}
		}
	}

	sub := &subscription{events: make(chan *events.Event, eventBuffer)}
	handler := func(event *events.Event) {
		select {
		case sub.events <- event:
		default:
			log.Warn().Str("event_type", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}
	for _, t := range types {
		sub.unsubscribe = append(sub.unsubscribe, bus.Subscribe(t, handler))
	}
	return sub
}

func (s *subscription) close() {
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
}

func eventPayload(event *events.Event) map[string]interface{} {
	return map[string]interface{}{
		"type":      string(event.Type),
		"module":    event.Module,
		"timestamp": event.Timestamp.Format(time.RFC3339),
		"data":      event.Data,
	}
}

// EventsStreamHandler streams bus events as Server-Sent Events
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream?types=RUN_COMPLETED,BACKUP_COMPLETED
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// The server write timeout would otherwise end the stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	typesFilter := r.URL.Query().Get("types")
	sub := subscribe(h.eventBus, typesFilter, h.log)
	defer sub.close()

	h.log.Info().Str("types_filter", typesFilter).Msg("Client connected to event stream")

	h.write(w, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-sub.events:
			h.write(w, eventPayload(event))
			flusher.Flush()

		case <-heartbeat.C:
			h.write(w, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			})
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) write(w http.ResponseWriter, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		data = []byte(`{"error":"failed to encode event"}`)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
