package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// lastEventID reads the replay cursor from either the standard SSE
// reconnection header or an explicit query parameter, so WS clients (which
// have no native Last-Event-ID header) can still resume (spec §4.5).
func lastEventID(r *http.Request) string {
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		return v
	}
	return r.URL.Query().Get("last_event_id")
}

// handleSSEStream replays the durable log from Last-Event-ID then
// transitions to live tail, matching spec §4.5's reconnection contract.
func (s *Server) handleSSEStream(w http.ResponseWriter, r *http.Request) {
	stream, ok := s.resolveEventStream(w, r)
	if !ok {
		return
	}

	streamID := chi.URLParam(r, "stream_id")
	cursor := lastEventID(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		errs.WriteHTTPError(w, errs.Wrap(errs.CodeBackendUnavailable, http.StatusInternalServerError, "streaming unsupported", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	backlog, err := stream.ListAfter(r.Context(), streamID, cursor, 500)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return
	}
	for _, record := range backlog {
		writeSSEFrame(w, record)
	}
	flusher.Flush()

	live, err := stream.Tail(r.Context(), streamID, cursor)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case record, open := <-live:
			if !open {
				return
			}
			writeSSEFrame(w, record)
			flusher.Flush()
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, record []byte) {
	var envelope struct {
		Envelope struct {
			EventID string `json:"event_id"`
		} `json:"envelope"`
	}
	_ = json.Unmarshal(record, &envelope)
	fmt.Fprintf(w, "id: %s\ndata: %s\n\n", envelope.Envelope.EventID, record)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWSStream is the WebSocket equivalent of handleSSEStream for
// consumers that prefer a persistent bidirectional socket over SSE (spec
// §4.5 lists both as valid live-tail transports).
func (s *Server) handleWSStream(w http.ResponseWriter, r *http.Request) {
	stream, ok := s.resolveEventStream(w, r)
	if !ok {
		return
	}

	streamID := chi.URLParam(r, "stream_id")
	cursor := lastEventID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	backlog, err := stream.ListAfter(r.Context(), streamID, cursor, 500)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	for _, record := range backlog {
		if err := conn.WriteMessage(websocket.TextMessage, record); err != nil {
			return
		}
	}

	live, err := stream.Tail(r.Context(), streamID, cursor)
	if err != nil {
		return
	}

	for record := range live {
		if err := conn.WriteMessage(websocket.TextMessage, record); err != nil {
			return
		}
	}
}
