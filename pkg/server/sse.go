package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

// SSEEvent represents an event to send to clients.
type SSEEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	ID    string      `json:"id,omitempty"`
}

// sseWriter writes Server-Sent Events to one response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     atomic.Int64
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("SSE not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

// Send writes and flushes one event. Events without an id are numbered.
func (s *sseWriter) Send(event SSEEvent) error {
	if event.ID == "" {
		event.ID = fmt.Sprintf("%d", s.seq.Add(1))
	}
	if err := writeSSEEvent(s.w, event); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// writeSSEEvent writes an event in SSE format.
func writeSSEEvent(w http.ResponseWriter, event SSEEvent) error {
	if event.ID != "" {
		fmt.Fprintf(w, "id: %s\n", event.ID)
	}
	fmt.Fprintf(w, "event: %s\n", event.Event)

	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
