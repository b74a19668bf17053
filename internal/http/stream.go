package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/bus"
	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

const keepaliveInterval = 30 * time.Second

// StreamHandler serves the SSE endpoints. A process-wide semaphore caps
// concurrent streams; overflow responds 429.
type StreamHandler struct {
	bus       *bus.Bus
	slots     chan struct{}
	keepalive time.Duration
}

// NewStreamHandler creates a handler for the dashboard and per-session SSE
// streams, capping concurrent connections at maxStreams.
func NewStreamHandler(b *bus.Bus, maxStreams int) *StreamHandler {
	if maxStreams <= 0 {
		maxStreams = 5
	}
	return &StreamHandler{
		bus:       b,
		slots:     make(chan struct{}, maxStreams),
		keepalive: keepaliveInterval,
	}
}

// RegisterRoutes registers the SSE routes on the given mux.
func (h *StreamHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dashboard/stream", h.handleGlobalStream)
	mux.HandleFunc("GET /api/sessions/{id}/stream", h.handleSessionStream)
}

func (h *StreamHandler) handleGlobalStream(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, protocol.TopicGlobal)
}

func (h *StreamHandler) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, r.PathValue("id"))
}

func (h *StreamHandler) stream(w http.ResponseWriter, r *http.Request, topic string) {
	select {
	case h.slots <- struct{}{}:
		defer func() { <-h.slots }()
	default:
		writeDetail(w, http.StatusTooManyRequests, "Too many concurrent streams")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.bus.Subscribe(topic)
	defer h.bus.Unsubscribe(sub)

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.C:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
