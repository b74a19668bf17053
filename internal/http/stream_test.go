package http

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/bus"
	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

func newStreamServer(t *testing.T, b *bus.Bus, maxStreams int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewStreamHandler(b, maxStreams).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamDeliversEvents(t *testing.T) {
	b := bus.New()
	defer b.Close()
	srv := newStreamServer(t, b, 5)

	resp, err := http.Get(srv.URL + "/api/sessions/s1/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Let the handler subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	b.Publish("s1", bus.Event{
		Type:      protocol.EventNewMessage,
		SessionID: "s1",
		Role:      "assistant",
		Preview:   "done",
	})

	reader := bufio.NewReader(resp.Body)
	deadline := time.AfterFunc(3*time.Second, func() { resp.Body.Close() })
	defer deadline.Stop()

	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
		}
	}
	if eventLine != "event: "+protocol.EventNewMessage {
		t.Errorf("event line = %q", eventLine)
	}
	if !strings.Contains(dataLine, `"preview":"done"`) || !strings.Contains(dataLine, `"session_id":"s1"`) {
		t.Errorf("data line = %q", dataLine)
	}
}

func TestStreamKeepalive(t *testing.T) {
	b := bus.New()
	defer b.Close()

	h := NewStreamHandler(b, 5)
	h.keepalive = 30 * time.Millisecond
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/dashboard/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	deadline := time.AfterFunc(3*time.Second, func() { resp.Body.Close() })
	defer deadline.Stop()

	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !strings.HasPrefix(line, ": keepalive") {
		t.Errorf("first line = %q, want keepalive comment", line)
	}
}

func TestStreamCap(t *testing.T) {
	b := bus.New()
	defer b.Close()
	srv := newStreamServer(t, b, 1)

	first, err := http.Get(srv.URL + "/api/dashboard/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first stream status = %d", first.StatusCode)
	}

	second, err := http.Get(srv.URL + "/api/dashboard/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second stream status = %d, want 429", second.StatusCode)
	}
}
