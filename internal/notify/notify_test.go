package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/config"
)

type countingSender struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSender) Name() string { return "counting" }

func (c *countingSender) Send(ctx context.Context, title, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func (c *countingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestDispatcherRateLimit(t *testing.T) {
	sender := &countingSender{}
	d := NewDispatcher(3, sender)

	for i := 0; i < 10; i++ {
		d.Notify(context.Background(), "session waiting", "s1")
	}
	// Burst of 3 passes; the rest drop silently.
	deadline := time.After(time.Second)
	for sender.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want 3", sender.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(50 * time.Millisecond)
	if got := sender.count(); got != 3 {
		t.Errorf("calls = %d, want exactly 3", got)
	}
}

func TestDispatcherNoSenders(t *testing.T) {
	d := NewDispatcher(10)
	// Must not panic or block.
	d.Notify(context.Background(), "title", "body")
	if d.Senders() != 0 {
		t.Errorf("Senders = %d", d.Senders())
	}
}

func TestWebhookSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL)
	if err := s.Send(context.Background(), "waiting", "session s1"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["title"] != "waiting" || got["body"] != "session s1" {
		t.Errorf("payload = %v", got)
	}
	if got["timestamp"] == "" {
		t.Error("timestamp missing")
	}
}

func TestWebhookSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL)
	if err := s.Send(context.Background(), "t", "b"); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestFromConfigWebhookOnly(t *testing.T) {
	d := FromConfig(config.NotifyConfig{
		RatePerHour: 10,
		Webhook:     config.WebhookNotify{URL: "http://localhost:1/hook"},
	})
	if d.Senders() != 1 {
		t.Errorf("Senders = %d, want 1", d.Senders())
	}

	d = FromConfig(config.NotifyConfig{RatePerHour: 10})
	if d.Senders() != 0 {
		t.Errorf("Senders = %d, want 0", d.Senders())
	}
}
