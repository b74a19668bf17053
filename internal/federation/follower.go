package federation

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/bus"
	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

const reconnectDelay = 5 * time.Second

// Follower mirrors peer event streams onto the local bus. One goroutine per
// peer; each reads the peer's dashboard SSE stream and republishes every
// event, tagged with the peer's hostname. Coordinator mode only.
type Follower struct {
	peers  []Peer
	bus    *bus.Bus
	client *http.Client
}

// NewFollower creates a follower for the given peers.
func NewFollower(peers []Peer, b *bus.Bus) *Follower {
	// No Timeout: the SSE stream is expected to stay open indefinitely.
	return &Follower{peers: peers, bus: b, client: &http.Client{}}
}

// Run starts one follow loop per peer and blocks until ctx is cancelled.
func (f *Follower) Run(ctx context.Context) {
	for _, p := range f.peers {
		go f.follow(ctx, p)
	}
	<-ctx.Done()
}

func (f *Follower) follow(ctx context.Context, p Peer) {
	for ctx.Err() == nil {
		if err := f.stream(ctx, p); err != nil && ctx.Err() == nil {
			slog.Debug("peer stream ended", "peer", p.Hostname, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// stream consumes one SSE connection, republishing each complete event.
func (f *Follower) stream(ctx context.Context, p Peer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL+"/api/dashboard/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	slog.Info("following peer events", "peer", p.Hostname)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if data != "" {
				f.republish(p, data)
				data = ""
			}
		}
	}
	return scanner.Err()
}

func (f *Follower) republish(p Peer, data string) {
	var ev bus.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil || ev.Type == "" {
		return
	}
	if ev.Hostname == "" {
		ev.Hostname = p.Hostname
	}
	topic := ev.SessionID
	if topic == "" {
		topic = protocol.TopicGlobal
	}
	f.bus.Publish(topic, ev)
}
