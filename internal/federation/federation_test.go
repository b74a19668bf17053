package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/bus"
	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

func TestLoadPeers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machines.json")
	content := `{"machines":[
		{"hostname":"gpu-box","url":"http://gpu-box:7860/","label":"GPU"},
		{"hostname":"","url":"http://ignored"},
		{"hostname":"laptop","url":"http://laptop:7860"}
	]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	peers, err := LoadPeers(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 2 {
		t.Fatalf("peers = %d, want 2", len(peers))
	}
	if peers[0].URL != "http://gpu-box:7860" {
		t.Errorf("trailing slash kept: %q", peers[0].URL)
	}

	if got, err := LoadPeers(filepath.Join(dir, "missing.json")); err != nil || got != nil {
		t.Errorf("missing file = %v, %v, want nil, nil", got, err)
	}
}

// fakeNode builds a minimal local or peer API surface for merge tests.
func fakeNode(t *testing.T, sessions []map[string]any, stats map[string]any) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/dashboard", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"active_sessions": sessions,
			"recent_activity": []any{},
			"stats":           stats,
		})
	})
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"sessions": sessions,
			"total":    len(sessions),
			"limit":    30,
			"offset":   0,
		})
	})
	mux.HandleFunc("GET /api/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"query": r.URL.Query().Get("q"), "results": sessions, "total": len(sessions),
		})
	})
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"hostname": "peer", "version": "0.2.0", "active_sessions": len(sessions), "status": "ok",
		})
	})
	return mux
}

func sessionRow(id, last string) map[string]any {
	return map[string]any{"session_id": id, "last_message": last, "timestamp": last}
}

func TestMultiDashboardMerge(t *testing.T) {
	local := fakeNode(t, []map[string]any{sessionRow("l1", "2025-06-01T10:00:00Z")},
		map[string]any{"today_sessions": 1.0, "today_tokens": 100.0, "today_cost_estimate": 1.5,
			"week_sessions": 2.0, "week_tokens": 200.0, "week_cost_estimate": 3.0,
			"total_sessions": 5.0, "cache_hit_rate": 0.4})

	peerSrv := httptest.NewServer(fakeNode(t, []map[string]any{sessionRow("p1", "2025-06-01T11:00:00Z")},
		map[string]any{"today_sessions": 2.0, "today_tokens": 50.0, "today_cost_estimate": 0.25,
			"week_sessions": 1.0, "week_tokens": 60.0, "week_cost_estimate": 0.5,
			"total_sessions": 3.0, "cache_hit_rate": 0.9}))
	defer peerSrv.Close()

	// Second peer is offline: dropped, not failed.
	peers := []Peer{
		{Hostname: "peer1", URL: peerSrv.URL},
		{Hostname: "ghost", URL: "http://127.0.0.1:1"},
	}
	h := NewMultiHandler("local", "0.2.0", peers, local, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/multi/dashboard")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)

	active := body["active_sessions"].([]any)
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
	first := active[0].(map[string]any)
	if first["session_id"] != "p1" || first["hostname"] != "peer1" {
		t.Errorf("newest-first merge broken: %v", first)
	}
	second := active[1].(map[string]any)
	if second["hostname"] != "local" {
		t.Errorf("local row untagged: %v", second)
	}

	stats := body["stats"].(map[string]any)
	if stats["today_sessions"].(float64) != 3 {
		t.Errorf("today_sessions = %v", stats["today_sessions"])
	}
	if stats["today_cost_estimate"].(float64) != 1.75 {
		t.Errorf("today_cost_estimate = %v", stats["today_cost_estimate"])
	}
	if stats["cache_hit_rate"].(float64) != 0.4 {
		t.Errorf("cache_hit_rate should stay local: %v", stats["cache_hit_rate"])
	}
}

func TestMultiSessionsMergeAndWindow(t *testing.T) {
	local := fakeNode(t, []map[string]any{
		sessionRow("l1", "2025-06-01T10:00:00Z"),
		sessionRow("l2", "2025-06-01T08:00:00Z"),
	}, map[string]any{})
	peerSrv := httptest.NewServer(fakeNode(t, []map[string]any{
		sessionRow("p1", "2025-06-01T09:00:00Z"),
	}, map[string]any{}))
	defer peerSrv.Close()

	h := NewMultiHandler("local", "0.2.0", []Peer{{Hostname: "peer1", URL: peerSrv.URL}}, local, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/multi/sessions?limit=2&offset=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)

	sessions := body["sessions"].([]any)
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	// Global order l1, p1, l2; offset 1 keeps p1, l2.
	if sessions[0].(map[string]any)["session_id"] != "p1" {
		t.Errorf("window start = %v", sessions[0])
	}
	if sessions[1].(map[string]any)["session_id"] != "l2" {
		t.Errorf("window end = %v", sessions[1])
	}
	if body["total"].(float64) != 3 {
		t.Errorf("total = %v", body["total"])
	}
}

func TestMachines(t *testing.T) {
	local := fakeNode(t, nil, map[string]any{})
	peerSrv := httptest.NewServer(fakeNode(t, []map[string]any{sessionRow("p1", "t")}, map[string]any{}))
	defer peerSrv.Close()

	peers := []Peer{
		{Hostname: "peer1", URL: peerSrv.URL, Label: "GPU"},
		{Hostname: "ghost", URL: "http://127.0.0.1:1"},
	}
	h := NewMultiHandler("local", "0.2.0", peers, local, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/machines")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)

	if body["coordinator"] != "local" {
		t.Errorf("coordinator = %v", body["coordinator"])
	}
	machines := body["machines"].([]any)
	if len(machines) != 3 {
		t.Fatalf("machines = %d, want 3", len(machines))
	}
	byHost := map[string]map[string]any{}
	for _, m := range machines {
		mm := m.(map[string]any)
		byHost[mm["hostname"].(string)] = mm
	}
	if byHost["local"]["status"] != "online" {
		t.Errorf("local = %v", byHost["local"])
	}
	if byHost["peer1"]["status"] != "online" || byHost["peer1"]["active_sessions"].(float64) != 1 {
		t.Errorf("peer1 = %v", byHost["peer1"])
	}
	if byHost["ghost"]["status"] != "offline" {
		t.Errorf("ghost = %v", byHost["ghost"])
	}
}

func TestProxyJoin(t *testing.T) {
	peerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/abc/join" || r.Method != http.MethodPost {
			t.Errorf("unexpected peer request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"action": "attached", "tmux_session": "claude-remote-abc"})
	}))
	defer peerSrv.Close()

	localCalled := false
	localMux := http.NewServeMux()
	localMux.HandleFunc("POST /api/sessions/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		localCalled = true
		json.NewEncoder(w).Encode(map[string]string{"action": "created"})
	})

	peers := []Peer{
		{Hostname: "peer1", URL: peerSrv.URL},
		{Hostname: "ghost", URL: "http://127.0.0.1:1"},
	}
	h := NewMultiHandler("local", "0.2.0", peers, localMux, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Remote host: forwarded.
	resp, err := http.Post(srv.URL+"/api/multi/sessions/peer1/abc/join", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body["action"] != "attached" {
		t.Errorf("forwarded body = %v", body)
	}

	// Local host: dispatched in process.
	resp, err = http.Post(srv.URL+"/api/multi/sessions/local/abc/join", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !localCalled {
		t.Error("local join not dispatched")
	}

	// Offline peer: 502.
	resp, err = http.Post(srv.URL+"/api/multi/sessions/ghost/abc/join", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("offline peer status = %d, want 502", resp.StatusCode)
	}
	var detail map[string]any
	json.NewDecoder(resp.Body).Decode(&detail)
	if _, ok := detail["detail"]; !ok {
		t.Errorf("502 body = %v", detail)
	}
}

func TestFollowerRetagsEvents(t *testing.T) {
	events := make(chan string, 1)
	peerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/dashboard/stream" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "event: new_message\ndata: {\"type\":\"new_message\",\"session_id\":\"s9\",\"preview\":\"hi\"}\n\n")
		flusher.Flush()
		<-events
	}))
	defer peerSrv.Close()
	defer close(events)

	b := bus.New()
	defer b.Close()
	sub := b.Subscribe(protocol.TopicGlobal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := NewFollower([]Peer{{Hostname: "peer1", URL: peerSrv.URL}}, b)
	go f.Run(ctx)

	select {
	case ev := <-sub.C:
		if ev.Hostname != "peer1" {
			t.Errorf("hostname = %q, want peer1", ev.Hostname)
		}
		if ev.SessionID != "s9" || ev.Preview != "hi" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no republished event")
	}
}
