package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	httpapi "github.com/nextlevelbuilder/goremote/internal/http"
)

const (
	healthTimeout = 5 * time.Second
	dataTimeout   = 10 * time.Second
)

// MultiHandler serves the fleet-wide aggregation endpoints. It merges the
// local API surface with parallel calls to every registered peer.
type MultiHandler struct {
	hostname string
	version  string
	peers    []Peer
	local    http.Handler
	terminal *httpapi.TerminalHandler

	client *http.Client
	health *http.Client
}

// NewMultiHandler creates the aggregation handler. local is the
// non-aggregated API mux; terminal bridges host-local federated terminals.
func NewMultiHandler(hostname, version string, peers []Peer, local http.Handler, terminal *httpapi.TerminalHandler) *MultiHandler {
	return &MultiHandler{
		hostname: hostname,
		version:  version,
		peers:    peers,
		local:    local,
		terminal: terminal,
		client:   &http.Client{Timeout: dataTimeout},
		health:   &http.Client{Timeout: healthTimeout},
	}
}

// RegisterRoutes registers the fleet routes on the given mux.
func (h *MultiHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/machines", h.handleMachines)
	mux.HandleFunc("GET /api/multi/dashboard", h.handleMultiDashboard)
	mux.HandleFunc("GET /api/multi/sessions", h.handleMultiSessions)
	mux.HandleFunc("GET /api/multi/search", h.handleMultiSearch)
	mux.HandleFunc("POST /api/multi/sessions/{host}/{id}/join", h.handleProxyJoin)
	mux.HandleFunc("POST /api/multi/terminal/{host}/{id}/inject", h.handleProxyInject)
	mux.HandleFunc("GET /api/multi/terminal/{host}/{id}", h.handleProxyTerminal)
}

// memResponse captures an in-process dispatch against the local mux.
type memResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newMemResponse() *memResponse {
	return &memResponse{header: make(http.Header), status: http.StatusOK}
}

func (m *memResponse) Header() http.Header  { return m.header }
func (m *memResponse) WriteHeader(code int) { m.status = code }
func (m *memResponse) Write(p []byte) (int, error) {
	return m.body.Write(p)
}

// localJSON dispatches an in-process request against the local mux.
func (h *MultiHandler) localJSON(r *http.Request, path string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	rec := newMemResponse()
	h.local.ServeHTTP(rec, req)
	if rec.status != http.StatusOK {
		return nil, fmt.Errorf("local %s: status %d", path, rec.status)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.body.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("local %s: %w", path, err)
	}
	return out, nil
}

func (h *MultiHandler) peerJSON(ctx context.Context, client *http.Client, p Peer, path string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer %s: status %d", p.Hostname, resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// gatherPeers fetches path from every peer in parallel. Unreachable peers
// are dropped, not failed.
func (h *MultiHandler) gatherPeers(ctx context.Context, path string) map[string]map[string]any {
	var mu sync.Mutex
	results := make(map[string]map[string]any)

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range h.peers {
		g.Go(func() error {
			body, err := h.peerJSON(ctx, h.client, p, path)
			if err != nil {
				slog.Warn("peer fetch failed", "peer", p.Hostname, "path", path, "error", err)
				return nil
			}
			mu.Lock()
			results[p.Hostname] = body
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

// tagRows sets hostname on each row that does not carry one.
func tagRows(rows []any, hostname string) []any {
	for _, row := range rows {
		if m, ok := row.(map[string]any); ok {
			if _, has := m["hostname"]; !has {
				m["hostname"] = hostname
			}
		}
	}
	return rows
}

func rowsOf(body map[string]any, key string) []any {
	rows, _ := body[key].([]any)
	return rows
}

// sortRowsDesc sorts map rows by a string field, newest first.
func sortRowsDesc(rows []any, field string) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i].(map[string]any)
		b, _ := rows[j].(map[string]any)
		av, _ := a[field].(string)
		bv, _ := b[field].(string)
		return av > bv
	})
}

func numField(m map[string]any, key string) float64 {
	v, _ := m[key].(float64)
	return v
}

func (h *MultiHandler) handleMultiDashboard(w http.ResponseWriter, r *http.Request) {
	local, err := h.localJSON(r, "/api/dashboard")
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	peerBodies := h.gatherPeers(r.Context(), "/api/dashboard")

	active := tagRows(rowsOf(local, "active_sessions"), h.hostname)
	activity := tagRows(rowsOf(local, "recent_activity"), h.hostname)
	stats, _ := local["stats"].(map[string]any)
	if stats == nil {
		stats = map[string]any{}
	}

	for host, body := range peerBodies {
		active = append(active, tagRows(rowsOf(body, "active_sessions"), host)...)
		activity = append(activity, tagRows(rowsOf(body, "recent_activity"), host)...)
		if ps, ok := body["stats"].(map[string]any); ok {
			addStats(stats, ps)
		}
	}

	sortRowsDesc(active, "last_message")
	sortRowsDesc(activity, "timestamp")
	if len(activity) > 20 {
		activity = activity[:20]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active_sessions": active,
		"recent_activity": activity,
		"stats":           stats,
	})
}

// addStats folds a peer's stats block into the running totals. Counters and
// costs are additive; the cache hit rate stays local.
func addStats(into, from map[string]any) {
	for _, key := range []string{
		"today_sessions", "today_tokens", "week_sessions", "week_tokens", "total_sessions",
	} {
		into[key] = numField(into, key) + numField(from, key)
	}
	for _, key := range []string{"today_cost_estimate", "week_cost_estimate"} {
		into[key] = round2(numField(into, key) + numField(from, key))
	}
}

func (h *MultiHandler) handleMultiSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), 30)
	offset := intParam(q.Get("offset"), 0)

	// Every node is asked for the full window so re-sorting stays correct.
	upstream := "/api/sessions?limit=" + strconv.Itoa(limit+offset)
	if v := q.Get("project"); v != "" {
		upstream += "&project=" + v
	}
	if v := q.Get("status"); v != "" {
		upstream += "&status=" + v
	}

	local, err := h.localJSON(r, upstream)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	peerBodies := h.gatherPeers(r.Context(), upstream)

	sessions := tagRows(rowsOf(local, "sessions"), h.hostname)
	total := numField(local, "total")
	for host, body := range peerBodies {
		sessions = append(sessions, tagRows(rowsOf(body, "sessions"), host)...)
		total += numField(body, "total")
	}

	sortRowsDesc(sessions, "last_message")
	if offset < len(sessions) {
		sessions = sessions[offset:]
	} else {
		sessions = []any{}
	}
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    int(total),
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *MultiHandler) handleMultiSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), 20)
	upstream := "/api/search?" + q.Encode()

	local, err := h.localJSON(r, upstream)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	peerBodies := h.gatherPeers(r.Context(), upstream)

	results := tagRows(rowsOf(local, "results"), h.hostname)
	for host, body := range peerBodies {
		results = append(results, tagRows(rowsOf(body, "results"), host)...)
	}

	sortRowsDesc(results, "timestamp")
	if len(results) > limit {
		results = results[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   q.Get("q"),
		"results": results,
		"total":   len(results),
	})
}

type machineJSON struct {
	Hostname       string `json:"hostname"`
	URL            string `json:"url"`
	Label          string `json:"label"`
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	Version        string `json:"version"`
}

func (h *MultiHandler) handleMachines(w http.ResponseWriter, r *http.Request) {
	machines := make([]machineJSON, 0, len(h.peers)+1)

	localEntry := machineJSON{
		Hostname: h.hostname,
		Label:    "local",
		Status:   "online",
		Version:  h.version,
	}
	if health, err := h.localJSON(r, "/api/health"); err == nil {
		localEntry.ActiveSessions = int(numField(health, "active_sessions"))
	}
	machines = append(machines, localEntry)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(r.Context())
	peerEntries := make(map[string]machineJSON, len(h.peers))
	for _, p := range h.peers {
		g.Go(func() error {
			entry := machineJSON{Hostname: p.Hostname, URL: p.URL, Label: p.Label, Status: "offline"}
			if health, err := h.peerJSON(ctx, h.health, p, "/api/health"); err == nil {
				entry.Status = "online"
				entry.ActiveSessions = int(numField(health, "active_sessions"))
				entry.Version, _ = health["version"].(string)
			}
			mu.Lock()
			peerEntries[p.Hostname] = entry
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	for _, p := range h.peers {
		machines = append(machines, peerEntries[p.Hostname])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"coordinator": h.hostname,
		"machines":    machines,
	})
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
