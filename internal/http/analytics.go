package http

import (
	"net/http"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/parser"
	"github.com/nextlevelbuilder/goremote/internal/store"
)

const defaultSearchLimit = 20

// AnalyticsHandler serves full-text search and the token/tool rollups.
type AnalyticsHandler struct {
	store *store.Store
}

// NewAnalyticsHandler creates a handler for search and analytics endpoints.
func NewAnalyticsHandler(st *store.Store) *AnalyticsHandler {
	return &AnalyticsHandler{store: st}
}

// RegisterRoutes registers search and analytics routes on the given mux.
func (h *AnalyticsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/search", h.handleSearch)
	mux.HandleFunc("GET /api/analytics/tokens", h.handleTokens)
	mux.HandleFunc("GET /api/analytics/tools", h.handleTools)
}

type searchResultJSON struct {
	SessionID   string `json:"session_id"`
	Slug        string `json:"slug"`
	Project     string `json:"project"`
	MessageUUID string `json:"message_uuid"`
	Role        string `json:"role"`
	Snippet     string `json:"snippet"`
	Timestamp   string `json:"timestamp"`
	Hostname    string `json:"hostname,omitempty"`
}

func (h *AnalyticsHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")

	hits, err := h.store.Search(query, store.SearchFilter{
		Project: q.Get("project"),
		After:   q.Get("after"),
		Before:  q.Get("before"),
		Limit:   intQuery(r, "limit", defaultSearchLimit),
	})
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]searchResultJSON, 0, len(hits))
	for _, hit := range hits {
		results = append(results, searchResultJSON{
			SessionID:   hit.SessionID,
			Slug:        hit.Slug,
			Project:     hit.Project,
			MessageUUID: hit.MessageUUID,
			Role:        hit.Role,
			Snippet:     hit.Snippet,
			Timestamp:   hit.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
		"total":   len(results),
	})
}

type tokenBucketJSON struct {
	Label        string  `json:"label"`
	Input        int64   `json:"input"`
	Output       int64   `json:"output"`
	CacheRead    int64   `json:"cache_read"`
	CacheCreate  int64   `json:"cache_create"`
	CostEstimate float64 `json:"cost_estimate"`
}

func (h *AnalyticsHandler) handleTokens(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "7d"
	}
	groupBy := r.URL.Query().Get("group_by")
	if groupBy == "" {
		groupBy = "day"
	}
	cutoff := periodCutoff(period, time.Now())

	var buckets []store.TokenBucket
	var err error
	if groupBy == "project" {
		buckets, err = h.store.TokenBucketsByProject(cutoff)
	} else {
		buckets, err = h.store.TokenBucketsByDay(cutoff)
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	data := make([]tokenBucketJSON, 0, len(buckets))
	totals := tokenBucketJSON{}
	for _, b := range buckets {
		cost := parser.EstimateCost(parser.DefaultCostModel, b.Input, b.Output, b.CacheRead, b.CacheCreate)
		data = append(data, tokenBucketJSON{
			Label:        b.Label,
			Input:        b.Input,
			Output:       b.Output,
			CacheRead:    b.CacheRead,
			CacheCreate:  b.CacheCreate,
			CostEstimate: cost,
		})
		totals.Input += b.Input
		totals.Output += b.Output
		totals.CacheRead += b.CacheRead
		totals.CacheCreate += b.CacheCreate
		totals.CostEstimate += cost
	}
	totals.CostEstimate = round2(totals.CostEstimate)

	writeJSON(w, http.StatusOK, map[string]any{
		"period":   period,
		"group_by": groupBy,
		"data":     data,
		"totals": map[string]any{
			"input":         totals.Input,
			"output":        totals.Output,
			"cache_read":    totals.CacheRead,
			"cache_create":  totals.CacheCreate,
			"cost_estimate": totals.CostEstimate,
		},
	})
}

func (h *AnalyticsHandler) handleTools(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "7d"
	}

	counts, err := h.store.ToolCountsSince(periodCutoff(period, time.Now()))
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	total := 0
	for _, c := range counts {
		total += c.Count
	}
	if total == 0 {
		total = 1
	}

	tools := make([]map[string]any, 0, len(counts))
	for _, c := range counts {
		pct := float64(c.Count) / float64(total) * 100
		tools = append(tools, map[string]any{
			"name":       c.Name,
			"count":      c.Count,
			"percentage": float64(int(pct*10+0.5)) / 10,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "tools": tools})
}
