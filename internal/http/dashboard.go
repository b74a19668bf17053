package http

import (
	"net/http"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/parser"
	"github.com/nextlevelbuilder/goremote/internal/store"
)

const (
	dashboardScanLimit = 50
	activityLimit      = 20
	previewLimit       = 120
)

// DashboardHandler serves the health probe and the dashboard rollup.
type DashboardHandler struct {
	store    *store.Store
	live     liveSource
	term     terminalSource
	hostname string
	version  string
}

// NewDashboardHandler creates a handler for /api/health and /api/dashboard.
func NewDashboardHandler(st *store.Store, live liveSource, term terminalSource, hostname, version string) *DashboardHandler {
	return &DashboardHandler{store: st, live: live, term: term, hostname: hostname, version: version}
}

// RegisterRoutes registers dashboard routes on the given mux.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/dashboard", h.handleDashboard)
}

func (h *DashboardHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"hostname":        h.hostname,
		"version":         h.version,
		"active_sessions": len(h.live.ActiveSessionIDs(r.Context())),
		"status":          "ok",
	})
}

type activeSessionJSON struct {
	SessionID          string `json:"session_id"`
	Slug               string `json:"slug"`
	Project            string `json:"project"`
	WorkingDir         string `json:"working_dir"`
	Model              string `json:"model"`
	GitBranch          string `json:"git_branch"`
	IsRunning          bool   `json:"is_running"`
	IsInTmux           bool   `json:"is_in_tmux"`
	LastMessage        string `json:"last_message"`
	LastMessagePreview string `json:"last_message_preview"`
	MessageCount       int    `json:"message_count"`
	TotalTokens        int64  `json:"total_tokens"`
	DurationMinutes    int    `json:"duration_minutes"`
	Hostname           string `json:"hostname,omitempty"`
}

type activityJSON struct {
	SessionID string `json:"session_id"`
	Slug      string `json:"slug"`
	Project   string `json:"project"`
	Type      string `json:"type"`
	ToolName  string `json:"tool_name"`
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
	Hostname  string `json:"hostname,omitempty"`
}

type dashboardStats struct {
	TodaySessions     int     `json:"today_sessions"`
	TodayTokens       int64   `json:"today_tokens"`
	TodayCostEstimate float64 `json:"today_cost_estimate"`
	WeekSessions      int     `json:"week_sessions"`
	WeekTokens        int64   `json:"week_tokens"`
	WeekCostEstimate  float64 `json:"week_cost_estimate"`
	TotalSessions     int     `json:"total_sessions"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
}

type dashboardJSON struct {
	ActiveSessions []activeSessionJSON `json:"active_sessions"`
	RecentActivity []activityJSON      `json:"recent_activity"`
	Stats          dashboardStats      `json:"stats"`
}

func (h *DashboardHandler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data, err := h.buildDashboard(r)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *DashboardHandler) buildDashboard(r *http.Request) (*dashboardJSON, error) {
	activeIDs := h.live.ActiveSessionIDs(r.Context())
	tmuxIDs := h.term.ShortIDs(r.Context())

	recent, err := h.store.RecentSessions(dashboardScanLimit)
	if err != nil {
		return nil, err
	}

	active := make([]activeSessionJSON, 0)
	for _, s := range recent {
		isRunning := activeIDs[s.SessionID]
		isInTmux := len(s.SessionID) >= 8 && tmuxIDs[s.SessionID[:8]]
		if !isRunning && !isInTmux {
			continue
		}
		preview, err := h.store.LastAssistantText(s.SessionID)
		if err != nil {
			return nil, err
		}
		active = append(active, activeSessionJSON{
			SessionID:          s.SessionID,
			Slug:               s.Slug,
			Project:            s.ProjectDir,
			WorkingDir:         s.WorkingDir,
			Model:              s.Model,
			GitBranch:          s.GitBranch,
			IsRunning:          isRunning,
			IsInTmux:           isInTmux,
			LastMessage:        s.LastMessage,
			LastMessagePreview: truncateRunes(preview, previewLimit),
			MessageCount:       s.MessageCount,
			TotalTokens:        s.TotalInputTokens + s.TotalOutputTokens + s.TotalCacheRead + s.TotalCacheCreate,
			DurationMinutes:    durationMinutes(s.FirstMessage, s.LastMessage),
		})
	}

	tools, err := h.store.RecentToolUses(activityLimit)
	if err != nil {
		return nil, err
	}
	activity := make([]activityJSON, 0, len(tools))
	for _, t := range tools {
		activity = append(activity, activityJSON{
			SessionID: t.SessionID,
			Slug:      t.Slug,
			Project:   t.Project,
			Type:      "tool_use",
			ToolName:  t.ToolName,
			Summary:   t.InputSummary,
			Timestamp: t.Timestamp,
		})
	}

	stats, err := h.buildStats()
	if err != nil {
		return nil, err
	}
	return &dashboardJSON{ActiveSessions: active, RecentActivity: activity, Stats: *stats}, nil
}

func (h *DashboardHandler) buildStats() (*dashboardStats, error) {
	now := time.Now().UTC()
	todayStart := now.Truncate(24 * time.Hour).Format(time.RFC3339)
	weekStart := now.Add(-7 * 24 * time.Hour).Format(time.RFC3339)

	today, err := h.store.TotalsSince(todayStart)
	if err != nil {
		return nil, err
	}
	week, err := h.store.TotalsSince(weekStart)
	if err != nil {
		return nil, err
	}
	total, err := h.store.SessionCount()
	if err != nil {
		return nil, err
	}
	hitRate, err := h.store.CacheHitRate()
	if err != nil {
		return nil, err
	}

	return &dashboardStats{
		TodaySessions:     today.Sessions,
		TodayTokens:       today.Input + today.Output + today.CacheRead + today.CacheCreate,
		TodayCostEstimate: parser.EstimateCost(parser.DefaultCostModel, today.Input, today.Output, today.CacheRead, today.CacheCreate),
		WeekSessions:      week.Sessions,
		WeekTokens:        week.Input + week.Output + week.CacheRead + week.CacheCreate,
		WeekCostEstimate:  parser.EstimateCost(parser.DefaultCostModel, week.Input, week.Output, week.CacheRead, week.CacheCreate),
		TotalSessions:     total,
		CacheHitRate:      hitRate,
	}, nil
}

// durationMinutes returns whole minutes between two ISO timestamps, or 0 when
// either end is missing or unparseable.
func durationMinutes(first, last string) int {
	if first == "" || last == "" {
		return 0
	}
	t0, err0 := time.Parse(time.RFC3339Nano, first)
	t1, err1 := time.Parse(time.RFC3339Nano, last)
	if err0 != nil || err1 != nil {
		return 0
	}
	return int(t1.Sub(t0).Minutes())
}
