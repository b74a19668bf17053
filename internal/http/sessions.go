package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nextlevelbuilder/goremote/internal/parser"
	"github.com/nextlevelbuilder/goremote/internal/store"
)

const (
	defaultSessionLimit      = 30
	defaultConversationLimit = 200
	filesTouchedLimit        = 100
)

// SessionsHandler serves the read-only session surface: list, detail and
// conversation replay.
type SessionsHandler struct {
	store *store.Store
	live  liveSource
	term  terminalSource
}

// NewSessionsHandler creates a handler for the /api/sessions read endpoints.
func NewSessionsHandler(st *store.Store, live liveSource, term terminalSource) *SessionsHandler {
	return &SessionsHandler{store: st, live: live, term: term}
}

// RegisterRoutes registers session query routes on the given mux.
func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.handleList)
	mux.HandleFunc("GET /api/sessions/{id}", h.handleDetail)
	mux.HandleFunc("GET /api/sessions/{id}/conversation", h.handleConversation)
}

type sessionJSON struct {
	SessionID    string  `json:"session_id"`
	Slug         string  `json:"slug"`
	Project      string  `json:"project"`
	WorkingDir   string  `json:"working_dir"`
	Model        string  `json:"model"`
	GitBranch    string  `json:"git_branch"`
	FirstMessage string  `json:"first_message"`
	LastMessage  string  `json:"last_message"`
	MessageCount int     `json:"message_count"`
	UserMsgCount int     `json:"user_msg_count"`
	AsstMsgCount int     `json:"asst_msg_count"`
	TotalTokens  int64   `json:"total_tokens"`
	CostEstimate float64 `json:"cost_estimate"`
	FileSizeMB   float64 `json:"file_size_mb"`
	IsRunning    bool    `json:"is_running"`
	IsInTmux     bool    `json:"is_in_tmux"`
	Hostname     string  `json:"hostname,omitempty"`
}

func sessionToJSON(s store.Session, isRunning, isInTmux bool) sessionJSON {
	return sessionJSON{
		SessionID:    s.SessionID,
		Slug:         s.Slug,
		Project:      s.ProjectDir,
		WorkingDir:   s.WorkingDir,
		Model:        s.Model,
		GitBranch:    s.GitBranch,
		FirstMessage: s.FirstMessage,
		LastMessage:  s.LastMessage,
		MessageCount: s.MessageCount,
		UserMsgCount: s.UserMsgCount,
		AsstMsgCount: s.AsstMsgCount,
		TotalTokens:  s.TotalInputTokens + s.TotalOutputTokens + s.TotalCacheRead + s.TotalCacheCreate,
		CostEstimate: parser.EstimateCost(s.Model, s.TotalInputTokens, s.TotalOutputTokens, s.TotalCacheRead, s.TotalCacheCreate),
		FileSizeMB:   round2(float64(s.FileSizeBytes) / 1024 / 1024),
		IsRunning:    isRunning,
		IsInTmux:     isInTmux,
	}
}

func (h *SessionsHandler) liveness(r *http.Request, sessionID string) (bool, bool) {
	activeIDs := h.live.ActiveSessionIDs(r.Context())
	tmuxIDs := h.term.ShortIDs(r.Context())
	return activeIDs[sessionID], len(sessionID) >= 8 && tmuxIDs[sessionID[:8]]
}

func (h *SessionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	project := q.Get("project")
	limit := intQuery(r, "limit", defaultSessionLimit)
	offset := intQuery(r, "offset", 0)

	rows, total, err := h.store.ListSessions(project, limit, offset)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	activeIDs := h.live.ActiveSessionIDs(r.Context())
	tmuxIDs := h.term.ShortIDs(r.Context())

	// The status filter applies after pagination; total stays unfiltered.
	sessions := make([]sessionJSON, 0, len(rows))
	for _, s := range rows {
		isRunning := activeIDs[s.SessionID]
		isInTmux := len(s.SessionID) >= 8 && tmuxIDs[s.SessionID[:8]]
		if status == "running" && !isRunning {
			continue
		}
		if status == "stopped" && isRunning {
			continue
		}
		sessions = append(sessions, sessionToJSON(s, isRunning, isInTmux))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *SessionsHandler) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := h.store.GetSession(id)
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	files, err := h.store.FilesTouched(id, filesTouchedLimit)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	filesTouched := make([]map[string]any, 0, len(files))
	for _, f := range files {
		filesTouched = append(filesTouched, map[string]any{
			"path": f.Path, "event_type": f.EventType, "count": f.Count,
		})
	}

	counts, err := h.store.ToolCounts(id)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	toolSummary := make(map[string]int, len(counts))
	for _, c := range counts {
		toolSummary[c.Name] = c.Count
	}

	isRunning, isInTmux := h.liveness(r, id)
	writeJSON(w, http.StatusOK, map[string]any{
		"session":       sessionToJSON(*sess, isRunning, isInTmux),
		"files_touched": filesTouched,
		"tool_summary":  toolSummary,
		"token_breakdown": map[string]int64{
			"input":        sess.TotalInputTokens,
			"output":       sess.TotalOutputTokens,
			"cache_read":   sess.TotalCacheRead,
			"cache_create": sess.TotalCacheCreate,
		},
	})
}

type toolUseJSON struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

func (h *SessionsHandler) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := intQuery(r, "limit", defaultConversationLimit)
	offset := intQuery(r, "offset", 0)

	msgs, total, err := h.store.Messages(id, limit, offset)
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		entry := map[string]any{
			"uuid":         m.UUID,
			"role":         m.Role,
			"content_text": m.ContentText,
			"timestamp":    m.Timestamp,
			"seq_num":      m.SeqNum,
		}
		if m.Role == "assistant" {
			entry["model"] = m.Model
			entry["output_tokens"] = m.OutputTokens
			entry["has_thinking"] = m.HasThinking
			if m.HasThinking && m.ThinkingText != "" {
				entry["thinking_text"] = m.ThinkingText
			}
			if m.ToolUsesJSON != "" {
				entry["tool_uses"] = conversationToolUses(m.ToolUsesJSON)
			}
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   out,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func conversationToolUses(raw string) []toolUseJSON {
	var stored []struct {
		Name         string `json:"name"`
		InputSummary string `json:"input_summary"`
	}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return []toolUseJSON{}
	}
	out := make([]toolUseJSON, 0, len(stored))
	for _, t := range stored {
		out = append(out, toolUseJSON{Name: t.Name, Summary: t.InputSummary})
	}
	return out
}
