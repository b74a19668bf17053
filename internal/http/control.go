package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goremote/internal/config"
	"github.com/nextlevelbuilder/goremote/internal/store"
	"github.com/nextlevelbuilder/goremote/internal/tmuxctl"
	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

// terminalController is the subset of the multiplexer controller the HTTP
// surface needs. Satisfied by *tmuxctl.Controller.
type terminalController interface {
	Spawn(ctx context.Context, shortID, workingDir, resumeID string, rows, cols int) (string, error)
	Kill(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) bool
	Inject(ctx context.Context, name, text string) error
	FindByResume(ctx context.Context, sessionID string) (string, bool)
	Resize(ctx context.Context, name string, rows, cols int) error
	Attach(ctx context.Context, name string, spectator bool, rows, cols int) (*os.File, *exec.Cmd, error)
	ShortIDs(ctx context.Context) map[string]bool
}

// ControlHandler serves the session lifecycle endpoints: spawn, terminate,
// join and keystroke injection.
type ControlHandler struct {
	store       *store.Store
	term        terminalController
	defaultRows int
	defaultCols int
}

// NewControlHandler creates a handler for the multiplexer control endpoints.
func NewControlHandler(st *store.Store, term terminalController, tc config.TerminalConfig) *ControlHandler {
	rows, cols := tc.DefaultRows, tc.DefaultCols
	if rows <= 0 {
		rows = 24
	}
	if cols <= 0 {
		cols = 80
	}
	return &ControlHandler{store: st, term: term, defaultRows: rows, defaultCols: cols}
}

// RegisterRoutes registers control routes on the given mux.
func (h *ControlHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.handleSpawn)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.handleDelete)
	mux.HandleFunc("POST /api/sessions/{id}/join", h.handleJoin)
	mux.HandleFunc("POST /api/terminal/{id}/inject", h.handleInject)
}

type spawnRequest struct {
	Name       string `json:"name"`
	WorkingDir string `json:"working_dir"`
	ResumeID   string `json:"resume_id"`
	Rows       int    `json:"rows"`
	Cols       int    `json:"cols"`
}

func (h *ControlHandler) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.WorkingDir == "" {
		req.WorkingDir = "~"
	}
	if req.Rows <= 0 {
		req.Rows = h.defaultRows
	}
	if req.Cols <= 0 {
		req.Cols = h.defaultCols
	}

	wd := config.ExpandHome(req.WorkingDir)
	shortID := uuid.NewString()[:8]
	name, err := h.term.Spawn(r.Context(), shortID, wd, req.ResumeID, req.Rows, req.Cols)
	if errors.Is(err, tmuxctl.ErrInvalidDir) {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Invalid directory: %s", wd))
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":               shortID,
		"name":             req.Name,
		"working_dir":      wd,
		"tmux_session":     name,
		"created_at":       time.Now().UTC().Format(time.RFC3339),
		"claude_resume_id": req.ResumeID,
	})
}

func (h *ControlHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := protocol.SessionPrefix + r.PathValue("id")
	err := h.term.Kill(r.Context(), name)
	if errors.Is(err, tmuxctl.ErrNoSession) {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "terminated"})
}

// handleJoin attaches to the multiplexer session already running the given
// indexed session, or spawns one resuming it.
func (h *ControlHandler) handleJoin(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if name, ok := h.term.FindByResume(r.Context(), id); ok {
		writeJSON(w, http.StatusOK, map[string]string{
			"action":       "attached",
			"tmux_session": name,
			"tmux_id":      tmuxctl.Session{Name: name}.ShortID(),
		})
		return
	}

	wd, err := h.store.SessionWorkingDir(id)
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if wd == "" {
		wd, _ = os.UserHomeDir()
	}

	shortID := id
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	name, err := h.term.Spawn(r.Context(), shortID, wd, id, h.defaultRows, h.defaultCols)
	if errors.Is(err, tmuxctl.ErrInvalidDir) {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Invalid directory: %s", wd))
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"action":       "created",
		"tmux_session": name,
		"tmux_id":      shortID,
	})
}

type injectRequest struct {
	Text string `json:"text"`
}

func (h *ControlHandler) handleInject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" {
		writeDetail(w, http.StatusBadRequest, "text is required")
		return
	}

	name, ok := h.resolveTerminal(r.Context(), r.PathValue("id"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	if err := h.term.Inject(r.Context(), name, req.Text); err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "injected", "tmux_session": name})
}

// resolveTerminal maps a short id or full session id onto a managed
// multiplexer session name.
func (h *ControlHandler) resolveTerminal(ctx context.Context, id string) (string, bool) {
	name := protocol.SessionPrefix + id
	if h.term.Exists(ctx, name) {
		return name, true
	}
	return h.term.FindByResume(ctx, id)
}
