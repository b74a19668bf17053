package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/indexer"
	"github.com/nextlevelbuilder/goremote/internal/store"
)

// waitingSource reports sessions currently waiting for user input.
type waitingSource interface {
	Waiting() []string
}

// AdminHandler serves reindex, needs-input state and push subscription CRUD.
type AdminHandler struct {
	store *store.Store
	index *indexer.Indexer
	needs waitingSource
}

// NewAdminHandler creates a handler for the operational endpoints.
func NewAdminHandler(st *store.Store, ix *indexer.Indexer, needs waitingSource) *AdminHandler {
	return &AdminHandler{store: st, index: ix, needs: needs}
}

// RegisterRoutes registers operational routes on the given mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/reindex", h.handleReindex)
	mux.HandleFunc("GET /api/needs-input", h.handleNeedsInput)
	mux.HandleFunc("GET /api/push/subscriptions", h.handleListSubscriptions)
	mux.HandleFunc("POST /api/push/subscribe", h.handleSubscribe)
	mux.HandleFunc("POST /api/push/unsubscribe", h.handleUnsubscribe)
	mux.HandleFunc("POST /api/push/native/register", h.handleNativeRegister)
	mux.HandleFunc("POST /api/push/native/unregister", h.handleNativeUnregister)
}

func (h *AdminHandler) handleReindex(w http.ResponseWriter, r *http.Request) {
	result, err := h.index.ReindexAll(r.Context(), true)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) handleNeedsInput(w http.ResponseWriter, r *http.Request) {
	ids := h.needs.Waiting()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids, "count": len(ids)})
}

type subscribeRequest struct {
	Endpoint  string `json:"endpoint"`
	P256DH    string `json:"p256dh"`
	Auth      string `json:"auth"`
	UserAgent string `json:"user_agent"`
}

func (h *AdminHandler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Endpoint == "" || req.P256DH == "" || req.Auth == "" {
		writeDetail(w, http.StatusBadRequest, "endpoint, p256dh and auth are required")
		return
	}
	sub := store.PushSubscription{
		Endpoint:  req.Endpoint,
		P256DH:    req.P256DH,
		Auth:      req.Auth,
		UserAgent: req.UserAgent,
	}
	if err := h.store.SavePushSubscription(sub, time.Now().UTC().Format(time.RFC3339)); err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "subscribed"})
}

func (h *AdminHandler) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Endpoint == "" {
		writeDetail(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	if err := h.store.DeletePushSubscription(req.Endpoint); err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func (h *AdminHandler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.PushSubscriptions()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, map[string]string{
			"endpoint": s.Endpoint, "p256dh": s.P256DH, "auth": s.Auth,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": out})
}

type nativeRegisterRequest struct {
	DeviceToken string `json:"device_token"`
	Platform    string `json:"platform"`
	UserAgent   string `json:"user_agent"`
}

func (h *AdminHandler) handleNativeRegister(w http.ResponseWriter, r *http.Request) {
	var req nativeRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.DeviceToken == "" {
		writeDetail(w, http.StatusBadRequest, "device_token is required")
		return
	}
	if req.Platform == "" {
		req.Platform = "ios"
	}
	dev := store.NativeDevice{
		DeviceToken: req.DeviceToken,
		Platform:    req.Platform,
		UserAgent:   req.UserAgent,
	}
	if err := h.store.SaveNativeDevice(dev, time.Now().UTC().Format(time.RFC3339)); err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

func (h *AdminHandler) handleNativeUnregister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceToken string `json:"device_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.DeviceToken == "" {
		writeDetail(w, http.StatusBadRequest, "device_token is required")
		return
	}
	if err := h.store.DeleteNativeDevice(req.DeviceToken); err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unregistered"})
}
