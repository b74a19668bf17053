package federation

import (
	"context"
	"io"
	"net/http"
	"strings"

	cws "github.com/coder/websocket"
	"github.com/gorilla/websocket"
)

func (h *MultiHandler) findPeer(hostname string) (Peer, bool) {
	for _, p := range h.peers {
		if p.Hostname == hostname {
			return p, true
		}
	}
	return Peer{}, false
}

func (h *MultiHandler) handleProxyJoin(w http.ResponseWriter, r *http.Request) {
	h.proxyPost(w, r, "/api/sessions/"+r.PathValue("id")+"/join")
}

func (h *MultiHandler) handleProxyInject(w http.ResponseWriter, r *http.Request) {
	h.proxyPost(w, r, "/api/terminal/"+r.PathValue("id")+"/inject")
}

// proxyPost forwards a control POST to the named host: in-process when the
// host is local, over HTTP otherwise. Peer failures map to 502.
func (h *MultiHandler) proxyPost(w http.ResponseWriter, r *http.Request, path string) {
	host := r.PathValue("host")

	if host == h.hostname {
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, path, r.Body)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, err.Error())
			return
		}
		req.Header.Set("Content-Type", "application/json")
		rec := newMemResponse()
		h.local.ServeHTTP(rec, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rec.status)
		w.Write(rec.body.Bytes())
		return
	}

	peer, ok := h.findPeer(host)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Unknown machine: "+host)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, peer.URL+path, r.Body)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		writeDetail(w, http.StatusBadGateway, "Peer unreachable: "+err.Error())
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

var proxyUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleProxyTerminal bridges a federated terminal: local hosts go straight
// to the attach bridge, remote hosts get frames relayed over a peer
// WebSocket.
func (h *MultiHandler) handleProxyTerminal(w http.ResponseWriter, r *http.Request) {
	host := r.PathValue("host")
	id := r.PathValue("id")

	if host == h.hostname {
		h.terminal.Bridge(w, r, id)
		return
	}

	peer, ok := h.findPeer(host)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Unknown machine: "+host)
		return
	}

	peerURL := wsURL(peer.URL) + "/api/terminal/" + id
	if mode := r.URL.Query().Get("mode"); mode != "" {
		peerURL += "?mode=" + mode
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	remote, _, err := cws.Dial(ctx, peerURL, nil)
	if err != nil {
		writeDetail(w, http.StatusBadGateway, "Peer unreachable: "+err.Error())
		return
	}
	defer remote.Close(cws.StatusNormalClosure, "")
	remote.SetReadLimit(-1)

	client, err := proxyUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer client.Close()

	// Peer → client.
	go func() {
		defer cancel()
		for {
			kind, data, err := remote.Read(ctx)
			if err != nil {
				return
			}
			frame := websocket.BinaryMessage
			if kind == cws.MessageText {
				frame = websocket.TextMessage
			}
			if client.WriteMessage(frame, data) != nil {
				return
			}
		}
	}()

	// Client → peer.
	for {
		kind, data, err := client.ReadMessage()
		if err != nil {
			return
		}
		frame := cws.MessageBinary
		if kind == websocket.TextMessage {
			frame = cws.MessageText
		}
		if remote.Write(ctx, frame, data) != nil {
			return
		}
	}
}

func wsURL(base string) string {
	if strings.HasPrefix(base, "https://") {
		return "wss://" + strings.TrimPrefix(base, "https://")
	}
	return "ws://" + strings.TrimPrefix(base, "http://")
}
