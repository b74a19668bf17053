package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goremote/internal/tmuxctl"
	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

const ptyReadSize = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The UI is served from arbitrary hosts on the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TerminalHandler bridges WebSocket clients onto multiplexer attach PTYs.
type TerminalHandler struct {
	term terminalController
}

// NewTerminalHandler creates a handler for the terminal WebSocket endpoint.
func NewTerminalHandler(term terminalController) *TerminalHandler {
	return &TerminalHandler{term: term}
}

// RegisterRoutes registers the terminal route on the given mux.
func (h *TerminalHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/terminal/{id}", h.handleTerminal)
}

type resizeMessage struct {
	Type string `json:"type"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

func (h *TerminalHandler) handleTerminal(w http.ResponseWriter, r *http.Request) {
	h.Bridge(w, r, r.PathValue("id"))
}

// Bridge upgrades the request and attaches it to the multiplexer session for
// id. Exported so the federation proxy can dispatch host-local terminals.
func (h *TerminalHandler) Bridge(w http.ResponseWriter, r *http.Request, id string) {
	spectator := r.URL.Query().Get("mode") == "spectator"

	name, ok := h.resolve(r.Context(), id)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if !ok {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(protocol.CloseSessionNotFound, "Session not found"))
		return
	}

	master, cmd, err := h.term.Attach(r.Context(), name, spectator, 24, 80)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(protocol.CloseSessionNotFound, "Session not found"))
		return
	}
	defer func() {
		master.Close()
		if cmd.Process != nil {
			cmd.Process.Signal(syscall.SIGTERM)
		}
		cmd.Wait()
	}()

	RunBridge(r.Context(), conn, master, func(rows, cols int) {
		tmuxctl.SetSize(master, rows, cols)
		h.term.Resize(context.WithoutCancel(r.Context()), name, rows, cols)
	}, spectator)
}

func (h *TerminalHandler) resolve(ctx context.Context, id string) (string, bool) {
	name := protocol.SessionPrefix + id
	if h.term.Exists(ctx, name) {
		return name, true
	}
	return h.term.FindByResume(ctx, id)
}

// RunBridge pumps bytes between a WebSocket and a PTY master until either
// side ends. Binary frames go to the PTY verbatim; text frames are parsed
// for resize control and written as bytes otherwise. Spectators get resize
// only. The PTY fd must support non-blocking reads.
func RunBridge(ctx context.Context, conn *websocket.Conn, master ptyFile, onResize func(rows, cols int), spectator bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fd := int(master.Fd())
	syscall.SetNonblock(fd, true)

	// Unblock the pending socket read when the PTY side ends, so a dead
	// attach child tears the bridge down without waiting on the client.
	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	// PTY → socket.
	go func() {
		defer cancel()
		buf := make([]byte, ptyReadSize)
		for ctx.Err() == nil {
			n, err := syscall.Read(fd, buf)
			if n > 0 {
				if conn.WriteMessage(websocket.BinaryMessage, buf[:n]) != nil {
					return
				}
				continue
			}
			if errors.Is(err, syscall.EAGAIN) {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return
		}
	}()

	// Socket → PTY.
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			if spectator {
				continue
			}
			if _, err := master.Write(data); err != nil {
				return
			}
		case websocket.TextMessage:
			var msg resizeMessage
			if json.Unmarshal(data, &msg) == nil && msg.Type == "resize" {
				onResize(msg.Rows, msg.Cols)
				continue
			}
			if spectator {
				continue
			}
			if _, err := master.Write(data); err != nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// ptyFile is the subset of *os.File the bridge depends on.
type ptyFile interface {
	Fd() uintptr
	Write(p []byte) (int, error)
}
