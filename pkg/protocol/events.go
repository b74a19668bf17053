package protocol

// Event names published on the bus and forwarded to SSE clients.
const (
	EventNewMessage = "new_message"
	EventNeedsInput = "needs_input"
	EventShutdown   = "shutdown"
)

// TopicGlobal is the reserved bus topic that mirrors every session-scoped
// event. Dashboard streams subscribe here; per-session streams subscribe to
// the session id itself.
const TopicGlobal = "__global__"

// CloseSessionNotFound is sent before closing a terminal WebSocket whose
// target does not resolve to a live multiplexer session.
const CloseSessionNotFound = 4004

// DefaultPort is the HTTP listen port when --port is not given.
const DefaultPort = 7860

// SessionPrefix namespaces the multiplexer sessions goremote owns. Sessions
// without this prefix are never listed, attached, or killed.
const SessionPrefix = "claude-remote-"
