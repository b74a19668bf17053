package parser

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Block content types found in transcript messages.
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Block is one content block of a transcript message. The transcript encodes
// content either as a bare string or as a heterogeneous list of typed blocks;
// Blocks.UnmarshalJSON normalizes both into this tagged form.
type Block struct {
	Type     string
	Text     string          // text blocks
	Thinking string          // thinking blocks
	ID       string          // tool_use
	Name     string          // tool_use
	Input    json.RawMessage // tool_use input, kept opaque
}

// Blocks decodes the polymorphic "content" field.
type Blocks []Block

func (b *Blocks) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*b = nil
		return nil
	}

	// Bare string content becomes a single text block.
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Blocks{{Type: BlockText, Text: s}}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Unknown shape; treat as empty rather than failing the record.
		*b = nil
		return nil
	}

	out := make(Blocks, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		if item[0] == '"' {
			var s string
			if json.Unmarshal(item, &s) == nil {
				out = append(out, Block{Type: BlockText, Text: s})
			}
			continue
		}
		var blk struct {
			Type     string          `json:"type"`
			Text     string          `json:"text"`
			Thinking string          `json:"thinking"`
			ID       string          `json:"id"`
			Name     string          `json:"name"`
			Input    json.RawMessage `json:"input"`
		}
		if json.Unmarshal(item, &blk) != nil {
			continue
		}
		out = append(out, Block{
			Type:     blk.Type,
			Text:     blk.Text,
			Thinking: blk.Thinking,
			ID:       blk.ID,
			Name:     blk.Name,
			Input:    blk.Input,
		})
	}
	*b = out
	return nil
}

// Usage carries per-message token counts.
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
}

// Message is the nested message object of a transcript record.
type Message struct {
	Role    string `json:"role"`
	Model   string `json:"model"`
	Content Blocks `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Record is one line of a session transcript. All fields are optional; the
// parser treats anything missing as empty.
type Record struct {
	Type       string  `json:"type"`
	UUID       string  `json:"uuid"`
	ParentUUID string  `json:"parentUuid"`
	Timestamp  string  `json:"timestamp"`
	Slug       string  `json:"slug"`
	GitBranch  string  `json:"gitBranch"`
	Version    string  `json:"version"`
	Cwd        string  `json:"cwd"`
	Message    Message `json:"message"`
}

// ParseLine decodes one transcript line. Returns false for blank lines,
// malformed JSON, and non-object payloads; callers skip those.
func ParseLine(line []byte) (*Record, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

// IsMessage reports whether the record should be indexed as a conversation
// message: type and role both in {user, assistant}.
func (r *Record) IsMessage() bool {
	if r.Type != "user" && r.Type != "assistant" {
		return false
	}
	role := r.Role()
	return role == "user" || role == "assistant"
}

// Role returns message.role, falling back to the record type.
func (r *Record) Role() string {
	if r.Message.Role != "" {
		return r.Message.Role
	}
	return r.Type
}

// TextContent joins the text blocks with newlines.
func (r *Record) TextContent() string {
	var parts []string
	for _, blk := range r.Message.Content {
		if blk.Type == BlockText {
			parts = append(parts, blk.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ThinkingContent joins the thinking blocks with newlines.
func (r *Record) ThinkingContent() string {
	var parts []string
	for _, blk := range r.Message.Content {
		if blk.Type == BlockThinking {
			parts = append(parts, blk.Thinking)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUseNames returns the tool names of the record's tool_use blocks.
func (r *Record) ToolUseNames() []string {
	var names []string
	for _, blk := range r.Message.Content {
		if blk.Type == BlockToolUse {
			names = append(names, blk.Name)
		}
	}
	return names
}
