package parser

import (
	"encoding/json"
	"fmt"
)

// SessionRow is the aggregate row for one indexed transcript.
type SessionRow struct {
	SessionID         string
	Slug              string
	ProjectDir        string
	WorkingDir        string
	GitBranch         string
	Model             string
	Version           string
	FirstMessage      string
	LastMessage       string
	MessageCount      int
	UserMsgCount      int
	AsstMsgCount      int
	TotalInputTokens  int64
	TotalOutputTokens int64
	TotalCacheRead    int64
	TotalCacheCreate  int64
	FileSizeBytes     int64
	JSONLPath         string
	IndexedAt         string
}

// MessageRow is one indexed conversation message.
type MessageRow struct {
	UUID         string
	SessionID    string
	ParentUUID   string
	Role         string
	ContentText  string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CacheRead    int64
	CacheCreate  int64
	HasThinking  bool
	ThinkingText string
	ToolUsesJSON string
	Timestamp    string
	SeqNum       int
}

// ToolUseRow is one tool invocation extracted from an assistant message.
type ToolUseRow struct {
	ToolUseID    string
	SessionID    string
	MessageUUID  string
	ToolName     string
	InputSummary string
	Timestamp    string
}

// FileEventRow is one file-touching tool invocation.
type FileEventRow struct {
	SessionID string
	FilePath  string
	EventType string
	Timestamp string
}

// toolUseSummary is the element shape stored in messages.tool_uses_json.
type toolUseSummary struct {
	Name         string `json:"name"`
	InputSummary string `json:"input_summary"`
}

// Accumulator folds transcript records into the row set for one session.
// Feed every record of the file through Add in order, then read the slices
// and call Session for the aggregate.
type Accumulator struct {
	sessionID  string
	projectDir string

	slug      string
	workDir   string
	gitBranch string
	version   string
	model     string

	first string
	last  string
	seq   int

	userCount int
	asstCount int

	inputTokens int64
	outputToks  int64
	cacheRead   int64
	cacheCreate int64

	Messages   []MessageRow
	ToolUses   []ToolUseRow
	FileEvents []FileEventRow
}

// NewAccumulator starts an accumulator for the given session. projectDir is
// the flattened directory name the transcript lives under.
func NewAccumulator(sessionID, projectDir string) *Accumulator {
	return &Accumulator{sessionID: sessionID, projectDir: projectDir}
}

// Add folds one record in. Non-message records still contribute session
// metadata and timestamps. Metadata fields keep the first value seen.
func (a *Accumulator) Add(rec *Record) {
	if a.slug == "" {
		a.slug = rec.Slug
	}
	if a.gitBranch == "" {
		a.gitBranch = rec.GitBranch
	}
	if a.version == "" {
		a.version = rec.Version
	}
	if a.workDir == "" {
		a.workDir = rec.Cwd
	}

	// ISO-8601 timestamps order lexicographically, so string min/max works
	// even when records arrive out of order.
	if rec.Timestamp != "" {
		if a.first == "" || rec.Timestamp < a.first {
			a.first = rec.Timestamp
		}
		if a.last == "" || rec.Timestamp > a.last {
			a.last = rec.Timestamp
		}
	}

	if !rec.IsMessage() {
		return
	}

	role := rec.Role()
	uuid := rec.UUID
	if uuid == "" {
		uuid = fmt.Sprintf("%s-%d", a.sessionID, a.seq)
	}

	msgModel := rec.Message.Model
	if a.model == "" && msgModel != "" && msgModel != "<synthetic>" {
		a.model = msgModel
	}
	if msgModel == "" {
		msgModel = a.model
	}

	usage := rec.Message.Usage
	a.inputTokens += usage.InputTokens
	a.outputToks += usage.OutputTokens
	a.cacheRead += usage.CacheReadTokens
	a.cacheCreate += usage.CacheCreationTokens

	if role == "user" {
		a.userCount++
	} else {
		a.asstCount++
	}

	thinking := rec.ThinkingContent()
	var summaries []toolUseSummary

	for _, blk := range rec.Message.Content {
		if blk.Type != BlockToolUse {
			continue
		}
		name := blk.Name
		if name == "" {
			name = "unknown"
		}
		summary := SummarizeToolInput(name, blk.Input)
		summaries = append(summaries, toolUseSummary{Name: name, InputSummary: summary})
		a.ToolUses = append(a.ToolUses, ToolUseRow{
			ToolUseID:    blk.ID,
			SessionID:    a.sessionID,
			MessageUUID:  uuid,
			ToolName:     name,
			InputSummary: summary,
			Timestamp:    rec.Timestamp,
		})
		if path, event, ok := FileEventFor(name, blk.Input); ok {
			a.FileEvents = append(a.FileEvents, FileEventRow{
				SessionID: a.sessionID,
				FilePath:  path,
				EventType: event,
				Timestamp: rec.Timestamp,
			})
		}
	}

	var toolUsesJSON string
	if len(summaries) > 0 {
		if raw, err := json.Marshal(summaries); err == nil {
			toolUsesJSON = string(raw)
		}
	}

	a.Messages = append(a.Messages, MessageRow{
		UUID:         uuid,
		SessionID:    a.sessionID,
		ParentUUID:   rec.ParentUUID,
		Role:         role,
		ContentText:  rec.TextContent(),
		Model:        msgModel,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CacheRead:    usage.CacheReadTokens,
		CacheCreate:  usage.CacheCreationTokens,
		HasThinking:  thinking != "",
		ThinkingText: thinking,
		ToolUsesJSON: toolUsesJSON,
		Timestamp:    rec.Timestamp,
		SeqNum:       a.seq,
	})
	a.seq++
}

// Session builds the aggregate row once all records are folded in.
func (a *Accumulator) Session(jsonlPath string, fileSize int64, indexedAt string) SessionRow {
	workDir := a.workDir
	if workDir == "" {
		workDir = WorkingDirFromProjectDir(a.projectDir)
	}
	return SessionRow{
		SessionID:         a.sessionID,
		Slug:              a.slug,
		ProjectDir:        ProjectName(workDir),
		WorkingDir:        workDir,
		GitBranch:         a.gitBranch,
		Model:             a.model,
		Version:           a.version,
		FirstMessage:      a.first,
		LastMessage:       a.last,
		MessageCount:      len(a.Messages),
		UserMsgCount:      a.userCount,
		AsstMsgCount:      a.asstCount,
		TotalInputTokens:  a.inputTokens,
		TotalOutputTokens: a.outputToks,
		TotalCacheRead:    a.cacheRead,
		TotalCacheCreate:  a.cacheCreate,
		FileSizeBytes:     fileSize,
		JSONLPath:         jsonlPath,
		IndexedAt:         indexedAt,
	}
}
