package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Session mirrors one row of the sessions table. Nullable text columns come
// back as empty strings.
type Session struct {
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

// Message mirrors one row of the messages table.
type Message struct {
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

// FileTouch is one aggregated file event for the session detail view.
type FileTouch struct {
	Path      string
	EventType string
	Count     int
}

// ToolCount is one tool's invocation count within a session or period.
type ToolCount struct {
	Name  string
	Count int
}

// ToolActivity is one recent tool invocation joined with its session.
type ToolActivity struct {
	SessionID    string
	Slug         string
	Project      string
	ToolName     string
	InputSummary string
	Timestamp    string
}

const sessionColumns = `session_id, slug, project_dir, working_dir, git_branch, model, version,
	first_message, last_message, message_count, user_msg_count, asst_msg_count,
	total_input_tokens, total_output_tokens, total_cache_read, total_cache_create,
	file_size_bytes, jsonl_path, indexed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var slug, workDir, branch, model, version, first, last, path, indexed sql.NullString
	err := row.Scan(
		&s.SessionID, &slug, &s.ProjectDir, &workDir, &branch, &model, &version,
		&first, &last, &s.MessageCount, &s.UserMsgCount, &s.AsstMsgCount,
		&s.TotalInputTokens, &s.TotalOutputTokens, &s.TotalCacheRead, &s.TotalCacheCreate,
		&s.FileSizeBytes, &path, &indexed,
	)
	if err != nil {
		return Session{}, err
	}
	s.Slug = slug.String
	s.WorkingDir = workDir.String
	s.GitBranch = branch.String
	s.Model = model.String
	s.Version = version.String
	s.FirstMessage = first.String
	s.LastMessage = last.String
	s.JSONLPath = path.String
	s.IndexedAt = indexed.String
	return s, nil
}

// RecentSessions returns the most recently active sessions.
func (s *Store) RecentSessions(limit int) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY last_message DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListSessions returns sessions ordered by recency, optionally filtered by
// project, plus the total row count under the same filter.
func (s *Store) ListSessions(project string, limit, offset int) ([]Session, int, error) {
	where := ""
	args := []any{}
	if project != "" {
		where = " WHERE project_dir = ?"
		args = append(args, project)
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions`+where+` ORDER BY last_message DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	list, err := collectSessions(rows)
	return list, total, err
}

func collectSessions(rows *sql.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSession looks up one session by ID. Returns ErrNotFound when absent.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// SessionWorkingDir returns just the working directory of a session.
func (s *Store) SessionWorkingDir(id string) (string, error) {
	var dir sql.NullString
	err := s.db.QueryRow(`SELECT working_dir FROM sessions WHERE session_id = ?`, id).Scan(&dir)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get working dir: %w", err)
	}
	return dir.String, nil
}

// LastAssistantText returns the latest non-empty assistant message text for a
// session, or "" when there is none.
func (s *Store) LastAssistantText(id string) (string, error) {
	var text string
	err := s.db.QueryRow(`
		SELECT content_text FROM messages
		WHERE session_id = ? AND role = 'assistant' AND content_text != ''
		ORDER BY seq_num DESC LIMIT 1`, id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last assistant text: %w", err)
	}
	return text, nil
}

// LastMessage returns the role and timestamp of a session's newest message.
// Returns ErrNotFound when the session has no messages.
func (s *Store) LastMessage(id string) (role, timestamp string, err error) {
	var ts sql.NullString
	err = s.db.QueryRow(`
		SELECT role, timestamp FROM messages
		WHERE session_id = ? ORDER BY seq_num DESC LIMIT 1`, id).Scan(&role, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("last message: %w", err)
	}
	return role, ts.String, nil
}

// Messages returns a session's messages in file order plus the unpaged total.
// Returns ErrNotFound if the session does not exist.
func (s *Store) Messages(id string, limit, offset int) ([]Message, int, error) {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM sessions WHERE session_id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("check session: %w", err)
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, id).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT uuid, session_id, parent_uuid, role, content_text, model,
		       input_tokens, output_tokens, cache_read, cache_create,
		       has_thinking, thinking_text, tool_uses_json, timestamp, seq_num
		FROM messages WHERE session_id = ?
		ORDER BY seq_num ASC LIMIT ? OFFSET ?`, id, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var parent, content, model, thinking, toolUses, ts sql.NullString
		var hasThinking int
		if err := rows.Scan(
			&m.UUID, &m.SessionID, &parent, &m.Role, &content, &model,
			&m.InputTokens, &m.OutputTokens, &m.CacheRead, &m.CacheCreate,
			&hasThinking, &thinking, &toolUses, &ts, &m.SeqNum,
		); err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		m.ParentUUID = parent.String
		m.ContentText = content.String
		m.Model = model.String
		m.HasThinking = hasThinking != 0
		m.ThinkingText = thinking.String
		m.ToolUsesJSON = toolUses.String
		m.Timestamp = ts.String
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// FilesTouched aggregates a session's file events by path and type, most
// touched first.
func (s *Store) FilesTouched(id string, limit int) ([]FileTouch, error) {
	rows, err := s.db.Query(`
		SELECT file_path, event_type, COUNT(*) as cnt
		FROM file_events WHERE session_id = ?
		GROUP BY file_path, event_type
		ORDER BY cnt DESC LIMIT ?`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("query file events: %w", err)
	}
	defer rows.Close()

	var out []FileTouch
	for rows.Next() {
		var ft FileTouch
		if err := rows.Scan(&ft.Path, &ft.EventType, &ft.Count); err != nil {
			return nil, fmt.Errorf("scan file event: %w", err)
		}
		out = append(out, ft)
	}
	return out, rows.Err()
}

// ToolCounts aggregates a session's tool invocations by name.
func (s *Store) ToolCounts(id string) ([]ToolCount, error) {
	rows, err := s.db.Query(`
		SELECT tool_name, COUNT(*) as cnt
		FROM tool_uses WHERE session_id = ?
		GROUP BY tool_name ORDER BY cnt DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("query tool counts: %w", err)
	}
	defer rows.Close()

	var out []ToolCount
	for rows.Next() {
		var tc ToolCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan tool count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// RecentToolUses returns the latest tool invocations across all sessions for
// the dashboard activity feed.
func (s *Store) RecentToolUses(limit int) ([]ToolActivity, error) {
	rows, err := s.db.Query(`
		SELECT tu.session_id, s.slug, s.project_dir, tu.tool_name, tu.input_summary, tu.timestamp
		FROM tool_uses tu
		JOIN sessions s ON tu.session_id = s.session_id
		ORDER BY tu.timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent tool uses: %w", err)
	}
	defer rows.Close()

	var out []ToolActivity
	for rows.Next() {
		var ta ToolActivity
		var slug, summary, ts sql.NullString
		if err := rows.Scan(&ta.SessionID, &slug, &ta.Project, &ta.ToolName, &summary, &ts); err != nil {
			return nil, fmt.Errorf("scan tool activity: %w", err)
		}
		ta.Slug = slug.String
		ta.InputSummary = summary.String
		ta.Timestamp = ts.String
		out = append(out, ta)
	}
	return out, rows.Err()
}
