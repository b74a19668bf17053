package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/goremote/internal/parser"
)

// IndexMeta records what state a transcript file was in when last indexed.
type IndexMeta struct {
	JSONLPath string
	FileMtime float64
	FileSize  int64
	IndexedAt string
}

// ReplaceSession atomically replaces every indexed row for one session with
// the freshly parsed set. Reindexing is always a full replace; partial
// updates are not worth the bookkeeping at transcript sizes.
func (s *Store) ReplaceSession(sess parser.SessionRow, msgs []parser.MessageRow, tools []parser.ToolUseRow, events []parser.FileEventRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM messages WHERE session_id = ?`,
		`DELETE FROM tool_uses WHERE session_id = ?`,
		`DELETE FROM file_events WHERE session_id = ?`,
		`DELETE FROM sessions WHERE session_id = ?`,
	} {
		if _, err := tx.Exec(stmt, sess.SessionID); err != nil {
			return fmt.Errorf("clear session rows: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO sessions (
			session_id, slug, project_dir, working_dir, git_branch, model, version,
			first_message, last_message, message_count, user_msg_count, asst_msg_count,
			total_input_tokens, total_output_tokens, total_cache_read, total_cache_create,
			file_size_bytes, jsonl_path, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, nullIfEmpty(sess.Slug), sess.ProjectDir, sess.WorkingDir,
		nullIfEmpty(sess.GitBranch), nullIfEmpty(sess.Model), nullIfEmpty(sess.Version),
		nullIfEmpty(sess.FirstMessage), nullIfEmpty(sess.LastMessage),
		sess.MessageCount, sess.UserMsgCount, sess.AsstMsgCount,
		sess.TotalInputTokens, sess.TotalOutputTokens, sess.TotalCacheRead, sess.TotalCacheCreate,
		sess.FileSizeBytes, sess.JSONLPath, sess.IndexedAt,
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	msgStmt, err := tx.Prepare(`
		INSERT INTO messages (
			uuid, session_id, parent_uuid, role, content_text, model,
			input_tokens, output_tokens, cache_read, cache_create,
			has_thinking, thinking_text, tool_uses_json, timestamp, seq_num
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer msgStmt.Close()
	for _, m := range msgs {
		hasThinking := 0
		if m.HasThinking {
			hasThinking = 1
		}
		if _, err := msgStmt.Exec(
			m.UUID, m.SessionID, nullIfEmpty(m.ParentUUID), m.Role, m.ContentText,
			nullIfEmpty(m.Model), m.InputTokens, m.OutputTokens, m.CacheRead, m.CacheCreate,
			hasThinking, nullIfEmpty(m.ThinkingText), nullIfEmpty(m.ToolUsesJSON),
			m.Timestamp, m.SeqNum,
		); err != nil {
			return fmt.Errorf("insert message %s: %w", m.UUID, err)
		}
	}

	toolStmt, err := tx.Prepare(`
		INSERT INTO tool_uses (tool_use_id, session_id, message_uuid, tool_name, input_summary, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare tool insert: %w", err)
	}
	defer toolStmt.Close()
	for _, tu := range tools {
		if _, err := toolStmt.Exec(tu.ToolUseID, tu.SessionID, tu.MessageUUID, tu.ToolName, tu.InputSummary, tu.Timestamp); err != nil {
			return fmt.Errorf("insert tool use: %w", err)
		}
	}

	eventStmt, err := tx.Prepare(`
		INSERT INTO file_events (session_id, file_path, event_type, timestamp)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare file event insert: %w", err)
	}
	defer eventStmt.Close()
	for _, fe := range events {
		if _, err := eventStmt.Exec(fe.SessionID, fe.FilePath, fe.EventType, fe.Timestamp); err != nil {
			return fmt.Errorf("insert file event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// UpsertIndexMeta records the file state a transcript was indexed at.
func (s *Store) UpsertIndexMeta(meta IndexMeta) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO index_meta (jsonl_path, file_mtime, file_size, indexed_at)
		VALUES (?, ?, ?, ?)`,
		meta.JSONLPath, meta.FileMtime, meta.FileSize, meta.IndexedAt)
	if err != nil {
		return fmt.Errorf("upsert index meta: %w", err)
	}
	return nil
}

// AllIndexMeta returns the recorded state of every indexed transcript, keyed
// by path.
func (s *Store) AllIndexMeta() (map[string]IndexMeta, error) {
	rows, err := s.db.Query(`SELECT jsonl_path, file_mtime, file_size, indexed_at FROM index_meta`)
	if err != nil {
		return nil, fmt.Errorf("query index meta: %w", err)
	}
	defer rows.Close()

	out := make(map[string]IndexMeta)
	for rows.Next() {
		var m IndexMeta
		if err := rows.Scan(&m.JSONLPath, &m.FileMtime, &m.FileSize, &m.IndexedAt); err != nil {
			return nil, fmt.Errorf("scan index meta: %w", err)
		}
		out[m.JSONLPath] = m
	}
	return out, rows.Err()
}

// DeleteByPath removes a transcript's session, messages, tool uses, file
// events, and index meta, identified by the transcript path. Used to reap
// orphans whose files are gone.
func (s *Store) DeleteByPath(jsonlPath string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	var sessionID string
	err = tx.QueryRow(`SELECT session_id FROM sessions WHERE jsonl_path = ?`, jsonlPath).Scan(&sessionID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup session by path: %w", err)
	}
	if err == nil {
		for _, stmt := range []string{
			`DELETE FROM messages WHERE session_id = ?`,
			`DELETE FROM tool_uses WHERE session_id = ?`,
			`DELETE FROM file_events WHERE session_id = ?`,
			`DELETE FROM sessions WHERE session_id = ?`,
		} {
			if _, err := tx.Exec(stmt, sessionID); err != nil {
				return fmt.Errorf("delete session rows: %w", err)
			}
		}
	}
	if _, err := tx.Exec(`DELETE FROM index_meta WHERE jsonl_path = ?`, jsonlPath); err != nil {
		return fmt.Errorf("delete index meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}
