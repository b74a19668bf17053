package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// SearchHit is one full-text match joined with its session.
type SearchHit struct {
	SessionID   string
	Slug        string
	Project     string
	MessageUUID string
	Role        string
	Snippet     string
	Timestamp   string
}

// SearchFilter narrows a full-text query.
type SearchFilter struct {
	Project string
	After   string
	Before  string
	Limit   int
}

// buildMatchExpr quotes each term so FTS5 treats user input literally instead
// of as query syntax.
func buildMatchExpr(query string) string {
	escaped := strings.ReplaceAll(query, `"`, `""`)
	var terms []string
	for _, t := range strings.Fields(escaped) {
		terms = append(terms, `"`+t+`"`)
	}
	return strings.Join(terms, " ")
}

// Search runs a full-text query over message and thinking text, best matches
// first. A malformed FTS expression yields an empty result, not an error.
func (s *Store) Search(query string, filter SearchFilter) ([]SearchHit, error) {
	expr := buildMatchExpr(query)
	if expr == "" {
		return nil, nil
	}

	sqlText := `
		SELECT m.uuid, m.session_id, m.role, m.timestamp,
		       s.slug, s.project_dir,
		       snippet(messages_fts, 0, '>>>>', '<<<<', '...', 40) as snip
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.rowid
		JOIN sessions s ON m.session_id = s.session_id
		WHERE messages_fts MATCH ?`
	args := []any{expr}

	if filter.Project != "" {
		sqlText += " AND s.project_dir = ?"
		args = append(args, filter.Project)
	}
	if filter.After != "" {
		sqlText += " AND m.timestamp >= ?"
		args = append(args, filter.After)
	}
	if filter.Before != "" {
		sqlText += " AND m.timestamp <= ?"
		args = append(args, filter.Before)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	sqlText += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(sqlText, args...)
	if err != nil {
		slog.Warn("fts query failed", "query", query, "error", err)
		return nil, nil
	}
	defer rows.Close()

	var out []SearchHit
	for rows.Next() {
		var h SearchHit
		var slug, ts, snip sql.NullString
		if err := rows.Scan(&h.MessageUUID, &h.SessionID, &h.Role, &ts, &slug, &h.Project, &snip); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		h.Slug = slug.String
		h.Timestamp = ts.String
		snippet := strings.ReplaceAll(snip.String, ">>>>", "")
		snippet = strings.ReplaceAll(snippet, "<<<<", "")
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		h.Snippet = snippet
		out = append(out, h)
	}
	return out, rows.Err()
}
