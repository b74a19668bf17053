package store

import (
	"database/sql"
	"fmt"
)

// PeriodTotals summarizes session activity since a cutoff timestamp.
type PeriodTotals struct {
	Sessions    int
	Input       int64
	Output      int64
	CacheRead   int64
	CacheCreate int64
}

// TokenBucket is one grouped row of the token analytics report.
type TokenBucket struct {
	Label       string
	Input       int64
	Output      int64
	CacheRead   int64
	CacheCreate int64
}

// TotalsSince aggregates sessions whose last activity is at or after the
// given ISO timestamp.
func (s *Store) TotalsSince(cutoff string) (PeriodTotals, error) {
	var t PeriodTotals
	var inp, outp, cr, cc sql.NullInt64
	err := s.db.QueryRow(`
		SELECT COUNT(DISTINCT session_id),
		       SUM(total_input_tokens), SUM(total_output_tokens),
		       SUM(total_cache_read), SUM(total_cache_create)
		FROM sessions WHERE last_message >= ?`, cutoff).
		Scan(&t.Sessions, &inp, &outp, &cr, &cc)
	if err != nil {
		return t, fmt.Errorf("query period totals: %w", err)
	}
	t.Input, t.Output, t.CacheRead, t.CacheCreate = inp.Int64, outp.Int64, cr.Int64, cc.Int64
	return t, nil
}

// SessionCount returns the total number of indexed sessions.
func (s *Store) SessionCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count all sessions: %w", err)
	}
	return n, nil
}

// CacheHitRate computes cache_read / (cache_read + cache_create + input)
// across all sessions, rounded to two decimals.
func (s *Store) CacheHitRate() (float64, error) {
	var cr, cc, inp sql.NullInt64
	err := s.db.QueryRow(`
		SELECT SUM(total_cache_read), SUM(total_cache_create), SUM(total_input_tokens)
		FROM sessions`).Scan(&cr, &cc, &inp)
	if err != nil {
		return 0, fmt.Errorf("query cache totals: %w", err)
	}
	total := cr.Int64 + cc.Int64 + inp.Int64
	if total <= 0 {
		return 0, nil
	}
	rate := float64(cr.Int64) / float64(total)
	return float64(int(rate*100+0.5)) / 100, nil
}

// TokenBucketsByDay groups token usage for sessions active since cutoff by
// calendar day of last activity.
func (s *Store) TokenBucketsByDay(cutoff string) ([]TokenBucket, error) {
	rows, err := s.db.Query(`
		SELECT SUBSTR(last_message, 1, 10) as label,
		       SUM(total_input_tokens), SUM(total_output_tokens),
		       SUM(total_cache_read), SUM(total_cache_create)
		FROM sessions WHERE last_message >= ?
		GROUP BY SUBSTR(last_message, 1, 10) ORDER BY label ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query daily tokens: %w", err)
	}
	defer rows.Close()
	return collectBuckets(rows)
}

// TokenBucketsByProject groups token usage for sessions active since cutoff
// by project, largest output first.
func (s *Store) TokenBucketsByProject(cutoff string) ([]TokenBucket, error) {
	rows, err := s.db.Query(`
		SELECT project_dir as label,
		       SUM(total_input_tokens), SUM(total_output_tokens),
		       SUM(total_cache_read), SUM(total_cache_create)
		FROM sessions WHERE last_message >= ?
		GROUP BY project_dir ORDER BY SUM(total_output_tokens) DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query project tokens: %w", err)
	}
	defer rows.Close()
	return collectBuckets(rows)
}

func collectBuckets(rows *sql.Rows) ([]TokenBucket, error) {
	var out []TokenBucket
	for rows.Next() {
		var b TokenBucket
		var label sql.NullString
		var inp, outp, cr, cc sql.NullInt64
		if err := rows.Scan(&label, &inp, &outp, &cr, &cc); err != nil {
			return nil, fmt.Errorf("scan token bucket: %w", err)
		}
		b.Label = label.String
		b.Input, b.Output, b.CacheRead, b.CacheCreate = inp.Int64, outp.Int64, cr.Int64, cc.Int64
		out = append(out, b)
	}
	return out, rows.Err()
}

// ToolCountsSince aggregates tool invocations across all sessions since the
// cutoff timestamp.
func (s *Store) ToolCountsSince(cutoff string) ([]ToolCount, error) {
	rows, err := s.db.Query(`
		SELECT tool_name, COUNT(*) as cnt
		FROM tool_uses WHERE timestamp >= ?
		GROUP BY tool_name ORDER BY cnt DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query tool analytics: %w", err)
	}
	defer rows.Close()

	var out []ToolCount
	for rows.Next() {
		var tc ToolCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan tool analytics: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
