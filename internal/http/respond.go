package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// liveSource reports which sessions currently have a live assistant process.
type liveSource interface {
	ActiveSessionIDs(ctx context.Context) map[string]bool
}

// terminalSource reports which managed multiplexer short ids exist.
type terminalSource interface {
	ShortIDs(ctx context.Context) map[string]bool
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeDetail writes an error body in the `{"detail": ...}` shape used by
// every endpoint.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// periodCutoff maps a period query value (7d/30d/90d) onto an ISO cutoff.
func periodCutoff(period string, now time.Time) string {
	days := 7
	switch period {
	case "30d":
		days = 30
	case "90d":
		days = 90
	}
	return now.UTC().Add(-time.Duration(days) * 24 * time.Hour).Format(time.RFC3339)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
