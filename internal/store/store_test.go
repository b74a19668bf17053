package store

import (
	"errors"
	"testing"

	"github.com/nextlevelbuilder/goremote/internal/parser"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRows(sessionID, project, lastMessage string) (parser.SessionRow, []parser.MessageRow, []parser.ToolUseRow, []parser.FileEventRow) {
	sess := parser.SessionRow{
		SessionID:         sessionID,
		Slug:              "slug-" + sessionID,
		ProjectDir:        project,
		WorkingDir:        "/home/dev/" + project,
		GitBranch:         "main",
		Model:             "claude-sonnet-4-20250514",
		FirstMessage:      "2025-06-01T10:00:00Z",
		LastMessage:       lastMessage,
		MessageCount:      2,
		UserMsgCount:      1,
		AsstMsgCount:      1,
		TotalInputTokens:  100,
		TotalOutputTokens: 50,
		TotalCacheRead:    200,
		TotalCacheCreate:  30,
		FileSizeBytes:     2048,
		JSONLPath:         "/logs/" + sessionID + ".jsonl",
		IndexedAt:         "2025-06-01T12:00:00Z",
	}
	msgs := []parser.MessageRow{
		{
			UUID: sessionID + "-u", SessionID: sessionID, Role: "user",
			ContentText: "please fix the indexer bug", Timestamp: "2025-06-01T10:00:00Z", SeqNum: 0,
		},
		{
			UUID: sessionID + "-a", SessionID: sessionID, ParentUUID: sessionID + "-u", Role: "assistant",
			ContentText: "done, the indexer handles it now", Model: sess.Model,
			InputTokens: 100, OutputTokens: 50, CacheRead: 200, CacheCreate: 30,
			HasThinking: true, ThinkingText: "checking the parser",
			ToolUsesJSON: `[{"name":"Edit","input_summary":"/src/indexer.go"}]`,
			Timestamp:    lastMessage, SeqNum: 1,
		},
	}
	tools := []parser.ToolUseRow{
		{ToolUseID: "tu-" + sessionID, SessionID: sessionID, MessageUUID: sessionID + "-a",
			ToolName: "Edit", InputSummary: "/src/indexer.go", Timestamp: lastMessage},
	}
	events := []parser.FileEventRow{
		{SessionID: sessionID, FilePath: "/src/indexer.go", EventType: "edit", Timestamp: lastMessage},
	}
	return sess, msgs, tools, events
}

func mustReplace(t *testing.T, s *Store, sessionID, project, lastMessage string) {
	t.Helper()
	sess, msgs, tools, events := sampleRows(sessionID, project, lastMessage)
	if err := s.ReplaceSession(sess, msgs, tools, events); err != nil {
		t.Fatalf("ReplaceSession: %v", err)
	}
}

func TestReplaceSessionAndGet(t *testing.T) {
	s := openTestStore(t)
	mustReplace(t, s, "sess-1", "webapp", "2025-06-01T10:05:00Z")

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Slug != "slug-sess-1" || got.ProjectDir != "webapp" || got.MessageCount != 2 {
		t.Errorf("session = %+v", got)
	}
	if got.TotalCacheRead != 200 {
		t.Errorf("TotalCacheRead = %d", got.TotalCacheRead)
	}

	if _, err := s.GetSession("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing session err = %v, want ErrNotFound", err)
	}
}

func TestReplaceSessionIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	mustReplace(t, s, "sess-1", "webapp", "2025-06-01T10:05:00Z")
	mustReplace(t, s, "sess-1", "webapp", "2025-06-01T10:06:00Z")

	msgs, total, err := s.Messages("sess-1", 200, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if total != 2 || len(msgs) != 2 {
		t.Errorf("total = %d, len = %d, want 2/2", total, len(msgs))
	}
	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.LastMessage != "2025-06-01T10:06:00Z" {
		t.Errorf("LastMessage = %q", got.LastMessage)
	}
}

func TestMessagesOrderAndFields(t *testing.T) {
	s := openTestStore(t)
	mustReplace(t, s, "sess-1", "webapp", "2025-06-01T10:05:00Z")

	msgs, _, err := s.Messages("sess-1", 200, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	asst := msgs[1]
	if !asst.HasThinking || asst.ThinkingText != "checking the parser" {
		t.Errorf("thinking = %v %q", asst.HasThinking, asst.ThinkingText)
	}
	if asst.ToolUsesJSON == "" {
		t.Error("ToolUsesJSON empty")
	}

	if _, _, err := s.Messages("missing", 10, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing conversation err = %v", err)
	}
}

func TestListSessionsFilterAndTotal(t *testing.T) {
	s := openTestStore(t)
	mustReplace(t, s, "sess-1", "webapp", "2025-06-01T10:05:00Z")
	mustReplace(t, s, "sess-2", "webapp", "2025-06-02T10:05:00Z")
	mustReplace(t, s, "sess-3", "cli", "2025-06-03T10:05:00Z")

	list, total, err := s.ListSessions("", 30, 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if total != 3 || len(list) != 3 {
		t.Fatalf("total = %d, len = %d", total, len(list))
	}
	// Most recent first.
	if list[0].SessionID != "sess-3" {
		t.Errorf("first = %s, want sess-3", list[0].SessionID)
	}

	list, total, err = s.ListSessions("webapp", 30, 0)
	if err != nil {
		t.Fatalf("ListSessions(webapp): %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Errorf("filtered total = %d, len = %d", total, len(list))
	}

	list, _, err = s.ListSessions("", 1, 1)
	if err != nil {
		t.Fatalf("ListSessions paged: %v", err)
	}
	if len(list) != 1 || list[0].SessionID != "sess-2" {
		t.Errorf("paged = %+v", list)
	}
}

func TestSearchAfterRebuild(t *testing.T) {
	s := openTestStore(t)
	mustReplace(t, s, "sess-1", "webapp", "2025-06-01T10:05:00Z")

	hits, err := s.Search("indexer", SearchFilter{Limit: 20})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for indexer")
	}
	if hits[0].SessionID != "sess-1" {
		t.Errorf("hit = %+v", hits[0])
	}
	for _, h := range hits {
		if len(h.Snippet) > 200 {
			t.Errorf("snippet too long: %d", len(h.Snippet))
		}
	}

	// Replace deletes rows without updating FTS; rebuild resyncs.
	mustReplace(t, s, "sess-1", "webapp", "2025-06-01T10:06:00Z")
	if err := s.RebuildFTS(); err != nil {
		t.Fatalf("RebuildFTS: %v", err)
	}
	hits, err = s.Search("indexer", SearchFilter{Limit: 20})
	if err != nil {
		t.Fatalf("Search after rebuild: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("hits after rebuild = %d, want 2 (user+assistant)", len(hits))
	}
}

func TestSearchFilters(t *testing.T) {
	s := openTestStore(t)
	mustReplace(t, s, "sess-1", "webapp", "2025-06-01T10:05:00Z")
	mustReplace(t, s, "sess-2", "cli", "2025-06-02T10:05:00Z")

	hits, err := s.Search("indexer", SearchFilter{Project: "cli", Limit: 20})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		if h.Project != "cli" {
			t.Errorf("hit outside project filter: %+v", h)
		}
	}

	if hits, _ := s.Search("   ", SearchFilter{}); hits != nil {
		t.Errorf("blank query hits = %v", hits)
	}
	// Quote-laden input must not break the FTS expression.
	if _, err := s.Search(`"unbalanced`, SearchFilter{Limit: 5}); err != nil {
		t.Errorf("quoted query error: %v", err)
	}
}

func TestIndexMetaRoundTrip(t *testing.T) {
	s := openTestStore(t)
	meta := IndexMeta{JSONLPath: "/logs/sess-1.jsonl", FileMtime: 1748772300.5, FileSize: 2048, IndexedAt: "2025-06-01T12:00:00Z"}
	if err := s.UpsertIndexMeta(meta); err != nil {
		t.Fatalf("UpsertIndexMeta: %v", err)
	}
	meta.FileSize = 4096
	if err := s.UpsertIndexMeta(meta); err != nil {
		t.Fatalf("UpsertIndexMeta update: %v", err)
	}

	all, err := s.AllIndexMeta()
	if err != nil {
		t.Fatalf("AllIndexMeta: %v", err)
	}
	got, ok := all["/logs/sess-1.jsonl"]
	if !ok {
		t.Fatal("meta missing")
	}
	if got.FileSize != 4096 || got.FileMtime != 1748772300.5 {
		t.Errorf("meta = %+v", got)
	}
}

func TestDeleteByPath(t *testing.T) {
	s := openTestStore(t)
	mustReplace(t, s, "sess-1", "webapp", "2025-06-01T10:05:00Z")
	if err := s.UpsertIndexMeta(IndexMeta{JSONLPath: "/logs/sess-1.jsonl", FileSize: 2048}); err != nil {
		t.Fatalf("UpsertIndexMeta: %v", err)
	}

	if err := s.DeleteByPath("/logs/sess-1.jsonl"); err != nil {
		t.Fatalf("DeleteByPath: %v", err)
	}
	if _, err := s.GetSession("sess-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("session survived delete: %v", err)
	}
	all, err := s.AllIndexMeta()
	if err != nil {
		t.Fatalf("AllIndexMeta: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("meta rows left: %v", all)
	}
	// Deleting an unknown path is a no-op.
	if err := s.DeleteByPath("/logs/ghost.jsonl"); err != nil {
		t.Errorf("DeleteByPath ghost: %v", err)
	}
}

func TestAnalytics(t *testing.T) {
	s := openTestStore(t)
	mustReplace(t, s, "sess-1", "webapp", "2025-06-01T10:05:00Z")
	mustReplace(t, s, "sess-2", "cli", "2025-06-02T10:05:00Z")

	totals, err := s.TotalsSince("2025-06-02T00:00:00Z")
	if err != nil {
		t.Fatalf("TotalsSince: %v", err)
	}
	if totals.Sessions != 1 || totals.Input != 100 {
		t.Errorf("totals = %+v", totals)
	}

	n, err := s.SessionCount()
	if err != nil || n != 2 {
		t.Errorf("SessionCount = %d, %v", n, err)
	}

	rate, err := s.CacheHitRate()
	if err != nil {
		t.Fatalf("CacheHitRate: %v", err)
	}
	// 400 read / (400 + 60 + 200) = 0.606 -> 0.61
	if rate != 0.61 {
		t.Errorf("CacheHitRate = %v, want 0.61", rate)
	}

	days, err := s.TokenBucketsByDay("2025-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("TokenBucketsByDay: %v", err)
	}
	if len(days) != 2 || days[0].Label != "2025-06-01" {
		t.Errorf("day buckets = %+v", days)
	}

	projects, err := s.TokenBucketsByProject("2025-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("TokenBucketsByProject: %v", err)
	}
	if len(projects) != 2 {
		t.Errorf("project buckets = %+v", projects)
	}

	tools, err := s.ToolCountsSince("2025-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("ToolCountsSince: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "Edit" || tools[0].Count != 2 {
		t.Errorf("tool counts = %+v", tools)
	}
}

func TestSessionDetailQueries(t *testing.T) {
	s := openTestStore(t)
	mustReplace(t, s, "sess-1", "webapp", "2025-06-01T10:05:00Z")

	files, err := s.FilesTouched("sess-1", 100)
	if err != nil {
		t.Fatalf("FilesTouched: %v", err)
	}
	if len(files) != 1 || files[0].Path != "/src/indexer.go" || files[0].EventType != "edit" {
		t.Errorf("files = %+v", files)
	}

	counts, err := s.ToolCounts("sess-1")
	if err != nil {
		t.Fatalf("ToolCounts: %v", err)
	}
	if len(counts) != 1 || counts[0].Name != "Edit" {
		t.Errorf("counts = %+v", counts)
	}

	text, err := s.LastAssistantText("sess-1")
	if err != nil {
		t.Fatalf("LastAssistantText: %v", err)
	}
	if text != "done, the indexer handles it now" {
		t.Errorf("text = %q", text)
	}

	recent, err := s.RecentToolUses(20)
	if err != nil {
		t.Fatalf("RecentToolUses: %v", err)
	}
	if len(recent) != 1 || recent[0].Project != "webapp" {
		t.Errorf("recent = %+v", recent)
	}
}

func TestPushStores(t *testing.T) {
	s := openTestStore(t)
	sub := PushSubscription{Endpoint: "https://push.test/ep1", P256DH: "key", Auth: "auth", UserAgent: "ua"}
	if err := s.SavePushSubscription(sub, "2025-06-01T00:00:00Z"); err != nil {
		t.Fatalf("SavePushSubscription: %v", err)
	}
	if err := s.SavePushSubscription(sub, "2025-06-02T00:00:00Z"); err != nil {
		t.Fatalf("SavePushSubscription upsert: %v", err)
	}
	subs, err := s.PushSubscriptions()
	if err != nil || len(subs) != 1 {
		t.Fatalf("PushSubscriptions = %v, %v", subs, err)
	}
	if err := s.DeletePushSubscription(sub.Endpoint); err != nil {
		t.Fatalf("DeletePushSubscription: %v", err)
	}
	subs, _ = s.PushSubscriptions()
	if len(subs) != 0 {
		t.Errorf("subscriptions left: %v", subs)
	}

	dev := NativeDevice{DeviceToken: "tok1", Platform: "ios"}
	if err := s.SaveNativeDevice(dev, "2025-06-01T00:00:00Z"); err != nil {
		t.Fatalf("SaveNativeDevice: %v", err)
	}
	devs, err := s.NativeDevices()
	if err != nil || len(devs) != 1 || devs[0].Platform != "ios" {
		t.Fatalf("NativeDevices = %v, %v", devs, err)
	}
	if err := s.DeleteNativeDevice("tok1"); err != nil {
		t.Fatalf("DeleteNativeDevice: %v", err)
	}
}
