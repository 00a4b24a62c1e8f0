package store

import (
	"errors"
	"testing"

	"chatcore/pkg/models"
)

func openTest(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { Close() })
}

func mkMsg(id, thread, sender string, ts int64, content string) models.Message {
	return models.Message{ID: id, Thread: thread, Sender: sender, TS: ts, Content: content, Type: models.MessageText}
}

func TestCommitAndListMessages(t *testing.T) {
	openTest(t)
	th := models.Thread{ID: "t1", Participants: []string{"alice", "bob"}}
	if err := SaveThread(th); err != nil {
		t.Fatalf("save thread: %v", err)
	}
	for i, ts := range []int64{100, 200, 300} {
		m := mkMsg([]string{"m1", "m2", "m3"}[i], "t1", "alice", ts, "hello")
		if err := CommitMessage(m, true, nil); err != nil {
			t.Fatalf("commit %s: %v", m.ID, err)
		}
	}

	msgs, err := ListMessages("t1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].TS <= msgs[i-1].TS {
			t.Fatalf("messages out of order: %d after %d", msgs[i].TS, msgs[i-1].TS)
		}
	}

	// resync: strictly after ts=100
	msgs, err = ListMessages("t1", 100, 0)
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m2" {
		t.Fatalf("since=100 expected [m2 m3], got %+v", msgs)
	}

	msgs, err = ListMessages("t1", 0, 1)
	if err != nil {
		t.Fatalf("list limit: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("limit=1 expected [m1], got %+v", msgs)
	}
}

func TestRewriteKeepsPosition(t *testing.T) {
	openTest(t)
	if err := SaveThread(models.Thread{ID: "t1", Participants: []string{"a", "b"}}); err != nil {
		t.Fatalf("save thread: %v", err)
	}
	m1 := mkMsg("m1", "t1", "a", 100, "first")
	m2 := mkMsg("m2", "t1", "a", 200, "second")
	for _, m := range []models.Message{m1, m2} {
		if err := CommitMessage(m, true, nil); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	// rewriting m1 with new content must not duplicate or reorder it
	m1.Content = "edited"
	if err := CommitMessage(m1, true, nil); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	msgs, err := ListMessages("t1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after rewrite, got %d", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].Content != "edited" {
		t.Fatalf("expected edited m1 first, got %+v", msgs[0])
	}

	latest, err := GetLatestMessage("m1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Content != "edited" {
		t.Fatalf("latest pointer stale: %q", latest.Content)
	}
	versions, err := ListMessageVersions("m1")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].Content != "first" || versions[1].Content != "edited" {
		t.Fatalf("versions out of order: %+v", versions)
	}
}

func TestReadMarkers(t *testing.T) {
	openTest(t)
	th := models.Thread{ID: "t1", Participants: []string{"a", "b"}}
	if err := SaveThread(th); err != nil {
		t.Fatalf("save thread: %v", err)
	}

	marker, err := GetReadMarker("t1", "b")
	if err != nil {
		t.Fatalf("marker: %v", err)
	}
	if marker != 0 {
		t.Fatalf("expected zero marker, got %d", marker)
	}

	m := mkMsg("m1", "t1", "a", 150, "hi")
	m.SeenBy = []string{"b"}
	if err := CommitSeen(th, "b", 150, []models.Message{m}); err != nil {
		t.Fatalf("commit seen: %v", err)
	}
	marker, err = GetReadMarker("t1", "b")
	if err != nil {
		t.Fatalf("marker: %v", err)
	}
	if marker != 150 {
		t.Fatalf("expected marker 150, got %d", marker)
	}
	markers, err := ListReadMarkers("t1")
	if err != nil {
		t.Fatalf("list markers: %v", err)
	}
	if markers["b"] != 150 {
		t.Fatalf("expected b=150, got %v", markers)
	}
}

func TestThreadRoundTrip(t *testing.T) {
	openTest(t)
	if _, err := GetThread("missing"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
	th := models.Thread{ID: "t1", Name: "general", Participants: []string{"a", "b"}, Unread: map[string]int{"a": 0, "b": 2}}
	if err := SaveThread(th); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := GetThread("t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "general" || got.Unread["b"] != 2 {
		t.Fatalf("thread mismatch: %+v", got)
	}
	all, err := ListThreads()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].ID != "t1" {
		t.Fatalf("expected one thread, got %+v", all)
	}
}

func TestVersionsMissingMessage(t *testing.T) {
	openTest(t)
	if _, err := ListMessageVersions("nope"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
	if _, err := GetLatestMessage("nope"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}
