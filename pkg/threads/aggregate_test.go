package threads

import (
	"errors"
	"fmt"
	"testing"

	"chatcore/pkg/models"
	"chatcore/pkg/store"
)

func TestUnreadLifecycle(t *testing.T) {
	s, _ := newTestService(t, nil, nil)
	th := mustThread(t, s, "alice", "bob")

	m1 := mustAppend(t, s, th.ID, "alice", "one")
	mustAppend(t, s, th.ID, "alice", "two")
	m3 := mustAppend(t, s, th.ID, "alice", "three")

	got, err := s.GetThread(th.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Unread["bob"] != 3 || got.Unread["alice"] != 0 {
		t.Fatalf("after three sends: %v", got.Unread)
	}

	// bob reads up to the first message
	got, err = s.MarkSeen(th.ID, "bob", m1.TS)
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if got.Unread["bob"] != 2 {
		t.Fatalf("after seeing one of three: %v", got.Unread)
	}

	// bob reads everything; a wildly future marker is capped at the
	// newest message so unread lands exactly at zero
	got, err = s.MarkSeen(th.ID, "bob", m3.TS+1000000)
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if got.Unread["bob"] != 0 {
		t.Fatalf("after seeing all: %v", got.Unread)
	}

	// bob replies; only alice's counter moves
	mustAppend(t, s, th.ID, "bob", "reply")
	got, err = s.GetThread(th.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Unread["alice"] != 1 || got.Unread["bob"] != 0 {
		t.Fatalf("after reply: %v", got.Unread)
	}
}

func TestMarkSeenIdempotent(t *testing.T) {
	s, _ := newTestService(t, nil, nil)
	th := mustThread(t, s, "alice", "bob")
	m1 := mustAppend(t, s, th.ID, "alice", "one")
	mustAppend(t, s, th.ID, "alice", "two")

	first, err := s.MarkSeen(th.ID, "bob", m1.TS)
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	second, err := s.MarkSeen(th.ID, "bob", m1.TS)
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if first.Unread["bob"] != second.Unread["bob"] {
		t.Fatalf("repeat changed unread: %d vs %d", first.Unread["bob"], second.Unread["bob"])
	}

	// the marker never regresses
	got, err := s.MarkSeen(th.ID, "bob", m1.TS-1)
	if err != nil {
		t.Fatalf("stale marker: %v", err)
	}
	if got.Unread["bob"] != first.Unread["bob"] {
		t.Fatalf("stale marker regressed unread: %v", got.Unread)
	}

	msgs, err := s.Messages(th.ID, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !msgs[0].SeenByUser("bob") {
		t.Fatal("seen set lost the reader")
	}
	if msgs[1].SeenByUser("bob") {
		t.Fatal("unseen message gained a reader")
	}
}

func TestMarkSeenMessage(t *testing.T) {
	s, _ := newTestService(t, nil, nil)
	th := mustThread(t, s, "alice", "bob")
	mustAppend(t, s, th.ID, "alice", "one")
	m2 := mustAppend(t, s, th.ID, "alice", "two")
	mustAppend(t, s, th.ID, "alice", "three")

	got, err := s.MarkSeenMessage(m2.ID, "bob")
	if err != nil {
		t.Fatalf("mark seen message: %v", err)
	}
	if got.Unread["bob"] != 1 {
		t.Fatalf("expected one unread, got %v", got.Unread)
	}
}

func TestMarkSeenRejectsNonParticipant(t *testing.T) {
	s, _ := newTestService(t, nil, nil)
	th := mustThread(t, s, "alice", "bob")
	if _, err := s.MarkSeen(th.ID, "mallory", 1); !errors.Is(err, store.ErrInvalidParticipant) {
		t.Fatalf("expected ErrInvalidParticipant, got %v", err)
	}
}

func TestPinLifecycle(t *testing.T) {
	s, _ := newTestService(t, nil, nil)
	th := mustThread(t, s, "alice", "bob")
	m := mustAppend(t, s, th.ID, "alice", "pin me")

	got, err := s.Pin(th.ID, "bob", m.ID)
	if err != nil {
		t.Fatalf("pin: %v", err)
	}
	if len(got.Pinned) != 1 || got.Pinned[0] != m.ID {
		t.Fatalf("pinned set wrong: %v", got.Pinned)
	}

	// pinning again is a no-op
	got, err = s.Pin(th.ID, "bob", m.ID)
	if err != nil {
		t.Fatalf("re-pin: %v", err)
	}
	if len(got.Pinned) != 1 {
		t.Fatalf("duplicate pin: %v", got.Pinned)
	}

	got, err = s.Unpin(th.ID, "bob", m.ID)
	if err != nil {
		t.Fatalf("unpin: %v", err)
	}
	if len(got.Pinned) != 0 {
		t.Fatalf("unpin failed: %v", got.Pinned)
	}

	// unpinning an absent message is a no-op, not an error
	if _, err := s.Unpin(th.ID, "bob", "never-pinned"); err != nil {
		t.Fatalf("unpin absent: %v", err)
	}

	if _, err := s.Pin(th.ID, "mallory", m.ID); !errors.Is(err, store.ErrInvalidParticipant) {
		t.Fatalf("expected ErrInvalidParticipant, got %v", err)
	}
	if _, err := s.Pin(th.ID, "alice", "missing"); !errors.Is(err, store.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestPinRejectsDeletedAndForeignMessages(t *testing.T) {
	s, _ := newTestService(t, nil, nil)
	th := mustThread(t, s, "alice", "bob")
	other := mustThread(t, s, "alice", "carol")

	m := mustAppend(t, s, th.ID, "alice", "doomed")
	if _, err := s.Delete(m.ID, "alice", false); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Pin(th.ID, "alice", m.ID); !errors.Is(err, store.ErrMessageDeleted) {
		t.Fatalf("expected ErrMessageDeleted, got %v", err)
	}

	foreign := mustAppend(t, s, other.ID, "alice", "elsewhere")
	if _, err := s.Pin(th.ID, "alice", foreign.ID); !errors.Is(err, store.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound for foreign message, got %v", err)
	}
}

func TestPinLimit(t *testing.T) {
	s, _ := newTestService(t, nil, nil)
	th := mustThread(t, s, "alice", "bob")

	for i := 0; i < models.MaxPinnedMessages; i++ {
		m := mustAppend(t, s, th.ID, "alice", fmt.Sprintf("msg %d", i))
		if _, err := s.Pin(th.ID, "alice", m.ID); err != nil {
			t.Fatalf("pin %d: %v", i, err)
		}
	}
	extra := mustAppend(t, s, th.ID, "alice", "one too many")
	if _, err := s.Pin(th.ID, "alice", extra.ID); !errors.Is(err, store.ErrPinLimitExceeded) {
		t.Fatalf("expected ErrPinLimitExceeded, got %v", err)
	}
}

func TestRecomputeHealsAggregate(t *testing.T) {
	s, _ := newTestService(t, nil, nil)
	th := mustThread(t, s, "alice", "bob")
	mustAppend(t, s, th.ID, "alice", "one")
	m2 := mustAppend(t, s, th.ID, "alice", "two")
	if _, err := s.MarkSeen(th.ID, "bob", m2.TS); err != nil {
		t.Fatalf("seen: %v", err)
	}
	mustAppend(t, s, th.ID, "alice", "three")

	// corrupt the denormalized copy
	broken, err := s.GetThread(th.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	broken.Unread["bob"] = 99
	broken.LastMessage = nil
	if err := store.SaveThread(broken); err != nil {
		t.Fatalf("save: %v", err)
	}

	healed, err := s.Recompute(th.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if healed.Unread["bob"] != 1 || healed.Unread["alice"] != 0 {
		t.Fatalf("recomputed unread wrong: %v", healed.Unread)
	}
	if healed.LastMessage == nil || healed.LastMessage.Content != "three" {
		t.Fatalf("recomputed last message wrong: %+v", healed.LastMessage)
	}

	n, err := s.RecomputeAll()
	if err != nil {
		t.Fatalf("recompute all: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 thread recomputed, got %d", n)
	}
}

func TestRecomputeSkipsDeletedThread(t *testing.T) {
	s, _ := newTestService(t, nil, nil)
	th := mustThread(t, s, "alice", "bob")
	m := mustAppend(t, s, th.ID, "alice", "last words")
	if _, err := s.MarkSeen(th.ID, "bob", m.TS); err != nil {
		t.Fatalf("seen: %v", err)
	}
	if err := s.DeleteThread(th.ID, "alice", false); err != nil {
		t.Fatalf("delete thread: %v", err)
	}

	before, err := s.GetThread(th.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	after, err := s.Recompute(th.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	// the deletion tombstone must not leak into unread counters
	if after.Unread["bob"] != before.Unread["bob"] || after.Unread["bob"] != 0 {
		t.Fatalf("recompute changed a deleted thread's unread: %v", after.Unread)
	}
	if !after.Deleted {
		t.Fatal("recompute must not resurrect a deleted thread")
	}
}
