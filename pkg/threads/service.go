package threads

import (
	"sync"
	"time"

	"chatcore/pkg/logger"
	"chatcore/pkg/models"
	"chatcore/pkg/store"
	"chatcore/pkg/utils"
	"chatcore/pkg/validation"
)

// Publisher receives one immutable event per committed state change.
// Publishing must never block; slow consumers are the publisher's problem.
type Publisher interface {
	Publish(ev models.Event)
}

// PresenceSource answers whether a user currently has a live connection.
type PresenceSource interface {
	IsOnline(user string) bool
}

// Notifier is told about new messages for offline recipients. Calls are
// fire-and-forget; a notifier failure never fails the originating commit.
type Notifier interface {
	MessageForOffline(th models.Thread, m models.Message, recipients []string)
}

// Service implements the messaging core: the append-only message log
// operations and the per-thread aggregate they maintain. All mutations
// for one thread are serialized behind that thread's lock; operations on
// different threads proceed in parallel.
type Service struct {
	pub      Publisher
	presence PresenceSource
	notifier Notifier

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	lastTS map[string]int64
}

// NewService wires the core against its collaborators. Any of them may
// be nil; the corresponding side effect is skipped.
func NewService(pub Publisher, presence PresenceSource, notifier Notifier) *Service {
	return &Service{
		pub:      pub,
		presence: presence,
		notifier: notifier,
		locks:    map[string]*sync.Mutex{},
		lastTS:   map[string]int64{},
	}
}

// lockThread returns the mutex serializing writes for a thread id,
// creating it on first use.
func (s *Service) lockThread(threadID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[threadID] = l
	}
	return l
}

// nextTS assigns the server timestamp for a new message in a thread.
// Timestamps are strictly increasing within the thread even when the
// wall clock stalls or steps backwards. Caller must hold the thread lock.
func (s *Service) nextTS(th models.Thread) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	floor := s.lastTS[th.ID]
	if floor == 0 && th.LastMessage != nil {
		floor = th.LastMessage.TS
	}
	ts := time.Now().UTC().UnixNano()
	if ts <= floor {
		ts = floor + 1
	}
	s.lastTS[th.ID] = ts
	return ts
}

// publish hands a committed event to the dispatcher. Called while the
// thread lock is held so event order matches commit order per thread.
func (s *Service) publish(ev models.Event) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(ev)
}

// CreateThread validates and persists a new thread record. Unread
// counters start at zero for every participant.
func (s *Service) CreateThread(th models.Thread) (models.Thread, error) {
	if th.ID == "" {
		th.ID = utils.GenThreadID()
	}
	if err := validation.ValidateThread(th); err != nil {
		return models.Thread{}, err
	}
	now := time.Now().UTC().UnixNano()
	if th.CreatedTS == 0 {
		th.CreatedTS = now
	}
	th.UpdatedTS = th.CreatedTS
	th.IsGroup = th.IsGroup || len(th.Participants) > 2
	th.Unread = make(map[string]int, len(th.Participants))
	for _, p := range th.Participants {
		th.Unread[p] = 0
	}
	th.LastMessage = nil
	th.Pinned = nil
	if err := store.SaveThread(th); err != nil {
		return models.Thread{}, err
	}
	logger.Info("thread_created", "thread", th.ID, "participants", len(th.Participants), "group", th.IsGroup)
	return th, nil
}

// GetThread returns the thread record.
func (s *Service) GetThread(threadID string) (models.Thread, error) {
	return store.GetThread(threadID)
}

// ListThreadsFor returns the non-deleted threads user participates in.
func (s *Service) ListThreadsFor(user string) ([]models.Thread, error) {
	all, err := store.ListThreads()
	if err != nil {
		return nil, err
	}
	var out []models.Thread
	for _, th := range all {
		if th.Deleted {
			continue
		}
		if th.HasParticipant(user) {
			out = append(out, th)
		}
	}
	return out, nil
}

// Messages returns a thread's messages in server timestamp order.
// sinceTS > 0 returns only messages after that timestamp (resync path).
func (s *Service) Messages(threadID string, sinceTS int64, limit int) ([]models.Message, error) {
	if _, err := store.GetThread(threadID); err != nil {
		return nil, err
	}
	return store.ListMessages(threadID, sinceTS, limit)
}

// Versions returns the stored versions of a message, oldest first.
func (s *Service) Versions(msgID string) ([]models.Message, error) {
	return store.ListMessageVersions(msgID)
}

// DeleteThread soft-deletes a thread: the record is marked deleted and a
// tombstone event message is appended so clients observe the deletion in
// log order. Only a participant or an admin may delete.
func (s *Service) DeleteThread(threadID, actor string, isAdmin bool) error {
	l := s.lockThread(threadID)
	l.Lock()
	defer l.Unlock()

	th, err := store.GetThread(threadID)
	if err != nil {
		return err
	}
	if th.Deleted {
		return nil
	}
	if !isAdmin && !th.HasParticipant(actor) {
		return store.ErrNotAuthorOrAdmin
	}
	ts := s.nextTS(th)
	th.Deleted = true
	th.DeletedTS = ts
	th.UpdatedTS = ts
	tomb := models.Message{
		ID:        utils.GenID(),
		Thread:    threadID,
		Sender:    actor,
		TS:        ts,
		Deleted:   true,
		DeletedTS: ts,
	}
	th.LastMessage = &tomb
	if err := store.CommitMessage(tomb, true, &th); err != nil {
		return err
	}
	s.publish(models.Event{Type: models.EventThreadDeleted, Thread: threadID, User: actor, TS: ts})
	logger.Info("thread_soft_deleted", "thread", threadID, "actor", actor)
	return nil
}
