package typing

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatcore/pkg/models"
)

// Publisher receives typing start/stop events.
type Publisher interface {
	Publish(ev models.Event)
}

// Registry holds per-(thread, user) typing state in process memory only.
// Entries expire after a bounded window of inactivity, so clients that
// vanish without signaling stop are handled identically to clients that
// do. Reads may be stale for up to the TTL; that is accepted.
type Registry struct {
	mu      sync.Mutex
	threads map[string]map[string]int64 // thread -> user -> expiry (ns)
	ttl     time.Duration
	pub     Publisher
}

// NewRegistry creates a registry with the given expiry window. A
// non-positive ttl falls back to 6 seconds.
func NewRegistry(ttl time.Duration, pub Publisher) *Registry {
	if ttl <= 0 {
		ttl = 6 * time.Second
	}
	return &Registry{threads: map[string]map[string]int64{}, ttl: ttl, pub: pub}
}

// StartTyping records (and refreshes) the user's typing state in a
// thread. A start event is published only on the transition from not
// typing to typing; refreshes are silent.
func (r *Registry) StartTyping(threadID, user string) {
	now := time.Now().UTC()
	r.mu.Lock()
	users, ok := r.threads[threadID]
	if !ok {
		users = map[string]int64{}
		r.threads[threadID] = users
	}
	_, already := users[user]
	users[user] = now.Add(r.ttl).UnixNano()
	r.mu.Unlock()

	if !already {
		r.publish(threadID, user, true, now.UnixNano())
	}
}

// StopTyping clears the user's typing state immediately.
func (r *Registry) StopTyping(threadID, user string) {
	r.mu.Lock()
	users, ok := r.threads[threadID]
	if ok {
		_, present := users[user]
		delete(users, user)
		if len(users) == 0 {
			delete(r.threads, threadID)
		}
		ok = present
	}
	r.mu.Unlock()

	if ok {
		r.publish(threadID, user, false, time.Now().UTC().UnixNano())
	}
}

// Typing returns who is currently typing in a thread, in stable order.
// Entries past their expiry are filtered out even before the sweeper
// removes them.
func (r *Registry) Typing(threadID string) []models.TypingState {
	now := time.Now().UTC().UnixNano()
	r.mu.Lock()
	users := r.threads[threadID]
	out := make([]models.TypingState, 0, len(users))
	for user, expiry := range users {
		if expiry > now {
			out = append(out, models.TypingState{Thread: threadID, User: user, Active: true, TS: expiry})
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

// Sweep removes expired entries, publishing a stop event for each.
// Expiry is the only removal path needed for correctness.
func (r *Registry) Sweep(now time.Time) {
	ns := now.UnixNano()
	type expired struct{ thread, user string }
	var gone []expired

	r.mu.Lock()
	for threadID, users := range r.threads {
		for user, expiry := range users {
			if expiry <= ns {
				delete(users, user)
				gone = append(gone, expired{thread: threadID, user: user})
			}
		}
		if len(users) == 0 {
			delete(r.threads, threadID)
		}
	}
	r.mu.Unlock()

	for _, e := range gone {
		r.publish(e.thread, e.user, false, ns)
	}
}

// Start runs the expiry sweeper until ctx is canceled.
func (r *Registry) Start(ctx context.Context) {
	interval := r.ttl / 2
	if interval < 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}
	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tick.C:
				r.Sweep(now.UTC())
			}
		}
	}()
}

func (r *Registry) publish(threadID, user string, started bool, ts int64) {
	if r.pub == nil {
		return
	}
	r.pub.Publish(models.Event{
		Type:   models.EventTyping,
		Thread: threadID,
		User:   user,
		TS:     ts,
		Typing: &models.TypingState{Thread: threadID, User: user, Active: started, TS: ts},
	})
}
