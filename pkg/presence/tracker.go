package presence

import (
	"context"
	"sync"
	"time"

	"chatcore/pkg/logger"
	"chatcore/pkg/models"
)

// Publisher receives presence transition events.
type Publisher interface {
	Publish(ev models.Event)
}

// connState tracks one live connection's latest liveness signal.
type connState struct {
	lastBeat time.Time
}

// userState collapses all of a user's connections into one presence
// record: online iff at least one connection is live.
type userState struct {
	conns    map[string]*connState
	lastSeen int64
}

// Tracker maintains per-user online/offline state driven by connection
// lifecycle. Ungraceful disconnects are detected by heartbeat timeout;
// lastSeen is stamped with the last received heartbeat, not the
// detection time, so it approximates true last activity.
type Tracker struct {
	mu    sync.Mutex
	users map[string]*userState
	ttl   time.Duration
	pub   Publisher
}

// NewTracker creates a tracker with the given heartbeat timeout. A
// non-positive ttl falls back to 45 seconds.
func NewTracker(ttl time.Duration, pub Publisher) *Tracker {
	if ttl <= 0 {
		ttl = 45 * time.Second
	}
	return &Tracker{users: map[string]*userState{}, ttl: ttl, pub: pub}
}

// Connect registers a live connection for the user. The first live
// connection flips the user online.
func (t *Tracker) Connect(user, connID string) {
	now := time.Now().UTC()
	t.mu.Lock()
	u, ok := t.users[user]
	if !ok {
		u = &userState{conns: map[string]*connState{}}
		t.users[user] = u
	}
	wasOnline := len(u.conns) > 0
	u.conns[connID] = &connState{lastBeat: now}
	if ns := now.UnixNano(); ns > u.lastSeen {
		u.lastSeen = ns
	}
	lastSeen := u.lastSeen
	t.mu.Unlock()

	if !wasOnline {
		t.publish(user, models.PresenceOnline, lastSeen)
		logger.Info("user_online", "user", user, "conn", connID)
	}
}

// Disconnect removes a connection. The user stays online while any
// other connection remains live.
func (t *Tracker) Disconnect(user, connID string) {
	now := time.Now().UTC().UnixNano()
	t.mu.Lock()
	u, ok := t.users[user]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(u.conns, connID)
	if now > u.lastSeen {
		u.lastSeen = now
	}
	offline := len(u.conns) == 0
	lastSeen := u.lastSeen
	t.mu.Unlock()

	if offline {
		t.publish(user, models.PresenceOffline, lastSeen)
		logger.Info("user_offline", "user", user, "conn", connID)
	}
}

// Heartbeat records a liveness signal for a connection. Unknown
// connections are re-registered; a reconnecting client is handled the
// same as a fresh one.
func (t *Tracker) Heartbeat(user, connID string) {
	now := time.Now().UTC()
	t.mu.Lock()
	u, ok := t.users[user]
	if !ok || u.conns[connID] == nil {
		t.mu.Unlock()
		t.Connect(user, connID)
		return
	}
	u.conns[connID].lastBeat = now
	if ns := now.UnixNano(); ns > u.lastSeen {
		u.lastSeen = ns
	}
	t.mu.Unlock()
}

// IsOnline reports whether the user has at least one live connection.
func (t *Tracker) IsOnline(user string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.users[user]
	return ok && len(u.conns) > 0
}

// Get returns the user's presence record.
func (t *Tracker) Get(user string) models.Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.users[user]
	if !ok || len(u.conns) == 0 {
		p := models.Presence{User: user, Status: models.PresenceOffline}
		if ok {
			p.LastSeen = u.lastSeen
		}
		return p
	}
	return models.Presence{User: user, Status: models.PresenceOnline, LastSeen: u.lastSeen}
}

// Sweep expires connections whose last heartbeat is older than the
// timeout. Users whose last connection expired transition offline with
// lastSeen set to their final heartbeat time.
func (t *Tracker) Sweep(now time.Time) {
	cutoff := now.Add(-t.ttl)
	type transition struct {
		user     string
		lastSeen int64
	}
	var offline []transition

	t.mu.Lock()
	for user, u := range t.users {
		if len(u.conns) == 0 {
			continue
		}
		for id, c := range u.conns {
			if c.lastBeat.Before(cutoff) {
				if ns := c.lastBeat.UnixNano(); ns > u.lastSeen {
					u.lastSeen = ns
				}
				delete(u.conns, id)
			}
		}
		if len(u.conns) == 0 {
			offline = append(offline, transition{user: user, lastSeen: u.lastSeen})
		}
	}
	t.mu.Unlock()

	for _, tr := range offline {
		t.publish(tr.user, models.PresenceOffline, tr.lastSeen)
		logger.Info("user_offline_timeout", "user", tr.user)
	}
}

// Start runs the heartbeat sweeper until ctx is canceled.
func (t *Tracker) Start(ctx context.Context) {
	interval := t.ttl / 3
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tick.C:
				t.Sweep(now.UTC())
			}
		}
	}()
}

func (t *Tracker) publish(user string, status models.PresenceStatus, lastSeen int64) {
	if t.pub == nil {
		return
	}
	p := models.Presence{User: user, Status: status, LastSeen: lastSeen}
	t.pub.Publish(models.Event{
		Type:     models.EventPresence,
		User:     user,
		TS:       time.Now().UTC().UnixNano(),
		Presence: &p,
	})
}
