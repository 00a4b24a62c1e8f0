package fanout

import (
	"sync"
	"sync/atomic"

	"chatcore/pkg/logger"
	"chatcore/pkg/models"
)

// Scope names. A subscription covers one thread or one user.
const (
	ScopeThread = "thread:"
	ScopeUser   = "user:"
)

// ThreadScope builds the subscription scope for a thread id.
func ThreadScope(threadID string) string { return ScopeThread + threadID }

// UserScope builds the subscription scope for a user id.
func UserScope(userID string) string { return ScopeUser + userID }

// Subscription is one delivery channel. Events are pushed best-effort,
// at most once; when the buffer is full the event is dropped for this
// subscription only and counted. The dispatcher keeps no history — a
// reconnecting client must resynchronize via the read API.
type Subscription struct {
	scope string
	ch    chan models.Event
	d     *Dispatcher

	closeOnce sync.Once
	dropped   uint64
}

// Events returns the channel the subscriber ranges over. It is closed
// by Close.
func (s *Subscription) Events() <-chan models.Event { return s.ch }

// Scope returns the scope this subscription covers.
func (s *Subscription) Scope() string { return s.scope }

// Dropped returns how many events were dropped for this subscription.
func (s *Subscription) Dropped() uint64 { return atomic.LoadUint64(&s.dropped) }

// Close detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.d.remove(s)
		close(s.ch)
	})
}

// Dispatcher fans committed state changes out to every subscription
// whose scope includes the affected thread or user. Delivery never
// blocks the committing caller.
type Dispatcher struct {
	mu     sync.RWMutex
	scopes map[string]map[*Subscription]struct{}
	buffer int
}

// NewDispatcher creates a dispatcher whose subscriptions buffer up to
// buffer events each. A non-positive buffer falls back to 256.
func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{scopes: map[string]map[*Subscription]struct{}{}, buffer: buffer}
}

// Subscribe registers a new delivery channel for the given scope.
func (d *Dispatcher) Subscribe(scope string) *Subscription {
	sub := &Subscription{scope: scope, ch: make(chan models.Event, d.buffer), d: d}
	d.mu.Lock()
	set, ok := d.scopes[scope]
	if !ok {
		set = map[*Subscription]struct{}{}
		d.scopes[scope] = set
	}
	set[sub] = struct{}{}
	d.mu.Unlock()
	subscriptions.Inc()
	return sub
}

func (d *Dispatcher) remove(sub *Subscription) {
	d.mu.Lock()
	if set, ok := d.scopes[sub.scope]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(d.scopes, sub.scope)
		}
	}
	d.mu.Unlock()
	subscriptions.Dec()
}

// Publish pushes a copy of the event to every subscription in scope.
// Thread-scoped events reach the thread's subscribers; presence events
// reach the user's watchers. The event carries the server timestamp so
// clients can re-order late arrivals.
func (d *Dispatcher) Publish(ev models.Event) {
	var scopes [2]string
	n := 0
	if ev.Thread != "" {
		scopes[n] = ThreadScope(ev.Thread)
		n++
	}
	if ev.Type == models.EventPresence && ev.User != "" {
		scopes[n] = UserScope(ev.User)
		n++
	}
	if n == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := 0; i < n; i++ {
		for sub := range d.scopes[scopes[i]] {
			select {
			case sub.ch <- ev:
				dispatched.Inc()
			default:
				// slow subscriber: drop this event for this channel only
				atomic.AddUint64(&sub.dropped, 1)
				droppedEvents.Inc()
				logger.Warn("event_dropped", "scope", sub.scope, "type", string(ev.Type))
			}
		}
	}
}
