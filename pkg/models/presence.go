package models

// PresenceStatus is the user's real-time connectivity state.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// Presence is the per-user online/offline record. LastSeen is
// monotonically non-decreasing (ns).
type Presence struct {
	User     string         `json:"user"`
	Status   PresenceStatus `json:"status"`
	LastSeen int64          `json:"last_seen,omitempty"`
}

// TypingState reports one user's composing state in a thread. It is
// ephemeral and never durably stored. Active is false on stop/expiry
// events.
type TypingState struct {
	Thread string `json:"thread"`
	User   string `json:"user"`
	Active bool   `json:"active"`
	TS     int64  `json:"ts"`
}
