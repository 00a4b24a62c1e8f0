package models

// MaxPinnedMessages bounds the pinned set per thread.
const MaxPinnedMessages = 50

type Thread struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Participants is the fixed-at-a-time member set; size >= 2.
	Participants []string `json:"participants"`
	IsGroup      bool     `json:"is_group,omitempty"`

	// LastMessage is a denormalized copy of the newest message. It is a
	// derived projection of the message log, recomputable on demand.
	LastMessage *Message `json:"last_message,omitempty"`

	// Unread maps participant -> count of messages they have not seen.
	// Maintained incrementally for O(1) reads; never negative.
	Unread map[string]int `json:"unread,omitempty"`

	// Pinned is an ordered set of message ids, bounded by MaxPinnedMessages.
	Pinned []string `json:"pinned,omitempty"`

	CreatedTS int64 `json:"created_ts,omitempty"`
	UpdatedTS int64 `json:"updated_ts,omitempty"`

	// Deleted marks a thread as soft-deleted; DeletedTS records when (ns).
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty"`
}

// HasParticipant reports whether user belongs to the thread.
func (t Thread) HasParticipant(user string) bool {
	for _, p := range t.Participants {
		if p == user {
			return true
		}
	}
	return false
}

// IsPinned reports whether the message id is currently pinned.
func (t Thread) IsPinned(msgID string) bool {
	for _, id := range t.Pinned {
		if id == msgID {
			return true
		}
	}
	return false
}
