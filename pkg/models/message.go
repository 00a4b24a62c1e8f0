package models

// MessageType enumerates the supported content kinds.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageAudio MessageType = "audio"
	MessageFile  MessageType = "file"
)

// Attachment describes a single file attached to a message.
type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// EditEntry is one prior content snapshot kept when a message is edited.
type EditEntry struct {
	Content string `json:"content"`
	TS      int64  `json:"ts"`
}

type Message struct {
	ID     string `json:"id"`
	Thread string `json:"thread"`
	Sender string `json:"sender"`
	// TS is the server-assigned timestamp (ns); it is the ordering
	// authority within a thread. Client clocks are ignored.
	TS      int64       `json:"ts"`
	Content string      `json:"content,omitempty"`
	Type    MessageType `json:"type,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`

	// SeenBy grows monotonically; entries are never removed.
	SeenBy []string `json:"seen_by,omitempty"`
	// Reactions maps user id -> reaction symbol. Last write per user wins;
	// no history is kept for reactions (unlike edits).
	Reactions map[string]string `json:"reactions,omitempty"`

	// ForwardedFrom is the origin message id when this message was forwarded.
	ForwardedFrom string `json:"forwarded_from,omitempty"`

	IsEdited bool  `json:"is_edited,omitempty"`
	EditedAt int64 `json:"edited_at,omitempty"`
	// EditHistory is append-only and ordered; the pre-edit content is
	// always appended before new content replaces it, so the original
	// text is never lost.
	EditHistory []EditEntry `json:"edit_history,omitempty"`

	// Deleted marks a tombstone: content is blanked but id/sender/ts are
	// retained so ordering and counts stay consistent.
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty"`
}

// HasContent reports whether the message carries any content or attachments.
func (m Message) HasContent() bool {
	return m.Content != "" || len(m.Attachments) > 0
}

// SeenByUser reports whether user is already in the seen set.
func (m Message) SeenByUser(user string) bool {
	for _, u := range m.SeenBy {
		if u == user {
			return true
		}
	}
	return false
}
