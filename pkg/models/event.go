package models

// EventType names a committed state change pushed to subscribers.
type EventType string

const (
	EventMessageCreated EventType = "message_created"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventReaction       EventType = "reaction"
	EventSeen           EventType = "seen"
	EventTyping         EventType = "typing"
	EventPresence       EventType = "presence"
	EventThreadDeleted  EventType = "thread_deleted"
)

// Event is an immutable record handed to the fan-out dispatcher after a
// commit. TS carries the server ordering key so clients can re-sort
// events that arrive out of network order.
type Event struct {
	Type   EventType `json:"type"`
	Thread string    `json:"thread,omitempty"`
	User   string    `json:"user,omitempty"`
	TS     int64     `json:"ts"`

	Message  *Message     `json:"message,omitempty"`
	Presence *Presence    `json:"presence,omitempty"`
	Typing   *TypingState `json:"typing,omitempty"`
	// Seen carries the reader and marker for seen-advance events.
	Seen *SeenMarker `json:"seen,omitempty"`
}

// SeenMarker records a participant's read cursor in a thread.
type SeenMarker struct {
	Thread string `json:"thread"`
	User   string `json:"user"`
	// UpTo is the server timestamp (ns) up to which messages are read.
	UpTo int64 `json:"up_to"`
}
