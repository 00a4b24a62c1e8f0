package store

import "errors"

// Sentinel errors for the messaging core. Validation failures are
// returned before any state mutation; partial application is never
// observable.
var (
	ErrInvalidParticipant = errors.New("sender is not a participant of the thread")
	ErrEmptyContent       = errors.New("message has no content or attachments")
	ErrNotAuthor          = errors.New("caller is not the message author")
	ErrNotAuthorOrAdmin   = errors.New("caller is neither the author nor an admin")
	ErrMessageDeleted     = errors.New("message has been deleted")
	ErrPinLimitExceeded   = errors.New("pinned message limit exceeded")
	ErrThreadNotFound     = errors.New("thread not found")
	ErrMessageNotFound    = errors.New("message not found")
	// ErrStorageUnavailable is transient; callers should retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConflict signals a concurrent edit/delete race was lost.
	ErrConflict = errors.New("conflicting concurrent mutation")
)
