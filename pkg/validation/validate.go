package validation

import (
	"errors"
	"fmt"
	"strings"

	"chatcore/pkg/models"
)

// Rules holds configurable limits applied before any state mutation.
// Zero values fall back to the defaults below.
type Rules struct {
	MaxContentLen   int
	MaxAttachments  int
	MaxReactionLen  int
	MaxParticipants int
	AllowedTypes    []string
}

var rules = Rules{
	MaxContentLen:   64 * 1024,
	MaxAttachments:  16,
	MaxReactionLen:  64,
	MaxParticipants: 512,
}

func SetRules(r Rules) {
	if r.MaxContentLen <= 0 {
		r.MaxContentLen = 64 * 1024
	}
	if r.MaxAttachments <= 0 {
		r.MaxAttachments = 16
	}
	if r.MaxReactionLen <= 0 {
		r.MaxReactionLen = 64
	}
	if r.MaxParticipants <= 0 {
		r.MaxParticipants = 512
	}
	rules = r
}

// ValidateMessage checks structural limits on an incoming message. It does
// not check thread membership; the store owns that invariant.
func ValidateMessage(m models.Message) error {
	var errs []string
	if m.Sender == "" {
		errs = append(errs, "sender is required")
	}
	if len(m.Content) > rules.MaxContentLen {
		errs = append(errs, fmt.Sprintf("content exceeds %d bytes", rules.MaxContentLen))
	}
	if len(m.Attachments) > rules.MaxAttachments {
		errs = append(errs, fmt.Sprintf("too many attachments: %d > %d", len(m.Attachments), rules.MaxAttachments))
	}
	for _, a := range m.Attachments {
		if a.URL == "" {
			errs = append(errs, "attachment url is required")
			break
		}
	}
	if m.Type != "" && !typeAllowed(string(m.Type)) {
		errs = append(errs, "invalid message type: "+string(m.Type))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateThread checks a thread record before it is persisted.
func ValidateThread(t models.Thread) error {
	if len(t.Participants) < 2 {
		return errors.New("thread requires at least two participants")
	}
	if len(t.Participants) > rules.MaxParticipants {
		return fmt.Errorf("too many participants: %d > %d", len(t.Participants), rules.MaxParticipants)
	}
	seen := make(map[string]struct{}, len(t.Participants))
	for _, p := range t.Participants {
		if p == "" {
			return errors.New("empty participant id")
		}
		if _, dup := seen[p]; dup {
			return errors.New("duplicate participant: " + p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// ValidateReaction checks a reaction symbol. Symbols are opaque strings;
// only emptiness and length are enforced.
func ValidateReaction(symbol string) error {
	if symbol == "" {
		return errors.New("empty reaction symbol")
	}
	if len(symbol) > rules.MaxReactionLen {
		return fmt.Errorf("reaction symbol exceeds %d bytes", rules.MaxReactionLen)
	}
	return nil
}

func typeAllowed(t string) bool {
	if len(rules.AllowedTypes) == 0 {
		switch models.MessageType(t) {
		case models.MessageText, models.MessageImage, models.MessageVideo, models.MessageAudio, models.MessageFile:
			return true
		}
		return false
	}
	for _, a := range rules.AllowedTypes {
		if a == t {
			return true
		}
	}
	return false
}
