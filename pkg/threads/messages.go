package threads

import (
	"time"

	"chatcore/pkg/logger"
	"chatcore/pkg/models"
	"chatcore/pkg/store"
	"chatcore/pkg/utils"
	"chatcore/pkg/validation"
)

// AppendInput carries the client-supplied parts of a new message. The
// server assigns id and timestamp; client clocks are never trusted.
type AppendInput struct {
	Thread        string
	Sender        string
	Content       string
	Type          models.MessageType
	Attachments   []models.Attachment
	ForwardedFrom string
}

// Append validates and commits a new message, updates the thread
// aggregate atomically with the log write, publishes MessageCreated and
// signals the notifier for offline recipients.
func (s *Service) Append(in AppendInput) (models.Message, error) {
	l := s.lockThread(in.Thread)
	l.Lock()
	defer l.Unlock()

	th, err := store.GetThread(in.Thread)
	if err != nil {
		return models.Message{}, err
	}
	if th.Deleted {
		return models.Message{}, store.ErrThreadNotFound
	}
	if !th.HasParticipant(in.Sender) {
		return models.Message{}, store.ErrInvalidParticipant
	}
	if in.Content == "" && len(in.Attachments) == 0 {
		return models.Message{}, store.ErrEmptyContent
	}
	typ := in.Type
	if typ == "" {
		typ = models.MessageText
	}
	m := models.Message{
		ID:            utils.GenID(),
		Thread:        in.Thread,
		Sender:        in.Sender,
		Content:       in.Content,
		Type:          typ,
		Attachments:   in.Attachments,
		ForwardedFrom: in.ForwardedFrom,
	}
	if err := validation.ValidateMessage(m); err != nil {
		return models.Message{}, err
	}
	m.TS = s.nextTS(th)

	// aggregate update, committed in the same batch as the log entry
	th.LastMessage = &m
	th.UpdatedTS = m.TS
	if th.Unread == nil {
		th.Unread = map[string]int{}
	}
	for _, p := range th.Participants {
		if p != in.Sender {
			th.Unread[p]++
		}
	}
	if err := store.CommitMessage(m, true, &th); err != nil {
		return models.Message{}, err
	}
	s.publish(models.Event{Type: models.EventMessageCreated, Thread: m.Thread, User: m.Sender, TS: m.TS, Message: &m})
	s.notifyOffline(th, m)
	logger.Info("message_appended", "thread", m.Thread, "msg_id", m.ID, "sender", m.Sender)
	return m, nil
}

// Edit replaces a message's content, appending the prior content to the
// edit history. Only the author may edit; tombstones cannot be edited.
// The message keeps its ordering position.
func (s *Service) Edit(msgID, editor, newContent string) (models.Message, error) {
	m0, err := store.GetLatestMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	l := s.lockThread(m0.Thread)
	l.Lock()
	defer l.Unlock()

	// re-read under the lock; a concurrent edit or delete may have won
	m, err := store.GetLatestMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	if m.Sender != editor {
		return models.Message{}, store.ErrNotAuthor
	}
	if m.Deleted {
		return models.Message{}, store.ErrMessageDeleted
	}
	if newContent == "" {
		return models.Message{}, store.ErrEmptyContent
	}
	prevTS := m.TS
	if m.IsEdited {
		prevTS = m.EditedAt
	}
	m.EditHistory = append(m.EditHistory, models.EditEntry{Content: m.Content, TS: prevTS})
	m.Content = newContent
	m.IsEdited = true
	m.EditedAt = time.Now().UTC().UnixNano()

	th, thPtr, err := s.refreshLastMessage(m)
	if err != nil {
		return models.Message{}, err
	}
	if err := store.CommitMessage(m, true, thPtr); err != nil {
		return models.Message{}, err
	}
	s.publish(models.Event{Type: models.EventMessageEdited, Thread: m.Thread, User: editor, TS: m.TS, Message: &m})
	logger.Info("message_edited", "thread", th.ID, "msg_id", m.ID, "editor", editor)
	return m, nil
}

// React sets the user's reaction on a message, or clears it when symbol
// is empty. Last write per (message, user) wins; reactions keep no
// history.
func (s *Service) React(msgID, user, symbol string) (models.Message, error) {
	m0, err := store.GetLatestMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	l := s.lockThread(m0.Thread)
	l.Lock()
	defer l.Unlock()

	m, err := store.GetLatestMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	if m.Deleted {
		return models.Message{}, store.ErrMessageDeleted
	}
	th, err := store.GetThread(m.Thread)
	if err != nil {
		return models.Message{}, err
	}
	if !th.HasParticipant(user) {
		return models.Message{}, store.ErrInvalidParticipant
	}
	if symbol == "" {
		if m.Reactions == nil {
			return m, nil
		}
		delete(m.Reactions, user)
	} else {
		if err := validation.ValidateReaction(symbol); err != nil {
			return models.Message{}, err
		}
		if m.Reactions == nil {
			m.Reactions = map[string]string{}
		}
		m.Reactions[user] = symbol
	}
	_, thPtr, err := s.refreshLastMessage(m)
	if err != nil {
		return models.Message{}, err
	}
	if err := store.CommitMessage(m, false, thPtr); err != nil {
		return models.Message{}, err
	}
	s.publish(models.Event{Type: models.EventReaction, Thread: m.Thread, User: user, TS: m.TS, Message: &m})
	return m, nil
}

// Delete soft-deletes a message: content and attachments are blanked and
// the record becomes a tombstone, keeping id, sender and timestamp so
// ordering and counts stay consistent. Author or admin only.
func (s *Service) Delete(msgID, actor string, isAdmin bool) (models.Message, error) {
	m0, err := store.GetLatestMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	l := s.lockThread(m0.Thread)
	l.Lock()
	defer l.Unlock()

	m, err := store.GetLatestMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	if m.Deleted {
		return models.Message{}, store.ErrMessageDeleted
	}
	if m.Sender != actor && !isAdmin {
		return models.Message{}, store.ErrNotAuthorOrAdmin
	}
	m.Content = ""
	m.Attachments = nil
	m.Reactions = nil
	m.Deleted = true
	m.DeletedTS = time.Now().UTC().UnixNano()

	_, thPtr, err := s.refreshLastMessage(m)
	if err != nil {
		return models.Message{}, err
	}
	if err := store.CommitMessage(m, true, thPtr); err != nil {
		return models.Message{}, err
	}
	s.publish(models.Event{Type: models.EventMessageDeleted, Thread: m.Thread, User: actor, TS: m.TS, Message: &m})
	logger.Info("message_deleted", "thread", m.Thread, "msg_id", m.ID, "actor", actor)
	return m, nil
}

// refreshLastMessage reloads the thread and, when the mutated message is
// the thread's newest, returns a thread pointer carrying the refreshed
// denormalized copy so it is committed alongside the message. Caller
// must hold the thread lock.
func (s *Service) refreshLastMessage(m models.Message) (models.Thread, *models.Thread, error) {
	th, err := store.GetThread(m.Thread)
	if err != nil {
		return models.Thread{}, nil, err
	}
	if th.LastMessage != nil && th.LastMessage.ID == m.ID {
		th.LastMessage = &m
		return th, &th, nil
	}
	return th, nil, nil
}

// notifyOffline hands the new message to the notifier for every
// participant that is neither the sender nor currently online.
func (s *Service) notifyOffline(th models.Thread, m models.Message) {
	if s.notifier == nil {
		return
	}
	var offline []string
	for _, p := range th.Participants {
		if p == m.Sender {
			continue
		}
		if s.presence != nil && s.presence.IsOnline(p) {
			continue
		}
		offline = append(offline, p)
	}
	if len(offline) == 0 {
		return
	}
	s.notifier.MessageForOffline(th, m, offline)
}
