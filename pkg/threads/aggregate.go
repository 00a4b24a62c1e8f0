package threads

import (
	"chatcore/pkg/logger"
	"chatcore/pkg/models"
	"chatcore/pkg/store"
)

// MarkSeen advances the reader's read marker to upTo (server ns) and adds
// the reader to the seen set of every qualifying message. The marker
// never moves backwards and seen sets never shrink, so the operation is
// idempotent. The reader's unread count is recomputed; other
// participants' counters are untouched.
func (s *Service) MarkSeen(threadID, reader string, upTo int64) (models.Thread, error) {
	l := s.lockThread(threadID)
	l.Lock()
	defer l.Unlock()

	th, err := store.GetThread(threadID)
	if err != nil {
		return models.Thread{}, err
	}
	if !th.HasParticipant(reader) {
		return models.Thread{}, store.ErrInvalidParticipant
	}
	// cap the marker at the newest message so unread reaches zero exactly
	// when the reader has seen the thread's latest message
	if th.LastMessage != nil && upTo > th.LastMessage.TS {
		upTo = th.LastMessage.TS
	}
	prev, err := store.GetReadMarker(threadID, reader)
	if err != nil {
		return models.Thread{}, err
	}
	marker := upTo
	if marker < prev {
		marker = prev
	}

	msgs, err := store.ListMessages(threadID, 0, 0)
	if err != nil {
		return models.Thread{}, err
	}
	var changed []models.Message
	unread := 0
	for _, m := range msgs {
		if m.TS <= marker {
			if !m.SeenByUser(reader) {
				m.SeenBy = append(m.SeenBy, reader)
				changed = append(changed, m)
			}
			continue
		}
		if m.Sender != reader {
			unread++
		}
	}
	if th.Unread == nil {
		th.Unread = map[string]int{}
	}
	th.Unread[reader] = unread

	if err := store.CommitSeen(th, reader, marker, changed); err != nil {
		return models.Thread{}, err
	}
	s.publish(models.Event{
		Type:   models.EventSeen,
		Thread: threadID,
		User:   reader,
		TS:     marker,
		Seen:   &models.SeenMarker{Thread: threadID, User: reader, UpTo: marker},
	})
	logger.Debug("seen_advanced", "thread", threadID, "reader", reader, "marker", marker, "unread", unread)
	return th, nil
}

// MarkSeenMessage marks everything up to and including the given message
// as seen by the reader.
func (s *Service) MarkSeenMessage(msgID, reader string) (models.Thread, error) {
	m, err := store.GetLatestMessage(msgID)
	if err != nil {
		return models.Thread{}, err
	}
	return s.MarkSeen(m.Thread, reader, m.TS)
}

// Pin adds a message to the thread's bounded pinned set. Pinning an
// already-pinned message is a no-op.
func (s *Service) Pin(threadID, actor, msgID string) (models.Thread, error) {
	l := s.lockThread(threadID)
	l.Lock()
	defer l.Unlock()

	th, err := store.GetThread(threadID)
	if err != nil {
		return models.Thread{}, err
	}
	if !th.HasParticipant(actor) {
		return models.Thread{}, store.ErrInvalidParticipant
	}
	if th.IsPinned(msgID) {
		return th, nil
	}
	if len(th.Pinned) >= models.MaxPinnedMessages {
		return models.Thread{}, store.ErrPinLimitExceeded
	}
	m, err := store.GetLatestMessage(msgID)
	if err != nil {
		return models.Thread{}, err
	}
	if m.Thread != threadID {
		return models.Thread{}, store.ErrMessageNotFound
	}
	if m.Deleted {
		return models.Thread{}, store.ErrMessageDeleted
	}
	th.Pinned = append(th.Pinned, msgID)
	if err := store.SaveThread(th); err != nil {
		return models.Thread{}, err
	}
	logger.Info("message_pinned", "thread", threadID, "msg_id", msgID, "actor", actor)
	return th, nil
}

// Unpin removes a message from the pinned set. Unpinning a message that
// is not pinned is a no-op, not an error.
func (s *Service) Unpin(threadID, actor, msgID string) (models.Thread, error) {
	l := s.lockThread(threadID)
	l.Lock()
	defer l.Unlock()

	th, err := store.GetThread(threadID)
	if err != nil {
		return models.Thread{}, err
	}
	if !th.HasParticipant(actor) {
		return models.Thread{}, store.ErrInvalidParticipant
	}
	for i, id := range th.Pinned {
		if id == msgID {
			th.Pinned = append(th.Pinned[:i], th.Pinned[i+1:]...)
			if err := store.SaveThread(th); err != nil {
				return models.Thread{}, err
			}
			break
		}
	}
	return th, nil
}

// Recompute rebuilds a thread's denormalized aggregate (last message and
// unread counters) from the message log and read markers. The aggregate
// is a projection of the log; this is the repair path when the copy is
// in doubt.
func (s *Service) Recompute(threadID string) (models.Thread, error) {
	l := s.lockThread(threadID)
	l.Lock()
	defer l.Unlock()

	th, err := store.GetThread(threadID)
	if err != nil {
		return models.Thread{}, err
	}
	// deleted threads keep their final aggregate; rebuilding would count
	// the deletion tombstone into participants' unread
	if th.Deleted {
		return th, nil
	}
	msgs, err := store.ListMessages(threadID, 0, 0)
	if err != nil {
		return models.Thread{}, err
	}
	markers, err := store.ListReadMarkers(threadID)
	if err != nil {
		return models.Thread{}, err
	}

	th.LastMessage = nil
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		th.LastMessage = &last
		if last.TS > th.UpdatedTS {
			th.UpdatedTS = last.TS
		}
	}
	unread := make(map[string]int, len(th.Participants))
	for _, p := range th.Participants {
		marker := markers[p]
		n := 0
		for _, m := range msgs {
			if m.TS > marker && m.Sender != p {
				n++
			}
		}
		unread[p] = n
	}
	th.Unread = unread
	if err := store.SaveThread(th); err != nil {
		return models.Thread{}, err
	}
	logger.Info("thread_recomputed", "thread", threadID, "messages", len(msgs))
	return th, nil
}

// RecomputeAll runs Recompute over every stored thread. Used by the
// scheduled repair job.
func (s *Service) RecomputeAll() (int, error) {
	all, err := store.ListThreads()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, th := range all {
		if th.Deleted {
			continue
		}
		if _, err := s.Recompute(th.ID); err != nil {
			logger.Error("thread_recompute_failed", "thread", th.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}
