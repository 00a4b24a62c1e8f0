package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"chatcore/pkg/logger"
	"chatcore/pkg/models"
)

var db *pebble.DB

// verSeq breaks ties between versions written within the same nanosecond.
var verSeq uint64

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// CommitMessage writes a message's log entry and latest pointer, and a
// version record when withVersion is set. If th is non-nil the thread
// record is written in the same atomic batch so the aggregate can never
// diverge from the log on a crash.
func CommitMessage(m models.Message, withVersion bool, th *models.Thread) error {
	if db == nil {
		return ErrStorageUnavailable
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	lk, err := msgKey(m.Thread, m.TS, m.ID)
	if err != nil {
		return err
	}
	wb := new(pebble.Batch)
	_ = wb.Set(lk, data, pebble.NoSync)
	_ = wb.Set(latestKey(m.ID), data, pebble.NoSync)
	if withVersion {
		now := time.Now().UTC().UnixNano()
		vk, verr := versionKey(m.ID, now, atomic.AddUint64(&verSeq, 1))
		if verr != nil {
			return verr
		}
		_ = wb.Set(vk, data, pebble.NoSync)
	}
	if th != nil {
		tb, merr := json.Marshal(th)
		if merr != nil {
			return fmt.Errorf("failed to marshal thread: %w", merr)
		}
		_ = wb.Set(threadMetaKey(th.ID), tb, pebble.NoSync)
	}
	if err := db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("commit_message_failed", "thread", m.Thread, "msg_id", m.ID, "error", err)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	logger.Debug("message_committed", "thread", m.Thread, "msg_id", m.ID, "versioned", withVersion)
	msgWrites.Inc()
	return nil
}

// CommitSeen rewrites the given messages (seen sets already updated by
// the caller), advances the reader's marker and stores the refreshed
// thread record, all in one batch.
func CommitSeen(th models.Thread, reader string, marker int64, msgs []models.Message) error {
	if db == nil {
		return ErrStorageUnavailable
	}
	wb := new(pebble.Batch)
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		lk, err := msgKey(m.Thread, m.TS, m.ID)
		if err != nil {
			return err
		}
		_ = wb.Set(lk, data, pebble.NoSync)
		_ = wb.Set(latestKey(m.ID), data, pebble.NoSync)
	}
	_ = wb.Set(readMarkerKey(th.ID, reader), []byte(strconv.FormatInt(marker, 10)), pebble.NoSync)
	tb, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	_ = wb.Set(threadMetaKey(th.ID), tb, pebble.NoSync)
	if err := db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("commit_seen_failed", "thread", th.ID, "reader", reader, "error", err)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// GetLatestMessage returns the current version for a message ID.
func GetLatestMessage(msgID string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, ErrStorageUnavailable
	}
	v, closer, err := db.Get(latestKey(msgID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return m, ErrMessageNotFound
		}
		return m, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid stored message %s: %w", msgID, err)
	}
	return m, nil
}

// ListMessages returns messages for a thread in server timestamp order.
// sinceTS, when > 0, skips messages with TS <= sinceTS (resync path).
// limit, when > 0, caps the result count.
func ListMessages(threadID string, sinceTS int64, limit int) ([]models.Message, error) {
	if db == nil {
		return nil, ErrStorageUnavailable
	}
	prefix := msgPrefix(threadID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer iter.Close()
	var out []models.Message
	start := prefix
	if sinceTS > 0 {
		// seek past every entry at or below the marker
		start = []byte(fmt.Sprintf("thread:%s:msg:%020d.", threadID, sinceTS))
	}
	for iter.SeekGE(start); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Error("list_messages_invalid_json", "thread", threadID, "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// ListMessageVersions returns all stored versions for a message ID in
// chronological order. The first entry is the original content.
func ListMessageVersions(msgID string) ([]models.Message, error) {
	if db == nil {
		return nil, ErrStorageUnavailable
	}
	prefix := versionPrefix(msgID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid stored version of %s: %w", msgID, err)
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, ErrMessageNotFound
	}
	return out, iter.Error()
}

// SaveThread stores the thread record under its reserved key.
func SaveThread(th models.Thread) error {
	if db == nil {
		return ErrStorageUnavailable
	}
	data, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	if err := db.Set(threadMetaKey(th.ID), data, pebble.Sync); err != nil {
		logger.Error("save_thread_failed", "thread", th.ID, "error", err)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	logger.Info("thread_saved", "thread", th.ID)
	return nil
}

// GetThread returns the stored thread record for a given thread ID.
func GetThread(threadID string) (models.Thread, error) {
	var th models.Thread
	if db == nil {
		return th, ErrStorageUnavailable
	}
	v, closer, err := db.Get(threadMetaKey(threadID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return th, ErrThreadNotFound
		}
		return th, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &th); err != nil {
		return th, fmt.Errorf("invalid stored thread %s: %w", threadID, err)
	}
	return th, nil
}

// ListThreads returns all saved thread records.
func ListThreads() ([]models.Thread, error) {
	if db == nil {
		return nil, ErrStorageUnavailable
	}
	prefix := []byte("thread:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer iter.Close()
	var out []models.Thread
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var th models.Thread
		if err := json.Unmarshal(iter.Value(), &th); err != nil {
			logger.Error("list_threads_invalid_json", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, th)
	}
	return out, iter.Error()
}

// GetReadMarker returns the reader's last-read server timestamp for a
// thread, or 0 when the reader has never marked anything seen.
func GetReadMarker(threadID, userID string) (int64, error) {
	if db == nil {
		return 0, ErrStorageUnavailable
	}
	v, closer, err := db.Get(readMarkerKey(threadID, userID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer closer.Close()
	ts, perr := strconv.ParseInt(string(v), 10, 64)
	if perr != nil {
		return 0, fmt.Errorf("invalid read marker for %s/%s: %w", threadID, userID, perr)
	}
	return ts, nil
}

// ListReadMarkers returns every participant's read marker for a thread.
func ListReadMarkers(threadID string) (map[string]int64, error) {
	if db == nil {
		return nil, ErrStorageUnavailable
	}
	prefix := readMarkerPrefix(threadID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer iter.Close()
	out := map[string]int64{}
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		user := string(iter.Key()[len(prefix):])
		if ts, perr := strconv.ParseInt(string(iter.Value()), 10, 64); perr == nil {
			out[user] = ts
		}
	}
	return out, iter.Error()
}
