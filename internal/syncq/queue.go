package syncq

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// PendingAction is a deferred network call captured while the origin was
// unreachable. It survives restarts and is deleted only once replayed.
type PendingAction struct {
	ID          string
	Method      string
	URL         string
	Header      http.Header
	Body        []byte
	Attempts    int
	NextAttempt time.Time
	CreatedAt   time.Time
}

const actionPrefix = "a|"

// Queue is a durable FIFO of pending actions on leveldb. Keys are ordered
// by creation time so iteration drains oldest first.
type Queue struct {
	db *leveldb.DB
}

func Open(path string) (*Queue, error) {
	if path == "" {
		return nil, errors.New("sync queue path is empty")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open sync queue: %w", err)
	}
	return &Queue{db: db}, nil
}

func (q *Queue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

func (q *Queue) Enqueue(action PendingAction) (PendingAction, error) {
	if q == nil || q.db == nil {
		return PendingAction{}, errors.New("sync queue not initialized")
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.NextAttempt.IsZero() {
		action.NextAttempt = action.CreatedAt
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(action); err != nil {
		return PendingAction{}, fmt.Errorf("encode action: %w", err)
	}
	if err := q.db.Put(q.key(action), buf.Bytes(), nil); err != nil {
		return PendingAction{}, fmt.Errorf("persist action: %w", err)
	}
	return action, nil
}

func (q *Queue) Update(action PendingAction) error {
	if q == nil || q.db == nil {
		return errors.New("sync queue not initialized")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(action); err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	return q.db.Put(q.key(action), buf.Bytes(), nil)
}

func (q *Queue) Remove(action PendingAction) error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Delete(q.key(action), nil)
}

// Pending returns all queued actions in creation order.
func (q *Queue) Pending() ([]PendingAction, error) {
	if q == nil || q.db == nil {
		return nil, nil
	}
	iter := q.db.NewIterator(util.BytesPrefix([]byte(actionPrefix)), nil)
	defer iter.Release()

	var actions []PendingAction
	for iter.Next() {
		var action PendingAction
		if err := gob.NewDecoder(bytes.NewReader(iter.Value())).Decode(&action); err != nil {
			// Skip undecodable records; they can never replay.
			_ = q.db.Delete(append([]byte(nil), iter.Key()...), nil)
			continue
		}
		actions = append(actions, action)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return actions, nil
}

func (q *Queue) Len() (int, error) {
	actions, err := q.Pending()
	if err != nil {
		return 0, err
	}
	return len(actions), nil
}

func (q *Queue) key(action PendingAction) []byte {
	return []byte(actionPrefix + action.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + action.ID)
}
