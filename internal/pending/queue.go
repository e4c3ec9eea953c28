// Package pending holds the durable offline-mutation queue and the
// replayer that drains it against the remote store once connectivity
// returns.
package pending

import (
	"encoding/json"
	"fmt"

	"github.com/chatsyncd/chatsync/internal/store"
)

// Queue is the owner-scoped view over the durable pending_actions
// table. Enqueue commits before returning; global enqueue order is
// preserved for replay.
type Queue struct {
	db      *store.DB
	ownerID string
}

// NewQueue creates a queue for one owner account.
func NewQueue(db *store.DB, ownerID string) *Queue {
	return &Queue{db: db, ownerID: ownerID}
}

// Enqueue durably appends an action. payload is marshaled to JSON; nil
// records an empty object.
func (q *Queue) Enqueue(typ store.ActionType, roomID, msgID string, payload any) (*store.PendingAction, error) {
	body := "{}"
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal action payload: %w", err)
		}
		body = string(b)
	}
	a := &store.PendingAction{
		OwnerID: q.ownerID,
		Type:    typ,
		RoomID:  roomID,
		MsgID:   msgID,
		Payload: body,
	}
	if err := q.db.EnqueueAction(a); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", typ, err)
	}
	return a, nil
}

// PeekAll returns every queued action in enqueue order.
func (q *Queue) PeekAll() ([]store.PendingAction, error) {
	return q.db.PendingActions(q.ownerID)
}

// Dequeue removes an action after remote acknowledgment (or permanent
// failure).
func (q *Queue) Dequeue(id int64) error {
	return q.db.DeleteAction(id)
}

// Clear drops all queued actions for the owner.
func (q *Queue) Clear() error {
	return q.db.ClearActions(q.ownerID)
}

// Len reports how many actions are queued.
func (q *Queue) Len() (int, error) {
	actions, err := q.PeekAll()
	if err != nil {
		return 0, err
	}
	return len(actions), nil
}
