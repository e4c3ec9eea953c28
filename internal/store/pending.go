package store

import (
	"fmt"
	"time"
)

// EnqueueAction durably appends a pending action. The row is committed
// before return, so the caller may crash immediately after and still
// find the action on restart. Sets a.ID on success.
func (db *DB) EnqueueAction(a *PendingAction) error {
	if a.OwnerID == "" || a.Type == "" {
		return fmt.Errorf("enqueue action: owner_id and action_type are required")
	}
	if a.EnqueuedAt == 0 {
		a.EnqueuedAt = time.Now().UnixMilli()
	}
	if a.Payload == "" {
		a.Payload = "{}"
	}
	res, err := db.Exec(`
		INSERT INTO pending_actions (owner_id, action_type, room_id, msg_id, payload,
			enqueued_at, retry_count, next_attempt_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.OwnerID, string(a.Type), a.RoomID, a.MsgID, a.Payload,
		a.EnqueuedAt, a.RetryCount, a.NextAttemptAt, a.LastError)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

// PendingActions returns the owner's queued actions in enqueue order.
// Replay depends on this ordering: a mark_read must never run before
// the send_message it follows.
func (db *DB) PendingActions(ownerID string) ([]PendingAction, error) {
	rows, err := db.Query(`
		SELECT id, action_type, room_id, msg_id, payload, enqueued_at, retry_count,
			next_attempt_at, last_error
		FROM pending_actions WHERE owner_id = ?
		ORDER BY id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var actions []PendingAction
	for rows.Next() {
		var a PendingAction
		var typ string
		if err := rows.Scan(&a.ID, &typ, &a.RoomID, &a.MsgID, &a.Payload,
			&a.EnqueuedAt, &a.RetryCount, &a.NextAttemptAt, &a.LastError); err != nil {
			return nil, err
		}
		a.OwnerID = ownerID
		a.Type = ActionType(typ)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// DeleteAction removes an acknowledged or permanently failed action.
func (db *DB) DeleteAction(id int64) error {
	_, err := db.Exec(`DELETE FROM pending_actions WHERE id = ?`, id)
	return err
}

// BumpActionRetry increments the retry counter and schedules the next
// attempt. The action stays in place so replay order is preserved.
func (db *DB) BumpActionRetry(id int64, nextAttemptAt int64, lastError string) error {
	_, err := db.Exec(`
		UPDATE pending_actions
		SET retry_count = retry_count + 1, next_attempt_at = ?, last_error = ?
		WHERE id = ?`,
		nextAttemptAt, lastError, id)
	return err
}

// ClearActions drops every queued action for an owner. This is the only
// operation that empties the queue wholesale; resetting the main store
// never touches it implicitly.
func (db *DB) ClearActions(ownerID string) error {
	_, err := db.Exec(`DELETE FROM pending_actions WHERE owner_id = ?`, ownerID)
	return err
}
