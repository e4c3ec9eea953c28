package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertMessage inserts or updates a message (idempotent on owner_id +
// room_id + msg_id). The owning conversation is auto-created first so
// the foreign key invariant always holds. Last-write-wins: a row with a
// newer updated_at is never overwritten by a staler one, and two flags
// are monotonic regardless of timestamps: a deleted-for-everyone
// tombstone is never cleared by a replayed snapshot, and an inbound
// message marked read locally never flips back to unread.
func (db *DB) UpsertMessage(m *Message) error {
	if m.OwnerID == "" || m.RoomID == "" || m.MsgID == "" {
		return fmt.Errorf("upsert message: owner_id, room_id and msg_id are required")
	}
	if m.UpdatedAt == 0 {
		m.UpdatedAt = m.Timestamp
	}
	if err := db.EnsureConversation(m.OwnerID, m.RoomID, m.Timestamp); err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (owner_id, room_id, msg_id, sender_id, receiver_id, kind, body,
			translations, reply_to_msg_id, from_me, status, is_edit, is_pinned,
			deleted_for_everyone, timestamp, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, room_id, msg_id) DO UPDATE SET
			sender_id = excluded.sender_id,
			receiver_id = excluded.receiver_id,
			kind = excluded.kind,
			body = excluded.body,
			translations = excluded.translations,
			reply_to_msg_id = excluded.reply_to_msg_id,
			from_me = excluded.from_me,
			status = CASE WHEN messages.status = 'read' AND excluded.from_me = 0
				THEN 'read' ELSE excluded.status END,
			is_edit = excluded.is_edit,
			is_pinned = excluded.is_pinned,
			deleted_for_everyone = MAX(messages.deleted_for_everyone, excluded.deleted_for_everyone),
			timestamp = excluded.timestamp,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= messages.updated_at`,
		m.OwnerID, m.RoomID, m.MsgID, m.SenderID, m.ReceiverID, string(m.Kind), m.Body,
		marshalTranslations(m.Translations), m.ReplyToMsgID, m.FromMe, string(m.Status),
		m.IsEdit, m.IsPinned, m.DeletedForEveryone, m.Timestamp, m.UpdatedAt, now)
	return err
}

const messageSelect = `
	SELECT room_id, msg_id, sender_id, receiver_id, kind, body, translations, reply_to_msg_id,
		from_me, status, is_edit, is_pinned, deleted_for_everyone, timestamp, updated_at
	FROM messages`

// ListMessages returns one page of the room's messages visible to the
// owner, in chronological order. Paging walks newest-first with
// limit/offset so infinite-scroll-up loads older pages; the fetched page
// is reversed before returning. Tombstoned messages are filtered out.
func (db *DB) ListMessages(ownerID, roomID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(messageSelect+`
		WHERE owner_id = ? AND room_id = ? AND deleted_for_everyone = 0
			AND NOT EXISTS (SELECT 1 FROM message_tombstones t
				WHERE t.owner_id = messages.owner_id AND t.msg_id = messages.msg_id AND t.user_id = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`,
		ownerID, roomID, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows, ownerID)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest-first fetch, chronological return.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetMessage returns a message regardless of tombstone state (the
// reconciler needs deleted rows for idempotent replay), or nil if absent.
func (db *DB) GetMessage(ownerID, roomID, msgID string) (*Message, error) {
	row := db.QueryRow(messageSelect+` WHERE owner_id = ? AND room_id = ? AND msg_id = ?`,
		ownerID, roomID, msgID)
	m, err := scanMessage(row, ownerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanMessage(r rowScanner, ownerID string) (*Message, error) {
	var m Message
	var kind, status, translations string
	if err := r.Scan(&m.RoomID, &m.MsgID, &m.SenderID, &m.ReceiverID, &kind, &m.Body,
		&translations, &m.ReplyToMsgID, &m.FromMe, &status, &m.IsEdit, &m.IsPinned,
		&m.DeletedForEveryone, &m.Timestamp, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.OwnerID = ownerID
	m.Kind = MessageKind(kind)
	m.Status = MessageStatus(status)
	var err error
	if m.Translations, err = unmarshalTranslations(translations); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageStatus sets the lifecycle status of a message. msg_id is
// client-generated and globally unique, so no room qualifier is needed.
func (db *DB) UpdateMessageStatus(ownerID, msgID string, status MessageStatus) error {
	_, err := db.Exec(`
		UPDATE messages SET status = ?, updated_at = ?
		WHERE owner_id = ? AND msg_id = ?`,
		string(status), time.Now().UnixMilli(), ownerID, msgID)
	return err
}

// MarkRoomRead marks every unread inbound message in the room as read
// and returns how many rows changed.
func (db *DB) MarkRoomRead(ownerID, roomID string) (int64, error) {
	res, err := db.Exec(`
		UPDATE messages SET status = 'read', updated_at = ?
		WHERE owner_id = ? AND room_id = ? AND from_me = 0 AND status != 'read'`,
		time.Now().UnixMilli(), ownerID, roomID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TombstoneForUser suppresses a message for one viewer only. The row is
// kept so snapshot replay stays idempotent. Re-applying the same
// tombstone is a no-op.
func (db *DB) TombstoneForUser(ownerID, msgID, userID string, ts int64) error {
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO message_tombstones (owner_id, msg_id, user_id, ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, msg_id, user_id) DO NOTHING`,
		ownerID, msgID, userID, ts)
	return err
}

// TombstoneForEveryone suppresses a message for all viewers. The flag is
// monotonic: once set it survives any later snapshot replay.
func (db *DB) TombstoneForEveryone(ownerID, msgID string, ts int64) error {
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		UPDATE messages SET deleted_for_everyone = 1, updated_at = MAX(updated_at, ?)
		WHERE owner_id = ? AND msg_id = ?`,
		ts, ownerID, msgID)
	return err
}

// TombstonedUsers returns the user ids a message is suppressed for.
func (db *DB) TombstonedUsers(ownerID, msgID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT user_id FROM message_tombstones WHERE owner_id = ? AND msg_id = ? ORDER BY user_id`,
		ownerID, msgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// deleteChunk bounds how many message ids one cascade statement touches.
const deleteChunk = 200

// DeleteMessages physically removes messages and their dependent rows.
// Used for cascades and storage reclaim, not for user-facing deletes
// (those are tombstones). Processes ids in bounded chunks.
func (db *DB) DeleteMessages(ownerID string, msgIDs []string) error {
	for start := 0; start < len(msgIDs); start += deleteChunk {
		end := min(start+deleteChunk, len(msgIDs))
		if err := db.deleteMessageChunk(ownerID, msgIDs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) deleteMessageChunk(ownerID string, msgIDs []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := ""
	args := make([]any, 0, len(msgIDs)+1)
	args = append(args, ownerID)
	for i, id := range msgIDs {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, id)
	}

	for _, table := range []string{"attachments", "receipts", "reactions", "message_tombstones", "messages"} {
		if _, err := tx.Exec(
			`DELETE FROM `+table+` WHERE owner_id = ? AND msg_id IN (`+placeholders+`)`,
			args...); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}
