package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertConversation inserts or updates a conversation. A remote record
// older than the cached row loses: the update only applies when
// excluded.updated_at >= the stored one (last-write-wins).
func (db *DB) UpsertConversation(c *Conversation) error {
	if c.OwnerID == "" || c.RoomID == "" {
		return fmt.Errorf("upsert conversation: owner_id and room_id are required")
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = time.Now().UnixMilli()
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = c.UpdatedAt
	}
	_, err := db.Exec(`
		INSERT INTO conversations (owner_id, room_id, kind, title, avatar_ref, members, admin_ids,
			community_id, is_archived, is_pinned, pinned_at, is_locked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, room_id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			avatar_ref = excluded.avatar_ref,
			members = excluded.members,
			admin_ids = excluded.admin_ids,
			community_id = excluded.community_id,
			is_archived = excluded.is_archived,
			is_pinned = excluded.is_pinned,
			pinned_at = excluded.pinned_at,
			is_locked = excluded.is_locked,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= conversations.updated_at`,
		c.OwnerID, c.RoomID, string(c.Kind), c.Title, c.AvatarRef,
		marshalStrings(c.Members), marshalStrings(c.AdminIDs), c.CommunityID,
		c.IsArchived, c.IsPinned, c.PinnedAt, c.IsLocked, c.CreatedAt, c.UpdatedAt)
	return err
}

// EnsureConversation creates a minimal conversation row if none exists,
// so a message upsert never references a missing room.
func (db *DB) EnsureConversation(ownerID, roomID string, ts int64) error {
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO conversations (owner_id, room_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, room_id) DO NOTHING`,
		ownerID, roomID, ts, ts)
	return err
}

// conversationSelect is the shared projection for conversation reads.
// lastMessage* come from the newest message visible to the owner;
// unread_count counts inbound messages not yet marked read, excluding
// tombstoned rows, so it can never drift from the message table.
const conversationSelect = `
	SELECT c.room_id, c.kind, c.title, c.avatar_ref, c.members, c.admin_ids, c.community_id,
		c.is_archived, c.is_pinned, c.pinned_at, c.is_locked, c.created_at, c.updated_at,
		COALESCE(lm.body, ''), COALESCE(lm.kind, ''), COALESCE(lm.timestamp, 0),
		(SELECT COUNT(*) FROM messages m
			WHERE m.owner_id = c.owner_id AND m.room_id = c.room_id
			AND m.from_me = 0 AND m.status != 'read' AND m.deleted_for_everyone = 0
			AND NOT EXISTS (SELECT 1 FROM message_tombstones t
				WHERE t.owner_id = m.owner_id AND t.msg_id = m.msg_id AND t.user_id = ?)) AS unread_count
	FROM conversations c
	LEFT JOIN (
		SELECT ms.owner_id, ms.room_id, ms.body, ms.kind, ms.timestamp,
			ROW_NUMBER() OVER (PARTITION BY ms.owner_id, ms.room_id ORDER BY ms.timestamp DESC) AS rn
		FROM messages ms
		WHERE ms.deleted_for_everyone = 0
			AND NOT EXISTS (SELECT 1 FROM message_tombstones t
				WHERE t.owner_id = ms.owner_id AND t.msg_id = ms.msg_id AND t.user_id = ?)
	) lm ON lm.owner_id = c.owner_id AND lm.room_id = c.room_id AND lm.rn = 1`

// ListConversations returns the owner's conversations with derived
// fields, pinned rooms first (newest pin first), then by last activity.
func (db *DB) ListConversations(ownerID string, includeArchived bool) ([]Conversation, error) {
	query := conversationSelect + `
	WHERE c.owner_id = ?`
	if !includeArchived {
		query += ` AND c.is_archived = 0`
	}
	query += `
	ORDER BY c.is_pinned DESC, c.pinned_at DESC, COALESCE(lm.timestamp, c.updated_at) DESC`

	rows, err := db.Query(query, ownerID, ownerID, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows, ownerID)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation with derived fields, or
// nil if it does not exist.
func (db *DB) GetConversation(ownerID, roomID string) (*Conversation, error) {
	row := db.QueryRow(conversationSelect+` WHERE c.owner_id = ? AND c.room_id = ?`,
		ownerID, ownerID, ownerID, roomID)
	c, err := scanConversation(row, ownerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(r rowScanner, ownerID string) (*Conversation, error) {
	var c Conversation
	var kind, members, admins, lmKind string
	if err := r.Scan(&c.RoomID, &kind, &c.Title, &c.AvatarRef, &members, &admins, &c.CommunityID,
		&c.IsArchived, &c.IsPinned, &c.PinnedAt, &c.IsLocked, &c.CreatedAt, &c.UpdatedAt,
		&c.LastMessage, &lmKind, &c.LastMessageAt, &c.UnreadCount); err != nil {
		return nil, err
	}
	c.OwnerID = ownerID
	c.Kind = ConversationKind(kind)
	c.LastMessageKind = MessageKind(lmKind)
	var err error
	if c.Members, err = unmarshalStrings(members); err != nil {
		return nil, err
	}
	if c.AdminIDs, err = unmarshalStrings(admins); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetPinned updates the pin flag. pinnedAt orders the pinned section of
// the conversation list; it is cleared on unpin.
func (db *DB) SetPinned(ownerID, roomID string, pinned bool) error {
	now := time.Now().UnixMilli()
	pinnedAt := int64(0)
	if pinned {
		pinnedAt = now
	}
	_, err := db.Exec(`
		UPDATE conversations SET is_pinned = ?, pinned_at = ?, updated_at = ?
		WHERE owner_id = ? AND room_id = ?`,
		pinned, pinnedAt, now, ownerID, roomID)
	return err
}

// CountPinned returns the number of pinned conversations for an owner.
func (db *DB) CountPinned(ownerID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE owner_id = ? AND is_pinned = 1`, ownerID).Scan(&n)
	return n, err
}

// SetArchived updates the archive flag.
func (db *DB) SetArchived(ownerID, roomID string, archived bool) error {
	_, err := db.Exec(`
		UPDATE conversations SET is_archived = ?, updated_at = ?
		WHERE owner_id = ? AND room_id = ?`,
		archived, time.Now().UnixMilli(), ownerID, roomID)
	return err
}

// SetLocked updates the lock flag.
func (db *DB) SetLocked(ownerID, roomID string, locked bool) error {
	_, err := db.Exec(`
		UPDATE conversations SET is_locked = ?, updated_at = ?
		WHERE owner_id = ? AND room_id = ?`,
		locked, time.Now().UnixMilli(), ownerID, roomID)
	return err
}

// DeleteConversation removes a conversation and cascades to its
// messages, attachments, receipts, reactions and tombstones. The pending
// action queue is intentionally left untouched.
func (db *DB) DeleteConversation(ownerID, roomID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const msgSub = `SELECT msg_id FROM messages WHERE owner_id = ? AND room_id = ?`
	for _, table := range []string{"attachments", "receipts", "reactions", "message_tombstones"} {
		if _, err := tx.Exec(
			`DELETE FROM `+table+` WHERE owner_id = ? AND msg_id IN (`+msgSub+`)`,
			ownerID, ownerID, roomID); err != nil {
			return fmt.Errorf("cascade %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE owner_id = ? AND room_id = ?`, ownerID, roomID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE owner_id = ? AND room_id = ?`, ownerID, roomID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}
