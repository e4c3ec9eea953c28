package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertUser inserts or updates a contact record. (owner_id,
// phone_number) is unique; a conflicting phone for a different user id
// surfaces as a constraint error rather than being silently merged.
func (db *DB) UpsertUser(u *User) error {
	if u.UpdatedAt == 0 {
		u.UpdatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO users (owner_id, user_id, phone_number, username, avatar_ref, last_seen,
			on_platform, is_followed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, user_id) DO UPDATE SET
			phone_number = excluded.phone_number,
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
			avatar_ref = CASE WHEN excluded.avatar_ref != '' THEN excluded.avatar_ref ELSE users.avatar_ref END,
			last_seen = MAX(users.last_seen, excluded.last_seen),
			on_platform = excluded.on_platform,
			is_followed = excluded.is_followed,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= users.updated_at`,
		u.OwnerID, u.UserID, u.PhoneNumber, u.Username, u.AvatarRef, u.LastSeen,
		u.OnPlatform, u.Followed, u.UpdatedAt)
	return err
}

// BulkUpsertUsers inserts or updates multiple contacts in a single
// transaction (address-book sync ingests hundreds of rows at once).
func (db *DB) BulkUpsertUsers(users []User) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, u := range users {
		updatedAt := u.UpdatedAt
		if updatedAt == 0 {
			updatedAt = now
		}
		if _, err := tx.Exec(`
			INSERT INTO users (owner_id, user_id, phone_number, username, avatar_ref, last_seen,
				on_platform, is_followed, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(owner_id, user_id) DO UPDATE SET
				phone_number = excluded.phone_number,
				username = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
				avatar_ref = CASE WHEN excluded.avatar_ref != '' THEN excluded.avatar_ref ELSE users.avatar_ref END,
				last_seen = MAX(users.last_seen, excluded.last_seen),
				on_platform = excluded.on_platform,
				is_followed = excluded.is_followed,
				updated_at = excluded.updated_at
			WHERE excluded.updated_at >= users.updated_at`,
			u.OwnerID, u.UserID, u.PhoneNumber, u.Username, u.AvatarRef, u.LastSeen,
			u.OnPlatform, u.Followed, updatedAt); err != nil {
			return fmt.Errorf("upsert user %q: %w", u.UserID, err)
		}
	}
	return tx.Commit()
}

// GetUser returns a contact by user id, or nil if unknown.
func (db *DB) GetUser(ownerID, userID string) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT user_id, phone_number, username, avatar_ref, last_seen, on_platform, is_followed, updated_at
		FROM users WHERE owner_id = ? AND user_id = ?`,
		ownerID, userID).
		Scan(&u.UserID, &u.PhoneNumber, &u.Username, &u.AvatarRef, &u.LastSeen,
			&u.OnPlatform, &u.Followed, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.OwnerID = ownerID
	return &u, nil
}

// ListContacts returns the owner's address book ordered by username.
func (db *DB) ListContacts(ownerID string) ([]User, error) {
	rows, err := db.Query(`
		SELECT user_id, phone_number, username, avatar_ref, last_seen, on_platform, is_followed, updated_at
		FROM users WHERE owner_id = ?
		ORDER BY username, user_id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UserID, &u.PhoneNumber, &u.Username, &u.AvatarRef, &u.LastSeen,
			&u.OnPlatform, &u.Followed, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.OwnerID = ownerID
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetFollowed updates the follow flag for a contact.
func (db *DB) SetFollowed(ownerID, userID string, followed bool) error {
	_, err := db.Exec(`
		UPDATE users SET is_followed = ?, updated_at = ?
		WHERE owner_id = ? AND user_id = ?`,
		followed, time.Now().UnixMilli(), ownerID, userID)
	return err
}
