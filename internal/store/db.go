package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection for the app-owned chatsync.db.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

// ConversationCount returns the total number of conversations for an owner.
func (db *DB) ConversationCount(ownerID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE owner_id = ?`, ownerID).Scan(&count)
	return count, err
}

// MessageCount returns the total number of messages for an owner.
func (db *DB) MessageCount(ownerID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE owner_id = ?`, ownerID).Scan(&count)
	return count, err
}
