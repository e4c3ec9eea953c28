package store

// UpsertReceipt records a per-recipient delivered/read acknowledgment.
// Duplicates are de-duplicated by (msg, user, kind) and only the newest
// timestamp is kept, so a stale re-delivered event never regresses state.
func (db *DB) UpsertReceipt(ownerID string, r *Receipt) error {
	_, err := db.Exec(`
		INSERT INTO receipts (owner_id, msg_id, user_id, kind, ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, msg_id, user_id, kind) DO UPDATE SET
			ts = MAX(receipts.ts, excluded.ts)`,
		ownerID, r.MsgID, r.UserID, string(r.Kind), r.Timestamp)
	return err
}

// ReceiptsFor returns all receipts recorded for a message.
func (db *DB) ReceiptsFor(ownerID, msgID string) ([]Receipt, error) {
	rows, err := db.Query(`
		SELECT msg_id, user_id, kind, ts FROM receipts
		WHERE owner_id = ? AND msg_id = ?
		ORDER BY user_id, kind`,
		ownerID, msgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var receipts []Receipt
	for rows.Next() {
		var r Receipt
		var kind string
		if err := rows.Scan(&r.MsgID, &r.UserID, &kind, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Kind = ReceiptKind(kind)
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// UpsertReaction records a user's reaction to a message. An empty emoji
// clears it. Staler events lose to the recorded one.
func (db *DB) UpsertReaction(ownerID string, r *Reaction) error {
	_, err := db.Exec(`
		INSERT INTO reactions (owner_id, msg_id, user_id, emoji, ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, msg_id, user_id) DO UPDATE SET
			emoji = excluded.emoji,
			ts = excluded.ts
		WHERE excluded.ts >= reactions.ts`,
		ownerID, r.MsgID, r.UserID, r.Emoji, r.Timestamp)
	return err
}

// ReactionsFor returns the active reactions for a message (cleared
// reactions excluded).
func (db *DB) ReactionsFor(ownerID, msgID string) ([]Reaction, error) {
	rows, err := db.Query(`
		SELECT msg_id, user_id, emoji, ts FROM reactions
		WHERE owner_id = ? AND msg_id = ? AND emoji != ''
		ORDER BY ts`,
		ownerID, msgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reactions []Reaction
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.MsgID, &r.UserID, &r.Emoji, &r.Timestamp); err != nil {
			return nil, err
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}
