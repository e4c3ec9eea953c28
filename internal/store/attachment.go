package store

import (
	"database/sql"
	"time"
)

// UpsertAttachment inserts or updates the media descriptor for a
// message (1:1 by msg_id). A non-empty local_uri is never overwritten
// with an empty one, so a re-synced remote record cannot discard a
// completed download.
func (db *DB) UpsertAttachment(a *Attachment) error {
	if a.UpdatedAt == 0 {
		a.UpdatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO attachments (owner_id, msg_id, media_id, kind, file_name, mime_type,
			file_size, caption, local_uri, remote_uri, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, msg_id) DO UPDATE SET
			media_id = excluded.media_id,
			kind = excluded.kind,
			file_name = excluded.file_name,
			mime_type = excluded.mime_type,
			file_size = excluded.file_size,
			caption = excluded.caption,
			local_uri = CASE WHEN excluded.local_uri != '' THEN excluded.local_uri ELSE attachments.local_uri END,
			remote_uri = excluded.remote_uri,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= attachments.updated_at`,
		a.OwnerID, a.MsgID, a.MediaID, string(a.Kind), a.FileName, a.MimeType,
		a.FileSize, a.Caption, a.LocalURI, a.RemoteURI, a.UpdatedAt)
	return err
}

// AttachmentFor returns the attachment of a message, or nil if none.
func (db *DB) AttachmentFor(ownerID, msgID string) (*Attachment, error) {
	var a Attachment
	var kind string
	err := db.QueryRow(`
		SELECT msg_id, media_id, kind, file_name, mime_type, file_size, caption,
			local_uri, remote_uri, updated_at
		FROM attachments WHERE owner_id = ? AND msg_id = ?`,
		ownerID, msgID).
		Scan(&a.MsgID, &a.MediaID, &kind, &a.FileName, &a.MimeType, &a.FileSize,
			&a.Caption, &a.LocalURI, &a.RemoteURI, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.OwnerID = ownerID
	a.Kind = MessageKind(kind)
	return &a, nil
}

// SetAttachmentLocalURI records the on-device path once a download
// resolves.
func (db *DB) SetAttachmentLocalURI(ownerID, msgID, localURI string) error {
	_, err := db.Exec(`
		UPDATE attachments SET local_uri = ?, updated_at = ?
		WHERE owner_id = ? AND msg_id = ?`,
		localURI, time.Now().UnixMilli(), ownerID, msgID)
	return err
}
