// Package remote defines the boundary to the real-time backend. The
// sync core treats it as an opaque key/value + change-stream service and
// never assumes a wire protocol.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Event is one change delivered on a room subscription. Payload is one
// of the typed payload variants below.
type Event struct {
	ConversationID  string
	Payload         any
	ServerTimestamp int64
}

// Store is the remote collaborator interface: subscribe to room
// changes, write a value at a path, fetch a path once.
type Store interface {
	// Subscribe yields room change events until cancel is called or ctx
	// is done. The cancel function releases the listener and is safe to
	// call more than once.
	Subscribe(ctx context.Context, roomID string) (<-chan Event, func(), error)
	Write(ctx context.Context, path string, value any) error
	Fetch(ctx context.Context, path string) (any, error)
}

// ConversationSnapshot is the remote view of a room.
type ConversationSnapshot struct {
	RoomID      string
	Kind        string
	Title       string
	AvatarRef   string
	Members     []string
	AdminIDs    []string
	CommunityID string
	IsArchived  bool
	IsPinned    bool
	PinnedAt    int64
	IsLocked    bool
	UpdatedAt   int64
}

// MessagePayload is a remote message event or snapshot entry. Body is
// opaque (already encrypted/decrypted by a collaborator).
type MessagePayload struct {
	RoomID       string
	MsgID        string
	SenderID     string
	ReceiverID   string
	Kind         string
	Body         string
	Translations map[string]string
	ReplyToMsgID string
	IsEdit       bool
	IsPinned     bool
	Timestamp    int64
	UpdatedAt    int64
}

// DeletePayload is a remote tombstone event. Scope is "for_me" or
// "for_everyone"; UserID qualifies per-user deletes.
type DeletePayload struct {
	RoomID    string
	MsgID     string
	Scope     string
	UserID    string
	Timestamp int64
}

// ReceiptPayload reports one recipient's delivered/read acknowledgment.
type ReceiptPayload struct {
	RoomID    string
	MsgID     string
	UserID    string
	Kind      string // delivered | read
	Timestamp int64
}

// ReactionPayload reports a reaction change. Empty emoji clears it.
type ReactionPayload struct {
	RoomID    string
	MsgID     string
	UserID    string
	Emoji     string
	Timestamp int64
}

// AckPayload confirms a previously written outbound message.
type AckPayload struct {
	RoomID    string
	MsgID     string
	Timestamp int64
}

// PermanentError marks a remote rejection that must not be retried
// (invalid payload, permission denied). Everything else is transient.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("remote rejected: %s", e.Reason)
}

// IsPermanent reports whether err (or anything it wraps) is a
// PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Path helpers. The remote is addressed as a key/value tree; these are
// the only paths the core writes to or fetches.

func ConversationsPath(ownerID string) string {
	return fmt.Sprintf("owners/%s/conversations", ownerID)
}

func ConversationPath(roomID string) string {
	return fmt.Sprintf("rooms/%s", roomID)
}

func MessagePath(roomID, msgID string) string {
	return fmt.Sprintf("rooms/%s/messages/%s", roomID, msgID)
}

func MessagesPath(roomID string) string {
	return fmt.Sprintf("rooms/%s/messages", roomID)
}

func DeletePath(roomID, msgID string) string {
	return fmt.Sprintf("rooms/%s/messages/%s/delete", roomID, msgID)
}

func RoomFlagsPath(ownerID, roomID string) string {
	return fmt.Sprintf("owners/%s/rooms/%s/flags", ownerID, roomID)
}

func ReceiptPath(roomID, msgID, userID string) string {
	return fmt.Sprintf("rooms/%s/messages/%s/receipts/%s", roomID, msgID, userID)
}

func ReadMarkPath(roomID, userID string) string {
	return fmt.Sprintf("rooms/%s/read/%s", roomID, userID)
}

func FollowPath(ownerID, userID string) string {
	return fmt.Sprintf("owners/%s/follows/%s", ownerID, userID)
}
