package store

import (
	"encoding/json"
	"fmt"
)

// ConversationKind classifies a room.
type ConversationKind string

const (
	ConvPrivate   ConversationKind = "private"
	ConvGroup     ConversationKind = "group"
	ConvCommunity ConversationKind = "community"
)

// MessageKind classifies the content of a message.
type MessageKind string

const (
	MsgText  MessageKind = "text"
	MsgImage MessageKind = "image"
	MsgAudio MessageKind = "audio"
	MsgVideo MessageKind = "video"
	MsgPDF   MessageKind = "pdf"
	MsgOther MessageKind = "other"
)

// MessageStatus is the lifecycle status of a message. Outbound messages
// walk pending -> sent -> delivered -> read (or failed); inbound messages
// use delivered/read to track the local read state.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// ReceiptKind distinguishes delivery receipts from read receipts.
type ReceiptKind string

const (
	ReceiptDelivered ReceiptKind = "delivered"
	ReceiptRead      ReceiptKind = "read"
)

// ActionType identifies a queued offline mutation.
type ActionType string

const (
	ActionSendMessage   ActionType = "send_message"
	ActionEditMessage   ActionType = "edit_message"
	ActionDeleteMessage ActionType = "delete_message"
	ActionMarkRead      ActionType = "mark_read"
	ActionMarkDelivered ActionType = "mark_delivered"
	ActionPin           ActionType = "pin"
	ActionUnpin         ActionType = "unpin"
	ActionArchive       ActionType = "archive"
	ActionUnarchive     ActionType = "unarchive"
	ActionFollow        ActionType = "follow"
	ActionUnfollow      ActionType = "unfollow"
)

// DeleteScope selects per-user or global message deletion.
type DeleteScope string

const (
	DeleteForMe       DeleteScope = "for_me"
	DeleteForEveryone DeleteScope = "for_everyone"
)

// User is a contact record scoped to the owning local account.
type User struct {
	OwnerID     string
	UserID      string
	PhoneNumber string
	Username    string
	AvatarRef   string
	LastSeen    int64
	OnPlatform  bool
	Followed    bool
	UpdatedAt   int64
}

// Conversation is a room row. LastMessage*, and UnreadCount are derived
// from the messages table at read time and are never persisted.
type Conversation struct {
	OwnerID     string
	RoomID      string
	Kind        ConversationKind
	Title       string
	AvatarRef   string
	Members     []string
	AdminIDs    []string
	CommunityID string
	IsArchived  bool
	IsPinned    bool
	PinnedAt    int64 // 0 = not pinned
	IsLocked    bool
	CreatedAt   int64
	UpdatedAt   int64

	LastMessage     string
	LastMessageKind MessageKind
	LastMessageAt   int64
	UnreadCount     int
}

// Message is a stored message. The body is opaque to the sync core;
// Translations optionally carries per-language variants of it.
type Message struct {
	OwnerID            string
	RoomID             string
	MsgID              string
	SenderID           string
	ReceiverID         string
	Kind               MessageKind
	Body               string
	Translations       map[string]string
	ReplyToMsgID       string
	FromMe             bool
	Status             MessageStatus
	IsEdit             bool
	IsPinned           bool
	DeletedForEveryone bool
	Timestamp          int64
	UpdatedAt          int64
}

// Attachment is the media descriptor stored 1:1 with its message.
// LocalURI is filled in lazily once a download completes.
type Attachment struct {
	OwnerID   string
	MsgID     string
	MediaID   string
	Kind      MessageKind
	FileName  string
	MimeType  string
	FileSize  int64
	Caption   string
	LocalURI  string
	RemoteURI string
	UpdatedAt int64
}

// Receipt records one recipient's delivered or read acknowledgment.
type Receipt struct {
	MsgID     string
	UserID    string
	Kind      ReceiptKind
	Timestamp int64
}

// Reaction records one user's emoji reaction. An empty emoji means the
// reaction was removed.
type Reaction struct {
	MsgID     string
	UserID    string
	Emoji     string
	Timestamp int64
}

// PendingAction is a durably queued offline mutation.
type PendingAction struct {
	ID            int64
	OwnerID       string
	Type          ActionType
	RoomID        string
	MsgID         string
	Payload       string // JSON, shape depends on Type
	EnqueuedAt    int64
	RetryCount    int
	NextAttemptAt int64
	LastError     string
}

func marshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalStrings(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode string list %q: %w", s, err)
	}
	return out, nil
}

func marshalTranslations(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalTranslations(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode translations %q: %w", s, err)
	}
	return out, nil
}
