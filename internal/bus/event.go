package bus

import "time"

// Event is a domain event published on the bus. Kind uses dotted
// namespaces so subscribers can filter by prefix.
type Event struct {
	Kind    string
	At      time.Time
	OwnerID string
	Payload any
}

// Event kinds published by the sync core.
const (
	KindMessageUpserted     = "message.upserted"
	KindMessageSendFailed   = "message.send_failed"
	KindActionAcked         = "action.acked"
	KindActionFailed        = "action.failed"
	KindConversationUpdated = "conversation.updated"
	KindConversationDeleted = "conversation.deleted"
	KindSyncCacheLoaded     = "sync.cache_loaded"
	KindSyncResyncDone      = "sync.resync_done"
	KindSyncOnline          = "sync.online"
	KindSyncOffline         = "sync.offline"
)

// MessageRef identifies a message in message.* event payloads.
type MessageRef struct {
	RoomID string
	MsgID  string
}

// ActionResult is the payload for action.acked / action.failed events.
type ActionResult struct {
	ActionID int64
	Type     string
	RoomID   string
	MsgID    string
	Err      string
}
