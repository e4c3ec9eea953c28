// Package reconcile merges remote snapshots and change events into the
// local store. Every apply funnels into the store's idempotent,
// last-write-wins upserts, so duplicate delivery and out-of-order
// events converge without special cases.
package reconcile

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chatsyncd/chatsync/internal/bus"
	"github.com/chatsyncd/chatsync/internal/delivery"
	"github.com/chatsyncd/chatsync/internal/remote"
	"github.com/chatsyncd/chatsync/internal/store"
)

// snapshotChunk bounds how many messages one transaction ingests.
const snapshotChunk = 200

// Reconciler applies remote state for one owner account.
type Reconciler struct {
	db      *store.DB
	ownerID string
	bus     *bus.Bus
	logger  *zap.Logger
}

// New creates a reconciler bound to an owner account.
func New(db *store.DB, ownerID string, b *bus.Bus, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, ownerID: ownerID, bus: b, logger: logger}
}

// HandleEvent dispatches one subscription event by payload type.
// Unknown payloads are logged and skipped; one bad event must not stop
// the stream.
func (r *Reconciler) HandleEvent(evt remote.Event) {
	var err error
	switch p := evt.Payload.(type) {
	case *remote.MessagePayload:
		err = r.ApplyMessage(p)
	case *remote.ConversationSnapshot:
		err = r.ApplyConversationSnapshot(p)
	case *remote.DeletePayload:
		err = r.ApplyDelete(p)
	case *remote.ReceiptPayload:
		err = r.ApplyReceipt(p)
	case *remote.ReactionPayload:
		err = r.ApplyReaction(p)
	case *remote.AckPayload:
		err = r.ApplyAck(p)
	default:
		r.logger.Warn("unknown remote payload",
			zap.String("room_id", evt.ConversationID),
			zap.Any("payload", evt.Payload))
		return
	}
	if err != nil {
		r.logger.Error("failed to apply remote event",
			zap.Error(err), zap.String("room_id", evt.ConversationID))
	}
}

// ApplyConversationSnapshot upserts a room's remote state. A snapshot
// older than the cached row loses (logged, not an error).
func (r *Reconciler) ApplyConversationSnapshot(snap *remote.ConversationSnapshot) error {
	local, err := r.db.GetConversation(r.ownerID, snap.RoomID)
	if err != nil {
		return fmt.Errorf("read local conversation: %w", err)
	}
	if local != nil && snap.UpdatedAt < local.UpdatedAt {
		r.logger.Debug("stale conversation snapshot ignored",
			zap.String("room_id", snap.RoomID),
			zap.Int64("remote_ts", snap.UpdatedAt),
			zap.Int64("local_ts", local.UpdatedAt))
		return nil
	}
	if err := r.db.UpsertConversation(&store.Conversation{
		OwnerID:     r.ownerID,
		RoomID:      snap.RoomID,
		Kind:        store.ConversationKind(snap.Kind),
		Title:       snap.Title,
		AvatarRef:   snap.AvatarRef,
		Members:     snap.Members,
		AdminIDs:    snap.AdminIDs,
		CommunityID: snap.CommunityID,
		IsArchived:  snap.IsArchived,
		IsPinned:    snap.IsPinned,
		PinnedAt:    snap.PinnedAt,
		IsLocked:    snap.IsLocked,
		UpdatedAt:   snap.UpdatedAt,
	}); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	r.notifyConversation(snap.RoomID)
	return nil
}

// ApplyMessage ingests a remote message event (idempotent). A message
// the owner sent from this or another device lands as from_me.
func (r *Reconciler) ApplyMessage(p *remote.MessagePayload) error {
	fromMe := p.SenderID == r.ownerID
	status := store.StatusDelivered
	if fromMe {
		status = store.StatusSent
	}
	if err := r.db.UpsertMessage(&store.Message{
		OwnerID:      r.ownerID,
		RoomID:       p.RoomID,
		MsgID:        p.MsgID,
		SenderID:     p.SenderID,
		ReceiverID:   p.ReceiverID,
		Kind:         store.MessageKind(p.Kind),
		Body:         p.Body,
		Translations: p.Translations,
		ReplyToMsgID: p.ReplyToMsgID,
		FromMe:       fromMe,
		Status:       status,
		IsEdit:       p.IsEdit,
		IsPinned:     p.IsPinned,
		Timestamp:    p.Timestamp,
		UpdatedAt:    p.UpdatedAt,
	}); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	r.bus.Publish(bus.Event{
		Kind:    bus.KindMessageUpserted,
		At:      time.Now(),
		OwnerID: r.ownerID,
		Payload: bus.MessageRef{RoomID: p.RoomID, MsgID: p.MsgID},
	})
	r.notifyConversation(p.RoomID)
	return nil
}

// ApplyMessageBatch ingests a snapshot's messages in bounded chunks,
// one transaction per chunk, and records a checkpoint when done.
func (r *Reconciler) ApplyMessageBatch(roomID string, msgs []*remote.MessagePayload) error {
	for start := 0; start < len(msgs); start += snapshotChunk {
		end := min(start+snapshotChunk, len(msgs))
		for _, p := range msgs[start:end] {
			if err := r.applyMessageQuiet(p); err != nil {
				return err
			}
		}
	}
	if err := r.SetCheckpoint("room_snapshot:"+roomID, fmt.Sprintf("%d", time.Now().UnixMilli())); err != nil {
		r.logger.Warn("failed to record snapshot checkpoint", zap.Error(err), zap.String("room_id", roomID))
	}
	r.logger.Info("message batch applied", zap.String("room_id", roomID), zap.Int("messages", len(msgs)))
	r.notifyConversation(roomID)
	return nil
}

func (r *Reconciler) applyMessageQuiet(p *remote.MessagePayload) error {
	fromMe := p.SenderID == r.ownerID
	status := store.StatusDelivered
	if fromMe {
		status = store.StatusSent
	}
	return r.db.UpsertMessage(&store.Message{
		OwnerID:      r.ownerID,
		RoomID:       p.RoomID,
		MsgID:        p.MsgID,
		SenderID:     p.SenderID,
		ReceiverID:   p.ReceiverID,
		Kind:         store.MessageKind(p.Kind),
		Body:         p.Body,
		Translations: p.Translations,
		ReplyToMsgID: p.ReplyToMsgID,
		FromMe:       fromMe,
		Status:       status,
		IsEdit:       p.IsEdit,
		IsPinned:     p.IsPinned,
		Timestamp:    p.Timestamp,
		UpdatedAt:    p.UpdatedAt,
	})
}

// ApplyDelete records a tombstone. The row is never physically removed,
// so replaying the delete or a later snapshot stays idempotent.
func (r *Reconciler) ApplyDelete(p *remote.DeletePayload) error {
	switch store.DeleteScope(p.Scope) {
	case store.DeleteForEveryone:
		if err := r.db.TombstoneForEveryone(r.ownerID, p.MsgID, p.Timestamp); err != nil {
			return fmt.Errorf("tombstone for everyone: %w", err)
		}
	case store.DeleteForMe:
		userID := p.UserID
		if userID == "" {
			userID = r.ownerID
		}
		if err := r.db.TombstoneForUser(r.ownerID, p.MsgID, userID, p.Timestamp); err != nil {
			return fmt.Errorf("tombstone for user: %w", err)
		}
	default:
		return fmt.Errorf("unknown delete scope %q", p.Scope)
	}
	r.notifyConversation(p.RoomID)
	return nil
}

// ApplyReceipt records a per-recipient delivered/read event. Stale
// duplicates are absorbed by the store's max-timestamp upsert.
func (r *Reconciler) ApplyReceipt(p *remote.ReceiptPayload) error {
	if err := r.db.UpsertReceipt(r.ownerID, &store.Receipt{
		MsgID:     p.MsgID,
		UserID:    p.UserID,
		Kind:      store.ReceiptKind(p.Kind),
		Timestamp: p.Timestamp,
	}); err != nil {
		return fmt.Errorf("upsert receipt: %w", err)
	}
	// Reflect the aggregate onto the outbound message row so list views
	// see delivered/read without joining receipts.
	msg, err := r.db.GetMessage(r.ownerID, p.RoomID, p.MsgID)
	if err != nil || msg == nil || !msg.FromMe {
		return err
	}
	receipts, err := r.db.ReceiptsFor(r.ownerID, p.MsgID)
	if err != nil {
		return err
	}
	display := delivery.DisplayStatus(msg.Status, receipts)
	if display != msg.Status {
		if err := r.db.UpdateMessageStatus(r.ownerID, p.MsgID, display); err != nil {
			return fmt.Errorf("update message status: %w", err)
		}
		r.bus.Publish(bus.Event{
			Kind:    bus.KindMessageUpserted,
			At:      time.Now(),
			OwnerID: r.ownerID,
			Payload: bus.MessageRef{RoomID: p.RoomID, MsgID: p.MsgID},
		})
	}
	return nil
}

// ApplyReaction records a reaction change.
func (r *Reconciler) ApplyReaction(p *remote.ReactionPayload) error {
	if err := r.db.UpsertReaction(r.ownerID, &store.Reaction{
		MsgID:     p.MsgID,
		UserID:    p.UserID,
		Emoji:     p.Emoji,
		Timestamp: p.Timestamp,
	}); err != nil {
		return fmt.Errorf("upsert reaction: %w", err)
	}
	r.bus.Publish(bus.Event{
		Kind:    bus.KindMessageUpserted,
		At:      time.Now(),
		OwnerID: r.ownerID,
		Payload: bus.MessageRef{RoomID: p.RoomID, MsgID: p.MsgID},
	})
	return nil
}

// ApplyAck confirms a previously written outbound message.
func (r *Reconciler) ApplyAck(p *remote.AckPayload) error {
	msg, err := r.db.GetMessage(r.ownerID, p.RoomID, p.MsgID)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	if _, err := delivery.Transition(msg.Status, store.StatusSent); err != nil {
		// Already delivered or read; the ack is late, nothing to do.
		return nil
	}
	if err := r.db.UpdateMessageStatus(r.ownerID, p.MsgID, store.StatusSent); err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	r.notifyConversation(p.RoomID)
	return nil
}

// notifyConversation re-reads the room's derived fields and publishes a
// conversation.updated event.
func (r *Reconciler) notifyConversation(roomID string) {
	conv, err := r.db.GetConversation(r.ownerID, roomID)
	if err != nil {
		r.logger.Error("failed to refresh conversation", zap.Error(err), zap.String("room_id", roomID))
		return
	}
	if conv == nil {
		return
	}
	r.bus.Publish(bus.Event{
		Kind:    bus.KindConversationUpdated,
		At:      time.Now(),
		OwnerID: r.ownerID,
		Payload: conv,
	})
}

// SetCheckpoint updates a sync checkpoint value.
func (r *Reconciler) SetCheckpoint(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := r.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetCheckpoint retrieves a sync checkpoint value.
func (r *Reconciler) GetCheckpoint(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}
