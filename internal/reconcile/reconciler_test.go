package reconcile

import (
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/chatsyncd/chatsync/internal/bus"
	"github.com/chatsyncd/chatsync/internal/remote"
	"github.com/chatsyncd/chatsync/internal/store"
)

const owner = "u1"

func testReconciler(t *testing.T) (*Reconciler, *store.DB, *bus.Bus) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	b := bus.New()
	return New(db, owner, b, zap.NewNop()), db, b
}

func msgPayload(roomID, msgID, sender string, ts int64) *remote.MessagePayload {
	return &remote.MessagePayload{
		RoomID:    roomID,
		MsgID:     msgID,
		SenderID:  sender,
		Kind:      "text",
		Body:      "hello",
		Timestamp: ts,
		UpdatedAt: ts,
	}
}

func TestApplyMessageIdempotent(t *testing.T) {
	r, db, _ := testReconciler(t)

	p := msgPayload("room_1", "m1", "u2", 1000)
	for i := 0; i < 3; i++ {
		if err := r.ApplyMessage(p); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListMessages(owner, "room_1", 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Status != store.StatusDelivered {
		t.Errorf("inbound status = %s, want delivered", msgs[0].Status)
	}
	if msgs[0].FromMe {
		t.Error("message from u2 marked from_me")
	}
}

func TestApplyMessageOwnEchoIsFromMe(t *testing.T) {
	r, db, _ := testReconciler(t)

	if err := r.ApplyMessage(msgPayload("room_1", "m1", owner, 1000)); err != nil {
		t.Fatal(err)
	}
	msg, err := db.GetMessage(owner, "room_1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if !msg.FromMe {
		t.Error("own echo not marked from_me")
	}
	if msg.Status != store.StatusSent {
		t.Errorf("own echo status = %s, want sent", msg.Status)
	}
}

func TestApplyConversationSnapshotStaleIgnored(t *testing.T) {
	r, db, _ := testReconciler(t)

	if err := r.ApplyConversationSnapshot(&remote.ConversationSnapshot{
		RoomID: "room_1", Kind: "group", Title: "Current", UpdatedAt: 2000,
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.ApplyConversationSnapshot(&remote.ConversationSnapshot{
		RoomID: "room_1", Kind: "group", Title: "Stale", UpdatedAt: 1000,
	}); err != nil {
		t.Fatal(err)
	}

	conv, err := db.GetConversation(owner, "room_1")
	if err != nil {
		t.Fatal(err)
	}
	if conv.Title != "Current" {
		t.Errorf("title = %q, want Current", conv.Title)
	}
}

func TestApplyDeleteForMeHidesLocally(t *testing.T) {
	r, db, _ := testReconciler(t)

	if err := r.ApplyMessage(msgPayload("room_1", "m1", "u2", 1000)); err != nil {
		t.Fatal(err)
	}
	if err := r.ApplyDelete(&remote.DeletePayload{
		RoomID: "room_1", MsgID: "m1", Scope: "for_me", UserID: owner, Timestamp: 1500,
	}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(owner, "room_1", 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("deleted-for-me message still listed")
	}
	// The row survives as a tombstone so a replayed snapshot cannot
	// resurrect it.
	if err := r.ApplyMessage(msgPayload("room_1", "m1", "u2", 2000)); err != nil {
		t.Fatal(err)
	}
	msgs, _ = db.ListMessages(owner, "room_1", 50, 0)
	if len(msgs) != 0 {
		t.Error("replayed snapshot resurrected a tombstoned message")
	}
}

func TestApplyDeleteForEveryone(t *testing.T) {
	r, db, _ := testReconciler(t)

	if err := r.ApplyMessage(msgPayload("room_1", "m1", "u2", 1000)); err != nil {
		t.Fatal(err)
	}
	if err := r.ApplyDelete(&remote.DeletePayload{
		RoomID: "room_1", MsgID: "m1", Scope: "for_everyone", Timestamp: 1500,
	}); err != nil {
		t.Fatal(err)
	}

	msg, err := db.GetMessage(owner, "room_1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if !msg.DeletedForEveryone {
		t.Error("message not flagged deleted_for_everyone")
	}
	msgs, _ := db.ListMessages(owner, "room_1", 50, 0)
	if len(msgs) != 0 {
		t.Error("globally deleted message still listed")
	}
}

func TestApplyDeleteUnknownScope(t *testing.T) {
	r, _, _ := testReconciler(t)

	err := r.ApplyDelete(&remote.DeletePayload{RoomID: "room_1", MsgID: "m1", Scope: "bogus"})
	if err == nil {
		t.Fatal("expected error for unknown scope")
	}
}

func TestApplyReceiptPromotesOutboundStatus(t *testing.T) {
	r, db, _ := testReconciler(t)

	if err := r.ApplyMessage(msgPayload("room_1", "m1", owner, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := r.ApplyReceipt(&remote.ReceiptPayload{
		RoomID: "room_1", MsgID: "m1", UserID: "u2", Kind: "read", Timestamp: 1500,
	}); err != nil {
		t.Fatal(err)
	}

	msg, err := db.GetMessage(owner, "room_1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != store.StatusRead {
		t.Errorf("status = %s, want read after read receipt", msg.Status)
	}

	// A later delivered receipt must not demote the row.
	if err := r.ApplyReceipt(&remote.ReceiptPayload{
		RoomID: "room_1", MsgID: "m1", UserID: "u3", Kind: "delivered", Timestamp: 2000,
	}); err != nil {
		t.Fatal(err)
	}
	msg, _ = db.GetMessage(owner, "room_1", "m1")
	if msg.Status != store.StatusRead {
		t.Errorf("status = %s, want read to stick", msg.Status)
	}
}

func TestApplyReceiptInboundLeavesStatus(t *testing.T) {
	r, db, _ := testReconciler(t)

	if err := r.ApplyMessage(msgPayload("room_1", "m1", "u2", 1000)); err != nil {
		t.Fatal(err)
	}
	if err := r.ApplyReceipt(&remote.ReceiptPayload{
		RoomID: "room_1", MsgID: "m1", UserID: "u3", Kind: "read", Timestamp: 1500,
	}); err != nil {
		t.Fatal(err)
	}
	msg, _ := db.GetMessage(owner, "room_1", "m1")
	if msg.Status != store.StatusDelivered {
		t.Errorf("inbound status changed to %s by someone else's receipt", msg.Status)
	}
}

func TestApplyAck(t *testing.T) {
	r, db, _ := testReconciler(t)

	if err := db.UpsertMessage(&store.Message{
		OwnerID: owner, RoomID: "room_1", MsgID: "m1", SenderID: owner,
		Kind: store.MsgText, Body: "hi", FromMe: true,
		Status: store.StatusPending, Timestamp: 1000, UpdatedAt: 1000,
	}); err != nil {
		t.Fatal(err)
	}

	if err := r.ApplyAck(&remote.AckPayload{RoomID: "room_1", MsgID: "m1", Timestamp: 1100}); err != nil {
		t.Fatal(err)
	}
	msg, _ := db.GetMessage(owner, "room_1", "m1")
	if msg.Status != store.StatusSent {
		t.Errorf("status = %s, want sent after ack", msg.Status)
	}

	// A late ack after a read receipt must not demote.
	if err := db.UpdateMessageStatus(owner, "m1", store.StatusRead); err != nil {
		t.Fatal(err)
	}
	if err := r.ApplyAck(&remote.AckPayload{RoomID: "room_1", MsgID: "m1", Timestamp: 1200}); err != nil {
		t.Fatal(err)
	}
	msg, _ = db.GetMessage(owner, "room_1", "m1")
	if msg.Status != store.StatusRead {
		t.Errorf("late ack demoted status to %s", msg.Status)
	}
}

func TestApplyAckUnknownMessageIsNoop(t *testing.T) {
	r, _, _ := testReconciler(t)
	if err := r.ApplyAck(&remote.AckPayload{RoomID: "room_1", MsgID: "ghost"}); err != nil {
		t.Fatal(err)
	}
}

func TestApplyMessageBatchRecordsCheckpoint(t *testing.T) {
	r, db, _ := testReconciler(t)

	msgs := make([]*remote.MessagePayload, 0, 250)
	for i := 0; i < 250; i++ {
		ts := int64(1000 + i)
		msgs = append(msgs, msgPayload("room_1", batchMsgID(i), "u2", ts))
	}
	if err := r.ApplyMessageBatch("room_1", msgs); err != nil {
		t.Fatal(err)
	}

	n, err := db.MessageCount(owner)
	if err != nil {
		t.Fatal(err)
	}
	if n != 250 {
		t.Errorf("message count = %d, want 250", n)
	}
	if _, err := r.GetCheckpoint("room_snapshot:room_1"); err != nil {
		t.Errorf("checkpoint missing: %v", err)
	}
}

func batchMsgID(i int) string {
	return fmt.Sprintf("m%03d", i)
}

func TestHandleEventPublishesConversationUpdate(t *testing.T) {
	r, _, b := testReconciler(t)

	ch, cancel := b.Subscribe(bus.KindConversationUpdated, 8)
	defer cancel()

	r.HandleEvent(remote.Event{
		ConversationID: "room_1",
		Payload:        msgPayload("room_1", "m1", "u2", 1000),
	})

	select {
	case evt := <-ch:
		conv, ok := evt.Payload.(*store.Conversation)
		if !ok {
			t.Fatalf("payload type %T", evt.Payload)
		}
		if conv.RoomID != "room_1" {
			t.Errorf("room = %s", conv.RoomID)
		}
		if conv.UnreadCount != 1 {
			t.Errorf("unread = %d, want 1", conv.UnreadCount)
		}
	default:
		t.Fatal("no conversation.updated event published")
	}
}

func TestHandleEventUnknownPayloadIgnored(t *testing.T) {
	r, _, _ := testReconciler(t)
	// Must not panic or error the stream.
	r.HandleEvent(remote.Event{ConversationID: "room_1", Payload: 42})
}

func TestApplyReactionAndClear(t *testing.T) {
	r, db, _ := testReconciler(t)

	if err := r.ApplyMessage(msgPayload("room_1", "m1", "u2", 1000)); err != nil {
		t.Fatal(err)
	}
	if err := r.ApplyReaction(&remote.ReactionPayload{
		RoomID: "room_1", MsgID: "m1", UserID: "u2", Emoji: "👍", Timestamp: 1100,
	}); err != nil {
		t.Fatal(err)
	}
	reactions, err := db.ReactionsFor(owner, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(reactions) != 1 || reactions[0].Emoji != "👍" {
		t.Fatalf("reactions = %+v", reactions)
	}

	if err := r.ApplyReaction(&remote.ReactionPayload{
		RoomID: "room_1", MsgID: "m1", UserID: "u2", Emoji: "", Timestamp: 1200,
	}); err != nil {
		t.Fatal(err)
	}
	reactions, _ = db.ReactionsFor(owner, "m1")
	if len(reactions) != 0 {
		t.Error("cleared reaction still listed")
	}
}
