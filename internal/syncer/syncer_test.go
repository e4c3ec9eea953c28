package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chatsyncd/chatsync/internal/bus"
	"github.com/chatsyncd/chatsync/internal/pending"
	"github.com/chatsyncd/chatsync/internal/reconcile"
	"github.com/chatsyncd/chatsync/internal/remote"
	"github.com/chatsyncd/chatsync/internal/store"
)

const owner = "u1"

type fixture struct {
	syncer *Syncer
	db     *store.DB
	remote *remote.Memory
	bus    *bus.Bus
	queue  *pending.Queue
}

func newFixture(t *testing.T) *fixture {
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
	mem := remote.NewMemory()
	logger := zap.NewNop()
	q := pending.NewQueue(db, owner)
	rep := pending.NewReplayer(db, q, mem, b, logger, owner, pending.Policy{})
	rec := reconcile.New(db, owner, b, logger)
	s := New(db, q, rep, rec, mem, b, nil, logger, owner, Options{})
	t.Cleanup(s.Close)
	return &fixture{syncer: s, db: db, remote: mem, bus: b, queue: q}
}

func (f *fixture) seedRoom(t *testing.T, roomID string) {
	t.Helper()
	err := f.db.UpsertConversation(&store.Conversation{
		OwnerID: owner, RoomID: roomID, Kind: store.ConvPrivate,
		Members: []string{owner, "u2"}, UpdatedAt: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func waitEvent(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestOfflineSendQueuesAndDrainsOnReconnect(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "room_1")

	if err := f.syncer.Start(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	msg, err := f.syncer.SendMessage(OutgoingMessage{RoomID: "room_1", Body: "offline hello"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != store.StatusPending {
		t.Errorf("offline send status = %s, want pending", msg.Status)
	}
	if n, _ := f.queue.Len(); n != 1 {
		t.Fatalf("queue length = %d, want 1", n)
	}
	if len(f.remote.Writes()) != 0 {
		t.Fatal("offline send reached the remote")
	}

	// The message renders immediately from the local store.
	msgs, err := f.syncer.Messages("room_1", 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "offline hello" {
		t.Fatalf("local page = %+v", msgs)
	}

	ch, cancel := f.bus.Subscribe("sync.", 16)
	defer cancel()
	f.syncer.SetOnline(true)
	waitEvent(t, ch, bus.KindSyncResyncDone)

	if n, _ := f.queue.Len(); n != 0 {
		t.Errorf("queue length after drain = %d, want 0", n)
	}
	got, err := f.db.GetMessage(owner, "room_1", msg.MsgID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusSent {
		t.Errorf("status after drain = %s, want sent", got.Status)
	}
	writes := f.remote.WritesUnder("rooms/room_1/messages/")
	if len(writes) != 1 {
		t.Fatalf("remote writes = %d, want 1", len(writes))
	}
}

func TestOnlineSendDispatchesImmediately(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "room_1")
	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	msg, err := f.syncer.SendMessage(OutgoingMessage{RoomID: "room_1", Body: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != store.StatusSent {
		t.Errorf("status = %s, want sent", msg.Status)
	}
	if n, _ := f.queue.Len(); n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
}

func TestPermanentRejectionFailsMessage(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "room_1")
	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	f.remote.FailWith(func(path string, value any) error {
		return &remote.PermanentError{Reason: "payload too large"}
	})

	msg, err := f.syncer.SendMessage(OutgoingMessage{RoomID: "room_1", Body: "rejected"})
	if err == nil {
		t.Fatal("expected permanent rejection error")
	}
	if msg.Status != store.StatusFailed {
		t.Errorf("status = %s, want failed", msg.Status)
	}
	if n, _ := f.queue.Len(); n != 0 {
		t.Errorf("permanently rejected action was queued")
	}
}

func TestTransientFailureFallsBackToQueue(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "room_1")
	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	f.remote.FailWith(func(path string, value any) error {
		return errors.New("connection reset")
	})

	msg, err := f.syncer.SendMessage(OutgoingMessage{RoomID: "room_1", Body: "flaky"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != store.StatusPending {
		t.Errorf("status = %s, want pending", msg.Status)
	}
	if n, _ := f.queue.Len(); n != 1 {
		t.Errorf("queue length = %d, want 1", n)
	}
}

func TestMarkReadOfflineSurvivesResync(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "room_1")

	// An inbound unread message cached before going offline.
	if err := f.db.UpsertMessage(&store.Message{
		OwnerID: owner, RoomID: "room_1", MsgID: "m1", SenderID: "u2",
		Kind: store.MsgText, Body: "unread", Status: store.StatusDelivered,
		Timestamp: 2000, UpdatedAt: 2000,
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.syncer.Start(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := f.syncer.MarkRoomRead("room_1"); err != nil {
		t.Fatal(err)
	}
	conv, _ := f.db.GetConversation(owner, "room_1")
	if conv.UnreadCount != 0 {
		t.Fatalf("unread after mark read = %d, want 0", conv.UnreadCount)
	}

	// The remote still has the message unread; resync replays it newer.
	f.remote.Put(remote.ConversationsPath(owner), []*remote.ConversationSnapshot{
		{RoomID: "room_1", Kind: "private", Members: []string{owner, "u2"}, UpdatedAt: 3000},
	})
	f.remote.Put(remote.MessagesPath("room_1"), []*remote.MessagePayload{
		{RoomID: "room_1", MsgID: "m1", SenderID: "u2", Kind: "text", Body: "unread", Timestamp: 2000, UpdatedAt: 3000},
	})

	ch, cancel := f.bus.Subscribe("sync.", 16)
	defer cancel()
	f.syncer.SetOnline(true)
	waitEvent(t, ch, bus.KindSyncResyncDone)

	conv, _ = f.db.GetConversation(owner, "room_1")
	if conv.UnreadCount != 0 {
		t.Errorf("unread flickered back to %d after resync", conv.UnreadCount)
	}
	if len(f.remote.WritesUnder("rooms/room_1/read/")) != 1 {
		t.Error("queued read mark never reached the remote")
	}
}

func TestLiveEventIngestion(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "room_1")

	ch, cancel := f.bus.Subscribe("", 32)
	defer cancel()
	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, ch, bus.KindSyncResyncDone)

	f.remote.Emit("room_1", remote.Event{
		ConversationID: "room_1",
		Payload: &remote.MessagePayload{
			RoomID: "room_1", MsgID: "m_live", SenderID: "u2",
			Kind: "text", Body: "ping", Timestamp: 5000, UpdatedAt: 5000,
		},
	})
	waitEvent(t, ch, bus.KindMessageUpserted)

	msg, err := f.db.GetMessage(owner, "room_1", "m_live")
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil || msg.Body != "ping" {
		t.Fatalf("live message not ingested: %+v", msg)
	}
}

func TestPinLimit(t *testing.T) {
	f := newFixture(t)
	for _, room := range []string{"r1", "r2", "r3", "r4"} {
		f.seedRoom(t, room)
	}
	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	for _, room := range []string{"r1", "r2", "r3"} {
		if err := f.syncer.Pin(room); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.syncer.Pin("r4"); !errors.Is(err, ErrPinLimit) {
		t.Fatalf("fourth pin error = %v, want ErrPinLimit", err)
	}
	// Re-pinning an already pinned room is not limited.
	if err := f.syncer.Pin("r1"); err != nil {
		t.Errorf("re-pin failed: %v", err)
	}
	if err := f.syncer.Unpin("r1"); err != nil {
		t.Fatal(err)
	}
	if err := f.syncer.Pin("r4"); err != nil {
		t.Errorf("pin after unpin failed: %v", err)
	}
}

func TestDeleteMessageForMe(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "room_1")
	if err := f.db.UpsertMessage(&store.Message{
		OwnerID: owner, RoomID: "room_1", MsgID: "m1", SenderID: "u2",
		Kind: store.MsgText, Body: "x", Status: store.StatusRead,
		Timestamp: 1000, UpdatedAt: 1000,
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.syncer.Start(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	if err := f.syncer.DeleteMessage("room_1", "m1", store.DeleteForMe); err != nil {
		t.Fatal(err)
	}
	msgs, _ := f.syncer.Messages("room_1", 50, 0)
	if len(msgs) != 0 {
		t.Error("deleted-for-me message still listed")
	}
	if n, _ := f.queue.Len(); n != 1 {
		t.Errorf("delete not queued offline")
	}
}

func TestDeleteForEveryoneRequiresOwnMessage(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "room_1")
	if err := f.db.UpsertMessage(&store.Message{
		OwnerID: owner, RoomID: "room_1", MsgID: "m1", SenderID: "u2",
		Kind: store.MsgText, Body: "theirs", Status: store.StatusRead,
		Timestamp: 1000, UpdatedAt: 1000,
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	if err := f.syncer.DeleteMessage("room_1", "m1", store.DeleteForEveryone); err == nil {
		t.Fatal("expected error deleting someone else's message for everyone")
	}
}

func TestEditMessage(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "room_1")
	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	msg, err := f.syncer.SendMessage(OutgoingMessage{RoomID: "room_1", Body: "typo"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.syncer.EditMessage("room_1", msg.MsgID, "fixed"); err != nil {
		t.Fatal(err)
	}

	got, _ := f.db.GetMessage(owner, "room_1", msg.MsgID)
	if got.Body != "fixed" || !got.IsEdit {
		t.Errorf("edited message = %+v", got)
	}
}

func TestDirectRoomIDSymmetric(t *testing.T) {
	if DirectRoomID("b", "a") != DirectRoomID("a", "b") {
		t.Error("direct room id depends on argument order")
	}
	if DirectRoomID("a", "b") != "a:b" {
		t.Errorf("got %s", DirectRoomID("a", "b"))
	}
}

func TestCreateDirectRoom(t *testing.T) {
	f := newFixture(t)
	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	conv, err := f.syncer.CreateDirectRoom("u2")
	if err != nil {
		t.Fatal(err)
	}
	if conv.Kind != store.ConvPrivate {
		t.Errorf("kind = %s", conv.Kind)
	}
	if conv.RoomID != DirectRoomID(owner, "u2") {
		t.Errorf("room id = %s", conv.RoomID)
	}
	if f.remote.SubscriberCount(conv.RoomID) != 1 {
		t.Error("new direct room not subscribed")
	}
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	conv, err := f.syncer.CreateGroup("Weekend Trip", []string{"u2", "u3"})
	if err != nil {
		t.Fatal(err)
	}
	if conv.Kind != store.ConvGroup || conv.Title != "Weekend Trip" {
		t.Errorf("conv = %+v", conv)
	}
	if len(conv.Members) != 3 {
		t.Errorf("members = %v", conv.Members)
	}
	if len(conv.AdminIDs) != 1 || conv.AdminIDs[0] != owner {
		t.Errorf("admins = %v", conv.AdminIDs)
	}
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "room_1")
	ch, cancel := f.bus.Subscribe(bus.KindConversationDeleted, 4)
	defer cancel()
	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	if err := f.syncer.DeleteConversation("room_1"); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, ch, bus.KindConversationDeleted)
	conv, err := f.db.GetConversation(owner, "room_1")
	if err != nil {
		t.Fatal(err)
	}
	if conv != nil {
		t.Error("conversation still present after delete")
	}
}

func TestMessageDetailAggregatesReceipts(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "room_1")
	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	msg, err := f.syncer.SendMessage(OutgoingMessage{RoomID: "room_1", Body: "status check"})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []store.Receipt{
		{MsgID: msg.MsgID, UserID: "u2", Kind: store.ReceiptDelivered, Timestamp: 2000},
		{MsgID: msg.MsgID, UserID: "u2", Kind: store.ReceiptRead, Timestamp: 2500},
		{MsgID: msg.MsgID, UserID: "u3", Kind: store.ReceiptDelivered, Timestamp: 2100},
	} {
		r := r
		if err := f.db.UpsertReceipt(owner, &r); err != nil {
			t.Fatal(err)
		}
	}

	info, err := f.syncer.MessageDetail("room_1", msg.MsgID)
	if err != nil {
		t.Fatal(err)
	}
	if info.DisplayStatus != store.StatusRead {
		t.Errorf("display status = %s, want read", info.DisplayStatus)
	}
	if info.Receipts.DeliveredCount() != 2 || info.Receipts.ReadCount() != 1 {
		t.Errorf("receipts = %+v", info.Receipts)
	}
}

func TestResyncToleratesMalformedPayload(t *testing.T) {
	f := newFixture(t)
	f.remote.Put(remote.ConversationsPath(owner), "not a snapshot list")

	ch, cancel := f.bus.Subscribe(bus.KindSyncResyncDone, 4)
	defer cancel()

	if err := f.syncer.Start(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, ch, bus.KindSyncResyncDone)
}

func TestSetOnlineBeforeStartIsIgnored(t *testing.T) {
	f := newFixture(t)

	f.syncer.SetOnline(true)
	if f.syncer.Online() {
		t.Error("online = true before Start")
	}
}
