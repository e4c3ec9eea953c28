// Package syncer coordinates the local store, the pending action queue
// and the remote connection for a single signed-in account.
//
// A Syncer is the session object: create one after the account is
// resolved, call Start once, Close on logout. All write intents
// (sending, editing, deleting, pinning, ...) go through it so the
// optimistic local write, the event publication and the remote dispatch
// always happen in the same order.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatsyncd/chatsync/internal/bus"
	"github.com/chatsyncd/chatsync/internal/delivery"
	"github.com/chatsyncd/chatsync/internal/notify"
	"github.com/chatsyncd/chatsync/internal/pending"
	"github.com/chatsyncd/chatsync/internal/reconcile"
	"github.com/chatsyncd/chatsync/internal/remote"
	"github.com/chatsyncd/chatsync/internal/store"
)

// ErrPinLimit is returned by Pin when the account already has the
// maximum number of pinned conversations.
var ErrPinLimit = errors.New("pin limit reached")

// Options tune per-session behavior. Zero values fall back to the
// defaults used by config.Default.
type Options struct {
	PageSize        int
	PinLimit        int
	DispatchTimeout time.Duration
}

// Syncer owns the sync lifecycle for one account.
type Syncer struct {
	db       *store.DB
	queue    *pending.Queue
	replayer *pending.Replayer
	rec      *reconcile.Reconciler
	remote   remote.Store
	bus      *bus.Bus
	notifier notify.Notifier
	logger   *zap.Logger
	ownerID  string
	opts     Options

	mu      sync.Mutex
	online  bool
	started bool
	subs    map[string]func()
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(db *store.DB, queue *pending.Queue, replayer *pending.Replayer, rec *reconcile.Reconciler, rem remote.Store, b *bus.Bus, notifier notify.Notifier, logger *zap.Logger, ownerID string, opts Options) *Syncer {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.PinLimit <= 0 {
		opts.PinLimit = 3
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 10 * time.Second
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Syncer{
		db:       db,
		queue:    queue,
		replayer: replayer,
		rec:      rec,
		remote:   rem,
		bus:      b,
		notifier: notifier,
		logger:   logger.Named("syncer"),
		ownerID:  ownerID,
		opts:     opts,
		subs:     make(map[string]func()),
	}
}

// Start publishes the cached conversation list immediately, then, when
// the session is online, drains the pending queue, runs a full resync
// and opens live subscriptions for every known room. The cached list is
// published before any network work so the UI renders without waiting.
func (s *Syncer) Start(ctx context.Context, online bool) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("syncer already started")
	}
	s.started = true
	s.online = online
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	convs, err := s.db.ListConversations(s.ownerID, false)
	if err != nil {
		return fmt.Errorf("loading cached conversations: %w", err)
	}
	s.bus.Publish(bus.Event{Kind: bus.KindSyncCacheLoaded, At: time.Now(), OwnerID: s.ownerID, Payload: convs})
	s.logger.Info("cache published", zap.Int("conversations", len(convs)), zap.Bool("online", online))

	if online {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.drainThenResync(s.ctx)
		}()
	}
	return nil
}

// SetOnline flips connectivity. An offline to online transition drains
// the pending queue before resyncing, so locally queued actions reach
// the remote before its state is pulled back down. Going offline tears
// down room subscriptions. Calls before Start are ignored.
func (s *Syncer) SetOnline(online bool) {
	s.mu.Lock()
	if !s.started || s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	ctx := s.ctx
	s.mu.Unlock()

	if online {
		s.bus.Publish(bus.Event{Kind: bus.KindSyncOnline, At: time.Now(), OwnerID: s.ownerID})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.drainThenResync(ctx)
		}()
		return
	}
	s.bus.Publish(bus.Event{Kind: bus.KindSyncOffline, At: time.Now(), OwnerID: s.ownerID})
	s.dropSubscriptions()
}

// Online reports the current connectivity flag.
func (s *Syncer) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Close stops background work and closes every room subscription. The
// local store and pending queue are left intact for the next session.
func (s *Syncer) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.dropSubscriptions()
	s.wg.Wait()
}

func (s *Syncer) dropSubscriptions() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]func())
	s.mu.Unlock()
	for _, cancel := range subs {
		cancel()
	}
}

// drainThenResync is the offline-to-online recovery path. Order
// matters: queued local actions are flushed first so the subsequent
// snapshot fetch already reflects them.
func (s *Syncer) drainThenResync(ctx context.Context) {
	if s.replayer != nil {
		n := s.replayer.Drain(ctx)
		if n > 0 {
			s.logger.Info("queue drained", zap.Int("acked", n))
		}
	}
	if err := s.resync(ctx); err != nil {
		s.logger.Warn("resync failed", zap.Error(err))
		return
	}
	s.bus.Publish(bus.Event{Kind: bus.KindSyncResyncDone, At: time.Now(), OwnerID: s.ownerID})
}

func (s *Syncer) resync(ctx context.Context) error {
	v, err := s.remote.Fetch(ctx, remote.ConversationsPath(s.ownerID))
	if err != nil {
		return fmt.Errorf("fetching conversations: %w", err)
	}
	snaps, ok := v.([]*remote.ConversationSnapshot)
	if !ok && v != nil {
		s.logger.Warn("unexpected conversations payload",
			zap.String("path", remote.ConversationsPath(s.ownerID)),
			zap.Any("value", v))
	}
	for _, snap := range snaps {
		if err := s.rec.ApplyConversationSnapshot(snap); err != nil {
			s.logger.Warn("snapshot apply failed", zap.String("room", snap.RoomID), zap.Error(err))
			continue
		}
		if err := s.resyncRoom(ctx, snap.RoomID); err != nil {
			s.logger.Warn("room resync failed", zap.String("room", snap.RoomID), zap.Error(err))
		}
	}
	convs, err := s.db.ListConversations(s.ownerID, true)
	if err != nil {
		return err
	}
	for _, c := range convs {
		s.subscribeRoom(c.RoomID)
	}
	return nil
}

func (s *Syncer) resyncRoom(ctx context.Context, roomID string) error {
	v, err := s.remote.Fetch(ctx, remote.MessagesPath(roomID))
	if err != nil {
		return err
	}
	msgs, ok := v.([]*remote.MessagePayload)
	if !ok && v != nil {
		s.logger.Warn("unexpected messages payload",
			zap.String("path", remote.MessagesPath(roomID)),
			zap.Any("value", v))
	}
	if len(msgs) == 0 {
		return nil
	}
	return s.rec.ApplyMessageBatch(roomID, msgs)
}

// subscribeRoom opens a live event stream for one room. Safe to call
// repeatedly; a room already subscribed is left alone.
func (s *Syncer) subscribeRoom(roomID string) {
	s.mu.Lock()
	if !s.online || s.ctx == nil {
		s.mu.Unlock()
		return
	}
	if _, ok := s.subs[roomID]; ok {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	ch, cancel, err := s.remote.Subscribe(ctx, roomID)
	if err != nil {
		s.logger.Warn("subscribe failed", zap.String("room", roomID), zap.Error(err))
		return
	}

	s.mu.Lock()
	if _, ok := s.subs[roomID]; ok {
		s.mu.Unlock()
		cancel()
		return
	}
	s.subs[roomID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				s.rec.HandleEvent(evt)
			}
		}
	}()
}

func (s *Syncer) unsubscribeRoom(roomID string) {
	s.mu.Lock()
	cancel, ok := s.subs[roomID]
	delete(s.subs, roomID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// dispatchOrEnqueue is the single choke point for outgoing actions.
// Offline, the action is enqueued durably and nil is returned: the
// optimistic local state stands until replay settles it. Online, a
// transient write failure also falls back to the queue; only a
// permanent rejection surfaces as an error to the caller.
func (s *Syncer) dispatchOrEnqueue(typ store.ActionType, roomID, msgID, path string, payload any) (dispatched bool, err error) {
	if !s.Online() {
		_, qerr := s.queue.Enqueue(typ, roomID, msgID, payload)
		return false, qerr
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.DispatchTimeout)
	defer cancel()
	werr := s.remote.Write(ctx, path, payload)
	if werr == nil {
		return true, nil
	}
	if remote.IsPermanent(werr) {
		return false, werr
	}
	s.logger.Debug("dispatch deferred", zap.String("type", string(typ)), zap.Error(werr))
	_, qerr := s.queue.Enqueue(typ, roomID, msgID, payload)
	return false, qerr
}

// OutgoingMessage describes a message about to be sent. Attachment is
// optional and stored alongside the message when present.
type OutgoingMessage struct {
	RoomID       string
	Kind         store.MessageKind
	Body         string
	ReceiverID   string
	ReplyToMsgID string
	Attachment   *store.Attachment
}

// SendMessage writes the message optimistically with status pending,
// then dispatches it. The returned message reflects the status after
// dispatch: sent when the remote acked synchronously, pending when the
// action was queued, failed on a permanent rejection.
func (s *Syncer) SendMessage(out OutgoingMessage) (*store.Message, error) {
	if out.RoomID == "" {
		return nil, errors.New("room id required")
	}
	if out.Kind == "" {
		out.Kind = store.MsgText
	}
	now := time.Now().UnixMilli()
	msg := &store.Message{
		OwnerID:      s.ownerID,
		MsgID:        uuid.NewString(),
		RoomID:       out.RoomID,
		SenderID:     s.ownerID,
		ReceiverID:   out.ReceiverID,
		Kind:         out.Kind,
		Body:         out.Body,
		ReplyToMsgID: out.ReplyToMsgID,
		FromMe:       true,
		Status:       store.StatusPending,
		Timestamp:    now,
		UpdatedAt:    now,
	}
	if err := s.db.UpsertMessage(msg); err != nil {
		return nil, fmt.Errorf("storing message: %w", err)
	}
	if out.Attachment != nil {
		att := *out.Attachment
		att.OwnerID = s.ownerID
		att.MsgID = msg.MsgID
		if att.UpdatedAt == 0 {
			att.UpdatedAt = now
		}
		if err := s.db.UpsertAttachment(&att); err != nil {
			return nil, fmt.Errorf("storing attachment: %w", err)
		}
	}
	s.publishMessage(out.RoomID, msg.MsgID)

	payload := &remote.MessagePayload{
		MsgID:        msg.MsgID,
		RoomID:       msg.RoomID,
		SenderID:     msg.SenderID,
		ReceiverID:   msg.ReceiverID,
		Kind:         string(msg.Kind),
		Body:         msg.Body,
		ReplyToMsgID: msg.ReplyToMsgID,
		Timestamp:    msg.Timestamp,
		UpdatedAt:    msg.UpdatedAt,
	}
	dispatched, err := s.dispatchOrEnqueue(store.ActionSendMessage, msg.RoomID, msg.MsgID, remote.MessagePath(msg.RoomID, msg.MsgID), payload)
	if err != nil {
		s.failMessage(msg, err)
		return msg, err
	}
	if dispatched {
		if uerr := s.db.UpdateMessageStatus(s.ownerID, msg.MsgID, store.StatusSent); uerr != nil {
			return msg, uerr
		}
		msg.Status = store.StatusSent
		s.publishMessage(msg.RoomID, msg.MsgID)
	}
	return msg, nil
}

func (s *Syncer) failMessage(msg *store.Message, cause error) {
	if err := s.db.UpdateMessageStatus(s.ownerID, msg.MsgID, store.StatusFailed); err != nil {
		s.logger.Warn("marking message failed", zap.String("msg", msg.MsgID), zap.Error(err))
		return
	}
	msg.Status = store.StatusFailed
	s.bus.Publish(bus.Event{
		Kind:    bus.KindMessageSendFailed,
		At:      time.Now(),
		OwnerID: s.ownerID,
		Payload: bus.MessageRef{RoomID: msg.RoomID, MsgID: msg.MsgID},
	})
	s.logger.Warn("message rejected by remote", zap.String("msg", msg.MsgID), zap.Error(cause))
}

func (s *Syncer) publishMessage(roomID, msgID string) {
	s.bus.Publish(bus.Event{
		Kind:    bus.KindMessageUpserted,
		At:      time.Now(),
		OwnerID: s.ownerID,
		Payload: bus.MessageRef{RoomID: roomID, MsgID: msgID},
	})
	s.publishConversation(roomID)
}

func (s *Syncer) publishConversation(roomID string) {
	conv, err := s.db.GetConversation(s.ownerID, roomID)
	if err != nil || conv == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: bus.KindConversationUpdated, At: time.Now(), OwnerID: s.ownerID, Payload: conv})
}

// EditMessage replaces the body of an own message and flags it as
// edited. Only messages authored by this account can be edited.
func (s *Syncer) EditMessage(roomID, msgID, body string) error {
	msg, err := s.db.GetMessage(s.ownerID, roomID, msgID)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("message %s not found", msgID)
	}
	if !msg.FromMe {
		return errors.New("cannot edit a message from someone else")
	}
	msg.Body = body
	msg.IsEdit = true
	msg.UpdatedAt = time.Now().UnixMilli()
	if err := s.db.UpsertMessage(msg); err != nil {
		return err
	}
	s.publishMessage(roomID, msgID)

	payload := &remote.MessagePayload{
		MsgID:     msgID,
		RoomID:    roomID,
		SenderID:  s.ownerID,
		Kind:      string(msg.Kind),
		Body:      body,
		IsEdit:    true,
		Timestamp: msg.Timestamp,
		UpdatedAt: msg.UpdatedAt,
	}
	_, err = s.dispatchOrEnqueue(store.ActionEditMessage, roomID, msgID, remote.MessagePath(roomID, msgID), payload)
	return err
}

// DeleteMessage tombstones a message. Scope for_me hides it locally
// and for this account on the remote; for_everyone flags it for all
// participants and only applies to own messages.
func (s *Syncer) DeleteMessage(roomID, msgID string, scope store.DeleteScope) error {
	now := time.Now().UnixMilli()
	switch scope {
	case store.DeleteForMe:
		if err := s.db.TombstoneForUser(s.ownerID, msgID, s.ownerID, now); err != nil {
			return err
		}
	case store.DeleteForEveryone:
		msg, err := s.db.GetMessage(s.ownerID, roomID, msgID)
		if err != nil {
			return err
		}
		if msg != nil && !msg.FromMe {
			return errors.New("can only delete own messages for everyone")
		}
		if err := s.db.TombstoneForEveryone(s.ownerID, msgID, now); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown delete scope %q", scope)
	}
	s.publishMessage(roomID, msgID)

	payload := &remote.DeletePayload{MsgID: msgID, RoomID: roomID, Scope: string(scope), UserID: s.ownerID, Timestamp: now}
	_, err := s.dispatchOrEnqueue(store.ActionDeleteMessage, roomID, msgID, remote.DeletePath(roomID, msgID), payload)
	return err
}

// MarkRoomRead marks every inbound message in the room read locally,
// clears its notifications and propagates the read mark. The unread
// count drops to zero immediately and stays zero after a later resync,
// because a replayed snapshot cannot demote a read inbound message.
func (s *Syncer) MarkRoomRead(roomID string) error {
	n, err := s.db.MarkRoomRead(s.ownerID, roomID)
	if err != nil {
		return err
	}
	s.notifier.ClearNotificationsForRoom(roomID)
	if n == 0 {
		return nil
	}
	s.publishConversation(roomID)

	payload := &remote.ReceiptPayload{RoomID: roomID, UserID: s.ownerID, Kind: "read", Timestamp: time.Now().UnixMilli()}
	_, err = s.dispatchOrEnqueue(store.ActionMarkRead, roomID, "", remote.ReadMarkPath(roomID, s.ownerID), payload)
	return err
}

// MarkDelivered reports receipt of an inbound message to the remote.
func (s *Syncer) MarkDelivered(roomID, msgID string) error {
	payload := &remote.ReceiptPayload{MsgID: msgID, RoomID: roomID, UserID: s.ownerID, Kind: "delivered", Timestamp: time.Now().UnixMilli()}
	_, err := s.dispatchOrEnqueue(store.ActionMarkDelivered, roomID, msgID, remote.ReceiptPath(roomID, msgID, s.ownerID), payload)
	return err
}

// Pin pins a conversation, enforcing the per-account pin limit.
func (s *Syncer) Pin(roomID string) error {
	conv, err := s.db.GetConversation(s.ownerID, roomID)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("conversation %s not found", roomID)
	}
	if !conv.IsPinned {
		n, err := s.db.CountPinned(s.ownerID)
		if err != nil {
			return err
		}
		if n >= s.opts.PinLimit {
			return ErrPinLimit
		}
	}
	return s.setRoomFlag(roomID, store.ActionPin, func() error { return s.db.SetPinned(s.ownerID, roomID, true) })
}

// Unpin clears the pinned flag.
func (s *Syncer) Unpin(roomID string) error {
	return s.setRoomFlag(roomID, store.ActionUnpin, func() error { return s.db.SetPinned(s.ownerID, roomID, false) })
}

// Archive hides the conversation from the default list.
func (s *Syncer) Archive(roomID string) error {
	return s.setRoomFlag(roomID, store.ActionArchive, func() error { return s.db.SetArchived(s.ownerID, roomID, true) })
}

// Unarchive restores an archived conversation.
func (s *Syncer) Unarchive(roomID string) error {
	return s.setRoomFlag(roomID, store.ActionUnarchive, func() error { return s.db.SetArchived(s.ownerID, roomID, false) })
}

func (s *Syncer) setRoomFlag(roomID string, typ store.ActionType, apply func() error) error {
	if err := apply(); err != nil {
		return err
	}
	s.publishConversation(roomID)
	payload := map[string]any{"type": string(typ), "ts": time.Now().UnixMilli()}
	_, err := s.dispatchOrEnqueue(typ, roomID, "", remote.RoomFlagsPath(s.ownerID, roomID), payload)
	return err
}

// Follow subscribes to a contact's status updates.
func (s *Syncer) Follow(userID string) error {
	return s.setFollow(userID, true, store.ActionFollow)
}

// Unfollow removes a contact subscription.
func (s *Syncer) Unfollow(userID string) error {
	return s.setFollow(userID, false, store.ActionUnfollow)
}

func (s *Syncer) setFollow(userID string, followed bool, typ store.ActionType) error {
	if err := s.db.SetFollowed(s.ownerID, userID, followed); err != nil {
		return err
	}
	payload := map[string]any{"user_id": userID, "followed": followed, "ts": time.Now().UnixMilli()}
	_, err := s.dispatchOrEnqueue(typ, "", "", remote.FollowPath(s.ownerID, userID), payload)
	return err
}

// DirectRoomID derives the canonical room id for a one-to-one
// conversation. Both participants derive the same id regardless of who
// creates the room first.
func DirectRoomID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// CreateDirectRoom opens (or returns) the private conversation with
// one other user and subscribes to it when online.
func (s *Syncer) CreateDirectRoom(otherID string) (*store.Conversation, error) {
	if otherID == "" || otherID == s.ownerID {
		return nil, errors.New("invalid peer id")
	}
	roomID := DirectRoomID(s.ownerID, otherID)
	now := time.Now().UnixMilli()
	conv := &store.Conversation{
		OwnerID:   s.ownerID,
		RoomID:    roomID,
		Kind:      store.ConvPrivate,
		Members:   []string{s.ownerID, otherID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.UpsertConversation(conv); err != nil {
		return nil, err
	}
	s.publishConversation(roomID)
	s.subscribeRoom(roomID)

	snap := &remote.ConversationSnapshot{RoomID: roomID, Kind: string(store.ConvPrivate), Members: conv.Members, UpdatedAt: now}
	s.announceRoom(roomID, snap)
	return s.db.GetConversation(s.ownerID, roomID)
}

// CreateGroup creates a group conversation with this account as the
// initial admin.
func (s *Syncer) CreateGroup(title string, memberIDs []string) (*store.Conversation, error) {
	if title == "" {
		return nil, errors.New("group title required")
	}
	roomID := uuid.NewString()
	now := time.Now().UnixMilli()
	members := append([]string{s.ownerID}, memberIDs...)
	conv := &store.Conversation{
		OwnerID:   s.ownerID,
		RoomID:    roomID,
		Kind:      store.ConvGroup,
		Title:     title,
		Members:   members,
		AdminIDs:  []string{s.ownerID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.UpsertConversation(conv); err != nil {
		return nil, err
	}
	s.publishConversation(roomID)
	s.subscribeRoom(roomID)

	snap := &remote.ConversationSnapshot{RoomID: roomID, Kind: string(store.ConvGroup), Title: title, Members: members, AdminIDs: conv.AdminIDs, UpdatedAt: now}
	s.announceRoom(roomID, snap)
	return s.db.GetConversation(s.ownerID, roomID)
}

// announceRoom pushes a freshly created room to the remote. Offline
// creation skips the push: the room reaches the remote with the first
// queued message, and resync reconciles the snapshot.
func (s *Syncer) announceRoom(roomID string, snap *remote.ConversationSnapshot) {
	if !s.Online() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.DispatchTimeout)
	defer cancel()
	if err := s.remote.Write(ctx, remote.ConversationPath(roomID), snap); err != nil {
		s.logger.Warn("room announce failed", zap.String("room", roomID), zap.Error(err))
	}
}

// DeleteConversation removes the conversation and its messages locally
// and closes its subscription. Queued actions for the room are left in
// the queue; they settle against the remote on the next drain.
func (s *Syncer) DeleteConversation(roomID string) error {
	s.unsubscribeRoom(roomID)
	if err := s.db.DeleteConversation(s.ownerID, roomID); err != nil {
		return err
	}
	s.bus.Publish(bus.Event{Kind: bus.KindConversationDeleted, At: time.Now(), OwnerID: s.ownerID, Payload: bus.MessageRef{RoomID: roomID}})
	return nil
}

// Conversations returns the cached conversation list, pinned rooms
// first, newest activity next.
func (s *Syncer) Conversations(includeArchived bool) ([]store.Conversation, error) {
	return s.db.ListConversations(s.ownerID, includeArchived)
}

// Messages returns one page of a room's history in chronological
// order. A non-positive limit uses the configured page size.
func (s *Syncer) Messages(roomID string, limit, offset int) ([]store.Message, error) {
	if limit <= 0 {
		limit = s.opts.PageSize
	}
	return s.db.ListMessages(s.ownerID, roomID, limit, offset)
}

// Contacts lists the stored user directory.
func (s *Syncer) Contacts() ([]store.User, error) {
	return s.db.ListContacts(s.ownerID)
}

// MessageInfo bundles a message with its per-recipient receipt detail.
type MessageInfo struct {
	Message       *store.Message
	DisplayStatus store.MessageStatus
	Receipts      delivery.Aggregate
	Reactions     []store.Reaction
}

// MessageDetail returns a message together with its aggregated
// receipts, the display status derived from them and its reactions.
func (s *Syncer) MessageDetail(roomID, msgID string) (*MessageInfo, error) {
	msg, err := s.db.GetMessage(s.ownerID, roomID, msgID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("message %s not found", msgID)
	}
	receipts, err := s.db.ReceiptsFor(s.ownerID, msgID)
	if err != nil {
		return nil, err
	}
	reactions, err := s.db.ReactionsFor(s.ownerID, msgID)
	if err != nil {
		return nil, err
	}
	agg := delivery.Aggregated(receipts)
	return &MessageInfo{
		Message:       msg,
		DisplayStatus: delivery.DisplayStatus(msg.Status, receipts),
		Receipts:      agg,
		Reactions:     reactions,
	}, nil
}
