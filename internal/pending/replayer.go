package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatsyncd/chatsync/internal/bus"
	"github.com/chatsyncd/chatsync/internal/delivery"
	"github.com/chatsyncd/chatsync/internal/remote"
	"github.com/chatsyncd/chatsync/internal/store"
)

// Policy bounds retries and dispatch time.
type Policy struct {
	RetryBudget     int
	BackoffBase     time.Duration
	DispatchTimeout time.Duration
}

// Replayer drains the pending action queue against the remote store.
// Actions replay in enqueue order; a transient failure leaves the
// failed action in place and stops the pass so later actions cannot
// overtake the one they may depend on.
type Replayer struct {
	db      *store.DB
	queue   *Queue
	remote  remote.Store
	bus     *bus.Bus
	logger  *zap.Logger
	policy  Policy
	ownerID string
	cancel  context.CancelFunc

	// drainMu serializes passes: the tick loop and an explicit
	// reconnect drain must never dispatch the same action twice.
	drainMu sync.Mutex
}

// NewReplayer creates a replayer for one owner account.
func NewReplayer(db *store.DB, q *Queue, r remote.Store, b *bus.Bus, logger *zap.Logger, ownerID string, policy Policy) *Replayer {
	if policy.RetryBudget <= 0 {
		policy.RetryBudget = 5
	}
	if policy.BackoffBase <= 0 {
		policy.BackoffBase = 500 * time.Millisecond
	}
	if policy.DispatchTimeout <= 0 {
		policy.DispatchTimeout = 10 * time.Second
	}
	return &Replayer{
		db: db, queue: q, remote: r, bus: b, logger: logger,
		policy: policy, ownerID: ownerID,
	}
}

// Start begins periodically draining the queue until Stop or ctx done.
func (r *Replayer) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
}

// Stop stops the drain loop.
func (r *Replayer) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Replayer) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Drain replays queued actions in enqueue order. Returns the number of
// actions acknowledged this pass. Only one pass runs at a time; a
// concurrent caller blocks until the current pass finishes.
func (r *Replayer) Drain(ctx context.Context) int {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	actions, err := r.queue.PeekAll()
	if err != nil {
		r.logger.Error("failed to read pending queue", zap.Error(err))
		return 0
	}

	now := time.Now().UnixMilli()
	acked := 0
	for _, a := range actions {
		if ctx.Err() != nil {
			return acked
		}
		if a.NextAttemptAt > now {
			// Backing off. Later actions must not overtake this one.
			return acked
		}

		err := r.dispatch(ctx, &a)
		switch {
		case err == nil:
			r.ack(&a)
			acked++
		case remote.IsPermanent(err):
			r.fail(&a, err)
		default:
			r.retry(&a, err)
			// Stop the pass: replay order is global.
			return acked
		}
	}
	return acked
}

// dispatch writes one action to the remote with a bounded timeout. A
// timeout is a transient failure ("no response"), never a rejection.
func (r *Replayer) dispatch(ctx context.Context, a *store.PendingAction) error {
	ctx, cancel := context.WithTimeout(ctx, r.policy.DispatchTimeout)
	defer cancel()

	path, err := r.pathFor(a)
	if err != nil {
		return &remote.PermanentError{Reason: err.Error()}
	}
	return r.remote.Write(ctx, path, json.RawMessage(a.Payload))
}

func (r *Replayer) pathFor(a *store.PendingAction) (string, error) {
	switch a.Type {
	case store.ActionSendMessage, store.ActionEditMessage:
		return remote.MessagePath(a.RoomID, a.MsgID), nil
	case store.ActionDeleteMessage:
		return remote.DeletePath(a.RoomID, a.MsgID), nil
	case store.ActionMarkRead:
		return remote.ReadMarkPath(a.RoomID, r.ownerID), nil
	case store.ActionMarkDelivered:
		return remote.ReceiptPath(a.RoomID, a.MsgID, r.ownerID), nil
	case store.ActionPin, store.ActionUnpin, store.ActionArchive, store.ActionUnarchive:
		return remote.RoomFlagsPath(r.ownerID, a.RoomID), nil
	case store.ActionFollow, store.ActionUnfollow:
		var p struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal([]byte(a.Payload), &p); err != nil || p.UserID == "" {
			return "", fmt.Errorf("follow action %d has no user_id", a.ID)
		}
		return remote.FollowPath(r.ownerID, p.UserID), nil
	default:
		return "", fmt.Errorf("unknown action type %q", a.Type)
	}
}

func (r *Replayer) ack(a *store.PendingAction) {
	if err := r.queue.Dequeue(a.ID); err != nil {
		r.logger.Error("failed to dequeue acked action", zap.Error(err), zap.Int64("action_id", a.ID))
		return
	}
	if a.Type == store.ActionSendMessage {
		r.markSent(a)
	}
	r.logger.Info("pending action acknowledged",
		zap.Int64("action_id", a.ID), zap.String("type", string(a.Type)))
	r.bus.Publish(bus.Event{
		Kind:    bus.KindActionAcked,
		At:      time.Now(),
		OwnerID: r.ownerID,
		Payload: bus.ActionResult{ActionID: a.ID, Type: string(a.Type), RoomID: a.RoomID, MsgID: a.MsgID},
	})
}

// markSent promotes an acked outbound message to sent, unless a live
// receipt already moved it further along.
func (r *Replayer) markSent(a *store.PendingAction) {
	msg, err := r.db.GetMessage(r.ownerID, a.RoomID, a.MsgID)
	if err != nil || msg == nil {
		if err != nil {
			r.logger.Error("failed to read acked message", zap.Error(err), zap.String("msg_id", a.MsgID))
		}
		return
	}
	if _, terr := delivery.Transition(msg.Status, store.StatusSent); terr != nil {
		// Already delivered or read; the ack arrived late.
		return
	}
	if err := r.db.UpdateMessageStatus(r.ownerID, a.MsgID, store.StatusSent); err != nil {
		r.logger.Error("failed to mark message sent", zap.Error(err), zap.String("msg_id", a.MsgID))
		return
	}
	r.bus.Publish(bus.Event{
		Kind:    bus.KindMessageUpserted,
		At:      time.Now(),
		OwnerID: r.ownerID,
		Payload: bus.MessageRef{RoomID: a.RoomID, MsgID: a.MsgID},
	})
}

// fail drops a permanently rejected action and surfaces it as a
// reportable failure instead of retrying forever.
func (r *Replayer) fail(a *store.PendingAction, cause error) {
	if err := r.queue.Dequeue(a.ID); err != nil {
		r.logger.Error("failed to drop rejected action", zap.Error(err), zap.Int64("action_id", a.ID))
		return
	}
	if a.Type == store.ActionSendMessage {
		if err := r.db.UpdateMessageStatus(r.ownerID, a.MsgID, store.StatusFailed); err != nil {
			r.logger.Error("failed to mark message failed", zap.Error(err), zap.String("msg_id", a.MsgID))
		}
		r.bus.Publish(bus.Event{
			Kind:    bus.KindMessageSendFailed,
			At:      time.Now(),
			OwnerID: r.ownerID,
			Payload: bus.MessageRef{RoomID: a.RoomID, MsgID: a.MsgID},
		})
	}
	r.logger.Warn("pending action rejected",
		zap.Int64("action_id", a.ID), zap.String("type", string(a.Type)), zap.Error(cause))
	r.bus.Publish(bus.Event{
		Kind:    bus.KindActionFailed,
		At:      time.Now(),
		OwnerID: r.ownerID,
		Payload: bus.ActionResult{ActionID: a.ID, Type: string(a.Type), RoomID: a.RoomID, MsgID: a.MsgID, Err: cause.Error()},
	})
}

// retry schedules the next attempt with exponential backoff, or fails
// the action once the budget is exhausted.
func (r *Replayer) retry(a *store.PendingAction, cause error) {
	if a.RetryCount+1 >= r.policy.RetryBudget {
		r.fail(a, fmt.Errorf("retry budget exhausted after %d attempts: %w", a.RetryCount+1, cause))
		return
	}
	backoff := r.policy.BackoffBase << uint(a.RetryCount)
	next := time.Now().Add(backoff).UnixMilli()
	if err := r.db.BumpActionRetry(a.ID, next, cause.Error()); err != nil {
		r.logger.Error("failed to bump retry", zap.Error(err), zap.Int64("action_id", a.ID))
		return
	}
	r.logger.Warn("pending action dispatch failed, will retry",
		zap.Int64("action_id", a.ID), zap.String("type", string(a.Type)),
		zap.Duration("backoff", backoff), zap.Error(cause))
}
