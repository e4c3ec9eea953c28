// Package delivery governs the outbound message lifecycle and the
// per-recipient receipt aggregation used for 1:1 and group fan-out.
package delivery

import (
	"fmt"
	"slices"

	"github.com/chatsyncd/chatsync/internal/store"
)

// validTransitions defines the allowed message status transitions:
// pending -> sent -> delivered -> read, with failed reachable from
// pending and sent.
var validTransitions = map[store.MessageStatus][]store.MessageStatus{
	store.StatusPending:   {store.StatusSent, store.StatusFailed},
	store.StatusSent:      {store.StatusDelivered, store.StatusRead, store.StatusFailed},
	store.StatusDelivered: {store.StatusRead},
	store.StatusRead:      {},
	store.StatusFailed:    {store.StatusPending}, // retry affordance
}

// Transition validates a status move and returns the new status, or an
// error if the move is not allowed. Same-status moves are no-ops (the
// remote re-sends events).
func Transition(from, to store.MessageStatus) (store.MessageStatus, error) {
	if from == to {
		return to, nil
	}
	if !slices.Contains(validTransitions[from], to) {
		return from, fmt.Errorf("invalid message status transition from %s to %s", from, to)
	}
	return to, nil
}

// rank orders statuses for display resolution. Higher wins.
var rank = map[store.MessageStatus]int{
	store.StatusFailed:    0,
	store.StatusPending:   1,
	store.StatusSent:      2,
	store.StatusDelivered: 3,
	store.StatusRead:      4,
}

// DisplayStatus resolves the sender-facing status from the stored
// lifecycle status and the aggregated receipts. Monotonic: once any
// recipient has read the message it is shown as read, never demoted to
// delivered regardless of other recipients.
func DisplayStatus(base store.MessageStatus, receipts []store.Receipt) store.MessageStatus {
	out := base
	for _, r := range receipts {
		var s store.MessageStatus
		switch r.Kind {
		case store.ReceiptRead:
			s = store.StatusRead
		case store.ReceiptDelivered:
			s = store.StatusDelivered
		default:
			continue
		}
		if rank[s] > rank[out] {
			out = s
		}
	}
	return out
}
