package delivery

import "github.com/chatsyncd/chatsync/internal/store"

// Aggregate is the per-message receipt view: which recipients have
// delivered/read and when. Used for group message-info views.
type Aggregate struct {
	DeliveredBy map[string]int64
	ReadBy      map[string]int64
}

// Aggregated de-duplicates receipts by user id per event kind, keeping
// only the most recent timestamp for each recipient.
func Aggregated(receipts []store.Receipt) Aggregate {
	agg := Aggregate{
		DeliveredBy: make(map[string]int64),
		ReadBy:      make(map[string]int64),
	}
	for _, r := range receipts {
		switch r.Kind {
		case store.ReceiptDelivered:
			if r.Timestamp > agg.DeliveredBy[r.UserID] {
				agg.DeliveredBy[r.UserID] = r.Timestamp
			}
		case store.ReceiptRead:
			if r.Timestamp > agg.ReadBy[r.UserID] {
				agg.ReadBy[r.UserID] = r.Timestamp
			}
		}
	}
	return agg
}

// DeliveredCount reports how many distinct recipients have the message.
func (a Aggregate) DeliveredCount() int { return len(a.DeliveredBy) }

// ReadCount reports how many distinct recipients have read the message.
func (a Aggregate) ReadCount() int { return len(a.ReadBy) }
