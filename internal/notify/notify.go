// Package notify is the seam to the OS notification collaborator. The
// sync core only signals that a room's unread state was cleared; the
// caller dismisses any notification tagged with that room id.
package notify

// Notifier dismisses OS-level notifications for a room. Matching is
// strictly by roomID string equality.
type Notifier interface {
	ClearNotificationsForRoom(roomID string)
}

// Noop is the default Notifier used when no collaborator is wired.
type Noop struct{}

func (Noop) ClearNotificationsForRoom(string) {}

// Func adapts a function to the Notifier interface.
type Func func(roomID string)

func (f Func) ClearNotificationsForRoom(roomID string) { f(roomID) }
