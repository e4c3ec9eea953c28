package remote

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Store used as the daemon's loopback backend
// and as the test double. Writes are recorded by path; tests emit
// events to subscribed rooms with Emit.
type Memory struct {
	mu      sync.Mutex
	values  map[string]any
	writes  []Write
	subs    map[string][]*memorySub
	writeFn func(path string, value any) error
}

// Write records one Write call for inspection.
type Write struct {
	Path  string
	Value any
}

type memorySub struct {
	roomID string
	ch     chan Event
	once   sync.Once
}

// NewMemory creates an empty in-memory remote store.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]any),
		subs:   make(map[string][]*memorySub),
	}
}

// FailWith installs a hook invoked on every Write; returning a non-nil
// error makes the write fail. Pass nil to clear.
func (m *Memory) FailWith(fn func(path string, value any) error) {
	m.mu.Lock()
	m.writeFn = fn
	m.mu.Unlock()
}

func (m *Memory) Subscribe(ctx context.Context, roomID string) (<-chan Event, func(), error) {
	sub := &memorySub{roomID: roomID, ch: make(chan Event, 64)}
	m.mu.Lock()
	m.subs[roomID] = append(m.subs[roomID], sub)
	m.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			// Remove and close under the same lock Emit sends under, so
			// no event can land on a closed channel.
			m.mu.Lock()
			list := m.subs[roomID]
			for i, s := range list {
				if s == sub {
					m.subs[roomID] = append(list[:i], list[i+1:]...)
					break
				}
			}
			close(sub.ch)
			m.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return sub.ch, cancel, nil
}

func (m *Memory) Write(_ context.Context, path string, value any) error {
	m.mu.Lock()
	fn := m.writeFn
	m.mu.Unlock()
	if fn != nil {
		if err := fn(path, value); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.values[path] = value
	m.writes = append(m.writes, Write{Path: path, Value: value})
	m.mu.Unlock()
	return nil
}

func (m *Memory) Fetch(_ context.Context, path string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[path], nil
}

// Put seeds a fetchable value, e.g. a conversation list for resync.
func (m *Memory) Put(path string, value any) {
	m.mu.Lock()
	m.values[path] = value
	m.mu.Unlock()
}

// Writes returns a copy of all recorded writes.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}

// WritesUnder returns recorded writes whose path starts with prefix.
func (m *Memory) WritesUnder(prefix string) []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Write
	for _, w := range m.writes {
		if strings.HasPrefix(w.Path, prefix) {
			out = append(out, w)
		}
	}
	return out
}

// Emit delivers an event to every subscriber of the room. Full
// subscriber buffers drop the event, matching real change streams that
// do not wait for slow clients.
func (m *Memory) Emit(roomID string, evt Event) {
	if evt.ConversationID == "" {
		evt.ConversationID = roomID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs[roomID] {
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// SubscriberCount reports how many live listeners a room has.
func (m *Memory) SubscriberCount(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[roomID])
}
