package pending

import (
	"path/filepath"
	"testing"

	"github.com/chatsyncd/chatsync/internal/store"
)

const owner = "u1"

func testDB(t *testing.T) *store.DB {
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
	return db
}

func TestQueueEnqueuePeekDequeue(t *testing.T) {
	q := NewQueue(testDB(t), owner)

	a1, err := q.Enqueue(store.ActionSendMessage, "room_1", "m1", map[string]string{"body": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	a2, err := q.Enqueue(store.ActionMarkRead, "room_1", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	actions, err := q.PeekAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0].ID != a1.ID || actions[1].ID != a2.ID {
		t.Error("actions out of enqueue order")
	}
	if actions[0].Payload != `{"body":"hi"}` {
		t.Errorf("payload = %q", actions[0].Payload)
	}
	if actions[1].Payload != "{}" {
		t.Errorf("nil payload stored as %q, want {}", actions[1].Payload)
	}

	if err := q.Dequeue(a1.ID); err != nil {
		t.Fatal(err)
	}
	n, err := q.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}

func TestQueueClear(t *testing.T) {
	q := NewQueue(testDB(t), owner)

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(store.ActionPin, "room_1", "", nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Clear(); err != nil {
		t.Fatal(err)
	}
	n, err := q.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("len after clear = %d, want 0", n)
	}
}

func TestQueueScopedByOwner(t *testing.T) {
	db := testDB(t)
	mine := NewQueue(db, owner)
	theirs := NewQueue(db, "other")

	if _, err := mine.Enqueue(store.ActionArchive, "room_1", "", nil); err != nil {
		t.Fatal(err)
	}
	n, err := theirs.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("other owner sees %d actions, want 0", n)
	}
}
