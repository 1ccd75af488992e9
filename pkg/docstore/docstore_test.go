package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), append([]Option{WithSync(false)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func next(t *testing.T, s *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestSetGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Set(ctx, "users/u1", Fields{
		"name":  "Ann",
		"tags":  []string{"a", "b"},
		"since": at,
		"meta":  map[string]any{"n": 3},
	}))

	d, err := db.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", d.ID)
	assert.Equal(t, "users/u1", d.Path)
	assert.Equal(t, "Ann", d.Fields["name"])
	assert.Equal(t, []any{"a", "b"}, d.Fields["tags"])
	assert.True(t, at.Equal(d.Fields["since"].(time.Time)))
	n, ok := d.Get("meta.n")
	require.True(t, ok)
	assert.Equal(t, float64(3), n)
}

func TestGetMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Get(context.Background(), "users/nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidPaths(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tests := []struct {
		name string
		fn   func() error
	}{
		{"empty", func() error { _, err := db.Get(ctx, ""); return err }},
		{"collection as doc", func() error { _, err := db.Get(ctx, "users"); return err }},
		{"doc as collection", func() error { _, err := db.List(ctx, "users/u1"); return err }},
		{"colon segment", func() error { return db.Set(ctx, "users/a:b", Fields{}) }},
		{"double slash", func() error { return db.Set(ctx, "users//x", Fields{}) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.fn(), ErrInvalidPath)
		})
	}
}

func TestServerTimestampResolved(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	db := openTestDB(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	require.NoError(t, db.Set(ctx, "chats/c1", Fields{"at": ServerTimestamp()}))
	d, err := db.Get(ctx, "chats/c1")
	require.NoError(t, err)
	assert.Equal(t, fixed, d.Fields["at"])
	assert.Equal(t, fixed, d.CreateTime)
}

func TestUpdateDottedKeys(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Set(ctx, "chats/c1", Fields{"userIds": []string{"a", "b"}}))
	require.NoError(t, db.Update(ctx, "chats/c1", Fields{"readAt.a": "x"}))
	require.NoError(t, db.Update(ctx, "chats/c1", Fields{"readAt.b": "y"}))

	d, err := db.Get(ctx, "chats/c1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "x", "b": "y"}, d.Fields["readAt"])
	assert.Equal(t, []any{"a", "b"}, d.Fields["userIds"])
}

func TestUpdateMissing(t *testing.T) {
	db := openTestDB(t)
	err := db.Update(context.Background(), "chats/none", Fields{"a": 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrderAndNesting(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Set(ctx, fmt.Sprintf("chats/c1/messages/m%d", i), Fields{"createdAt": base.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, db.Set(ctx, "chats/c1", Fields{}))
	require.NoError(t, db.Set(ctx, "chats/c2/messages/other", Fields{"createdAt": base}))

	docs, err := db.List(ctx, "chats/c1/messages", OrderBy("createdAt", Desc))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"m2", "m1", "m0"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})

	chats, err := db.List(ctx, "chats")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "c1", chats[0].ID)
}

func TestQueryEqualsArrayOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, "chats", Fields{"userIds": []string{"a", "b"}})
	require.NoError(t, err)
	_, err = db.Add(ctx, "chats", Fields{"userIds": []string{"b", "a"}})
	require.NoError(t, err)

	got, err := db.QueryEquals(ctx, "chats", "userIds", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []any{"a", "b"}, got[0].Fields["userIds"])
}

func TestAddUniqueConverges(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	created := make([]bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, ok, err := db.AddUnique(ctx, "chats", "userIds", []string{"a", "b"}, Fields{"users": []any{}})
			assert.NoError(t, err)
			ids[i], created[i] = id, ok
		}(i)
	}
	wg.Wait()

	n := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			n++
		}
	}
	assert.Equal(t, 1, n)

	docs, err := db.List(ctx, "chats")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestAddUniqueAdoptsExisting(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.Add(ctx, "chats", Fields{"userIds": []string{"a", "b"}})
	require.NoError(t, err)

	got, created, err := db.AddUnique(ctx, "chats", "userIds", []string{"a", "b"}, Fields{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, got)
}

func TestCollectionSubscription(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Set(ctx, "chats/c1/messages/m0", Fields{"text": "hi"}))

	sub, err := db.Subscribe(ctx, "chats/c1/messages")
	require.NoError(t, err)
	defer sub.Close()

	first := next(t, sub)
	assert.False(t, first.PendingLocalWrite)
	require.Len(t, first.Changes, 1)
	assert.Equal(t, ChangeAdded, first.Changes[0].Kind)

	require.NoError(t, db.Set(ctx, "chats/c1/messages/m1", Fields{"text": "yo"}))
	require.NoError(t, db.Set(ctx, "chats/c2/messages/x", Fields{"text": "elsewhere"}))
	require.NoError(t, db.Set(ctx, "chats/c1/messages/m1", Fields{"text": "edited"}))
	require.NoError(t, db.Delete(ctx, "chats/c1/messages/m0"))

	s1 := next(t, sub)
	assert.Equal(t, ChangeAdded, s1.Changes[0].Kind)
	assert.Equal(t, "m1", s1.Changes[0].Doc.ID)
	s2 := next(t, sub)
	assert.Equal(t, ChangeModified, s2.Changes[0].Kind)
	assert.Equal(t, "edited", s2.Changes[0].Doc.Fields["text"])
	s3 := next(t, sub)
	assert.Equal(t, ChangeRemoved, s3.Changes[0].Kind)
	assert.Equal(t, "m0", s3.Changes[0].Doc.ID)
}

func TestDocumentSubscriptionEmptyFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sub, err := db.Subscribe(ctx, "chats/c9")
	require.NoError(t, err)
	defer sub.Close()

	first := next(t, sub)
	assert.Empty(t, first.Changes)

	require.NoError(t, db.Set(ctx, "chats/c9", Fields{"a": true}))
	s := next(t, sub)
	assert.Equal(t, ChangeAdded, s.Changes[0].Kind)
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := db.Subscribe(ctx, "chats")
	require.NoError(t, err)
	next(t, sub)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientPendingThenCommitted(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Set(ctx, "chats/c1", Fields{"userIds": []string{"a"}}))

	mine := NewClient(db)
	defer mine.Close()
	theirs := NewClient(db)
	defer theirs.Close()

	subMine, err := mine.Subscribe(ctx, "chats/c1")
	require.NoError(t, err)
	subTheirs, err := theirs.Subscribe(ctx, "chats/c1")
	require.NoError(t, err)
	next(t, subMine)
	next(t, subTheirs)

	require.NoError(t, mine.Update(ctx, "chats/c1", Fields{"readAt.a": ServerTimestamp()}))

	pending := next(t, subMine)
	assert.True(t, pending.PendingLocalWrite)
	v, ok := pending.Changes[0].Doc.Get("readAt.a")
	assert.True(t, ok)
	assert.Nil(t, v)

	committed := next(t, subMine)
	assert.False(t, committed.PendingLocalWrite)
	v, _ = committed.Changes[0].Doc.Get("readAt.a")
	assert.IsType(t, time.Time{}, v)

	other := next(t, subTheirs)
	assert.False(t, other.PendingLocalWrite)
}

func TestClientCloseEndsSubscriptions(t *testing.T) {
	db := openTestDB(t)
	c := NewClient(db)
	sub, err := c.Subscribe(context.Background(), "chats")
	require.NoError(t, err)
	next(t, sub)

	c.Close()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	_, err = c.Subscribe(context.Background(), "chats")
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestClosedDB(t *testing.T) {
	db, err := Open(t.TempDir(), WithSync(false))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.Get(context.Background(), "users/u1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, db.Ready())
}
