package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/pkg/docstore"
	"chatsync/pkg/models"
)

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func added(docs ...*docstore.Document) docstore.Snapshot {
	snap := docstore.Snapshot{Path: "chats/c1/messages"}
	for _, d := range docs {
		snap.Changes = append(snap.Changes, docstore.Change{Kind: docstore.ChangeAdded, Doc: d})
	}
	return snap
}

func TestOptimisticThenFeedKeepsOneEach(t *testing.T) {
	r := NewReconciler(func() time.Time { return base })
	require.True(t, r.AddOptimistic(models.Message{ID: "m2", CreatedAt: base.Add(2 * time.Minute), Content: models.TextContent("two")}))

	n := r.ApplySnapshot(added(
		messageDoc("m3", textFields("three", base.Add(3*time.Minute))),
		messageDoc("m2", textFields("two", base.Add(2*time.Minute))),
		messageDoc("m1", textFields("one", base.Add(time.Minute))),
	))
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"m3", "m2", "m1"}, ids(r.Messages()))

	// redelivery changes nothing in shape
	r.ApplySnapshot(added(messageDoc("m2", textFields("two", base.Add(2*time.Minute)))))
	assert.Equal(t, []string{"m3", "m2", "m1"}, ids(r.Messages()))
}

func TestFeedWinsOverOptimistic(t *testing.T) {
	r := NewReconciler(nil)
	r.AddOptimistic(models.Message{ID: "m1", CreatedAt: base.Add(time.Hour), Content: models.TextContent("local")})
	r.ApplySnapshot(added(messageDoc("m1", textFields("server", base))))

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "server", msgs[0].Content.Text())
	assert.Equal(t, base, msgs[0].CreatedAt)

	// a late optimistic insert never overrides the feed
	assert.False(t, r.AddOptimistic(models.Message{ID: "m1", CreatedAt: base.Add(time.Hour), Content: models.TextContent("local")}))
	assert.Equal(t, "server", r.Messages()[0].Content.Text())
}

func TestPendingAndNonAddedChangesSkipped(t *testing.T) {
	r := NewReconciler(nil)
	pending := added(messageDoc("m1", textFields("x", nil)))
	pending.PendingLocalWrite = true
	assert.Equal(t, 0, r.ApplySnapshot(pending))

	modified := docstore.Snapshot{Changes: []docstore.Change{
		{Kind: docstore.ChangeModified, Doc: messageDoc("m2", textFields("y", base))},
		{Kind: docstore.ChangeRemoved, Doc: messageDoc("m3", textFields("z", base))},
	}}
	assert.Equal(t, 0, r.ApplySnapshot(modified))
	assert.Zero(t, r.Len())
}

func TestUnsetCreatedAtFallsBackToNow(t *testing.T) {
	now := base.Add(42 * time.Minute)
	r := NewReconciler(func() time.Time { return now })
	r.ApplySnapshot(added(messageDoc("m1", textFields("x", nil))))
	assert.Equal(t, now, r.Messages()[0].CreatedAt)
}

func TestImageDecodeFallbackChain(t *testing.T) {
	r := NewReconciler(nil)
	r.ApplySnapshot(added(
		messageDoc("new", map[string]any{models.FieldImageURL: "http://x/new.png", models.FieldCreatedAt: base.Add(2 * time.Second)}),
		messageDoc("legacy", map[string]any{models.FieldLegacyImageURL: "http://x/old.png", models.FieldCreatedAt: base.Add(time.Second)}),
		messageDoc("broken", map[string]any{models.FieldCreatedAt: base}),
	))
	msgs := r.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "http://x/new.png", msgs[0].Content.ImageURL())
	assert.Equal(t, "http://x/old.png", msgs[1].Content.ImageURL())
}

func TestMergeSortsNewestFirst(t *testing.T) {
	r := NewReconciler(nil)
	r.ApplySnapshot(added(messageDoc("late", textFields("b", base.Add(time.Hour)))))
	// an older batch arriving later still lands behind
	r.ApplySnapshot(added(messageDoc("early", textFields("a", base))))
	r.AddOptimistic(models.Message{ID: "mid", CreatedAt: base.Add(30 * time.Minute), Content: models.TextContent("m")})
	assert.Equal(t, []string{"late", "mid", "early"}, ids(r.Messages()))

	r.Reset()
	assert.Zero(t, r.Len())
}
