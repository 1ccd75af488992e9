package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatsync/pkg/blobstore"
	"chatsync/pkg/docstore"
	"chatsync/pkg/models"
)

var (
	base    = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func openDB(t *testing.T, opts ...docstore.Option) *docstore.DB {
	t.Helper()
	db, err := docstore.Open(t.TempDir(), append([]docstore.Option{docstore.WithSync(false)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func openBlobs(t *testing.T) *blobstore.FS {
	t.Helper()
	fs, err := blobstore.NewFS(t.TempDir(), blobstore.Options{PublicURL: "http://chat.test"})
	require.NoError(t, err)
	return fs
}

func seedUsers(t *testing.T, db *docstore.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		u := models.User{UserID: id, Email: id + "@example.com", Name: "name-" + id}
		require.NoError(t, db.Set(context.Background(), models.UserPath(id), u.Fields()))
	}
}

func newTestSession(t *testing.T, db *docstore.DB, blobs blobstore.Store, uid string, opts SessionOptions) *Session {
	t.Helper()
	client := docstore.NewClient(db)
	s := NewSession(Identity{UserID: uid}, client, blobs, opts)
	t.Cleanup(func() {
		s.Close()
		s.Wait()
		client.Close()
	})
	return s
}

func messageDoc(id string, f map[string]any) *docstore.Document {
	return &docstore.Document{ID: id, Path: "chats/c1/messages/" + id, Fields: f}
}

func textFields(text string, at any) map[string]any {
	return models.NewMessageFields(models.User{UserID: "u1", Name: "Ann"}, models.TextContent(text), at)
}
