package chat

import (
	"context"
	"sync"
	"time"

	"chatsync/pkg/docstore"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// ReadTracker exposes the per-user last-read map of the bound
// conversation, rebuilt from every confirmed conversation snapshot.
type ReadTracker struct {
	mu     sync.RWMutex
	readAt map[string]time.Time
}

func NewReadTracker() *ReadTracker {
	return &ReadTracker{readAt: make(map[string]time.Time)}
}

// Reset seeds the map, usually from a freshly loaded chat.
func (t *ReadTracker) Reset(readAt map[string]time.Time) {
	next := make(map[string]time.Time, len(readAt))
	for k, v := range readAt {
		next[k] = v
	}
	t.mu.Lock()
	t.readAt = next
	t.mu.Unlock()
}

// ApplySnapshot recomputes the map from the latest version of the chat
// document in snap. Pending local writes are ignored. It reports whether
// the map was replaced.
func (t *ReadTracker) ApplySnapshot(snap docstore.Snapshot) bool {
	if snap.PendingLocalWrite || len(snap.Changes) == 0 {
		return false
	}
	last := snap.Changes[len(snap.Changes)-1]
	next := map[string]time.Time{}
	if last.Kind != docstore.ChangeRemoved && last.Doc != nil {
		next = models.ReadAtFromFields(last.Doc.Fields)
	}
	t.mu.Lock()
	t.readAt = next
	t.mu.Unlock()
	return true
}

// Cursors returns a copy of the map.
func (t *ReadTracker) Cursors() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]time.Time, len(t.readAt))
	for k, v := range t.readAt {
		out[k] = v
	}
	return out
}

func (t *ReadTracker) UnreadCount(m models.Message, participants []string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return UnreadCount(m, participants, t.readAt)
}

// UnreadCount counts participants whose cursor is absent or strictly
// earlier than the message's createdAt.
func UnreadCount(m models.Message, participants []string, readAt map[string]time.Time) int {
	n := 0
	for _, uid := range participants {
		ts, ok := readAt[uid]
		if !ok || ts.Before(m.CreatedAt) {
			n++
		}
	}
	return n
}

// markRead stamps the user's cursor with the store clock. It does not
// report failures; they are logged and counted.
func markRead(ctx context.Context, store Store, chatID, userID string) {
	err := store.Update(ctx, models.ChatPath(chatID), docstore.Fields{
		models.ReadAtField(userID): docstore.ServerTimestamp(),
	})
	if err != nil {
		markReads.WithLabelValues("error").Inc()
		logger.Warn("mark_read_failed", "chat", chatID, "user", userID, "error", err)
		return
	}
	markReads.WithLabelValues("ok").Inc()
	logger.Debug("mark_read", "chat", chatID, "user", userID)
}
