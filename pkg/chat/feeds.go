package chat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"chatsync/pkg/docstore"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// FeedHandler receives snapshots for the conversation a Feeds is bound to.
type FeedHandler interface {
	OnMessages(chatID string, snap docstore.Snapshot)
	OnChat(chatID string, snap docstore.Snapshot)
}

// Feeds keeps at most one pair of live feeds open: the message feed
// ordered by createdAt descending and the conversation document feed.
// Each feed is drained by its own goroutine, so snapshots within a feed
// are handled in arrival order.
type Feeds struct {
	store   Store
	handler FeedHandler

	mu      sync.Mutex
	chatID  string
	subs    []*docstore.Subscription
	wg      sync.WaitGroup
	loading atomic.Bool
}

func NewFeeds(store Store, handler FeedHandler) *Feeds {
	return &Feeds{store: store, handler: handler}
}

// Bind opens both feeds for chatID, closing any feeds bound before.
func (f *Feeds) Bind(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbindLocked()

	msgs, err := f.store.Subscribe(ctx, models.MessagesPath(chatID), docstore.OrderBy(models.FieldCreatedAt, docstore.Desc))
	if err != nil {
		return fmt.Errorf("subscribe messages: %w", err)
	}
	doc, err := f.store.Subscribe(ctx, models.ChatPath(chatID))
	if err != nil {
		msgs.Close()
		return fmt.Errorf("subscribe chat: %w", err)
	}

	f.chatID = chatID
	f.subs = []*docstore.Subscription{msgs, doc}
	f.loading.Store(true)
	feedsBound.Inc()

	f.wg.Add(2)
	go f.drain(msgs, func(snap docstore.Snapshot) {
		f.loading.Store(false)
		f.handler.OnMessages(chatID, snap)
	})
	go f.drain(doc, func(snap docstore.Snapshot) {
		f.handler.OnChat(chatID, snap)
	})
	logger.Debug("feeds_bound", "chat", chatID)
	return nil
}

func (f *Feeds) drain(sub *docstore.Subscription, handle func(docstore.Snapshot)) {
	defer f.wg.Done()
	for snap := range sub.C() {
		handle(snap)
	}
}

// Unbind closes both feeds and waits for their goroutines to finish.
func (f *Feeds) Unbind() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbindLocked()
}

func (f *Feeds) unbindLocked() {
	if f.chatID == "" {
		return
	}
	for _, s := range f.subs {
		s.Close()
	}
	f.wg.Wait()
	logger.Debug("feeds_unbound", "chat", f.chatID)
	f.subs = nil
	f.chatID = ""
	f.loading.Store(false)
	feedsBound.Dec()
}

// BoundTo returns the bound conversation id, or "" when unbound.
func (f *Feeds) BoundTo() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatID
}

// LoadingMessages is true from Bind until the first message snapshot.
func (f *Feeds) LoadingMessages() bool { return f.loading.Load() }
