package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chatsync/pkg/docstore"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/telemetry"
)

// Loader finds or creates the conversation for a participant set. Results
// are cached by canonical key for the loader's lifetime.
type Loader struct {
	store Store

	mu    sync.Mutex
	cache map[string]*models.Chat
}

func NewLoader(store Store) *Loader {
	return &Loader{store: store, cache: make(map[string]*models.Chat)}
}

func cacheKey(key []string) string { return strings.Join(key, "\x00") }

// LoadOrCreate returns the conversation whose stored participant sequence
// equals the canonical key of ids, creating it when none exists.
func (l *Loader) LoadOrCreate(ctx context.Context, ids []string) (*models.Chat, error) {
	key := CanonicalKey(ids)
	if len(key) == 0 {
		return nil, ErrNoParticipants
	}
	ck := cacheKey(key)
	l.mu.Lock()
	if c, ok := l.cache[ck]; ok {
		l.mu.Unlock()
		return c, nil
	}
	l.mu.Unlock()

	tr := telemetry.Track("chat.load_or_create")
	defer tr.Finish()

	found, err := l.store.QueryEquals(ctx, models.CollectionChats, models.FieldUserIDs, key)
	if err != nil {
		tr.Fail(err)
		return nil, fmt.Errorf("lookup chat: %w", err)
	}
	tr.Mark("query")

	var chat *models.Chat
	if len(found) > 0 {
		chat, err = l.hydrate(ctx, found[0])
	} else {
		chat, err = l.create(ctx, key)
	}
	if err != nil {
		tr.Fail(err)
		return nil, err
	}
	tr.Mark("hydrate")

	l.mu.Lock()
	if c, ok := l.cache[ck]; ok {
		chat = c
	} else {
		l.cache[ck] = chat
	}
	l.mu.Unlock()
	return chat, nil
}

func (l *Loader) create(ctx context.Context, key []string) (*models.Chat, error) {
	users, err := l.resolveUsers(ctx, key)
	if err != nil {
		return nil, err
	}
	id, created, err := l.store.AddUnique(ctx, models.CollectionChats, models.FieldUserIDs, key, models.NewChatFields(key, users))
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	if !created {
		// another session created it between our lookup and create
		logger.Info("chat_create_converged", "chat", id)
		return l.Get(ctx, id)
	}
	chatsCreated.Inc()
	logger.Info("chat_created", "chat", id, "participants", len(key))
	return &models.Chat{
		ID:                  id,
		UserIDs:             append([]string(nil), key...),
		Users:               users,
		UserToMessageReadAt: map[string]time.Time{},
	}, nil
}

// Get loads an existing conversation by id with freshly resolved
// participant profiles.
func (l *Loader) Get(ctx context.Context, chatID string) (*models.Chat, error) {
	doc, err := l.store.Get(ctx, models.ChatPath(chatID))
	if err != nil {
		return nil, fmt.Errorf("load chat %s: %w", chatID, err)
	}
	return l.hydrate(ctx, doc)
}

func (l *Loader) hydrate(ctx context.Context, doc *docstore.Document) (*models.Chat, error) {
	chat := models.ChatFromFields(doc.ID, doc.Fields)
	users, err := l.resolveUsers(ctx, chat.UserIDs)
	if err != nil {
		return nil, err
	}
	chat.Users = users
	return chat, nil
}

// resolveUsers reads users/{id} for each id, in order.
func (l *Loader) resolveUsers(ctx context.Context, ids []string) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		doc, err := l.store.Get(ctx, models.UserPath(id))
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUser, id)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve user %s: %w", id, err)
		}
		u := models.UserFromFields(doc.Fields)
		if u.UserID == "" {
			u.UserID = id
		}
		users = append(users, u)
	}
	return users, nil
}
