package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chatsync/pkg/blobstore"
	"chatsync/pkg/docstore"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/telemetry"
)

// Identity is the authenticated user a Session acts for.
type Identity struct {
	UserID string
	Email  string
}

type SessionOptions struct {
	// AutoMarkRead marks the conversation read whenever the feed grows the
	// message list.
	AutoMarkRead bool
	Now          func() time.Time
}

type EventType string

const (
	EventMessages EventType = "messages"
	EventReads    EventType = "reads"
	EventSending  EventType = "sending"
)

// Event tells watchers that part of the session state changed. Watchers
// read the current state back from the session.
type Event struct {
	Type   EventType `json:"type"`
	ChatID string    `json:"chatId"`
}

// Session binds one identity to at most one active conversation and owns
// its message list, read cursors and feeds.
type Session struct {
	id     Identity
	store  Store
	loader *Loader
	media  *MediaPipeline
	feeds  *Feeds
	rec    *Reconciler
	reads  *ReadTracker
	opts   SessionOptions

	mu          sync.RWMutex
	chat        *models.Chat
	me          *models.User
	loadingChat bool

	sending  atomic.Int32
	closed   atomic.Bool
	inflight sync.WaitGroup

	wmu      sync.Mutex
	watchers map[int]chan Event
	nextW    int
}

func NewSession(id Identity, store Store, blobs blobstore.Store, opts SessionOptions) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		id:       id,
		store:    store,
		loader:   NewLoader(store),
		media:    NewMediaPipeline(blobs),
		rec:      NewReconciler(opts.Now),
		reads:    NewReadTracker(),
		opts:     opts,
		watchers: make(map[int]chan Event),
	}
	s.feeds = NewFeeds(store, s)
	sessionsOpen.Inc()
	return s
}

func (s *Session) Identity() Identity { return s.id }

// Open loads or creates the conversation between the session user and
// others, and binds the session to it.
func (s *Session) Open(ctx context.Context, others ...string) (*models.Chat, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	participants := append([]string{s.id.UserID}, others...)
	s.setLoadingChat(true)
	chat, err := s.loader.LoadOrCreate(ctx, participants)
	if err != nil {
		// loading stays visible until the caller retries
		return nil, err
	}
	if err := s.bind(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// Attach binds the session to an existing conversation the session user
// takes part in.
func (s *Session) Attach(ctx context.Context, chatID string) (*models.Chat, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if cur := s.Chat(); cur != nil && cur.ID == chatID {
		return cur, nil
	}
	s.setLoadingChat(true)
	chat, err := s.loader.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(s.id.UserID) {
		s.setLoadingChat(false)
		return nil, ErrNotParticipant
	}
	if err := s.bind(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *Session) bind(ctx context.Context, chat *models.Chat) error {
	var me *models.User
	for i := range chat.Users {
		if chat.Users[i].UserID == s.id.UserID {
			u := chat.Users[i]
			me = &u
			break
		}
	}

	s.feeds.Unbind()
	s.mu.Lock()
	s.chat = chat
	s.me = me
	s.loadingChat = false
	s.mu.Unlock()
	s.rec.Reset()
	s.reads.Reset(chat.UserToMessageReadAt)

	// feeds outlive the request that opened them
	if err := s.feeds.Bind(context.WithoutCancel(ctx), chat.ID); err != nil {
		return err
	}
	logger.Info("chat_bound", "chat", chat.ID, "user", s.id.UserID)
	return nil
}

func (s *Session) setLoadingChat(v bool) {
	s.mu.Lock()
	s.loadingChat = v
	s.mu.Unlock()
}

// Chat returns the bound conversation or nil.
func (s *Session) Chat() *models.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chat
}

func (s *Session) current() (*models.Chat, *models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chat == nil {
		return nil, nil, ErrChatNotLoaded
	}
	if s.me == nil {
		return s.chat, nil, ErrNoSender
	}
	return s.chat, s.me, nil
}

// beginSend raises the sending indicator; the returned func lowers it.
// Concurrent sends are not serialised, the indicator stays up until the
// last one finishes.
func (s *Session) beginSend() func() {
	s.inflight.Add(1)
	if s.sending.Add(1) == 1 {
		s.notify(EventSending)
	}
	return func() {
		if s.sending.Add(-1) == 0 {
			s.notify(EventSending)
		}
		s.inflight.Done()
	}
}

// SendText creates a text message and merges it locally.
func (s *Session) SendText(ctx context.Context, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyText
	}
	chat, me, err := s.current()
	if err != nil {
		return models.Message{}, err
	}
	done := s.beginSend()
	defer done()
	return s.createMessage(ctx, chat, *me, models.TextContent(text))
}

func (s *Session) SendImage(ctx context.Context, localPath string) (models.Message, error) {
	return s.SendMedia(ctx, models.ContentImage, localPath)
}

func (s *Session) SendAudio(ctx context.Context, localPath string) (models.Message, error) {
	return s.SendMedia(ctx, models.ContentAudio, localPath)
}

// SendMedia uploads localPath, then creates an image or audio message for
// its URL. Nothing is written to the conversation when the upload fails.
func (s *Session) SendMedia(ctx context.Context, kind models.ContentKind, localPath string) (models.Message, error) {
	if kind != models.ContentImage && kind != models.ContentAudio {
		return models.Message{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	chat, me, err := s.current()
	if err != nil {
		return models.Message{}, err
	}
	if localPath == "" {
		return models.Message{}, ErrEmptyPath
	}
	done := s.beginSend()
	defer done()

	tr := telemetry.Track("chat.send_media").Attr("kind", kind.String())
	defer tr.Finish()
	url, err := s.media.Upload(ctx, chat.ID, localPath)
	if errors.Is(err, context.Canceled) {
		tr.Fail(err)
		logger.Debug("media_send_canceled", "chat", chat.ID)
		return models.Message{}, ErrCanceled
	}
	if err != nil {
		tr.Fail(err)
		return models.Message{}, err
	}
	tr.Mark("upload")

	content := models.AudioContent(url)
	if kind == models.ContentImage {
		content = models.ImageContent(url)
	}
	return s.createMessage(ctx, chat, *me, content)
}

func (s *Session) createMessage(ctx context.Context, chat *models.Chat, me models.User, content models.Content) (models.Message, error) {
	tr := telemetry.Track("chat.create_message").Attr("kind", content.Kind().String())
	defer tr.Finish()

	id, err := s.store.Add(ctx, models.MessagesPath(chat.ID), models.NewMessageFields(me, content, docstore.ServerTimestamp()))
	if err != nil {
		tr.Fail(err)
		logger.Warn("message_send_failed", "chat", chat.ID, "kind", content.Kind().String(), "error", err)
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	messagesSent.WithLabelValues(content.Kind().String()).Inc()
	m := models.Message{ID: id, User: me, CreatedAt: s.opts.Now(), Content: content}

	// a session that moved on or closed must not pick up the echo
	if s.closed.Load() {
		return m, nil
	}
	if cur := s.Chat(); cur == nil || cur.ID != chat.ID {
		return m, nil
	}
	if s.rec.AddOptimistic(m) {
		s.notify(EventMessages)
	}
	logger.Debug("message_sent", "chat", chat.ID, "id", id, "kind", content.Kind().String())
	return m, nil
}

// MarkRead stamps the session user's read cursor with the store clock.
// The write runs in the background and failures are only logged.
func (s *Session) MarkRead(ctx context.Context) {
	chat := s.Chat()
	if chat == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		markRead(context.WithoutCancel(ctx), s.store, chat.ID, s.id.UserID)
	}()
}

// Messages returns the reconciled list, newest first.
func (s *Session) Messages() []models.Message { return s.rec.Messages() }

func (s *Session) ReadCursors() map[string]time.Time { return s.reads.Cursors() }

// UnreadCount counts the participants that have not read m yet.
func (s *Session) UnreadCount(m models.Message) int {
	chat := s.Chat()
	if chat == nil {
		return 0
	}
	return s.reads.UnreadCount(m, chat.UserIDs)
}

func (s *Session) Sending() bool { return s.sending.Load() > 0 }

func (s *Session) LoadingChat() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadingChat
}

func (s *Session) LoadingMessages() bool { return s.feeds.LoadingMessages() }

// OnMessages handles the message feed of the bound conversation.
func (s *Session) OnMessages(chatID string, snap docstore.Snapshot) {
	before := s.rec.Len()
	if s.rec.ApplySnapshot(snap) == 0 && before > 0 {
		return
	}
	s.notify(EventMessages)
	if s.opts.AutoMarkRead && s.rec.Len() > before {
		s.MarkRead(context.Background())
	}
}

// OnChat handles the conversation document feed.
func (s *Session) OnChat(chatID string, snap docstore.Snapshot) {
	if s.reads.ApplySnapshot(snap) {
		s.notify(EventReads)
	}
}

// Watch registers for change events. Events are dropped for a watcher
// that is not keeping up. Call the returned func to stop watching.
func (s *Session) Watch() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	s.wmu.Lock()
	id := s.nextW
	s.nextW++
	s.watchers[id] = ch
	s.wmu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.wmu.Lock()
			if _, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(ch)
			}
			s.wmu.Unlock()
		})
	}
}

func (s *Session) notify(t EventType) {
	chatID := ""
	if c := s.Chat(); c != nil {
		chatID = c.ID
	}
	ev := Event{Type: t, ChatID: chatID}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close tears down the feeds and ends all watchers. In-flight sends and
// read updates still complete against the store.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.feeds.Unbind()
	s.wmu.Lock()
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	s.wmu.Unlock()
	sessionsOpen.Dec()
	logger.Debug("session_closed", "user", s.id.UserID)
}

// Wait blocks until in-flight sends and read updates have finished.
func (s *Session) Wait() { s.inflight.Wait() }
