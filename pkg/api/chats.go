package api

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/valyala/fasthttp"

	"chatsync/pkg/chat"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/router"
	"chatsync/pkg/utils"
)

const (
	requestTimeout  = 30 * time.Second
	feedWaitTimeout = 2 * time.Second
)

// requestContext bounds store work of one request. fasthttp recycles the
// request ctx, so it is never handed to code that may outlive the handler.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

type openChatRequest struct {
	Participants []string `json:"participants"`
}

type sendTextRequest struct {
	Text string `json:"text"`
}

type chatView struct {
	*models.Chat
	ReadAt      map[string]time.Time `json:"readAt"`
	LoadingChat bool                 `json:"loadingChat"`
	Sending     bool                 `json:"sending"`
}

// messageView is the wire form of a message with its unread count.
type messageView struct {
	ID          string      `json:"id"`
	User        models.User `json:"user"`
	CreatedAt   time.Time   `json:"createdAt"`
	Text        string      `json:"text,omitempty"`
	ImageURL    string      `json:"imageUrl,omitempty"`
	AudioURL    string      `json:"audioUrl,omitempty"`
	UnreadCount int         `json:"unreadCount"`
}

func viewMessage(m models.Message, unread int) messageView {
	return messageView{
		ID:          m.ID,
		User:        m.User,
		CreatedAt:   m.CreatedAt,
		Text:        m.Content.Text(),
		ImageURL:    m.Content.ImageURL(),
		AudioURL:    m.Content.AudioURL(),
		UnreadCount: unread,
	}
}

func viewChat(sess *chat.Session) chatView {
	return chatView{
		Chat:        sess.Chat(),
		ReadAt:      sess.ReadCursors(),
		LoadingChat: sess.LoadingChat(),
		Sending:     sess.Sending(),
	}
}

func viewMessages(sess *chat.Session) []messageView {
	msgs := sess.Messages()
	out := make([]messageView, len(msgs))
	for i, m := range msgs {
		out[i] = viewMessage(m, sess.UnreadCount(m))
	}
	return out
}

// session resolves the pooled session for the {chatId} of the request.
func (s *Server) session(ctx *fasthttp.RequestCtx) (*chat.Session, bool) {
	rctx, cancel := requestContext()
	defer cancel()
	sess, err := s.pool.attach(rctx, identity(ctx), router.Param(ctx, "chatId"))
	if err != nil {
		writeError(ctx, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) openChat(ctx *fasthttp.RequestCtx) {
	var req openChatRequest
	if !readBody(ctx, &req) {
		return
	}
	if len(req.Participants) == 0 {
		writeError(ctx, chat.ErrNoParticipants)
		return
	}
	rctx, cancel := requestContext()
	defer cancel()
	sess, err := s.pool.open(rctx, identity(ctx), req.Participants)
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, viewChat(sess))
}

func (s *Server) getChat(ctx *fasthttp.RequestCtx) {
	sess, ok := s.session(ctx)
	if !ok {
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, viewChat(sess))
}

// listMessages waits briefly for the first feed snapshot of a freshly
// bound session so the first page is not empty.
func (s *Server) listMessages(ctx *fasthttp.RequestCtx) {
	sess, ok := s.session(ctx)
	if !ok {
		return
	}
	deadline := time.Now().Add(feedWaitTimeout)
	for sess.LoadingMessages() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]any{
		"messages": viewMessages(sess),
		"loading":  sess.LoadingMessages(),
		"sending":  sess.Sending(),
	})
}

func (s *Server) sendText(ctx *fasthttp.RequestCtx) {
	var req sendTextRequest
	if !readBody(ctx, &req) {
		return
	}
	sess, ok := s.session(ctx)
	if !ok {
		return
	}
	rctx, cancel := requestContext()
	defer cancel()
	m, err := sess.SendText(rctx, req.Text)
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusCreated, m)
}

// sendMedia spools the raw body to a temp file named after ?filename so
// the media pipeline sees the original extension.
func (s *Server) sendMedia(ctx *fasthttp.RequestCtx) {
	var kind models.ContentKind
	switch string(ctx.QueryArgs().Peek("kind")) {
	case "image":
		kind = models.ContentImage
	case "audio":
		kind = models.ContentAudio
	default:
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "kind must be image or audio")
		return
	}
	body := ctx.PostBody()
	if len(body) == 0 {
		writeError(ctx, utils.ErrEmptyBody)
		return
	}
	sess, ok := s.session(ctx)
	if !ok {
		return
	}

	ext := filepath.Ext(filepath.Base(string(ctx.QueryArgs().Peek("filename"))))
	f, err := os.CreateTemp(s.opts.TmpDir, "upload-*"+ext)
	if err != nil {
		writeError(ctx, err)
		return
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := f.Write(body); err != nil {
		f.Close()
		writeError(ctx, err)
		return
	}
	if err := f.Close(); err != nil {
		writeError(ctx, err)
		return
	}

	rctx, cancel := requestContext()
	defer cancel()
	m, err := sess.SendMedia(rctx, kind, tmp)
	if err != nil {
		writeError(ctx, err)
		return
	}
	logger.Debug("media_sent", "chat", router.Param(ctx, "chatId"), "kind", kind.String(), "bytes", len(body))
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusCreated, m)
}

func (s *Server) markRead(ctx *fasthttp.RequestCtx) {
	sess, ok := s.session(ctx)
	if !ok {
		return
	}
	sess.MarkRead(context.Background())
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusAccepted, map[string]string{"status": "accepted"})
}
