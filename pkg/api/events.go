package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"chatsync/pkg/chat"
	"chatsync/pkg/logger"
)

// eventView is one server-sent event. Only the part named by Type is
// filled in.
type eventView struct {
	Type     chat.EventType       `json:"type"`
	ChatID   string               `json:"chatId"`
	Messages []messageView        `json:"messages,omitempty"`
	ReadAt   map[string]time.Time `json:"readAt,omitempty"`
	Sending  bool                 `json:"sending"`
}

func renderEvent(sess *chat.Session, ev chat.Event) eventView {
	v := eventView{Type: ev.Type, ChatID: ev.ChatID, Sending: sess.Sending()}
	switch ev.Type {
	case chat.EventMessages:
		v.Messages = viewMessages(sess)
	case chat.EventReads:
		v.ReadAt = sess.ReadCursors()
		// unread counts move with the cursors
		v.Messages = viewMessages(sess)
	}
	return v
}

func writeEvent(w *bufio.Writer, v eventView) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", v.Type, data); err != nil {
		return err
	}
	return w.Flush()
}

// events streams session changes of one conversation as server-sent
// events until the client goes away or the server shuts down.
func (s *Server) events(ctx *fasthttp.RequestCtx) {
	sess, ok := s.session(ctx)
	if !ok {
		return
	}
	id := identity(ctx)
	chatID := sess.Chat().ID
	release := s.pool.hold(id.UserID, chatID)
	evs, stop := sess.Watch()
	heartbeat := s.opts.Heartbeat
	shutdown := s.pool.stop

	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		sseStreams.Inc()
		defer sseStreams.Dec()
		defer release()
		defer stop()
		logger.Debug("events_open", "chat", chatID, "user", id.UserID)

		// initial state so the client never starts blank
		if err := writeEvent(w, renderEvent(sess, chat.Event{Type: chat.EventMessages, ChatID: chatID})); err != nil {
			return
		}
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-evs:
				if !ok {
					return
				}
				if err := writeEvent(w, renderEvent(sess, ev)); err != nil {
					logger.Debug("events_closed", "chat", chatID, "user", id.UserID, "error", err)
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-shutdown:
				return
			}
		}
	})
}
