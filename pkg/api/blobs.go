package api

import (
	"errors"

	"github.com/valyala/fasthttp"

	"chatsync/pkg/chat"
	"chatsync/pkg/docstore"
	"chatsync/pkg/models"
	"chatsync/pkg/router"
	"chatsync/pkg/utils"
)

// chatBlob serves conversation media to its participants only.
func (s *Server) chatBlob(ctx *fasthttp.RequestCtx) {
	chatID := router.Param(ctx, "chatId")
	rctx, cancel := requestContext()
	defer cancel()
	doc, err := s.deps.DB.Get(rctx, models.ChatPath(chatID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "not found")
			return
		}
		writeError(ctx, err)
		return
	}
	if !models.ChatFromFields(doc.ID, doc.Fields).HasParticipant(identity(ctx).UserID) {
		writeError(ctx, chat.ErrNotParticipant)
		return
	}
	s.serveBlob(ctx, "chat/"+chatID+"/"+router.Param(ctx, "name"))
}

func (s *Server) userBlob(ctx *fasthttp.RequestCtx) {
	s.serveBlob(ctx, chat.ProfileImagePath(router.Param(ctx, "userId"), router.Param(ctx, "name")))
}

func (s *Server) serveBlob(ctx *fasthttp.RequestCtx, path string) {
	rc, info, err := s.deps.Blobs.Open(path)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if info.ContentType != "" {
		ctx.SetContentType(info.ContentType)
	} else {
		ctx.SetContentType("application/octet-stream")
	}
	ctx.Response.Header.Set("Cache-Control", "private, max-age=31536000, immutable")
	ctx.SetStatusCode(fasthttp.StatusOK)
	// fasthttp closes rc once the body is written
	ctx.SetBodyStream(rc, int(info.Size))
}
