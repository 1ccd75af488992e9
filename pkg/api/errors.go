package api

import (
	"errors"

	"github.com/valyala/fasthttp"

	"chatsync/pkg/accounts"
	"chatsync/pkg/auth"
	"chatsync/pkg/blobstore"
	"chatsync/pkg/chat"
	"chatsync/pkg/docstore"
	"chatsync/pkg/logger"
	"chatsync/pkg/utils"
)

// statusClientClosed is the nginx convention for a request the client
// abandoned.
const statusClientClosed = 499

var statusByError = []struct {
	err    error
	status int
}{
	{chat.ErrChatNotLoaded, fasthttp.StatusBadRequest},
	{chat.ErrEmptyPath, fasthttp.StatusBadRequest},
	{chat.ErrEmptyText, fasthttp.StatusBadRequest},
	{chat.ErrNoParticipants, fasthttp.StatusBadRequest},
	{chat.ErrUnsupportedKind, fasthttp.StatusBadRequest},
	{chat.ErrNoSender, fasthttp.StatusConflict},
	{chat.ErrNotParticipant, fasthttp.StatusForbidden},
	{chat.ErrUnknownUser, fasthttp.StatusNotFound},
	{chat.ErrSessionClosed, fasthttp.StatusServiceUnavailable},
	{chat.ErrCanceled, statusClientClosed},
	{utils.ErrEmptyBody, fasthttp.StatusBadRequest},
	{accounts.ErrInvalidInput, fasthttp.StatusBadRequest},
	{accounts.ErrEmailTaken, fasthttp.StatusConflict},
	{accounts.ErrInvalidCredentials, fasthttp.StatusUnauthorized},
	{auth.ErrInvalidToken, fasthttp.StatusUnauthorized},
	{auth.ErrTokenExpired, fasthttp.StatusUnauthorized},
	{docstore.ErrNotFound, fasthttp.StatusNotFound},
	{docstore.ErrInvalidPath, fasthttp.StatusBadRequest},
	{docstore.ErrInvalidArgument, fasthttp.StatusBadRequest},
	{docstore.ErrClosed, fasthttp.StatusServiceUnavailable},
	{blobstore.ErrNotFound, fasthttp.StatusNotFound},
	{blobstore.ErrInvalidPath, fasthttp.StatusBadRequest},
	{blobstore.ErrTooLarge, fasthttp.StatusRequestEntityTooLarge},
	{blobstore.ErrDiskFull, fasthttp.StatusInsufficientStorage},
}

// writeError maps err onto a status and writes the JSON error body.
// Unknown errors become 500 without leaking their text.
func writeError(ctx *fasthttp.RequestCtx, err error) {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			utils.JSONErrorFast(ctx, m.status, err.Error())
			return
		}
	}
	logger.Error("request_failed", "path", string(ctx.Path()), "error", err)
	utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, "internal error")
}

// readBody decodes the JSON body into v, answering 400 when it cannot.
func readBody(ctx *fasthttp.RequestCtx, v any) bool {
	if err := utils.ReadJSONFast(ctx, v); err != nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "invalid body: "+err.Error())
		return false
	}
	return true
}
