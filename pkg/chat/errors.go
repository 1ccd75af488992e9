package chat

import "errors"

var (
	ErrChatNotLoaded   = errors.New("chat: no conversation loaded")
	ErrEmptyPath       = errors.New("chat: empty media path")
	ErrEmptyText       = errors.New("chat: empty message text")
	ErrNoSender        = errors.New("chat: sender profile unavailable")
	ErrNoParticipants  = errors.New("chat: no participants")
	ErrNotParticipant  = errors.New("chat: not a participant")
	ErrUnknownUser     = errors.New("chat: unknown user")
	ErrUnsupportedKind = errors.New("chat: unsupported media kind")
	ErrSessionClosed   = errors.New("chat: session closed")
	// ErrCanceled marks a media pick the user backed out of. Callers treat
	// it as a no-op.
	ErrCanceled = errors.New("chat: canceled")
)
