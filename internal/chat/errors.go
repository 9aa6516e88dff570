package chat

import "errors"

// Outcome errors returned by the core. Handlers map them to HTTP statuses
// with errors.Is; anything else is an internal failure.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotParticipant       = errors.New("not a participant")
	ErrNotSender            = errors.New("not the message sender")
	ErrInvalidParticipants  = errors.New("invalid participants")
	ErrMessageDeleted       = errors.New("message is deleted")
	ErrEmptyContent         = errors.New("empty content")
	ErrEmptyTitle           = errors.New("empty title")
)
