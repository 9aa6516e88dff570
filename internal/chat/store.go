// Package chat holds the conversation core: participant-set resolution,
// the singleton official chat with its reconciler, unread counters and the
// message ledger, orchestrated by Service. Persistence and delivery are
// behind small interfaces so the core stays testable without a database.
package chat

import (
	"context"
	"time"

	"github.com/chatline/internal/model"
)

// ConversationStore is the persistence the core needs for conversation rows.
// Implemented by repository.ConversationRepository.
type ConversationStore interface {
	Create(ctx context.Context, c *model.Conversation) error
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	FindBySignature(ctx context.Context, kind model.ConversationKind, key string) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	ListOfficial(ctx context.Context) ([]model.Conversation, error)
	ApplySend(ctx context.Context, convID string, m *model.Message) error
	ResetUnread(ctx context.Context, convID, userID string) error
	SetLastMessage(ctx context.Context, convID string, m *model.Message) error
	RefreshLastMessage(ctx context.Context, convID, messageID, content string) error
	Deactivate(ctx context.Context, convID string) error
}

// MessageStore is the persistence for the append-only message log.
// Implemented by repository.MessageRepository.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListByConversation(ctx context.Context, convID string, limit int, before *time.Time) ([]model.Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error
	MarkDeleted(ctx context.Context, id, deletedBy string, at time.Time) error
	MarkRead(ctx context.Context, convID, userID string) error
	PurgeByConversation(ctx context.Context, convID string) (int64, error)
}

// UserDirectory answers the identity questions the core asks about users.
// Implemented by repository.UserRepository.
type UserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
	DisplayName(ctx context.Context, id string) (string, error)
	IsSystemAccount(ctx context.Context, id string) (bool, error)
	Summary(ctx context.Context, id string) (model.UserSummary, error)
}

// Dispatcher delivers events to online and offline recipients. Notify must
// not block; implementations queue or drop. A nil Dispatcher disables
// delivery, persistence is never affected.
type Dispatcher interface {
	Notify(ctx context.Context, ev Event)
}

type EventType string

const (
	EventConversationCreated EventType = "conversation_created"
	EventNewMessage          EventType = "new_message"
	EventMessageEdited       EventType = "message_edited"
	EventMessageDeleted      EventType = "message_deleted"
	EventMessageRead         EventType = "message_read"
)

// Event is one notification addressed to one recipient.
type Event struct {
	Type        EventType `json:"type"`
	RecipientID string    `json:"-"`
	Payload     any       `json:"payload"`
}

type MessageEditedPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

type MessageDeletedPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

type MessageReadPayload struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
}
