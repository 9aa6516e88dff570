package model

import "time"

type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeImage   MessageType = "image"
	MessageTypeFile    MessageType = "file"
	MessageTypeSystem  MessageType = "system"
	MessageTypeDeleted MessageType = "deleted"
)

// DeletedPlaceholder replaces the content of soft-deleted messages.
const DeletedPlaceholder = "message deleted"

type Message struct {
	ID              string            `json:"id"`
	ConversationID  string            `json:"conversation_id"`
	SenderID        string            `json:"sender_id"`
	Type            MessageType       `json:"type"`
	Content         string            `json:"content"`
	OriginalContent string            `json:"-"`
	IsDeleted       bool              `json:"is_deleted"`
	DeletedAt       *time.Time        `json:"deleted_at,omitempty"`
	DeletedBy       string            `json:"deleted_by,omitempty"`
	ReadBy          []string          `json:"read_by,omitempty"`
	EditedAt        *time.Time        `json:"edited_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Ext             map[string]string `json:"ext,omitempty"`
	Sender          *UserSummary      `json:"sender,omitempty"`
}
