package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatline/internal/model"
	"github.com/chatline/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Ledger owns the message log: append, edit, soft delete, list. Edits and
// deletes are sender-only. Deletes keep the row as a tombstone with the
// original content preserved for audit.
type Ledger struct {
	convs ConversationStore
	msgs  MessageStore
}

func NewLedger(convs ConversationStore, msgs MessageStore) *Ledger {
	return &Ledger{convs: convs, msgs: msgs}
}

// Append adds a message to a conversation. The sender must be a participant.
// Counters and the preview cache are not touched here, that is Tracker's job.
func (l *Ledger) Append(ctx context.Context, convID, senderID string, typ model.MessageType, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if typ == "" {
		typ = model.MessageTypeText
	}
	conv, err := l.convs.GetByID(ctx, convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("ledger.Append: %w", err)
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	m := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       senderID,
		Type:           typ,
		Content:        content,
		ReadBy:         []string{senderID},
		CreatedAt:      time.Now().UTC(),
	}
	if err := l.msgs.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("ledger.Append create: %w", err)
	}
	return m, nil
}

// Edit replaces the content of the requester's own message. The conversation
// preview is refreshed only when the edited message is still the latest.
func (l *Ledger) Edit(ctx context.Context, messageID, requesterID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	m, err := l.msgs.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("ledger.Edit: %w", err)
	}
	if m.SenderID != requesterID {
		return nil, ErrNotSender
	}
	if m.IsDeleted {
		return nil, ErrMessageDeleted
	}

	now := time.Now().UTC()
	if err := l.msgs.UpdateContent(ctx, messageID, content, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// deleted between the read and the write
			return nil, ErrMessageDeleted
		}
		return nil, fmt.Errorf("ledger.Edit update: %w", err)
	}
	if err := l.convs.RefreshLastMessage(ctx, m.ConversationID, m.ID, content); err != nil {
		return nil, fmt.Errorf("ledger.Edit preview: %w", err)
	}
	m.Content = content
	m.EditedAt = &now
	return m, nil
}

// SoftDelete tombstones the requester's own message. Repeating the call is a
// no-op that returns the tombstone again.
func (l *Ledger) SoftDelete(ctx context.Context, messageID, requesterID string) (*model.Message, error) {
	m, err := l.msgs.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("ledger.SoftDelete: %w", err)
	}
	if m.SenderID != requesterID {
		return nil, ErrNotSender
	}
	if m.IsDeleted {
		return m, nil
	}

	now := time.Now().UTC()
	if err := l.msgs.MarkDeleted(ctx, messageID, requesterID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// another delete won the race, fetch the terminal state
			return l.msgs.GetByID(ctx, messageID)
		}
		return nil, fmt.Errorf("ledger.SoftDelete mark: %w", err)
	}
	// The conversation preview is left alone; only Edit rewrites it.
	m.OriginalContent = m.Content
	m.Content = model.DeletedPlaceholder
	m.Type = model.MessageTypeDeleted
	m.IsDeleted = true
	m.DeletedAt = &now
	m.DeletedBy = requesterID
	return m, nil
}

// ListByConversation returns visible messages in ascending order of creation.
// Deleted messages are excluded.
func (l *Ledger) ListByConversation(ctx context.Context, convID string, limit int, before *time.Time) ([]model.Message, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	msgs, err := l.msgs.ListByConversation(ctx, convID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("ledger.ListByConversation: %w", err)
	}
	return msgs, nil
}

// MarkRead records the reader on messages they received.
func (l *Ledger) MarkRead(ctx context.Context, convID, userID string) error {
	if err := l.msgs.MarkRead(ctx, convID, userID); err != nil {
		return fmt.Errorf("ledger.MarkRead: %w", err)
	}
	return nil
}
