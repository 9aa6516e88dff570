package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatline/internal/model"
	"github.com/chatline/internal/repository"
)

// Tracker maintains the cached unread counters on the conversation row.
// Counters are never recomputed by scanning messages: a send increments,
// a read resets, nothing else moves them.
type Tracker struct {
	convs ConversationStore
}

func NewTracker(convs ConversationStore) *Tracker {
	return &Tracker{convs: convs}
}

// OnSend folds a delivered message into the conversation: the sender's
// counter drops to zero, all other counters go up by one and the preview
// cache points at the message. The store applies all of it in one update.
func (t *Tracker) OnSend(ctx context.Context, conv *model.Conversation, m *model.Message) error {
	if !conv.HasParticipant(m.SenderID) {
		return ErrNotParticipant
	}
	if err := t.convs.ApplySend(ctx, conv.ID, m); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("tracker.OnSend: %w", err)
	}
	return nil
}

// OnRead resets the reader's counter to zero. Idempotent.
func (t *Tracker) OnRead(ctx context.Context, convID, userID string) error {
	conv, err := t.convs.GetByID(ctx, convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("tracker.OnRead: %w", err)
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}
	if err := t.convs.ResetUnread(ctx, convID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("tracker.OnRead reset: %w", err)
	}
	return nil
}
