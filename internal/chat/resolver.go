package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatline/internal/model"
	"github.com/chatline/internal/repository"
)

// createdNotice is the system message appended to new direct and group
// conversations. Official chats get the configured greeting instead.
const createdNotice = "conversation created"

// Resolver maps a participant set to its conversation, creating one when
// none exists. The find and the create are separate store calls on purpose:
// the store has no unique constraint on the signature, so two concurrent
// resolves may both create. Readers always pick the same winner
// (FindBySignature orders newest first) and the reconciler folds official
// duplicates away later.
type Resolver struct {
	convs           ConversationStore
	ledger          *Ledger
	users           UserDirectory
	officialWelcome string
}

func NewResolver(convs ConversationStore, ledger *Ledger, users UserDirectory, officialWelcome string) *Resolver {
	return &Resolver{convs: convs, ledger: ledger, users: users, officialWelcome: officialWelcome}
}

// Resolve returns the conversation identified by the participant set and
// kind, creating it when absent. The boolean reports whether a new
// conversation was created. Order and duplicates in participants do not
// matter; title is only used for new group conversations.
func (r *Resolver) Resolve(ctx context.Context, participants []string, kind model.ConversationKind, title string) (*model.Conversation, bool, error) {
	norm := model.NormalizeParticipants(participants)
	if len(norm) < 2 {
		return nil, false, fmt.Errorf("%w: need at least two participants", ErrInvalidParticipants)
	}
	if (kind == model.KindDirect || kind == model.KindOfficial) && len(norm) != 2 {
		return nil, false, fmt.Errorf("%w: %s conversations have exactly two participants", ErrInvalidParticipants, kind)
	}

	systemID := ""
	for _, id := range norm {
		ok, err := r.users.Exists(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("resolver.Resolve exists: %w", err)
		}
		if !ok {
			return nil, false, fmt.Errorf("%w: unknown user %s", ErrInvalidParticipants, id)
		}
		sys, err := r.users.IsSystemAccount(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("resolver.Resolve system check: %w", err)
		}
		if sys {
			if systemID != "" {
				return nil, false, fmt.Errorf("%w: more than one system account", ErrInvalidParticipants)
			}
			systemID = id
		}
	}
	if kind == model.KindOfficial && systemID == "" {
		return nil, false, fmt.Errorf("%w: official conversation needs the system account", ErrInvalidParticipants)
	}
	if kind != model.KindOfficial && systemID != "" {
		return nil, false, fmt.Errorf("%w: system account only joins official conversations", ErrInvalidParticipants)
	}

	key := model.ParticipantsKey(norm)

	// Groups are intentionally never matched by signature: two groups with
	// the same members stay distinct conversations.
	if kind != model.KindGroup {
		existing, err := r.convs.FindBySignature(ctx, kind, key)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("resolver.Resolve find: %w", err)
		}
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:              uuid.NewString(),
		Kind:            kind,
		Title:           title,
		Participants:    norm,
		ParticipantsKey: key,
		UnreadCounts:    make(map[string]int, len(norm)),
		Active:          true,
		CreatedBy:       norm[0],
		CreatedAt:       now,
	}
	for _, id := range norm {
		conv.UnreadCounts[id] = 0
	}
	if err := r.convs.Create(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("resolver.Resolve create: %w", err)
	}

	// Every new conversation starts with one system message. It fills the
	// preview but never bumps an unread counter.
	sender := conv.CreatedBy
	content := createdNotice
	if kind == model.KindOfficial {
		sender = systemID
		if r.officialWelcome != "" {
			content = r.officialWelcome
		}
	}
	welcome, err := r.ledger.Append(ctx, conv.ID, sender, model.MessageTypeSystem, content)
	if err != nil {
		return nil, false, fmt.Errorf("resolver.Resolve welcome: %w", err)
	}
	if err := r.convs.SetLastMessage(ctx, conv.ID, welcome); err != nil {
		return nil, false, fmt.Errorf("resolver.Resolve preview: %w", err)
	}
	conv.LastMessage = welcome.Content
	conv.LastMessageID = welcome.ID
	conv.LastMessageType = welcome.Type
	conv.LastMessageTime = &welcome.CreatedAt

	return conv, true, nil
}
