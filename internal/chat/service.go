package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/model"
	"github.com/chatline/internal/repository"
)

// Config carries the official-chat settings the core needs.
type Config struct {
	SystemAccountID string
	OfficialTitle   string
	OfficialWelcome string
}

// Service is the single entry point for conversation and message operations.
// It wires the resolver, the reconciler, the unread tracker and the ledger
// together and emits delivery events after state is persisted. Event
// delivery is best effort: a lost event never rolls persistence back.
type Service struct {
	convs      ConversationStore
	msgs       MessageStore
	users      UserDirectory
	dispatcher Dispatcher

	resolver   *Resolver
	reconciler *Reconciler
	tracker    *Tracker
	ledger     *Ledger

	systemID string
}

func NewService(convs ConversationStore, msgs MessageStore, users UserDirectory, dispatcher Dispatcher, cfg Config) *Service {
	ledger := NewLedger(convs, msgs)
	resolver := NewResolver(convs, ledger, users, cfg.OfficialWelcome)
	return &Service{
		convs:      convs,
		msgs:       msgs,
		users:      users,
		dispatcher: dispatcher,
		resolver:   resolver,
		reconciler: NewReconciler(convs, msgs, resolver, cfg.SystemAccountID, cfg.OfficialTitle),
		tracker:    NewTracker(convs),
		ledger:     ledger,
		systemID:   cfg.SystemAccountID,
	}
}

// CreateOrGetDirect resolves the direct conversation between the caller and
// another user, creating it on first contact. The boolean reports creation.
func (s *Service) CreateOrGetDirect(ctx context.Context, callerID, otherID string) (*model.ConversationView, bool, error) {
	if callerID == otherID {
		return nil, false, fmt.Errorf("%w: cannot start a direct conversation with yourself", ErrInvalidParticipants)
	}
	conv, created, err := s.resolver.Resolve(ctx, []string{callerID, otherID}, model.KindDirect, "")
	if err != nil {
		return nil, false, err
	}
	if created {
		s.dispatch(ctx, EventConversationCreated, conv.Participants, "", conv)
	}
	v := s.view(ctx, conv, callerID)
	return &v, created, nil
}

// CreateGroup creates a new group conversation. Groups are never deduplicated
// by membership: calling twice with the same members gives two groups.
func (s *Service) CreateGroup(ctx context.Context, callerID, title string, memberIDs []string) (*model.ConversationView, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}
	participants := append([]string{callerID}, memberIDs...)
	conv, _, err := s.resolver.Resolve(ctx, participants, model.KindGroup, strings.TrimSpace(title))
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, EventConversationCreated, conv.Participants, "", conv)
	v := s.view(ctx, conv, callerID)
	return &v, nil
}

// GetConversation returns one conversation with members resolved. The caller
// must be a participant.
func (s *Service) GetConversation(ctx context.Context, callerID, convID string) (*model.ConversationView, error) {
	conv, err := s.loadForMember(ctx, convID, callerID)
	if err != nil {
		return nil, err
	}
	v := s.view(ctx, conv, callerID)
	for _, p := range conv.Participants {
		sum, err := s.users.Summary(ctx, p)
		if err != nil {
			logger.Errorf("GetConversation: member %s: %v", p, err)
			continue
		}
		v.Members = append(v.Members, sum)
	}
	return &v, nil
}

// SendMessage appends a message, folds it into the unread counters and the
// preview cache, then notifies the other participants.
func (s *Service) SendMessage(ctx context.Context, callerID, convID string, typ model.MessageType, content string) (*model.Message, error) {
	conv, err := s.loadForMember(ctx, convID, callerID)
	if err != nil {
		return nil, err
	}
	m, err := s.ledger.Append(ctx, convID, callerID, typ, content)
	if err != nil {
		return nil, err
	}
	if err := s.tracker.OnSend(ctx, conv, m); err != nil {
		return nil, err
	}
	if sum, err := s.users.Summary(ctx, callerID); err == nil {
		m.Sender = &sum
	}
	s.dispatch(ctx, EventNewMessage, conv.Participants, callerID, m)
	return m, nil
}

// EditMessage rewrites the caller's own message.
func (s *Service) EditMessage(ctx context.Context, callerID, messageID, content string) (*model.Message, error) {
	m, err := s.ledger.Edit(ctx, messageID, callerID, content)
	if err != nil {
		return nil, err
	}
	s.notifyConversation(ctx, m.ConversationID, callerID, EventMessageEdited, MessageEditedPayload{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
	})
	return m, nil
}

// DeleteMessage tombstones the caller's own message. Repeat calls return the
// tombstone again without an error.
func (s *Service) DeleteMessage(ctx context.Context, callerID, messageID string) (*model.Message, error) {
	m, err := s.ledger.SoftDelete(ctx, messageID, callerID)
	if err != nil {
		return nil, err
	}
	s.notifyConversation(ctx, m.ConversationID, callerID, EventMessageDeleted, MessageDeletedPayload{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
	})
	return m, nil
}

// MarkRead zeroes the caller's unread counter and records read receipts.
func (s *Service) MarkRead(ctx context.Context, callerID, convID string) error {
	if err := s.tracker.OnRead(ctx, convID, callerID); err != nil {
		return err
	}
	if err := s.ledger.MarkRead(ctx, convID, callerID); err != nil {
		return err
	}
	s.notifyConversation(ctx, convID, callerID, EventMessageRead, MessageReadPayload{
		ConversationID: convID,
		ReaderID:       callerID,
	})
	return nil
}

// ListMessages returns a page of visible messages in ascending order.
func (s *Service) ListMessages(ctx context.Context, callerID, convID string, limit int, before *time.Time) ([]model.Message, error) {
	if _, err := s.loadForMember(ctx, convID, callerID); err != nil {
		return nil, err
	}
	return s.ledger.ListByConversation(ctx, convID, limit, before)
}

// ListConversationsForUser returns the caller's conversations, newest
// activity first. The official chat is ensured on the way and duplicate
// official chats are collapsed at read time so the client never sees two,
// even before the reconciler has run.
func (s *Service) ListConversationsForUser(ctx context.Context, callerID string) ([]model.ConversationView, error) {
	if callerID != s.systemID {
		if _, err := s.reconciler.EnsureOfficial(ctx, callerID); err != nil {
			logger.Errorf("ListConversationsForUser: ensure official for %s: %v", callerID, err)
		}
	}
	convs, err := s.convs.ListForUser(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("service.ListConversationsForUser: %w", err)
	}

	// One winner per ordinary participant, the same grouping the
	// reconciler sweeps with. Matters for the system account, which is a
	// member of every official conversation.
	winners := make(map[string]*model.Conversation)
	for i := range convs {
		if convs[i].Kind != model.KindOfficial {
			continue
		}
		owner := convs[i].Counterpart(s.systemID)
		if w := winners[owner]; w == nil || officialWins(&convs[i], w) {
			winners[owner] = &convs[i]
		}
	}

	views := make([]model.ConversationView, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		if c.Kind == model.KindOfficial && winners[c.Counterpart(s.systemID)].ID != c.ID {
			continue
		}
		views = append(views, s.view(ctx, c, callerID))
	}
	return views, nil
}

// EnsureOfficial returns the caller's official chat, creating it if needed.
func (s *Service) EnsureOfficial(ctx context.Context, userID string) (*model.ConversationView, error) {
	conv, err := s.reconciler.EnsureOfficial(ctx, userID)
	if err != nil {
		return nil, err
	}
	v := s.view(ctx, conv, userID)
	return &v, nil
}

// Reconcile runs one duplicate sweep over all official conversations.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	return s.reconciler.ReconcileAll(ctx)
}

// Participants returns the member list of a conversation the caller is in.
// Used by the realtime layer to relay typing signals.
func (s *Service) Participants(ctx context.Context, callerID, convID string) ([]string, error) {
	conv, err := s.loadForMember(ctx, convID, callerID)
	if err != nil {
		return nil, err
	}
	return conv.Participants, nil
}

// CoParticipants returns everyone who shares at least one active
// conversation with the user. Presence changes are announced to this set.
func (s *Service) CoParticipants(ctx context.Context, userID string) ([]string, error) {
	convs, err := s.convs.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service.CoParticipants: %w", err)
	}
	seen := make(map[string]struct{})
	var out []string
	for i := range convs {
		for _, p := range convs[i].Participants {
			if p == userID {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) loadForMember(ctx context.Context, convID, userID string) (*model.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("service: load conversation: %w", err)
	}
	if !conv.Active {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// view projects a conversation row for one participant: their unread count
// and a resolved title (direct chats show the counterpart's name).
func (s *Service) view(ctx context.Context, conv *model.Conversation, callerID string) model.ConversationView {
	title := conv.Title
	if conv.Kind == model.KindDirect {
		if name, err := s.users.DisplayName(ctx, conv.Counterpart(callerID)); err == nil {
			title = name
		}
	}
	return model.ConversationView{
		Conversation: *conv,
		Title:        title,
		UnreadCount:  conv.UnreadCounts[callerID],
	}
}

func (s *Service) dispatch(ctx context.Context, typ EventType, recipients []string, exclude string, payload any) {
	if s.dispatcher == nil {
		return
	}
	for _, p := range recipients {
		if p == exclude {
			continue
		}
		s.dispatcher.Notify(ctx, Event{Type: typ, RecipientID: p, Payload: payload})
	}
}

func (s *Service) notifyConversation(ctx context.Context, convID, exclude string, typ EventType, payload any) {
	if s.dispatcher == nil {
		return
	}
	conv, err := s.convs.GetByID(ctx, convID)
	if err != nil {
		logger.Errorf("notify %s: load conversation %s: %v", typ, convID, err)
		return
	}
	s.dispatch(ctx, typ, conv.Participants, exclude, payload)
}
