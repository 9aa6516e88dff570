package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chatline/internal/model"
	"github.com/chatline/internal/repository"
)

// memConvStore mirrors the SQL semantics of ConversationRepository on a map:
// ApplySend rewrites every counter in one step, ResetUnread upserts a zero,
// RefreshLastMessage only fires while the message is still the latest and
// FindBySignature picks the newest row (ties broken by the greatest id).
type memConvStore struct {
	mu    sync.Mutex
	rows  map[string]*model.Conversation
	// onFindMiss runs after a signature lookup misses, before Resolve moves
	// on to Create. Tests use it to hold several resolves in the window
	// where duplicates are born.
	onFindMiss func()
}

func newMemConvStore() *memConvStore {
	return &memConvStore{rows: make(map[string]*model.Conversation)}
}

func copyConv(c *model.Conversation) *model.Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.UnreadCounts = make(map[string]int, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		cp.UnreadCounts[k] = v
	}
	if c.LastMessageTime != nil {
		t := *c.LastMessageTime
		cp.LastMessageTime = &t
	}
	return &cp
}

func (s *memConvStore) Create(ctx context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[c.ID] = copyConv(c)
	return nil
}

func (s *memConvStore) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyConv(c), nil
}

func (s *memConvStore) FindBySignature(ctx context.Context, kind model.ConversationKind, key string) (*model.Conversation, error) {
	s.mu.Lock()
	var best *model.Conversation
	for _, c := range s.rows {
		if !c.Active || c.Kind != kind || c.ParticipantsKey != key {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) ||
			(c.CreatedAt.Equal(best.CreatedAt) && c.ID > best.ID) {
			best = c
		}
	}
	if best != nil {
		out := copyConv(best)
		s.mu.Unlock()
		return out, nil
	}
	hook := s.onFindMiss
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil, repository.ErrNotFound
}

func (s *memConvStore) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Conversation
	for _, c := range s.rows {
		if !c.Active {
			continue
		}
		for _, p := range c.Participants {
			if p == userID {
				out = append(out, *copyConv(c))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.LastMessageTime != nil && b.LastMessageTime != nil:
			if !a.LastMessageTime.Equal(*b.LastMessageTime) {
				return a.LastMessageTime.After(*b.LastMessageTime)
			}
		case a.LastMessageTime != nil:
			return true
		case b.LastMessageTime != nil:
			return false
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, nil
}

func (s *memConvStore) ListOfficial(ctx context.Context) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Conversation
	for _, c := range s.rows {
		if c.Active && c.Kind == model.KindOfficial {
			out = append(out, *copyConv(c))
		}
	}
	return out, nil
}

func (s *memConvStore) ApplySend(ctx context.Context, convID string, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[convID]
	if !ok || !c.Active {
		return repository.ErrNotFound
	}
	for id := range c.UnreadCounts {
		if id == m.SenderID {
			c.UnreadCounts[id] = 0
		} else {
			c.UnreadCounts[id]++
		}
	}
	c.LastMessage = m.Content
	c.LastMessageID = m.ID
	c.LastMessageType = m.Type
	t := m.CreatedAt
	c.LastMessageTime = &t
	return nil
}

func (s *memConvStore) ResetUnread(ctx context.Context, convID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[convID]
	if !ok {
		return repository.ErrNotFound
	}
	c.UnreadCounts[userID] = 0
	return nil
}

func (s *memConvStore) SetLastMessage(ctx context.Context, convID string, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[convID]
	if !ok {
		return repository.ErrNotFound
	}
	c.LastMessage = m.Content
	c.LastMessageID = m.ID
	c.LastMessageType = m.Type
	t := m.CreatedAt
	c.LastMessageTime = &t
	return nil
}

func (s *memConvStore) RefreshLastMessage(ctx context.Context, convID, messageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[convID]
	if !ok || c.LastMessageID != messageID {
		return nil
	}
	c.LastMessage = content
	return nil
}

func (s *memConvStore) Deactivate(ctx context.Context, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[convID]
	if !ok {
		return repository.ErrNotFound
	}
	c.Active = false
	return nil
}

type memMsgStore struct {
	mu   sync.Mutex
	rows map[string]*model.Message
}

func newMemMsgStore() *memMsgStore {
	return &memMsgStore{rows: make(map[string]*model.Message)}
}

func copyMsg(m *model.Message) *model.Message {
	cp := *m
	cp.ReadBy = append([]string(nil), m.ReadBy...)
	return &cp
}

func (s *memMsgStore) Create(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[m.ID] = copyMsg(m)
	return nil
}

func (s *memMsgStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyMsg(m), nil
}

func (s *memMsgStore) ListByConversation(ctx context.Context, convID string, limit int, before *time.Time) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.rows {
		if m.ConversationID != convID || m.IsDeleted {
			continue
		}
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, *copyMsg(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memMsgStore) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok || m.IsDeleted {
		return repository.ErrNotFound
	}
	m.Content = content
	t := editedAt
	m.EditedAt = &t
	return nil
}

func (s *memMsgStore) MarkDeleted(ctx context.Context, id, deletedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok || m.IsDeleted {
		return repository.ErrNotFound
	}
	m.OriginalContent = m.Content
	m.Content = model.DeletedPlaceholder
	m.Type = model.MessageTypeDeleted
	m.IsDeleted = true
	t := at
	m.DeletedAt = &t
	m.DeletedBy = deletedBy
	return nil
}

func (s *memMsgStore) MarkRead(ctx context.Context, convID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.ConversationID != convID || m.SenderID == userID {
			continue
		}
		seen := false
		for _, r := range m.ReadBy {
			if r == userID {
				seen = true
				break
			}
		}
		if !seen {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	return nil
}

func (s *memMsgStore) PurgeByConversation(ctx context.Context, convID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.rows {
		if m.ConversationID == convID {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

type memUsers struct {
	mu   sync.Mutex
	rows map[string]model.User
}

func newMemUsers(users ...model.User) *memUsers {
	s := &memUsers{rows: make(map[string]model.User)}
	for _, u := range users {
		s.rows[u.ID] = u
	}
	return s
}

func (s *memUsers) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	return ok, nil
}

func (s *memUsers) DisplayName(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	if u.DisplayName != "" {
		return u.DisplayName, nil
	}
	return u.Username, nil
}

func (s *memUsers) IsSystemAccount(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	return u.IsSystem, nil
}

func (s *memUsers) Summary(ctx context.Context, id string) (model.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	if !ok {
		return model.UserSummary{}, repository.ErrNotFound
	}
	return u.ToSummary(), nil
}

// recordingDispatcher collects every emitted event for assertions.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []Event
}

func (d *recordingDispatcher) Notify(ctx context.Context, ev Event) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
}

func (d *recordingDispatcher) byType(t EventType) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Event
	for _, ev := range d.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
