package model

import (
	"sort"
	"strings"
	"time"
)

type ConversationKind string

const (
	KindDirect   ConversationKind = "direct"
	KindGroup    ConversationKind = "group"
	KindOfficial ConversationKind = "official"
)

// Conversation is stored as a single row. The last-message fields and
// UnreadCounts are a denormalized cache so list views never scan messages.
type Conversation struct {
	ID              string            `json:"id"`
	Kind            ConversationKind  `json:"kind"`
	Title           string            `json:"title"`
	Participants    []string          `json:"participants"`
	ParticipantsKey string            `json:"-"`
	UnreadCounts    map[string]int    `json:"-"`
	LastMessage     string            `json:"last_message,omitempty"`
	LastMessageID   string            `json:"last_message_id,omitempty"`
	LastMessageType MessageType       `json:"last_message_type,omitempty"`
	LastMessageTime *time.Time        `json:"last_message_time,omitempty"`
	Active          bool              `json:"active"`
	CreatedBy       string            `json:"created_by"`
	CreatedAt       time.Time         `json:"created_at"`
	Ext             map[string]string `json:"ext,omitempty"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the other member of a two-party conversation.
func (c *Conversation) Counterpart(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// ParticipantsKey builds the canonical identity of a participant set:
// deduplicated, sorted, comma-joined. Two calls with the same members in
// any order produce the same key.
func ParticipantsKey(ids []string) string {
	seen := make(map[string]struct{}, len(ids))
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, ",")
}

// NormalizeParticipants deduplicates while keeping first-seen order.
func NormalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ConversationView is what list and detail endpoints return: the row plus
// fields resolved for the requesting user.
type ConversationView struct {
	Conversation Conversation  `json:"conversation"`
	Title        string        `json:"title"`
	UnreadCount  int           `json:"unread_count"`
	Members      []UserSummary `json:"members,omitempty"`
}
