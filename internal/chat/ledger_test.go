package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatline/internal/model"
)

func newTestConversation(t *testing.T, env *testEnv, participants ...string) *model.Conversation {
	t.Helper()
	kind := model.KindDirect
	title := ""
	if len(participants) > 2 {
		kind = model.KindGroup
		title = "group"
	}
	conv, _, err := env.svc.resolver.Resolve(context.Background(), participants, kind, title)
	require.NoError(t, err)
	return conv
}

func TestAppendValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := newTestConversation(t, env, "alice", "bob")

	_, err := env.svc.ledger.Append(ctx, conv.ID, "alice", model.MessageTypeText, "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = env.svc.ledger.Append(ctx, "no-such-conversation", "alice", model.MessageTypeText, "hi")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = env.svc.ledger.Append(ctx, conv.ID, "carol", model.MessageTypeText, "hi")
	assert.ErrorIs(t, err, ErrNotParticipant)

	m, err := env.svc.ledger.Append(ctx, conv.ID, "alice", "", "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeText, m.Type, "empty type defaults to text")
	assert.Equal(t, "hello", m.Content, "content is trimmed")
	assert.Equal(t, []string{"alice"}, m.ReadBy, "the sender has read their own message")
}

func TestEditOwnershipAndTombstones(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := newTestConversation(t, env, "alice", "bob")

	m, err := env.svc.ledger.Append(ctx, conv.ID, "alice", model.MessageTypeText, "draft")
	require.NoError(t, err)

	_, err = env.svc.ledger.Edit(ctx, m.ID, "bob", "hijack")
	assert.ErrorIs(t, err, ErrNotSender)

	_, err = env.svc.ledger.Edit(ctx, "no-such-message", "alice", "x")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	edited, err := env.svc.ledger.Edit(ctx, m.ID, "alice", "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	require.NotNil(t, edited.EditedAt)

	_, err = env.svc.ledger.SoftDelete(ctx, m.ID, "alice")
	require.NoError(t, err)
	_, err = env.svc.ledger.Edit(ctx, m.ID, "alice", "too late")
	assert.ErrorIs(t, err, ErrMessageDeleted)
}

func TestEditRefreshesPreviewOnlyForLatest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := newTestConversation(t, env, "alice", "bob")

	first, err := env.svc.SendMessage(ctx, "alice", conv.ID, model.MessageTypeText, "first")
	require.NoError(t, err)
	second, err := env.svc.SendMessage(ctx, "bob", conv.ID, model.MessageTypeText, "second")
	require.NoError(t, err)

	// Editing an older message must not touch the preview.
	_, err = env.svc.ledger.Edit(ctx, first.ID, "alice", "first, edited")
	require.NoError(t, err)
	stored, err := env.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, stored.LastMessageID)
	assert.Equal(t, "second", stored.LastMessage)

	// Editing the latest one does.
	_, err = env.svc.ledger.Edit(ctx, second.ID, "bob", "second, edited")
	require.NoError(t, err)
	stored, err = env.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "second, edited", stored.LastMessage)
}

func TestSoftDeleteIsIdempotentAndKeepsAudit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := newTestConversation(t, env, "alice", "bob")

	m, err := env.svc.SendMessage(ctx, "alice", conv.ID, model.MessageTypeText, "secret plans")
	require.NoError(t, err)

	_, err = env.svc.ledger.SoftDelete(ctx, m.ID, "bob")
	assert.ErrorIs(t, err, ErrNotSender)

	tomb, err := env.svc.ledger.SoftDelete(ctx, m.ID, "alice")
	require.NoError(t, err)
	assert.True(t, tomb.IsDeleted)
	assert.Equal(t, model.DeletedPlaceholder, tomb.Content)
	assert.Equal(t, model.MessageTypeDeleted, tomb.Type)
	assert.Equal(t, "alice", tomb.DeletedBy)
	require.NotNil(t, tomb.DeletedAt)

	// The row keeps the original content for audit.
	stored, err := env.msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret plans", stored.OriginalContent)

	// Deleting again is a no-op returning the same tombstone.
	again, err := env.svc.ledger.SoftDelete(ctx, m.ID, "alice")
	require.NoError(t, err)
	assert.True(t, again.IsDeleted)
	assert.Equal(t, tomb.DeletedAt.Unix(), again.DeletedAt.Unix())

	// The list no longer shows it.
	msgs, err := env.svc.ledger.ListByConversation(ctx, conv.ID, 10, nil)
	require.NoError(t, err)
	for _, got := range msgs {
		assert.NotEqual(t, m.ID, got.ID)
	}

	// The preview keeps the deleted text; deletion never rewrites it.
	storedConv, err := env.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret plans", storedConv.LastMessage)
}

func TestDeleteKeepsEditedPreview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := newTestConversation(t, env, "alice", "bob")

	m, err := env.svc.SendMessage(ctx, "alice", conv.ID, model.MessageTypeText, "hi")
	require.NoError(t, err)
	_, err = env.svc.ledger.Edit(ctx, m.ID, "alice", "hello")
	require.NoError(t, err)
	_, err = env.svc.ledger.SoftDelete(ctx, m.ID, "alice")
	require.NoError(t, err)

	stored, err := env.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.LastMessage)
	assert.Equal(t, m.ID, stored.LastMessageID)
}

func TestListClampsPageSizeAndOrdersAscending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// A bare conversation without the usual welcome message, so the page
	// content is fully controlled by the rows below.
	conv := &model.Conversation{
		ID:           "conv-list",
		Kind:         model.KindDirect,
		Participants: []string{"alice", "bob"},
		UnreadCounts: map[string]int{"alice": 0, "bob": 0},
		Active:       true,
		CreatedBy:    "alice",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, env.convs.Create(ctx, conv))

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, env.msgs.Create(ctx, &model.Message{
			ID:             string(rune('a' + i)),
			ConversationID: conv.ID,
			SenderID:       "alice",
			Type:           model.MessageTypeText,
			Content:        "m",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	msgs, err := env.svc.ledger.ListByConversation(ctx, conv.ID, 3, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
	assert.True(t, msgs[1].CreatedAt.Before(msgs[2].CreatedAt))
	// A page keeps the newest messages, ordered oldest first.
	assert.Equal(t, "e", msgs[2].ID)

	cutoff := base.Add(2 * time.Minute)
	older, err := env.svc.ledger.ListByConversation(ctx, conv.ID, 10, &cutoff)
	require.NoError(t, err)
	for _, m := range older {
		assert.True(t, m.CreatedAt.Before(cutoff))
	}

	// A zero limit falls back to the default page size instead of nothing.
	all, err := env.svc.ledger.ListByConversation(ctx, conv.ID, 0, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, all)
}
