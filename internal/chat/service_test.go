package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatline/internal/model"
)

func TestCreateOrGetDirect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, created, err := env.svc.CreateOrGetDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Bob", v.Title, "direct chats are titled after the counterpart")

	again, created, err := env.svc.CreateOrGetDirect(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, v.Conversation.ID, again.Conversation.ID)
	assert.Equal(t, "Alice", again.Title)

	_, _, err = env.svc.CreateOrGetDirect(ctx, "alice", "alice")
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	// Only the counterpart is told about the new conversation.
	evs := env.dispatcher.byType(EventConversationCreated)
	require.Len(t, evs, 2)
	recipients := []string{evs[0].RecipientID, evs[1].RecipientID}
	assert.ElementsMatch(t, []string{"alice", "bob"}, recipients)
}

func TestCreateGroupRequiresTitle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateGroup(ctx, "alice", "   ", []string{"bob", "carol"})
	assert.ErrorIs(t, err, ErrEmptyTitle)

	v, err := env.svc.CreateGroup(ctx, "alice", "weekend", []string{"bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, model.KindGroup, v.Conversation.Kind)
	assert.Equal(t, "weekend", v.Title)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, v.Conversation.Participants)
}

func TestMembershipIsEnforced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := newTestConversation(t, env, "alice", "bob")

	_, err := env.svc.SendMessage(ctx, "carol", conv.ID, model.MessageTypeText, "let me in")
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = env.svc.ListMessages(ctx, "carol", conv.ID, 10, nil)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = env.svc.GetConversation(ctx, "carol", conv.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = env.svc.GetConversation(ctx, "alice", "no-such-conversation")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	// A deactivated conversation behaves like a missing one.
	require.NoError(t, env.convs.Deactivate(ctx, conv.ID))
	_, err = env.svc.GetConversation(ctx, "alice", conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestGetConversationResolvesMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := newTestConversation(t, env, "alice", "bob")

	v, err := env.svc.GetConversation(ctx, "alice", conv.ID)
	require.NoError(t, err)
	require.Len(t, v.Members, 2)
	ids := []string{v.Members[0].ID, v.Members[1].ID}
	assert.ElementsMatch(t, []string{"alice", "bob"}, ids)
}

func TestSendNotifiesEveryoneButTheSender(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := newTestConversation(t, env, "alice", "bob", "carol")

	m, err := env.svc.SendMessage(ctx, "alice", conv.ID, model.MessageTypeText, "hello all")
	require.NoError(t, err)
	require.NotNil(t, m.Sender)
	assert.Equal(t, "Alice", m.Sender.DisplayName)

	evs := env.dispatcher.byType(EventNewMessage)
	require.Len(t, evs, 2)
	for _, ev := range evs {
		assert.NotEqual(t, "alice", ev.RecipientID)
		payload, ok := ev.Payload.(*model.Message)
		require.True(t, ok)
		assert.Equal(t, m.ID, payload.ID)
	}
}

func TestEditAndDeleteEmitTypedEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := newTestConversation(t, env, "alice", "bob")

	m, err := env.svc.SendMessage(ctx, "alice", conv.ID, model.MessageTypeText, "v1")
	require.NoError(t, err)

	_, err = env.svc.EditMessage(ctx, "alice", m.ID, "v2")
	require.NoError(t, err)
	edits := env.dispatcher.byType(EventMessageEdited)
	require.Len(t, edits, 1)
	assert.Equal(t, "bob", edits[0].RecipientID)
	editPayload := edits[0].Payload.(MessageEditedPayload)
	assert.Equal(t, m.ID, editPayload.MessageID)
	assert.Equal(t, "v2", editPayload.Content)

	_, err = env.svc.DeleteMessage(ctx, "alice", m.ID)
	require.NoError(t, err)
	dels := env.dispatcher.byType(EventMessageDeleted)
	require.Len(t, dels, 1)
	assert.Equal(t, "bob", dels[0].RecipientID)

	// A repeated delete succeeds without another event.
	_, err = env.svc.DeleteMessage(ctx, "alice", m.ID)
	require.NoError(t, err)
	assert.Len(t, env.dispatcher.byType(EventMessageDeleted), 2)
}

func TestListConversationsEnsuresOfficial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A brand-new user's first list already contains the official chat.
	views, err := env.svc.ListConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, model.KindOfficial, views[0].Conversation.Kind)
	assert.Equal(t, "Official", views[0].Title)
	assert.Equal(t, "Welcome aboard", views[0].Conversation.LastMessage)

	// The system account gets no official chat of its own, but it is a
	// member of every user's, so it sees alice's.
	views, err = env.svc.ListConversationsForUser(ctx, "system")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, model.KindOfficial, views[0].Conversation.Kind)
	assert.Contains(t, views[0].Conversation.Participants, "alice")
}

func TestSystemAccountSeesOneOfficialPerUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	aliceChat, err := env.svc.EnsureOfficial(ctx, "alice")
	require.NoError(t, err)
	_, err = env.svc.EnsureOfficial(ctx, "bob")
	require.NoError(t, err)

	// A leftover duplicate for alice must not shadow bob's conversation.
	dup := aliceChat.Conversation
	dup.ID = "zzz-duplicate"
	dup.CreatedAt = aliceChat.Conversation.CreatedAt.Add(time.Second)
	require.NoError(t, env.convs.Create(ctx, &dup))

	views, err := env.svc.ListConversationsForUser(ctx, "system")
	require.NoError(t, err)
	require.Len(t, views, 2)
	var owners []string
	for _, v := range views {
		owners = append(owners, v.Conversation.Counterpart("system"))
		if v.Conversation.Counterpart("system") == "alice" {
			assert.Equal(t, "zzz-duplicate", v.Conversation.ID)
		}
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, owners)
}

func TestListCollapsesDuplicateOfficials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.EnsureOfficial(ctx, "alice")
	require.NoError(t, err)

	// Fabricate the duplicate a concurrent resolve would have left behind.
	dup := first.Conversation
	dup.ID = "zzz-duplicate"
	dup.CreatedAt = first.Conversation.CreatedAt.Add(time.Second)
	require.NoError(t, env.convs.Create(ctx, &dup))

	views, err := env.svc.ListConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "zzz-duplicate", views[0].Conversation.ID, "the newest duplicate is the winner readers see")
}

func TestCoParticipants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	newTestConversation(t, env, "alice", "bob")
	newTestConversation(t, env, "alice", "bob", "carol")

	got, err := env.svc.CoParticipants(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "carol"}, got)
}

func TestUnreadIsPerViewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := newTestConversation(t, env, "alice", "bob")

	_, err := env.svc.SendMessage(ctx, "alice", conv.ID, model.MessageTypeText, "one")
	require.NoError(t, err)
	_, err = env.svc.SendMessage(ctx, "alice", conv.ID, model.MessageTypeText, "two")
	require.NoError(t, err)

	forBob, err := env.svc.GetConversation(ctx, "bob", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, forBob.UnreadCount)

	forAlice, err := env.svc.GetConversation(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, forAlice.UnreadCount)
}
