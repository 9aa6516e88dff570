package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatline/internal/model"
)

func TestEnsureOfficialCreatesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.EnsureOfficial(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.KindOfficial, first.Conversation.Kind)
	assert.Equal(t, "Official", first.Conversation.Title)

	second, err := env.svc.EnsureOfficial(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
}

func TestEnsureOfficialRejectsSystemAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.EnsureOfficial(context.Background(), "system")
	assert.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestConcurrentEnsureOfficialDuplicatesAreReconciled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const racers = 4

	// Hold every resolve in the gap between the signature miss and the
	// create, so all of them decide to create.
	gate := make(chan struct{})
	var missed sync.WaitGroup
	missed.Add(racers)
	env.convs.onFindMiss = func() {
		missed.Done()
		<-gate
	}

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.EnsureOfficial(ctx, "alice")
			assert.NoError(t, err)
		}()
	}
	missed.Wait()
	close(gate)
	wg.Wait()
	env.convs.onFindMiss = nil

	officials, err := env.convs.ListOfficial(ctx)
	require.NoError(t, err)
	require.Len(t, officials, racers, "each racer should have created its own conversation")

	// Readers already agree on a single winner before any sweep runs.
	views, err := env.svc.ListConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	winnerID := views[0].Conversation.ID

	res, err := env.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, racers, res.Scanned)
	assert.Equal(t, racers-1, res.Merged)
	assert.Equal(t, racers-1, res.Purged, "each retired duplicate held only its welcome message")

	officials, err = env.convs.ListOfficial(ctx)
	require.NoError(t, err)
	require.Len(t, officials, 1)
	assert.Equal(t, winnerID, officials[0].ID, "the sweep keeps the conversation readers were already seeing")

	// A second sweep finds nothing to do.
	res, err = env.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Merged)
	assert.Equal(t, 0, res.Purged)
}

func TestReconcileTieBreakIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := model.ParticipantsKey([]string{"alice", "system"})

	for _, id := range []string{"conv-a", "conv-b", "conv-c"} {
		require.NoError(t, env.convs.Create(ctx, &model.Conversation{
			ID:              id,
			Kind:            model.KindOfficial,
			Title:           "Official",
			Participants:    []string{"alice", "system"},
			ParticipantsKey: key,
			UnreadCounts:    map[string]int{"alice": 0, "system": 0},
			Active:          true,
			CreatedBy:       "alice",
			CreatedAt:       created,
		}))
	}

	// Equal timestamps fall back to the lexicographically greatest id,
	// for the lookup and for the sweep alike.
	found, err := env.convs.FindBySignature(ctx, model.KindOfficial, key)
	require.NoError(t, err)
	assert.Equal(t, "conv-c", found.ID)

	res, err := env.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Merged)

	officials, err := env.convs.ListOfficial(ctx)
	require.NoError(t, err)
	require.Len(t, officials, 1)
	assert.Equal(t, "conv-c", officials[0].ID)
}

func TestOfficialWins(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	older := &model.Conversation{ID: "z", CreatedAt: early}
	newer := &model.Conversation{ID: "a", CreatedAt: late}
	assert.True(t, officialWins(newer, older), "later creation wins regardless of id")
	assert.False(t, officialWins(older, newer))

	left := &model.Conversation{ID: "a", CreatedAt: early}
	right := &model.Conversation{ID: "b", CreatedAt: early}
	assert.True(t, officialWins(right, left))
	assert.False(t, officialWins(left, right))
}
