package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/model"
)

// Reconciler keeps the invariant of one official chat per user. Duplicates
// can appear under concurrency because creation is not guarded by any
// constraint; the reconciler sweeps them up afterwards instead of blocking
// the hot path.
type Reconciler struct {
	convs           ConversationStore
	msgs            MessageStore
	resolver        *Resolver
	systemAccountID string
	title           string
}

func NewReconciler(convs ConversationStore, msgs MessageStore, resolver *Resolver, systemAccountID, title string) *Reconciler {
	return &Reconciler{convs: convs, msgs: msgs, resolver: resolver, systemAccountID: systemAccountID, title: title}
}

// ReconcileResult reports one sweep: how many official conversations were
// scanned, how many duplicates were retired and how many of their messages
// were purged.
type ReconcileResult struct {
	Scanned int `json:"scanned"`
	Merged  int `json:"merged"`
	Purged  int `json:"purged"`
}

// EnsureOfficial returns the user's official chat, creating it when missing.
// Safe to call from anywhere, any number of times.
func (r *Reconciler) EnsureOfficial(ctx context.Context, userID string) (*model.Conversation, error) {
	if userID == r.systemAccountID {
		return nil, fmt.Errorf("%w: system account has no official chat of its own", ErrInvalidParticipants)
	}
	conv, _, err := r.resolver.Resolve(ctx, []string{userID, r.systemAccountID}, model.KindOfficial, r.title)
	if err != nil {
		return nil, fmt.Errorf("reconciler.EnsureOfficial: %w", err)
	}
	return conv, nil
}

// ReconcileAll scans every active official conversation and retires
// duplicates. Per user the newest conversation survives, ties broken by the
// greatest id, the same rule readers use, so the sweep never disagrees with
// a concurrent lookup. Loser rows are deactivated, their messages purged.
// Running it twice in a row changes nothing the second time.
func (r *Reconciler) ReconcileAll(ctx context.Context) (ReconcileResult, error) {
	defer logger.DeferLogDuration("reconciler.ReconcileAll", time.Now())()

	var res ReconcileResult
	convs, err := r.convs.ListOfficial(ctx)
	if err != nil {
		return res, fmt.Errorf("reconciler.ReconcileAll list: %w", err)
	}
	res.Scanned = len(convs)

	byUser := make(map[string][]*model.Conversation)
	for i := range convs {
		c := &convs[i]
		owner := c.Counterpart(r.systemAccountID)
		if owner == "" || !c.HasParticipant(r.systemAccountID) {
			logger.Errorf("reconcile: official conversation %s has no owner, skipping", c.ID)
			continue
		}
		byUser[owner] = append(byUser[owner], c)
	}

	for owner, group := range byUser {
		if len(group) < 2 {
			continue
		}
		winner := group[0]
		for _, c := range group[1:] {
			if officialWins(c, winner) {
				winner = c
			}
		}
		for _, c := range group {
			if c.ID == winner.ID {
				continue
			}
			purged, err := r.msgs.PurgeByConversation(ctx, c.ID)
			if err != nil {
				return res, fmt.Errorf("reconciler.ReconcileAll purge %s: %w", c.ID, err)
			}
			if err := r.convs.Deactivate(ctx, c.ID); err != nil {
				return res, fmt.Errorf("reconciler.ReconcileAll deactivate %s: %w", c.ID, err)
			}
			res.Merged++
			res.Purged += int(purged)
		}
		logger.Infof("reconcile: user %s had %d official conversations, kept %s", owner, len(group), winner.ID)
	}
	return res, nil
}

// officialWins reports whether a beats b under the duplicate tie-break:
// later creation wins, equal timestamps fall back to the greater id.
func officialWins(a, b *model.Conversation) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
