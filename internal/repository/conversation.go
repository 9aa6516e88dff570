package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/model"
)

const convCols = `id, kind, COALESCE(title,''), participants, participants_key, unread_counts,
	COALESCE(last_message,''), COALESCE(last_message_id,''), COALESCE(last_message_type,''), last_message_time,
	active, created_by, created_at, ext`

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// scanConversation scans a row into model.Conversation (order matches convCols).
func scanConversation(s interface{ Scan(dest ...any) error }, c *model.Conversation) error {
	var unread, ext []byte
	err := s.Scan(&c.ID, &c.Kind, &c.Title, &c.Participants, &c.ParticipantsKey, &unread,
		&c.LastMessage, &c.LastMessageID, &c.LastMessageType, &c.LastMessageTime,
		&c.Active, &c.CreatedBy, &c.CreatedAt, &ext)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(unread, &c.UnreadCounts); err != nil {
		return fmt.Errorf("unread_counts: %w", err)
	}
	if len(ext) > 0 {
		if err := json.Unmarshal(ext, &c.Ext); err != nil {
			return fmt.Errorf("ext: %w", err)
		}
	}
	return nil
}

func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	defer logger.DeferLogDuration("conversation.Create", time.Now())()
	unread, err := json.Marshal(c.UnreadCounts)
	if err != nil {
		return fmt.Errorf("conversationRepo.Create marshal: %w", err)
	}
	ext, err := json.Marshal(c.Ext)
	if err != nil {
		return fmt.Errorf("conversationRepo.Create marshal ext: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO conversations (id, kind, title, participants, participants_key, unread_counts, active, created_by, created_at, ext)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10::jsonb)`,
		c.ID, c.Kind, c.Title, c.Participants, c.ParticipantsKey, string(unread), c.Active, c.CreatedBy, c.CreatedAt, string(ext),
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.Create: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.GetByID", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx, `SELECT `+convCols+` FROM conversations WHERE id = $1`, id)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversationRepo.GetByID: %w", err)
	}
	return c, nil
}

// FindBySignature returns the active conversation matching the participant
// signature. When duplicates exist (no unique index, see ReconcileAll) the
// newest row wins, ties broken by the greatest id, so every reader picks the
// same one.
func (r *ConversationRepository) FindBySignature(ctx context.Context, kind model.ConversationKind, key string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.FindBySignature", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+convCols+` FROM conversations
		 WHERE kind = $1 AND participants_key = $2 AND active
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		kind, key,
	)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversationRepo.FindBySignature: %w", err)
	}
	return c, nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+convCols+` FROM conversations
		 WHERE active AND $1 = ANY(participants)
		 ORDER BY last_message_time DESC NULLS LAST, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.ListForUser: %w", err)
	}
	defer rows.Close()
	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, fmt.Errorf("conversationRepo.ListForUser scan: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversationRepo.ListForUser rows: %w", err)
	}
	return convs, nil
}

// ListOfficial returns all active official conversations, for reconciliation.
func (r *ConversationRepository) ListOfficial(ctx context.Context) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.ListOfficial", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+convCols+` FROM conversations WHERE active AND kind = $1 ORDER BY created_at`,
		model.KindOfficial,
	)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.ListOfficial: %w", err)
	}
	defer rows.Close()
	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, fmt.Errorf("conversationRepo.ListOfficial scan: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversationRepo.ListOfficial rows: %w", err)
	}
	return convs, nil
}

// ApplySend updates the unread counters and the last-message cache in one
// statement: the sender's counter resets to zero, every other counter is
// incremented, and the cache fields point at the new message. One UPDATE so
// a crash can never leave the counters and the cache disagreeing.
func (r *ConversationRepository) ApplySend(ctx context.Context, convID string, m *model.Message) error {
	defer logger.DeferLogDuration("conversation.ApplySend", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET
			last_message = $2,
			last_message_id = $3,
			last_message_type = $4,
			last_message_time = $5,
			unread_counts = (
				SELECT COALESCE(jsonb_object_agg(key,
					CASE WHEN key = $6 THEN to_jsonb(0) ELSE to_jsonb(value::int + 1) END), '{}'::jsonb)
				FROM jsonb_each_text(unread_counts)
			)
		 WHERE id = $1 AND active`,
		convID, m.Content, m.ID, m.Type, m.CreatedAt, m.SenderID,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.ApplySend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetUnread zeroes one participant's counter. Missing keys are created so
// a participant added after the map was written still ends up at zero.
func (r *ConversationRepository) ResetUnread(ctx context.Context, convID, userID string) error {
	defer logger.DeferLogDuration("conversation.ResetUnread", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations
		 SET unread_counts = jsonb_set(unread_counts, ARRAY[$2], '0'::jsonb, true)
		 WHERE id = $1 AND active`,
		convID, userID,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.ResetUnread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLastMessage overwrites the last-message cache unconditionally. Used at
// creation time for the welcome message, which must not bump any counter.
func (r *ConversationRepository) SetLastMessage(ctx context.Context, convID string, m *model.Message) error {
	defer logger.DeferLogDuration("conversation.SetLastMessage", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations
		 SET last_message = $2, last_message_id = $3, last_message_type = $4, last_message_time = $5
		 WHERE id = $1`,
		convID, m.Content, m.ID, m.Type, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.SetLastMessage: %w", err)
	}
	return nil
}

// RefreshLastMessage rewrites the cached preview text only if the given
// message is still the latest one. Editing an older message leaves the
// cache untouched.
func (r *ConversationRepository) RefreshLastMessage(ctx context.Context, convID, messageID, content string) error {
	defer logger.DeferLogDuration("conversation.RefreshLastMessage", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET last_message = $3 WHERE id = $1 AND last_message_id = $2`,
		convID, messageID, content,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.RefreshLastMessage: %w", err)
	}
	return nil
}

// Deactivate retires a conversation without deleting the row.
func (r *ConversationRepository) Deactivate(ctx context.Context, convID string) error {
	defer logger.DeferLogDuration("conversation.Deactivate", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE conversations SET active = false WHERE id = $1`, convID)
	if err != nil {
		return fmt.Errorf("conversationRepo.Deactivate: %w", err)
	}
	return nil
}
