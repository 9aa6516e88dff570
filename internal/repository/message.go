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

const msgCols = `m.id, m.conversation_id, m.sender_id, m.type, m.content, COALESCE(m.original_content,''),
	m.is_deleted, m.deleted_at, COALESCE(m.deleted_by,''), m.read_by, m.edited_at, m.created_at, m.ext`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	var ext []byte
	err := s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Type, &m.Content, &m.OriginalContent,
		&m.IsDeleted, &m.DeletedAt, &m.DeletedBy, &m.ReadBy, &m.EditedAt, &m.CreatedAt, &ext)
	if err != nil {
		return err
	}
	if len(ext) > 0 {
		if err := json.Unmarshal(ext, &m.Ext); err != nil {
			return fmt.Errorf("ext: %w", err)
		}
	}
	return nil
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	ext, err := json.Marshal(m.Ext)
	if err != nil {
		return fmt.Errorf("msgRepo.Create marshal ext: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, type, content, read_by, created_at, ext)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)`,
		m.ID, m.ConversationID, m.SenderID, m.Type, m.Content, m.ReadBy, m.CreatedAt, string(ext),
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+msgCols+` FROM messages m WHERE m.id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// ListByConversation returns visible messages in ascending order. A non-nil
// before narrows the page to messages older than that timestamp; the query
// walks backwards and the result is reversed so callers always see ascending
// order.
func (r *MessageRepository) ListByConversation(ctx context.Context, convID string, limit int, before *time.Time) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListByConversation", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+msgCols+`, u.username, COALESCE(u.display_name,''), u.avatar_url, u.is_online
		 FROM messages m
		 LEFT JOIN users u ON u.id = m.sender_id
		 WHERE m.conversation_id = $1 AND NOT m.is_deleted
		   AND ($2::timestamptz IS NULL OR m.created_at < $2)
		 ORDER BY m.created_at DESC, m.id DESC
		 LIMIT $3`,
		convID, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListByConversation: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var ext []byte
		var username, displayName, avatarURL *string
		var isOnline *bool
		err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Type, &m.Content, &m.OriginalContent,
			&m.IsDeleted, &m.DeletedAt, &m.DeletedBy, &m.ReadBy, &m.EditedAt, &m.CreatedAt, &ext,
			&username, &displayName, &avatarURL, &isOnline)
		if err != nil {
			return nil, fmt.Errorf("msgRepo.ListByConversation scan: %w", err)
		}
		if len(ext) > 0 {
			if err := json.Unmarshal(ext, &m.Ext); err != nil {
				return nil, fmt.Errorf("msgRepo.ListByConversation ext: %w", err)
			}
		}
		if username != nil {
			name := *displayName
			if name == "" {
				name = *username
			}
			m.Sender = &model.UserSummary{ID: m.SenderID, Username: *username, DisplayName: name, AvatarURL: *avatarURL, IsOnline: *isOnline}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListByConversation rows: %w", err)
	}
	// reverse to ascending
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	defer logger.DeferLogDuration("msg.UpdateContent", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET content = $2, edited_at = $3 WHERE id = $1 AND NOT is_deleted`,
		id, content, editedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.UpdateContent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDeleted tombstones a message: the original content moves to the audit
// column and the visible content becomes the placeholder. Returns ErrNotFound
// when the message is missing or already deleted so callers can tell the
// repeat case apart.
func (r *MessageRepository) MarkDeleted(ctx context.Context, id, deletedBy string, at time.Time) error {
	defer logger.DeferLogDuration("msg.MarkDeleted", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages
		 SET is_deleted = true, original_content = content, content = $3, type = $4,
		     deleted_at = $5, deleted_by = $2
		 WHERE id = $1 AND NOT is_deleted`,
		id, deletedBy, model.DeletedPlaceholder, model.MessageTypeDeleted, at,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.MarkDeleted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRead records the reader on every message in the conversation they did
// not send themselves. The unread badge lives on the conversation row; this
// only feeds per-message receipts.
func (r *MessageRepository) MarkRead(ctx context.Context, convID, userID string) error {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET read_by = array_append(read_by, $2)
		 WHERE conversation_id = $1 AND sender_id <> $2 AND NOT read_by @> ARRAY[$2]`,
		convID, userID,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.MarkRead: %w", err)
	}
	return nil
}

// PurgeByConversation removes all messages of a conversation and returns the
// number deleted. Used when a duplicate official chat is folded away.
func (r *MessageRepository) PurgeByConversation(ctx context.Context, convID string) (int64, error) {
	defer logger.DeferLogDuration("msg.PurgeByConversation", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, convID)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.PurgeByConversation: %w", err)
	}
	return tag.RowsAffected(), nil
}
