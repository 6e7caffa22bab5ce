package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

// ConversationRepository persists conversations and their messages.
type ConversationRepository interface {
	Create(ctx context.Context, userID, title string) (*models.Conversation, error)
	Get(ctx context.Context, id uuid.UUID, userID string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	// IncrementCounters atomically bumps the aggregate counters so
	// concurrent turns from the same user cannot lose updates.
	IncrementCounters(ctx context.Context, id uuid.UUID, messages, tokens int) error
	// ListRecentMessages returns the last limit messages, newest first.
	ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
}

type conversationRepository struct {
	db Querier
}

// NewConversationRepository creates a ConversationRepository over the pool.
func NewConversationRepository(db Querier) ConversationRepository {
	return &conversationRepository{db: db}
}

var _ ConversationRepository = (*conversationRepository)(nil)

func (r *conversationRepository) Create(ctx context.Context, userID, title string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO conversations (id, user_id, title, total_messages, total_tokens_used, is_archived, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, false, $4, $5)`,
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	return conv, nil
}

func (r *conversationRepository) Get(ctx context.Context, id uuid.UUID, userID string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, title, total_messages, total_tokens_used, is_archived, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.TotalMessages,
		&conv.TotalTokensUsed, &conv.IsArchived, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}

	return conv, nil
}

func (r *conversationRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var metadataJSON []byte
	if msg.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, metadataJSON, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

func (r *conversationRepository) IncrementCounters(ctx context.Context, id uuid.UUID, messages, tokens int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET total_messages = total_messages + $2,
		    total_tokens_used = total_tokens_used + $3,
		    updated_at = now()
		WHERE id = $1`,
		id, messages, tokens)
	if err != nil {
		return fmt.Errorf("increment conversation counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *conversationRepository) ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var metadataJSON []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &metadataJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
