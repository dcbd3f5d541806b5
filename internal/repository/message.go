package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/botdesk/bridge-server-go/internal/model"
)

type MessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChatMessage, error)
	FindByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]model.ChatMessage, error)
	CountByConversationID(ctx context.Context, conversationID string) (int, error)
	CountUnreadByConversationID(ctx context.Context, conversationID string) (int, error)
	Create(ctx context.Context, params model.CreateMessageParams) (*model.ChatMessage, error)
	MarkConversationRead(ctx context.Context, conversationID string) (int64, error)
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) FindByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM chat_messages WHERE id = $1`, id)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) FindByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY timestamp ASC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	return msgs, err
}

func (r *messageRepo) CountByConversationID(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM chat_messages WHERE conversation_id = $1
	`, conversationID)
	return count, err
}

func (r *messageRepo) CountUnreadByConversationID(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM chat_messages
		WHERE conversation_id = $1 AND is_read = FALSE
	`, conversationID)
	return count, err
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.ChatMessage, error) {
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}

	var msg model.ChatMessage
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO chat_messages
			(id, conversation_id, sender_type, sender_id, content, media_type, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, id, params.ConversationID, params.SenderType, params.SenderID,
		params.Content, params.MediaType, params.IsRead)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) MarkConversationRead(ctx context.Context, conversationID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE chat_messages SET is_read = TRUE
		WHERE conversation_id = $1 AND is_read = FALSE
	`, conversationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
