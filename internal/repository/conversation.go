package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/botdesk/bridge-server-go/internal/model"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	List(ctx context.Context, limit, offset int) ([]model.Conversation, error)
	Count(ctx context.Context) (int, error)
	Upsert(ctx context.Context, params model.UpsertConversationParams) (*model.Conversation, error)
	UpdateControl(ctx context.Context, id string, isAutomated bool, operatorID *string) (*model.Conversation, error)
	UpdateLastMessage(ctx context.Context, id string, summary string, at time.Time) error
	UpdateStatus(ctx context.Context, id string, status model.ConversationStatus) error
	CloseInactive(ctx context.Context, cutoff time.Time) (int64, error)
}

type conversationRepo struct {
	db *sqlx.DB
}

func NewConversationRepository(db *sqlx.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations WHERE id = $1
	`, id)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) List(ctx context.Context, limit, offset int) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.SelectContext(ctx, &convs, `
		SELECT * FROM conversations
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return convs, err
}

func (r *conversationRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM conversations`)
	return count, err
}

// Upsert is the race-safe get-or-create: the partial unique index on
// external_contact_id (open conversations only) makes concurrent first
// messages from a new contact converge on one row.
func (r *conversationRepo) Upsert(ctx context.Context, params model.UpsertConversationParams) (*model.Conversation, error) {
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}

	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		INSERT INTO conversations
			(id, external_contact_id, display_name, status, is_automated_control)
		VALUES ($1, $2, $3, 'active', TRUE)
		ON CONFLICT (external_contact_id) WHERE status <> 'closed' DO UPDATE SET
			display_name = COALESCE(conversations.display_name, EXCLUDED.display_name),
			updated_at = NOW()
		RETURNING *
	`, id, params.ExternalContactID, params.DisplayName)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpdateControl flips reply ownership. Handing a conversation to an operator
// also reactivates it; releasing back to automation touches the control
// columns only, so a closed conversation stays closed.
func (r *conversationRepo) UpdateControl(ctx context.Context, id string, isAutomated bool, operatorID *string) (*model.Conversation, error) {
	query := `
		UPDATE conversations SET
			is_automated_control = $2,
			assigned_operator_id = $3,
			status = 'active',
			updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`
	if isAutomated {
		query = `
			UPDATE conversations SET
				is_automated_control = $2,
				assigned_operator_id = $3,
				updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`
	}

	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, query, id, isAutomated, operatorID)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) UpdateLastMessage(ctx context.Context, id string, summary string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET
			last_message = $2,
			last_message_at = $3,
			updated_at = NOW()
		WHERE id = $1
	`, id, summary, at)
	return err
}

func (r *conversationRepo) UpdateStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, status)
	return err
}

func (r *conversationRepo) CloseInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET
			status = 'closed',
			updated_at = NOW()
		WHERE status <> 'closed'
		AND last_message_at IS NOT NULL
		AND last_message_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
