package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/botdesk/bridge-server-go/internal/errors"
	"github.com/botdesk/bridge-server-go/internal/model"
	"github.com/botdesk/bridge-server-go/internal/repository"
)

// ConversationService maps external contacts to durable conversations and
// arbitrates who owns their replies.
type ConversationService struct {
	repo repository.ConversationRepository
}

func NewConversationService(repo repository.ConversationRepository) *ConversationService {
	return &ConversationService{repo: repo}
}

// GetOrCreate returns the open conversation for a contact, creating one when
// none exists. New conversations start active under automated control. The
// upsert rides a unique constraint, so rapid-fire first messages from the
// same contact converge on a single row.
func (s *ConversationService) GetOrCreate(ctx context.Context, contactID string) (*model.Conversation, error) {
	conv, err := s.repo.Upsert(ctx, model.UpsertConversationParams{
		ExternalContactID: contactID,
	})
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	return conv, nil
}

func (s *ConversationService) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	if conv == nil {
		return nil, apperrors.NotFound("Conversation")
	}
	return conv, nil
}

func (s *ConversationService) List(ctx context.Context, limit, offset int) ([]model.Conversation, int, error) {
	convs, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Persistence(err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, apperrors.Persistence(err)
	}
	return convs, total, nil
}

// RecordLastMessage refreshes the denormalized listing cache. Best effort:
// failures are logged, never propagated to the caller.
func (s *ConversationService) RecordLastMessage(ctx context.Context, conversationID, summary string, at time.Time) {
	if err := s.repo.UpdateLastMessage(ctx, conversationID, summary, at); err != nil {
		log.Error().Err(err).
			Str("conversationId", conversationID).
			Msg("failed to update last message cache")
	}
}

// AssumeHumanControl hands a conversation's replies to an operator. Idempotent.
func (s *ConversationService) AssumeHumanControl(ctx context.Context, conversationID, operatorID string) (*model.Conversation, error) {
	conv, err := s.repo.UpdateControl(ctx, conversationID, false, &operatorID)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	if conv == nil {
		return nil, apperrors.NotFound("Conversation")
	}

	log.Info().
		Str("conversationId", conversationID).
		Str("operatorId", operatorID).
		Msg("operator took over conversation")

	return conv, nil
}

// ReleaseToAutomation returns a conversation to the automated responder and
// clears the operator assignment. Idempotent.
func (s *ConversationService) ReleaseToAutomation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	conv, err := s.repo.UpdateControl(ctx, conversationID, true, nil)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	if conv == nil {
		return nil, apperrors.NotFound("Conversation")
	}

	log.Info().
		Str("conversationId", conversationID).
		Msg("conversation released to automation")

	return conv, nil
}

// Close marks a conversation closed. Closure is a status transition; the
// thread and its messages remain.
func (s *ConversationService) Close(ctx context.Context, conversationID string) error {
	conv, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		return apperrors.Persistence(err)
	}
	if conv == nil {
		return apperrors.NotFound("Conversation")
	}
	if err := s.repo.UpdateStatus(ctx, conversationID, model.ConversationStatusClosed); err != nil {
		return apperrors.Persistence(err)
	}
	return nil
}
