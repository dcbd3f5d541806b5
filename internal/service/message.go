package service

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "github.com/botdesk/bridge-server-go/internal/errors"
	"github.com/botdesk/bridge-server-go/internal/model"
	"github.com/botdesk/bridge-server-go/internal/repository"
)

type MessageService struct {
	repo repository.MessageRepository
}

func NewMessageService(repo repository.MessageRepository) *MessageService {
	return &MessageService{repo: repo}
}

func (s *MessageService) Create(ctx context.Context, params model.CreateMessageParams) (*model.ChatMessage, error) {
	msg, err := s.repo.Create(ctx, params)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}

	log.Debug().
		Str("messageId", msg.ID).
		Str("conversationId", msg.ConversationID).
		Str("senderType", string(msg.SenderType)).
		Msg("message persisted")

	return msg, nil
}

func (s *MessageService) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.ChatMessage, int, error) {
	msgs, err := s.repo.FindByConversationID(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Persistence(err)
	}
	total, err := s.repo.CountByConversationID(ctx, conversationID)
	if err != nil {
		return nil, 0, apperrors.Persistence(err)
	}
	return msgs, total, nil
}

// CountUnread returns how many messages in a conversation are still unread.
func (s *MessageService) CountUnread(ctx context.Context, conversationID string) (int, error) {
	n, err := s.repo.CountUnreadByConversationID(ctx, conversationID)
	if err != nil {
		return 0, apperrors.Persistence(err)
	}
	return n, nil
}

// MarkRead flags every unread message in a conversation as read, used when
// the dashboard opens a thread.
func (s *MessageService) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	n, err := s.repo.MarkConversationRead(ctx, conversationID)
	if err != nil {
		return 0, apperrors.Persistence(err)
	}
	return n, nil
}
