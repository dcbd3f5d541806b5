package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/botdesk/bridge-server-go/internal/errors"
	"github.com/botdesk/bridge-server-go/internal/gateway"
	"github.com/botdesk/bridge-server-go/internal/model"
	"github.com/botdesk/bridge-server-go/internal/session"
)

// SessionGateway is the slice of the session lifecycle manager the dispatcher
// and the ingestion pipeline depend on.
type SessionGateway interface {
	Status() session.Snapshot
	Start(ctx context.Context) (session.Snapshot, error)
	AwaitConnected(ctx context.Context) error
	SendText(ctx context.Context, to, body string) error
	FetchMedia(ctx context.Context, messageID string) (*gateway.Media, error)
}

type SendParams struct {
	Destination    string
	Content        string
	ConversationID string
	SenderType     model.SenderType
	SenderID       string
}

// DispatchService sends outbound messages through the live session and
// persists the record only after the transport accepted the send.
type DispatchService struct {
	session SessionGateway
	convs   *ConversationService
	msgs    *MessageService
}

func NewDispatchService(sessionGw SessionGateway, convs *ConversationService, msgs *MessageService) *DispatchService {
	return &DispatchService{
		session: sessionGw,
		convs:   convs,
		msgs:    msgs,
	}
}

// Send delivers a message to the external network. When the session is not
// connected it makes exactly one lazy start attempt and waits for the
// handshake before failing; it never retries beyond that.
func (s *DispatchService) Send(ctx context.Context, params SendParams) (*model.ChatMessage, error) {
	if s.session.Status().Status != session.StatusConnected {
		log.Info().Msg("session not connected, attempting lazy reconnect")

		if _, err := s.session.Start(ctx); err != nil {
			return nil, apperrors.NotInitialized().WithCause(err)
		}
		if err := s.session.AwaitConnected(ctx); err != nil {
			return nil, err
		}
	}

	destination := gateway.FormatJID(params.Destination)

	if err := s.session.SendText(ctx, destination, params.Content); err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotConnected) {
			// Connection dropped between the wait and the send.
			return nil, apperrors.NotInitialized().WithCause(err)
		}
		log.Error().Err(err).
			Str("conversationId", params.ConversationID).
			Msg("transport rejected send")
		return nil, apperrors.SendFailed(err)
	}

	content := params.Content
	msg, err := s.msgs.Create(ctx, model.CreateMessageParams{
		ConversationID: params.ConversationID,
		SenderType:     params.SenderType,
		SenderID:       params.SenderID,
		Content:        &content,
		IsRead:         true,
	})
	if err != nil {
		// The message left the network; losing the record is logged, not fatal.
		log.Error().Err(err).
			Str("conversationId", params.ConversationID).
			Msg("sent message could not be persisted")
		return nil, err
	}

	s.convs.RecordLastMessage(ctx, params.ConversationID, params.Content, time.Now())

	log.Info().
		Str("messageId", msg.ID).
		Str("conversationId", params.ConversationID).
		Str("senderType", string(params.SenderType)).
		Msg("message sent")

	return msg, nil
}
