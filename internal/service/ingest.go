package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/botdesk/bridge-server-go/internal/gateway"
	"github.com/botdesk/bridge-server-go/internal/model"
	"github.com/botdesk/bridge-server-go/internal/sse"
)

// IngestService is the inbound pipeline: it turns gateway message events into
// persisted chat messages and, for automation-controlled conversations, an
// automated reply. One failing message never stops the next.
type IngestService struct {
	convs      *ConversationService
	msgs       *MessageService
	session    SessionGateway
	responder  Responder
	dispatcher *DispatchService
	broker     Publisher
}

// Publisher is the slice of the SSE broker the pipeline needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event sse.Event) error
}

func NewIngestService(
	convs *ConversationService,
	msgs *MessageService,
	sessionGw SessionGateway,
	responder Responder,
	dispatcher *DispatchService,
	broker Publisher,
) *IngestService {
	return &IngestService{
		convs:      convs,
		msgs:       msgs,
		session:    sessionGw,
		responder:  responder,
		dispatcher: dispatcher,
		broker:     broker,
	}
}

// HandleInbound processes one inbound message event from the gateway.
func (s *IngestService) HandleInbound(ctx context.Context, event gateway.InboundMessage) {
	if gateway.IsBroadcast(event.From) {
		log.Debug().Str("from", event.From).Msg("ignoring broadcast message")
		return
	}

	contactID := gateway.ContactID(event.From)

	conv, err := s.convs.GetOrCreate(ctx, contactID)
	if err != nil {
		log.Error().Err(err).Str("contactId", contactID).Msg("failed to resolve conversation, dropping message")
		return
	}

	var mediaType *string
	if event.HasMedia {
		// Media fetch failure never blocks persisting the text portion.
		media, err := s.session.FetchMedia(ctx, event.ID)
		if err != nil {
			log.Warn().Err(err).Str("sourceId", event.ID).Msg("failed to fetch media, storing message without media type")
		} else if media != nil && media.Mimetype != "" {
			mediaType = &media.Mimetype
		}
	}

	content := event.Body
	msg, err := s.msgs.Create(ctx, model.CreateMessageParams{
		ConversationID: conv.ID,
		SenderType:     model.SenderUser,
		SenderID:       contactID,
		Content:        &content,
		MediaType:      mediaType,
		IsRead:         false,
	})
	if err != nil {
		// No retry queue here: redelivery is the network's responsibility.
		log.Error().Err(err).Str("conversationId", conv.ID).Msg("failed to persist inbound message, dropping event")
		return
	}

	s.convs.RecordLastMessage(ctx, conv.ID, event.Body, msg.Timestamp)

	s.publishMessageReceived(ctx, msg, conv)

	if conv.IsAutomatedControl {
		s.respond(ctx, msg, conv)
	}
}

// respond invokes the automated responder and dispatches its reply. Only
// freshly ingested user messages ever reach this point; the sender-type check
// is the loop guard against a bot message re-triggering a response cycle.
func (s *IngestService) respond(ctx context.Context, msg *model.ChatMessage, conv *model.Conversation) {
	if msg.SenderType != model.SenderUser {
		return
	}

	reply, err := s.responder.Respond(ctx, msg, conv)
	if err != nil {
		log.Error().Err(err).
			Str("conversationId", conv.ID).
			Str("messageId", msg.ID).
			Msg("automated responder failed")
		return
	}
	if reply == "" {
		return
	}

	if _, err := s.dispatcher.Send(ctx, SendParams{
		Destination:    conv.ExternalContactID,
		Content:        reply,
		ConversationID: conv.ID,
		SenderType:     model.SenderBot,
		SenderID:       model.BotSenderID,
	}); err != nil {
		log.Error().Err(err).
			Str("conversationId", conv.ID).
			Msg("failed to dispatch automated reply")
	}
}

func (s *IngestService) publishMessageReceived(ctx context.Context, msg *model.ChatMessage, conv *model.Conversation) {
	if s.broker == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"message":      json.RawMessage(msg.ToSSEEventData()),
		"conversation": json.RawMessage(conv.ToSSEEventData()),
	})
	if err != nil {
		log.Error().Err(err).Str("messageId", msg.ID).Msg("failed to marshal message event")
		return
	}
	if err := s.broker.Publish(ctx, sse.TopicSession, sse.Event{
		Type: sse.EventMessageReceived,
		Data: payload,
	}); err != nil {
		log.Warn().Err(err).Str("messageId", msg.ID).Msg("failed to publish message event")
	}
}
