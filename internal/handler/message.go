package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/botdesk/bridge-server-go/internal/errors"
	"github.com/botdesk/bridge-server-go/internal/gateway"
	"github.com/botdesk/bridge-server-go/internal/model"
	"github.com/botdesk/bridge-server-go/internal/service"
)

type MessageHandler struct {
	dispatcher  *service.DispatchService
	convService *service.ConversationService
}

func NewMessageHandler(dispatcher *service.DispatchService, convService *service.ConversationService) *MessageHandler {
	return &MessageHandler{
		dispatcher:  dispatcher,
		convService: convService,
	}
}

func (h *MessageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Send)

	return r
}

type sendRequest struct {
	To             string `json:"to"`
	Content        string `json:"content"`
	ConversationID string `json:"conversationId"`
	OperatorID     string `json:"operatorId"`
}

// POST /v1/messages
//
// Sends through the bridged account. When operatorId is present the message
// is recorded as an operator reply, otherwise as an automated one.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	if body.Content == "" {
		writeError(w, apperrors.MissingRequired("content"))
		return
	}

	ctx := r.Context()

	// The destination may be given directly or resolved from the conversation.
	// Callers may pass either the bare contact id or the transport address;
	// conversations are keyed on the bare form.
	destination := gateway.ContactID(body.To)
	conversationID := body.ConversationID
	if conversationID != "" {
		conv, err := h.convService.FindByID(ctx, conversationID)
		if err != nil {
			writeError(w, err)
			return
		}
		if destination == "" {
			destination = conv.ExternalContactID
		}
	}
	if destination == "" {
		writeError(w, apperrors.MissingRequired("to or conversationId"))
		return
	}
	if conversationID == "" {
		conv, err := h.convService.GetOrCreate(ctx, destination)
		if err != nil {
			writeError(w, err)
			return
		}
		conversationID = conv.ID
	}

	senderType := model.SenderBot
	senderID := model.BotSenderID
	if body.OperatorID != "" {
		senderType = model.SenderAdmin
		senderID = body.OperatorID
	}

	msg, err := h.dispatcher.Send(ctx, service.SendParams{
		Destination:    destination,
		Content:        body.Content,
		ConversationID: conversationID,
		SenderType:     senderType,
		SenderID:       senderID,
	})
	if err != nil {
		log.Error().Err(err).Str("conversationId", conversationID).Msg("send failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}
