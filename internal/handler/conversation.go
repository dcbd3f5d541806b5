package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/botdesk/bridge-server-go/internal/errors"
	"github.com/botdesk/bridge-server-go/internal/service"
	"github.com/botdesk/bridge-server-go/internal/util"
)

type ConversationHandler struct {
	convService *service.ConversationService
	msgService  *service.MessageService
}

func NewConversationHandler(convService *service.ConversationService, msgService *service.MessageService) *ConversationHandler {
	return &ConversationHandler{
		convService: convService,
		msgService:  msgService,
	}
}

func (h *ConversationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{conversationID}", h.Get)
	r.Get("/{conversationID}/messages", h.ListMessages)
	r.Post("/{conversationID}/read", h.MarkRead)
	r.Post("/{conversationID}/takeover", h.Takeover)
	r.Post("/{conversationID}/release", h.Release)

	return r
}

// GET /v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	pagination := ParsePagination(r)

	convs, total, err := h.convService.List(r.Context(), pagination.Limit, pagination.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list conversations")
		writeError(w, err)
		return
	}

	// Unread badges are best effort; a failed count never breaks the listing.
	for i := range convs {
		n, err := h.msgService.CountUnread(r.Context(), convs[i].ID)
		if err != nil {
			log.Warn().Err(err).Str("conversationId", convs[i].ID).Msg("failed to count unread messages")
			continue
		}
		convs[i].UnreadCount = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convs,
		"total":         total,
		"limit":         pagination.Limit,
		"offset":        pagination.Offset,
	})
}

// GET /v1/conversations/{conversationID}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.convService.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// GET /v1/conversations/{conversationID}/messages
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}
	pagination := ParsePagination(r)

	msgs, total, err := h.msgService.ListByConversation(r.Context(), id, pagination.Limit, pagination.Offset)
	if err != nil {
		log.Error().Err(err).Str("conversationId", id).Msg("failed to list messages")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"total":    total,
		"limit":    pagination.Limit,
		"offset":   pagination.Offset,
	})
}

// POST /v1/conversations/{conversationID}/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	n, err := h.msgService.MarkRead(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"marked": n})
}

// POST /v1/conversations/{conversationID}/takeover
func (h *ConversationHandler) Takeover(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	var body struct {
		OperatorID string `json:"operatorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	if body.OperatorID == "" {
		writeError(w, apperrors.MissingRequired("operatorId"))
		return
	}

	conv, err := h.convService.AssumeHumanControl(r.Context(), id, body.OperatorID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// POST /v1/conversations/{conversationID}/release
func (h *ConversationHandler) Release(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.convService.ReleaseToAutomation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "conversationID")
	if !util.IsValidUUID(id) {
		writeError(w, apperrors.InvalidInput("conversationID", "must be a UUID"))
		return "", false
	}
	return id, true
}
