package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/botdesk/bridge-server-go/internal/session"
)

type SessionHandler struct {
	manager *session.Manager
}

func NewSessionHandler(manager *session.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/start", h.Start)
	r.Get("/status", h.Status)
	r.Post("/logout", h.Logout)
	r.Get("/identity", h.Identity)

	return r
}

// POST /v1/session/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.manager.Start(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to start session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// GET /v1/session/status
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// POST /v1/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Logout(r.Context()); err != nil {
		log.Error().Err(err).Msg("failed to log out session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.manager.Status())
}

// GET /v1/session/identity
func (h *SessionHandler) Identity(w http.ResponseWriter, r *http.Request) {
	identity, err := h.manager.Identity()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, identity)
}
