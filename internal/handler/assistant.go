package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/assistant"
	"github.com/zeina-health/companion/internal/middleware"
	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/service"
	"github.com/zeina-health/companion/pkg/logger"
)

// AssistantHandler handles assistant session endpoints.
type AssistantHandler struct {
	sessions        *assistant.Manager
	users           *service.UserService
	defaultLanguage string
	logger          *logger.Logger
}

// NewAssistantHandler creates a new assistant handler.
func NewAssistantHandler(sessions *assistant.Manager, users *service.UserService, defaultLanguage string, log *logger.Logger) *AssistantHandler {
	return &AssistantHandler{
		sessions:        sessions,
		users:           users,
		defaultLanguage: defaultLanguage,
		logger:          log,
	}
}

// Create handles POST /api/v1/assistant/sessions
func (h *AssistantHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Language == "" {
		req.Language = h.defaultLanguage
	}
	if err := middleware.ValidateLanguage(req.Language); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := h.users.Lookup(ctx, userID)
	if err != nil {
		h.logger.Error("failed to load profile", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s := h.sessions.Create(userID, req.Language, profile)
	writeJSON(w, http.StatusCreated, model.CreateSessionResponse{
		SessionID: s.ID(),
		Language:  s.Language(),
	})
}

// SendMessage handles POST /api/v1/assistant/sessions/:id/messages
func (h *AssistantHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := s.SendMessage(r.Context(), req.Content)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// SetLanguage handles PUT /api/v1/assistant/sessions/:id/language
func (h *AssistantHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req model.SetLanguageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateLanguage(req.Language); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.SetLanguage(req.Language)
	w.WriteHeader(http.StatusNoContent)
}

// SetProfile handles PUT /api/v1/assistant/sessions/:id/profile
//
// The session picks up the caller's current stored profile, or drops it
// when the request asks to continue anonymously.
func (h *AssistantHandler) SetProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req model.SetProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Anonymous {
		s.SetUserProfile(nil)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	profile, err := h.users.Lookup(r.Context(), s.Owner())
	if err != nil {
		h.logger.Error("failed to load profile", zap.String("user_id", s.Owner()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	s.SetUserProfile(profile)
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/assistant/sessions/:id
func (h *AssistantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessions.Close(sessionID, middleware.GetUserID(r.Context())); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AssistantHandler) session(w http.ResponseWriter, r *http.Request) (*assistant.Session, bool) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	s, err := h.sessions.Get(sessionID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeSessionError(w, err)
		return nil, false
	}
	return s, true
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assistant.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, assistant.ErrSessionBusy):
		writeError(w, http.StatusConflict, "a message is already being answered")
	case errors.Is(err, assistant.ErrSessionClosed):
		writeError(w, http.StatusGone, "session is closed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
