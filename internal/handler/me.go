package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/middleware"
	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/service"
	"github.com/zeina-health/companion/pkg/logger"
)

// ProfileHandler serves the caller's own profile.
type ProfileHandler struct {
	users  *service.UserService
	logger *logger.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(users *service.UserService, log *logger.Logger) *ProfileHandler {
	return &ProfileHandler{users: users, logger: log}
}

// Get handles GET /api/v1/me
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	u, err := h.users.Lookup(ctx, userID)
	if err != nil {
		h.logger.Error("failed to load profile", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// Update handles PUT /api/v1/me
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.users.UpdateProfile(ctx, userID, &req)
	if errors.Is(err, service.ErrInvalidProfile) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to update profile", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, u)
}
