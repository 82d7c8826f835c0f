package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/middleware"
	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/service"
)

// AddReview handles POST /api/v1/reviews
func (h *CatalogHandler) AddReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.AddReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := h.seed(req.ItemID); !ok {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err := middleware.ValidateComment(req.Comment); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	review, err := h.ratings.AddReview(ctx, middleware.GetUserID(ctx), &req)
	if errors.Is(err, service.ErrInvalidReview) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to add review", zap.String("item_id", req.ItemID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to add review")
		return
	}

	writeJSON(w, http.StatusCreated, review)
}

// Reviews handles GET /api/v1/reviews/:itemId
func (h *CatalogHandler) Reviews(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")
	if _, ok := h.seed(itemID); !ok {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	reviews, err := h.ratings.Reviews(r.Context(), itemID)
	if err != nil {
		h.logger.Error("failed to list reviews", zap.String("item_id", itemID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list reviews")
		return
	}
	if reviews == nil {
		reviews = []model.Review{}
	}

	writeJSON(w, http.StatusOK, reviews)
}
