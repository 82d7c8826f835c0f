package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/catalog"
	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/service"
	"github.com/zeina-health/companion/pkg/logger"
)

// CatalogHandler serves experts, services and their reviews.
type CatalogHandler struct {
	catalog         *catalog.Catalog
	ratings         *service.RatingService
	expertBaseCount int
	logger          *logger.Logger
}

// NewCatalogHandler creates a new catalog handler. expertBaseCount is the
// seed review count behind every expert's catalog rating.
func NewCatalogHandler(cat *catalog.Catalog, ratings *service.RatingService, expertBaseCount int, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog:         cat,
		ratings:         ratings,
		expertBaseCount: expertBaseCount,
		logger:          log,
	}
}

// Experts handles GET /api/v1/experts
func (h *CatalogHandler) Experts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	experts := h.catalog.Experts(requestLanguage(r))

	out := make([]model.RatedExpert, 0, len(experts))
	for _, e := range experts {
		rating, err := h.ratings.Rating(ctx, e.ID, h.expertSeed(e))
		if err != nil {
			h.logger.Error("failed to aggregate rating", zap.String("item_id", e.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load experts")
			return
		}
		e.Rating = rating.Average
		out = append(out, model.RatedExpert{Expert: e, ReviewCount: rating.Count})
	}

	writeJSON(w, http.StatusOK, out)
}

// Services handles GET /api/v1/services
func (h *CatalogHandler) Services(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	services := h.catalog.Services(requestLanguage(r))

	for i, s := range services {
		rating, err := h.ratings.Rating(ctx, s.ID, serviceSeed(s))
		if err != nil {
			h.logger.Error("failed to aggregate rating", zap.String("item_id", s.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load services")
			return
		}
		services[i].Rating = rating.Average
		services[i].ReviewCount = rating.Count
	}

	writeJSON(w, http.StatusOK, services)
}

// Rating handles GET /api/v1/ratings/:itemId
func (h *CatalogHandler) Rating(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")
	seed, ok := h.seed(itemID)
	if !ok {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	rating, err := h.ratings.Rating(r.Context(), itemID, seed)
	if err != nil {
		h.logger.Error("failed to aggregate rating", zap.String("item_id", itemID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load rating")
		return
	}

	writeJSON(w, http.StatusOK, rating)
}

func (h *CatalogHandler) seed(itemID string) (model.RatingSeed, bool) {
	if e, ok := h.catalog.Expert(catalog.LangEnglish, itemID); ok {
		return h.expertSeed(e), true
	}
	if s, ok := h.catalog.Service(catalog.LangEnglish, itemID); ok {
		return serviceSeed(s), true
	}
	return model.RatingSeed{}, false
}

func (h *CatalogHandler) expertSeed(e model.Expert) model.RatingSeed {
	return model.RatingSeed{BaseRating: e.Rating, BaseCount: h.expertBaseCount}
}

func serviceSeed(s model.Service) model.RatingSeed {
	return model.RatingSeed{BaseRating: s.Rating, BaseCount: s.ReviewCount}
}
