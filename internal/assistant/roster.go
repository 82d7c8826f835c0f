package assistant

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/pkg/logger"
)

// Experts lists the bookable experts in a language.
type Experts interface {
	Experts(lang string) []model.Expert
}

// Ratings aggregates an item's rating from its seed.
type Ratings interface {
	Rating(ctx context.Context, itemID string, seed model.RatingSeed) (model.Rating, error)
}

// Roster renders the live expert list the model picks expert IDs from.
type Roster struct {
	experts   Experts
	ratings   Ratings
	baseCount int
	logger    *logger.Logger
}

// NewRoster creates a roster. ratings may be nil, in which case seed
// ratings are shown.
func NewRoster(experts Experts, ratings Ratings, baseCount int, log *logger.Logger) *Roster {
	return &Roster{experts: experts, ratings: ratings, baseCount: baseCount, logger: log}
}

// Describe returns "Name (ID: id, Category, rating R), ..." for every expert.
func (r *Roster) Describe(ctx context.Context, lang string) string {
	experts := r.experts.Experts(lang)
	parts := make([]string, 0, len(experts))
	for _, e := range experts {
		rating := e.Rating
		if r.ratings != nil {
			agg, err := r.ratings.Rating(ctx, e.ID, model.RatingSeed{BaseRating: e.Rating, BaseCount: r.baseCount})
			if err != nil {
				r.logger.Warn("failed to aggregate expert rating", zap.String("expert_id", e.ID), zap.Error(err))
			} else {
				rating = agg.Average
			}
		}
		parts = append(parts, fmt.Sprintf("%s (ID: %s, %s, rating %s)",
			e.Name, e.ID, e.Category, strconv.FormatFloat(rating, 'f', 1, 64)))
	}
	return strings.Join(parts, ", ")
}
