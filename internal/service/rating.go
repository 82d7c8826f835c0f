package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/store"
	"github.com/zeina-health/companion/pkg/logger"
)

// ErrInvalidReview is returned for a rating outside 1..5 or a missing item.
var ErrInvalidReview = errors.New("invalid review")

// Aggregate blends a seed rating with submitted reviews into one
// displayable average, rounded to one decimal.
func Aggregate(itemID string, seed model.RatingSeed, reviews []model.Review) model.Rating {
	count := seed.BaseCount + len(reviews)
	if count == 0 {
		return model.Rating{ItemID: itemID, Average: seed.BaseRating, Count: 0}
	}

	sum := seed.BaseRating * float64(seed.BaseCount)
	for _, r := range reviews {
		sum += float64(r.Rating)
	}

	return model.Rating{
		ItemID:  itemID,
		Average: math.Round(sum/float64(count)*10) / 10,
		Count:   count,
	}
}

// RatingService accepts reviews and computes item ratings.
type RatingService struct {
	reviews store.ReviewRepository
	users   store.UserRepository
	logger  *logger.Logger
	now     func() time.Time
}

// NewRatingService creates a new rating service.
func NewRatingService(reviews store.ReviewRepository, users store.UserRepository, log *logger.Logger) *RatingService {
	return &RatingService{reviews: reviews, users: users, logger: log, now: time.Now}
}

// Rating returns the aggregate for itemID given its catalog seed.
func (s *RatingService) Rating(ctx context.Context, itemID string, seed model.RatingSeed) (model.Rating, error) {
	reviews, err := s.reviews.ListForItem(ctx, itemID)
	if err != nil {
		return model.Rating{}, fmt.Errorf("failed to list reviews: %w", err)
	}
	return Aggregate(itemID, seed, reviews), nil
}

// Reviews returns the submitted reviews for itemID.
func (s *RatingService) Reviews(ctx context.Context, itemID string) ([]model.Review, error) {
	return s.reviews.ListForItem(ctx, itemID)
}

// AddReview appends a review by userID.
func (s *RatingService) AddReview(ctx context.Context, userID string, req *model.AddReviewRequest) (*model.Review, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidReview)
	}
	if strings.TrimSpace(req.ItemID) == "" {
		return nil, fmt.Errorf("%w: item id is required", ErrInvalidReview)
	}

	review := &model.Review{
		ID:      uuid.Must(uuid.NewV7()).String(),
		ItemID:  req.ItemID,
		UserID:  userID,
		Rating:  req.Rating,
		Comment: strings.TrimSpace(req.Comment),
		Date:    s.now().UTC(),
	}
	if s.users != nil {
		if u, err := s.users.Get(ctx, userID); err == nil {
			review.UserName = u.Name
			review.UserAvatar = u.Avatar
		}
	}

	if err := s.reviews.Add(ctx, review); err != nil {
		return nil, fmt.Errorf("failed to add review: %w", err)
	}
	return review, nil
}
