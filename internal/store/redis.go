package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/zeina-health/companion/internal/model"
)

const reviewKeyPrefix = "reviews:"

// RedisReviewRepository keeps reviews as an append-only list per item.
type RedisReviewRepository struct {
	client *redis.Client
}

// NewRedisReviewRepository creates a review repository on client.
func NewRedisReviewRepository(client *redis.Client) *RedisReviewRepository {
	return &RedisReviewRepository{client: client}
}

// Add appends the review to its item's list.
func (r *RedisReviewRepository) Add(ctx context.Context, review *model.Review) error {
	data, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("failed to marshal review: %w", err)
	}
	return r.client.RPush(ctx, reviewKeyPrefix+review.ItemID, data).Err()
}

// ListForItem returns the item's reviews in submission order.
func (r *RedisReviewRepository) ListForItem(ctx context.Context, itemID string) ([]model.Review, error) {
	raw, err := r.client.LRange(ctx, reviewKeyPrefix+itemID, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.Review, 0, len(raw))
	for _, item := range raw {
		var rv model.Review
		if err := json.Unmarshal([]byte(item), &rv); err != nil {
			return nil, fmt.Errorf("failed to unmarshal review: %w", err)
		}
		out = append(out, rv)
	}
	return out, nil
}
