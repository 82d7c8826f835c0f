package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/store"
	"github.com/zeina-health/companion/pkg/logger"
)

// ErrInvalidProfile is returned for profile updates with out-of-range values.
var ErrInvalidProfile = errors.New("invalid profile")

// UserService manages user profiles.
type UserService struct {
	repo   store.UserRepository
	logger *logger.Logger
}

// NewUserService creates a new user service.
func NewUserService(repo store.UserRepository, log *logger.Logger) *UserService {
	return &UserService{repo: repo, logger: log}
}

// Get returns the profile of id.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	return s.repo.Get(ctx, id)
}

// Lookup returns the profile of id, or nil when none is stored.
func (s *UserService) Lookup(ctx context.Context, id string) (*model.User, error) {
	u, err := s.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// UpdateProfile applies the non-empty fields of req to id's profile,
// creating the profile on first write.
func (s *UserService) UpdateProfile(ctx context.Context, id string, req *model.UpdateProfileRequest) (*model.User, error) {
	u, err := s.repo.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		u = &model.User{ID: id, Role: model.RoleUser}
	case err != nil:
		return nil, err
	}

	if req.Name != "" {
		u.Name = req.Name
	}
	if req.Avatar != "" {
		u.Avatar = req.Avatar
	}
	if req.Age < 0 || req.Age > 130 {
		return nil, fmt.Errorf("%w: age %d", ErrInvalidProfile, req.Age)
	}
	if req.Age > 0 {
		u.Age = req.Age
	}
	if req.MaritalStatus != "" {
		u.MaritalStatus = req.MaritalStatus
	}
	if req.LifeStage != "" {
		u.LifeStage = req.LifeStage
	}
	if req.ChildrenCount != nil {
		n := *req.ChildrenCount
		u.ChildrenCount = &n
	}
	if req.IsTryingToConceive != nil {
		u.IsTryingToConceive = *req.IsTryingToConceive
	}
	if req.ActivityLevel != "" {
		u.ActivityLevel = req.ActivityLevel
	}
	if req.HealthInterests != nil {
		u.HealthInterests = append([]string(nil), req.HealthInterests...)
	}

	if err := s.repo.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	s.logger.Info("profile updated", zap.String("user_id", id))
	return u, nil
}

// SeedDemo stores the demo profile used by anonymous sessions.
func (s *UserService) SeedDemo(ctx context.Context) error {
	if _, err := s.repo.Get(ctx, model.DemoUserID); err == nil {
		return nil
	}
	children := 0
	return s.repo.Save(ctx, &model.User{
		ID:            model.DemoUserID,
		Name:          "Guest",
		Email:         "guest@zeina.health",
		Role:          model.RoleUser,
		Age:           29,
		MaritalStatus: "married",
		LifeStage:     model.LifeStageGeneral,
		ChildrenCount: &children,
		ActivityLevel: "moderate",
	})
}
