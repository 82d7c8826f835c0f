// Package store provides the record repositories for appointments, users
// and reviews.
package store

import (
	"context"
	"errors"

	"github.com/zeina-health/companion/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned when a status change violates the
	// appointment lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicate is returned when creating a record whose id already exists.
	ErrDuplicate = errors.New("record already exists")
)

// AppointmentRepository owns appointment records and their lifecycle.
// Writes are atomic per record.
type AppointmentRepository interface {
	Create(ctx context.Context, a *model.Appointment) error
	GetByID(ctx context.Context, id string) (*model.Appointment, error)
	// ListForUser returns the user's appointments, most recently created first.
	ListForUser(ctx context.Context, userID string) ([]model.Appointment, error)
	// ListForExpert returns the expert's appointments, most recently created first.
	ListForExpert(ctx context.Context, expertID string) ([]model.Appointment, error)
	// UpdateStatus moves an appointment to status. Setting the current status
	// again is a no-op; any other illegal move returns ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id string, status model.AppointmentStatus) (*model.Appointment, error)
	Update(ctx context.Context, id string, patch model.AppointmentPatch) (*model.Appointment, error)
}

// UserRepository stores user accounts and profiles.
type UserRepository interface {
	Get(ctx context.Context, id string) (*model.User, error)
	Save(ctx context.Context, u *model.User) error
}

// ReviewRepository stores append-only reviews.
type ReviewRepository interface {
	Add(ctx context.Context, r *model.Review) error
	ListForItem(ctx context.Context, itemID string) ([]model.Review, error)
}

// transition validates a status change and reports whether it is a no-op.
func transition(current, next model.AppointmentStatus) (noop bool, err error) {
	if current == next {
		return true, nil
	}
	if !current.CanTransitionTo(next) {
		return false, ErrInvalidTransition
	}
	return false, nil
}
