// Package service provides business logic for the health companion platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/store"
	"github.com/zeina-health/companion/pkg/logger"
	"github.com/zeina-health/companion/pkg/metrics"
)

var (
	// ErrExpertNotFound is returned when booking an expert missing from the catalog.
	ErrExpertNotFound = errors.New("expert not found")
	// ErrSlotUnavailable is returned when the SlotChecker rejects a slot.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrNotActive is returned when rescheduling a finished appointment.
	ErrNotActive = errors.New("appointment is not active")
	// ErrInvalidSchedule is returned for a malformed date or time.
	ErrInvalidSchedule = errors.New("invalid date or time")
)

// DateLayout is the accepted appointment date format.
const DateLayout = "2006-01-02"

// ExpertDirectory resolves expert ids to display data.
type ExpertDirectory interface {
	Expert(lang, id string) (model.Expert, bool)
}

// SlotChecker decides whether an expert is free at a slot. exclude names an
// appointment to ignore, used when rescheduling it.
type SlotChecker interface {
	SlotAvailable(ctx context.Context, expertID, date, tm, exclude string) (bool, error)
}

// AppointmentPublisher receives appointment lifecycle events.
type AppointmentPublisher interface {
	PublishAppointmentEvent(ctx context.Context, event *model.AppointmentEvent) (uint64, error)
}

// BookingPolicy controls what happens right after an appointment is created.
type BookingPolicy struct {
	// AutoConfirm moves the new appointment straight to confirmed. The
	// assistant books this way; people booking through the app wait for
	// the expert.
	AutoConfirm bool
	// Source tags published events.
	Source string
}

// AppointmentOptions configures an AppointmentService.
type AppointmentOptions struct {
	MeetingBaseURL string
	SlotChecker    SlotChecker
	Publisher      AppointmentPublisher
}

// AppointmentService owns the appointment lifecycle on top of the store.
type AppointmentService struct {
	repo      store.AppointmentRepository
	experts   ExpertDirectory
	slots     SlotChecker
	publisher AppointmentPublisher
	meetURL   string
	logger    *logger.Logger
	now       func() time.Time
}

// NewAppointmentService creates a new appointment service.
func NewAppointmentService(repo store.AppointmentRepository, experts ExpertDirectory, opts AppointmentOptions, log *logger.Logger) *AppointmentService {
	meetURL := opts.MeetingBaseURL
	if meetURL == "" {
		meetURL = "https://meet.zeina.health"
	}
	return &AppointmentService{
		repo:      repo,
		experts:   experts,
		slots:     opts.SlotChecker,
		publisher: opts.Publisher,
		meetURL:   meetURL,
		logger:    log,
		now:       time.Now,
	}
}

// Book creates an appointment for userID with the requested expert.
func (s *AppointmentService) Book(ctx context.Context, userID, lang string, req *model.BookAppointmentRequest, policy BookingPolicy) (*model.Appointment, error) {
	if err := ValidateSchedule(req.Date, req.Time); err != nil {
		return nil, err
	}

	expert, ok := s.experts.Expert(lang, req.ExpertID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExpertNotFound, req.ExpertID)
	}

	if err := s.checkSlot(ctx, expert.ID, req.Date, req.Time, ""); err != nil {
		return nil, err
	}

	id := uuid.Must(uuid.NewV7()).String()
	appt := &model.Appointment{
		ID:          id,
		UserID:      userID,
		ExpertID:    expert.ID,
		ExpertName:  expert.Name,
		ExpertImage: expert.Image,
		Date:        req.Date,
		Time:        req.Time,
		Status:      model.StatusPending,
		Notes:       req.Notes,
		MeetingLink: fmt.Sprintf("%s/%s", s.meetURL, id),
		CreatedAt:   s.now().UTC(),
	}

	if err := s.repo.Create(ctx, appt); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	s.publish(ctx, model.AppointmentCreated, appt, policy.Source)

	s.logger.Info("appointment created",
		zap.String("appointment_id", appt.ID),
		zap.String("user_id", userID),
		zap.String("expert_id", expert.ID),
		zap.Bool("auto_confirm", policy.AutoConfirm),
	)

	if !policy.AutoConfirm {
		return appt, nil
	}

	confirmed, err := s.repo.UpdateStatus(ctx, appt.ID, model.StatusConfirmed)
	if err != nil {
		s.abandon(ctx, appt, policy.Source)
		return nil, fmt.Errorf("failed to confirm appointment: %w", err)
	}
	s.publish(ctx, model.AppointmentConfirmed, confirmed, policy.Source)

	return confirmed, nil
}

// Get returns one of userID's appointments. Appointments owned by someone
// else are reported as store.ErrNotFound.
func (s *AppointmentService) Get(ctx context.Context, userID, id string) (*model.Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.UserID != userID {
		return nil, store.ErrNotFound
	}
	return appt, nil
}

// ListForUser returns every appointment of userID, newest first.
func (s *AppointmentService) ListForUser(ctx context.Context, userID string) ([]model.Appointment, error) {
	return s.repo.ListForUser(ctx, userID)
}

// ListActiveForUser returns userID's appointments that were neither
// cancelled nor rejected, newest first.
func (s *AppointmentService) ListActiveForUser(ctx context.Context, userID string) ([]model.Appointment, error) {
	all, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Appointment, 0, len(all))
	for _, a := range all {
		if a.Status == model.StatusCancelled || a.Status == model.StatusRejected {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// ListForExpert returns the expert's appointments, newest first.
func (s *AppointmentService) ListForExpert(ctx context.Context, expertID string) ([]model.Appointment, error) {
	return s.repo.ListForExpert(ctx, expertID)
}

// Cancel cancels one of userID's appointments. Cancelling twice succeeds.
func (s *AppointmentService) Cancel(ctx context.Context, userID, id, source string) (*model.Appointment, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.setStatus(ctx, id, model.StatusCancelled, source)
}

// Confirm accepts a pending appointment on the expert's behalf.
func (s *AppointmentService) Confirm(ctx context.Context, id, source string) (*model.Appointment, error) {
	return s.setStatus(ctx, id, model.StatusConfirmed, source)
}

// Reject declines a pending appointment on the expert's behalf.
func (s *AppointmentService) Reject(ctx context.Context, id, source string) (*model.Appointment, error) {
	return s.setStatus(ctx, id, model.StatusRejected, source)
}

// Complete marks a confirmed appointment as held.
func (s *AppointmentService) Complete(ctx context.Context, id, source string) (*model.Appointment, error) {
	return s.setStatus(ctx, id, model.StatusCompleted, source)
}

// Reschedule moves one of userID's pending or confirmed appointments to a
// new slot. The status is left as it was.
func (s *AppointmentService) Reschedule(ctx context.Context, userID, id, date, tm, source string) (*model.Appointment, error) {
	if err := ValidateSchedule(date, tm); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, fmt.Errorf("%w: %s", ErrNotActive, current.Status)
	}
	if err := s.checkSlot(ctx, current.ExpertID, date, tm, id); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, id, model.AppointmentPatch{Date: &date, Time: &tm})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, model.AppointmentRescheduled, updated, source)

	s.logger.Info("appointment rescheduled",
		zap.String("appointment_id", id),
		zap.String("date", date),
		zap.String("time", tm),
	)
	return updated, nil
}

func (s *AppointmentService) setStatus(ctx context.Context, id string, status model.AppointmentStatus, source string) (*model.Appointment, error) {
	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if before.Status == updated.Status {
		return updated, nil
	}

	s.publish(ctx, eventFor(status), updated, source)
	s.logger.Info("appointment status changed",
		zap.String("appointment_id", id),
		zap.String("from", string(before.Status)),
		zap.String("to", string(updated.Status)),
	)
	return updated, nil
}

func (s *AppointmentService) checkSlot(ctx context.Context, expertID, date, tm, exclude string) error {
	if s.slots == nil {
		return nil
	}
	ok, err := s.slots.SlotAvailable(ctx, expertID, date, tm, exclude)
	if err != nil {
		return fmt.Errorf("failed to check slot: %w", err)
	}
	if !ok {
		return ErrSlotUnavailable
	}
	return nil
}

// abandon cancels a booking whose auto-confirmation failed so no pending
// record is left holding the slot.
func (s *AppointmentService) abandon(ctx context.Context, appt *model.Appointment, source string) {
	cancelled, err := s.repo.UpdateStatus(context.WithoutCancel(ctx), appt.ID, model.StatusCancelled)
	if err != nil {
		s.logger.Error("failed to cancel unconfirmed appointment",
			zap.String("appointment_id", appt.ID),
			zap.Error(err),
		)
		return
	}
	s.publish(ctx, model.AppointmentCancelled, cancelled, source)
}

func (s *AppointmentService) publish(ctx context.Context, eventType model.AppointmentEventType, appt *model.Appointment, source string) {
	metrics.RecordAppointmentTransition(string(eventType))
	if s.publisher == nil {
		return
	}

	event := &model.AppointmentEvent{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Type:        eventType,
		Appointment: *appt,
		Source:      source,
		CreatedAt:   s.now().UTC(),
	}
	if _, err := s.publisher.PublishAppointmentEvent(ctx, event); err != nil {
		metrics.EventPublishFailures.WithLabelValues("appointment").Inc()
		s.logger.Warn("failed to publish appointment event",
			zap.String("appointment_id", appt.ID),
			zap.String("event", string(eventType)),
			zap.Error(err),
		)
	}
}

func eventFor(status model.AppointmentStatus) model.AppointmentEventType {
	switch status {
	case model.StatusConfirmed:
		return model.AppointmentConfirmed
	case model.StatusRejected:
		return model.AppointmentRejected
	case model.StatusCancelled:
		return model.AppointmentCancelled
	case model.StatusCompleted:
		return model.AppointmentCompleted
	default:
		return model.AppointmentCreated
	}
}

// ValidateSchedule checks that date is YYYY-MM-DD and tm is present.
func ValidateSchedule(date, tm string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: date %q", ErrInvalidSchedule, date)
	}
	if tm == "" || len(tm) > 32 {
		return fmt.Errorf("%w: time %q", ErrInvalidSchedule, tm)
	}
	return nil
}

// StoreSlotChecker rejects a slot already held by another active
// appointment of the same expert.
type StoreSlotChecker struct {
	Repo store.AppointmentRepository
}

// SlotAvailable implements SlotChecker.
func (c StoreSlotChecker) SlotAvailable(ctx context.Context, expertID, date, tm, exclude string) (bool, error) {
	taken, err := c.Repo.ListForExpert(ctx, expertID)
	if err != nil {
		return false, err
	}
	for _, a := range taken {
		if a.ID == exclude || !a.Status.Active() {
			continue
		}
		if a.Date == date && a.Time == tm {
			return false, nil
		}
	}
	return true, nil
}
