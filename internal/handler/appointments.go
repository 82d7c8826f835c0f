package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/middleware"
	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/service"
	"github.com/zeina-health/companion/internal/store"
	"github.com/zeina-health/companion/pkg/logger"
)

const (
	sourceUser   = "user"
	sourceExpert = "expert"
)

// EventHistory replays the lifecycle events of an appointment.
type EventHistory interface {
	AppointmentHistory(ctx context.Context, userID, appointmentID string, limit int) ([]model.AppointmentEvent, error)
}

// AppointmentHandler handles appointment endpoints for the booking UI.
type AppointmentHandler struct {
	service *service.AppointmentService
	events  EventHistory
	logger  *logger.Logger
}

// NewAppointmentHandler creates a new appointment handler. events may be
// nil when no event stream is configured.
func NewAppointmentHandler(svc *service.AppointmentService, events EventHistory, log *logger.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		service: svc,
		events:  events,
		logger:  log,
	}
}

// List handles GET /api/v1/appointments
//
// Experts and admins may pass ?expertId= to see an expert's calendar.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var (
		list []model.Appointment
		err  error
	)
	if expertID := r.URL.Query().Get("expertId"); expertID != "" {
		if !isExpert(ctx) {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		list, err = h.service.ListForExpert(ctx, expertID)
	} else {
		list, err = h.service.ListForUser(ctx, userID)
	}
	if err != nil {
		h.logger.Error("failed to list appointments", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}

	if list == nil {
		list = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, model.ListAppointmentsResponse{
		Appointments: list,
		Total:        len(list),
	})
}

// Book handles POST /api/v1/appointments
//
// Bookings made from the UI wait for the expert to confirm them.
func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.BookAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	appt, err := h.service.Book(ctx, middleware.GetUserID(ctx), requestLanguage(r), &req,
		service.BookingPolicy{AutoConfirm: false, Source: sourceUser})
	if err != nil {
		h.writeAppointmentError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, appt)
}

// UpdateStatus handles PUT /api/v1/appointments/:id/status
//
// Users may cancel their own appointments; confirming, rejecting and
// completing are expert actions.
func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req model.UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		appt *model.Appointment
		err  error
	)
	switch req.Status {
	case model.StatusCancelled:
		appt, err = h.service.Cancel(ctx, middleware.GetUserID(ctx), id, sourceUser)
	case model.StatusConfirmed, model.StatusRejected, model.StatusCompleted:
		if !isExpert(ctx) {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		switch req.Status {
		case model.StatusConfirmed:
			appt, err = h.service.Confirm(ctx, id, sourceExpert)
		case model.StatusRejected:
			appt, err = h.service.Reject(ctx, id, sourceExpert)
		default:
			appt, err = h.service.Complete(ctx, id, sourceExpert)
		}
	default:
		writeError(w, http.StatusBadRequest, "unsupported status")
		return
	}
	if err != nil {
		h.writeAppointmentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

// Reschedule handles PUT /api/v1/appointments/:id/schedule
func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req model.RescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	appt, err := h.service.Reschedule(ctx, middleware.GetUserID(ctx), id, req.Date, req.Time, sourceUser)
	if err != nil {
		h.writeAppointmentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

// Events handles GET /api/v1/appointments/:id/events
func (h *AppointmentHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	id := chi.URLParam(r, "id")

	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event history is not enabled")
		return
	}
	if _, err := h.service.Get(ctx, userID, id); err != nil {
		h.writeAppointmentError(w, err)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	events, err := h.events.AppointmentHistory(ctx, userID, id, limit)
	if err != nil {
		h.logger.Error("failed to read appointment events", zap.String("appointment_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	if events == nil {
		events = []model.AppointmentEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

func (h *AppointmentHandler) writeAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, service.ErrExpertNotFound):
		writeError(w, http.StatusNotFound, "expert not found")
	case errors.Is(err, service.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, "invalid date or time")
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, service.ErrNotActive):
		writeError(w, http.StatusConflict, "appointment cannot change to that status")
	case errors.Is(err, service.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot unavailable")
	default:
		h.logger.Error("appointment request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isExpert(ctx context.Context) bool {
	role := middleware.GetRole(ctx)
	return role == model.RoleExpert || role == model.RoleAdmin
}
