package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/llm"
	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/service"
	"github.com/zeina-health/companion/internal/store"
	"github.com/zeina-health/companion/pkg/logger"
	"github.com/zeina-health/companion/pkg/metrics"
)

// Error tags handed back to the model in place of raw errors.
const (
	TagExpertNotFound        = "EXPERT_NOT_FOUND"
	TagAppointmentNotFound   = "APPOINTMENT_NOT_FOUND"
	TagImageGenerationFailed = "IMAGE_GENERATION_FAILED"
	TagInvalidArguments      = "INVALID_ARGUMENTS"
	TagUnknownTool           = "UNKNOWN_TOOL"
	TagInvalidTransition     = "INVALID_TRANSITION"
	TagAppointmentNotActive  = "APPOINTMENT_NOT_ACTIVE"
	TagSlotUnavailable       = "SLOT_UNAVAILABLE"
	TagStoreFailure          = "STORE_FAILURE"
	TagCancelled             = "CANCELLED"
)

const (
	// ImagePromptPrefix normalizes the style of generated images.
	ImagePromptPrefix = "High quality, photorealistic, 8k resolution, soft lighting, warm colors, women's health context: "

	// BookingNotes marks appointments the assistant booked.
	BookingNotes = "Booked via assistant"

	eventSource = "assistant"
)

var tracer = otel.Tracer("companion/internal/tool")

// Appointments is the slice of the appointment service the tools drive.
type Appointments interface {
	Book(ctx context.Context, userID, lang string, req *model.BookAppointmentRequest, policy service.BookingPolicy) (*model.Appointment, error)
	ListActiveForUser(ctx context.Context, userID string) ([]model.Appointment, error)
	Reschedule(ctx context.Context, userID, id, date, tm, source string) (*model.Appointment, error)
	Cancel(ctx context.Context, userID, id, source string) (*model.Appointment, error)
}

// Invocation is one tool call made on behalf of a user.
type Invocation struct {
	UserID   string
	Language string
	Call     model.ToolCall
}

// Dispatcher validates and executes tool calls.
type Dispatcher struct {
	appointments Appointments
	images       llm.ImageGenerator
	logger       *logger.Logger
}

// NewDispatcher creates a new dispatcher. images may be nil, in which case
// every image request fails with IMAGE_GENERATION_FAILED.
func NewDispatcher(appointments Appointments, images llm.ImageGenerator, log *logger.Logger) *Dispatcher {
	return &Dispatcher{appointments: appointments, images: images, logger: log}
}

// Dispatch executes exactly one tool call. It never returns an error: every
// failure is folded into the ToolResult as a stable tag. The UI payload is
// nil unless the call produced something to show.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) (model.ToolResult, *model.UIPayload) {
	ctx, span := tracer.Start(ctx, "tool.dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", string(inv.Call.Name)))

	result := model.ToolResult{CallID: inv.Call.ID, Name: inv.Call.Name}

	payload, ui, err := d.execute(ctx, inv)
	if err != nil {
		tag := errorTag(err)
		result.Error = tag
		metrics.RecordToolInvocation(string(inv.Call.Name), tag)
		span.SetStatus(codes.Error, tag)
		d.logger.Warn("tool call failed",
			zap.String("tool", string(inv.Call.Name)),
			zap.String("call_id", inv.Call.ID),
			zap.String("user_id", inv.UserID),
			zap.String("tag", tag),
			zap.Error(err),
		)
		return result, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		result.Error = TagStoreFailure
		metrics.RecordToolInvocation(string(inv.Call.Name), TagStoreFailure)
		return result, nil
	}
	result.Payload = data
	metrics.RecordToolInvocation(string(inv.Call.Name), "ok")
	return result, ui
}

func (d *Dispatcher) execute(ctx context.Context, inv Invocation) (any, *model.UIPayload, error) {
	args, err := DecodeArguments(inv.Call)
	if err != nil {
		return nil, nil, err
	}

	switch a := args.(type) {
	case BookAppointmentArgs:
		appt, err := d.appointments.Book(ctx, inv.UserID, inv.Language, &model.BookAppointmentRequest{
			ExpertID: a.ExpertID,
			Date:     a.Date,
			Time:     a.Time,
			Notes:    BookingNotes,
		}, service.BookingPolicy{AutoConfirm: true, Source: eventSource})
		if err != nil {
			return nil, nil, err
		}
		return appt, &model.UIPayload{Kind: model.PayloadBooking, Appointment: appt}, nil

	case GetMyAppointmentsArgs:
		list, err := d.appointments.ListActiveForUser(ctx, inv.UserID)
		if err != nil {
			return nil, nil, err
		}
		return list, &model.UIPayload{Kind: model.PayloadAppointmentList, Appointments: list}, nil

	case RescheduleAppointmentArgs:
		appt, err := d.appointments.Reschedule(ctx, inv.UserID, a.AppointmentID, a.NewDate, a.NewTime, eventSource)
		if err != nil {
			return nil, nil, err
		}
		return appt, &model.UIPayload{Kind: model.PayloadBooking, Appointment: appt}, nil

	case CancelAppointmentArgs:
		appt, err := d.appointments.Cancel(ctx, inv.UserID, a.AppointmentID, eventSource)
		if err != nil {
			return nil, nil, err
		}
		return appt, &model.UIPayload{Kind: model.PayloadCancellation, Appointment: appt}, nil

	case GenerateHealthImageArgs:
		image, err := d.generateImage(ctx, a.Prompt)
		if err != nil {
			return nil, nil, err
		}
		// The model only learns that the image exists; the bytes go to the UI.
		ack := map[string]any{"status": "generated", "encoding": "base64", "size": len(image)}
		return ack, &model.UIPayload{Kind: model.PayloadImage, Image: image}, nil
	}

	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownTool, inv.Call.Name)
}

type imageError struct{ err error }

func (e *imageError) Error() string { return "image generation: " + e.err.Error() }
func (e *imageError) Unwrap() error { return e.err }

func (d *Dispatcher) generateImage(ctx context.Context, prompt string) (string, error) {
	if d.images == nil {
		return "", &imageError{errors.New("no image generator configured")}
	}
	image, err := d.images.GenerateImage(ctx, &llm.ImageRequest{
		Prompt:      ImagePromptPrefix + prompt,
		AspectRatio: "1:1",
	})
	if err != nil {
		return "", &imageError{err}
	}
	if image == "" {
		return "", &imageError{llm.ErrNoImage}
	}
	return image, nil
}

func errorTag(err error) string {
	var imgErr *imageError
	switch {
	case errors.As(err, &imgErr):
		return TagImageGenerationFailed
	case errors.Is(err, ErrUnknownTool):
		return TagUnknownTool
	case errors.Is(err, ErrInvalidArguments), errors.Is(err, service.ErrInvalidSchedule):
		return TagInvalidArguments
	case errors.Is(err, service.ErrExpertNotFound):
		return TagExpertNotFound
	case errors.Is(err, store.ErrNotFound):
		return TagAppointmentNotFound
	case errors.Is(err, service.ErrNotActive):
		return TagAppointmentNotActive
	case errors.Is(err, store.ErrInvalidTransition):
		return TagInvalidTransition
	case errors.Is(err, service.ErrSlotUnavailable):
		return TagSlotUnavailable
	default:
		return TagStoreFailure
	}
}
