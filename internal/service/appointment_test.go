package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeina-health/companion/internal/catalog"
	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/store"
	"github.com/zeina-health/companion/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.AppointmentEventType
	err    error
}

func (p *recordingPublisher) PublishAppointmentEvent(ctx context.Context, e *model.AppointmentEvent) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e.Type)
	return uint64(len(p.events)), p.err
}

func newAppointmentService(opts AppointmentOptions) *AppointmentService {
	repo := store.NewMemoryStore().Appointments()
	if c, ok := opts.SlotChecker.(StoreSlotChecker); ok && c.Repo == nil {
		opts.SlotChecker = StoreSlotChecker{Repo: repo}
	}
	return NewAppointmentService(repo, catalog.Default(), opts, logger.NewNop())
}

func bookReq(expertID string) *model.BookAppointmentRequest {
	return &model.BookAppointmentRequest{ExpertID: expertID, Date: "2025-11-01", Time: "10:00 AM"}
}

func TestBookHumanPathStaysPending(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newAppointmentService(AppointmentOptions{Publisher: pub})

	appt, err := svc.Book(context.Background(), "u1", "en", bookReq("1"), BookingPolicy{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, appt.Status)
	assert.Equal(t, "Dr. Fatima Al-Otaibi", appt.ExpertName)
	assert.Contains(t, appt.MeetingLink, appt.ID)
	assert.Equal(t, []model.AppointmentEventType{model.AppointmentCreated}, pub.events)
}

func TestBookAutoConfirm(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newAppointmentService(AppointmentOptions{Publisher: pub})

	appt, err := svc.Book(context.Background(), "u1", "ar", bookReq("1"), BookingPolicy{AutoConfirm: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, appt.Status)
	assert.Equal(t, "د. فاطمة العتيبي", appt.ExpertName)
	assert.Equal(t, []model.AppointmentEventType{model.AppointmentCreated, model.AppointmentConfirmed}, pub.events)
}

func TestBookPublishFailureIsNotFatal(t *testing.T) {
	svc := newAppointmentService(AppointmentOptions{Publisher: &recordingPublisher{err: errors.New("down")}})

	appt, err := svc.Book(context.Background(), "u1", "en", bookReq("2"), BookingPolicy{AutoConfirm: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, appt.Status)
}

func TestBookValidation(t *testing.T) {
	svc := newAppointmentService(AppointmentOptions{})
	ctx := context.Background()

	_, err := svc.Book(ctx, "u1", "en", bookReq("99"), BookingPolicy{})
	assert.ErrorIs(t, err, ErrExpertNotFound)

	_, err = svc.Book(ctx, "u1", "en", &model.BookAppointmentRequest{ExpertID: "1", Date: "01/11/2025", Time: "10:00"}, BookingPolicy{})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = svc.Book(ctx, "u1", "en", &model.BookAppointmentRequest{ExpertID: "1", Date: "2025-11-01"}, BookingPolicy{})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestSlotCheckerRejectsTakenSlot(t *testing.T) {
	svc := newAppointmentService(AppointmentOptions{SlotChecker: StoreSlotChecker{}})
	ctx := context.Background()

	first, err := svc.Book(ctx, "u1", "en", bookReq("1"), BookingPolicy{AutoConfirm: true})
	require.NoError(t, err)

	_, err = svc.Book(ctx, "u2", "en", bookReq("1"), BookingPolicy{})
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// The holder may reschedule onto its own slot.
	_, err = svc.Reschedule(ctx, "u1", first.ID, first.Date, first.Time, "test")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "u1", first.ID, "test")
	require.NoError(t, err)
	_, err = svc.Book(ctx, "u2", "en", bookReq("1"), BookingPolicy{})
	assert.NoError(t, err)
}

func TestRescheduleThenCancelEndsCancelled(t *testing.T) {
	svc := newAppointmentService(AppointmentOptions{})
	ctx := context.Background()

	appt, err := svc.Book(ctx, "u1", "en", bookReq("3"), BookingPolicy{AutoConfirm: true})
	require.NoError(t, err)

	for _, slot := range [][2]string{{"2025-11-02", "09:00 AM"}, {"2025-12-24", "04:30 PM"}} {
		moved, err := svc.Reschedule(ctx, "u1", appt.ID, slot[0], slot[1], "test")
		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, moved.Status)
		assert.Equal(t, slot[0], moved.Date)
	}

	cancelled, err := svc.Cancel(ctx, "u1", appt.ID, "test")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	again, err := svc.Cancel(ctx, "u1", appt.ID, "test")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, again.Status)

	_, err = svc.Reschedule(ctx, "u1", appt.ID, "2025-12-25", "10:00 AM", "test")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestOtherUsersAppointmentIsNotFound(t *testing.T) {
	svc := newAppointmentService(AppointmentOptions{})
	ctx := context.Background()

	appt, err := svc.Book(ctx, "u1", "en", bookReq("1"), BookingPolicy{})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "u2", appt.ID, "test")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.Reschedule(ctx, "u2", appt.ID, "2025-11-03", "10:00 AM", "test")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExpertTransitions(t *testing.T) {
	svc := newAppointmentService(AppointmentOptions{})
	ctx := context.Background()

	appt, err := svc.Book(ctx, "u1", "en", bookReq("4"), BookingPolicy{})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, appt.ID, "expert")
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = svc.Confirm(ctx, appt.ID, "expert")
	require.NoError(t, err)
	done, err := svc.Complete(ctx, appt.ID, "expert")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)

	other, err := svc.Book(ctx, "u1", "en", bookReq("4"), BookingPolicy{})
	require.NoError(t, err)
	rejected, err := svc.Reject(ctx, other.ID, "expert")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)
}

func TestListActiveForUserExcludesCancelledAndRejected(t *testing.T) {
	svc := newAppointmentService(AppointmentOptions{})
	ctx := context.Background()

	kept, err := svc.Book(ctx, "u1", "en", bookReq("1"), BookingPolicy{AutoConfirm: true})
	require.NoError(t, err)
	cancelled, err := svc.Book(ctx, "u1", "en", bookReq("2"), BookingPolicy{AutoConfirm: true})
	require.NoError(t, err)
	rejected, err := svc.Book(ctx, "u1", "en", bookReq("3"), BookingPolicy{})
	require.NoError(t, err)
	done, err := svc.Book(ctx, "u1", "en", bookReq("5"), BookingPolicy{AutoConfirm: true})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "u1", cancelled.ID, "test")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, rejected.ID, "test")
	require.NoError(t, err)
	_, err = svc.Complete(ctx, done.ID, "test")
	require.NoError(t, err)

	list, err := svc.ListActiveForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, done.ID, list[0].ID)
	assert.Equal(t, kept.ID, list[1].ID)
}

// refusingConfirm fails every transition to confirmed.
type refusingConfirm struct {
	store.AppointmentRepository
}

func (r refusingConfirm) UpdateStatus(ctx context.Context, id string, status model.AppointmentStatus) (*model.Appointment, error) {
	if status == model.StatusConfirmed {
		return nil, errors.New("disk full")
	}
	return r.AppointmentRepository.UpdateStatus(ctx, id, status)
}

func TestBookAutoConfirmFailureReleasesSlot(t *testing.T) {
	pub := &recordingPublisher{}
	repo := refusingConfirm{store.NewMemoryStore().Appointments()}
	svc := NewAppointmentService(repo, catalog.Default(), AppointmentOptions{
		Publisher:   pub,
		SlotChecker: StoreSlotChecker{Repo: repo},
	}, logger.NewNop())
	ctx := context.Background()

	_, err := svc.Book(ctx, "u1", "en", bookReq("1"), BookingPolicy{AutoConfirm: true})
	require.Error(t, err)

	active, err := svc.ListActiveForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.StatusCancelled, all[0].Status)
	assert.Equal(t, []model.AppointmentEventType{model.AppointmentCreated, model.AppointmentCancelled}, pub.events)

	_, err = svc.Book(ctx, "u2", "en", bookReq("1"), BookingPolicy{})
	assert.NoError(t, err)
}
