package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppointmentStatusTransitions(t *testing.T) {
	tests := []struct {
		from AppointmentStatus
		to   AppointmentStatus
		want bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusRejected, false},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusRejected, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestAppointmentStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, AppointmentStatus("archived").Terminal())
	assert.False(t, AppointmentStatus("archived").Valid())
}

func TestAppointmentPatchApply(t *testing.T) {
	a := Appointment{Date: "2025-11-01", Time: "10:00 AM", Notes: "keep"}
	date := "2025-11-03"
	AppointmentPatch{Date: &date}.Apply(&a)

	assert.Equal(t, "2025-11-03", a.Date)
	assert.Equal(t, "10:00 AM", a.Time)
	assert.Equal(t, "keep", a.Notes)
}

func TestReplyAccessorsReturnLatestOfKind(t *testing.T) {
	first := &Appointment{ID: "a1"}
	second := &Appointment{ID: "a2"}
	r := &Reply{Payloads: []UIPayload{
		{Kind: PayloadBooking, Appointment: first},
		{Kind: PayloadImage, Image: "aGk="},
		{Kind: PayloadBooking, Appointment: second},
	}}

	assert.Equal(t, "a2", r.BookingDetails().ID)
	assert.Equal(t, "aGk=", r.GeneratedImage())
	assert.Nil(t, r.CancellationDetails())
	assert.Nil(t, r.AppointmentList())
}

func TestToolResultContent(t *testing.T) {
	ok := ToolResult{Name: ToolCancelAppointment, Payload: []byte(`{"id":"a1"}`)}
	failed := ToolResult{Name: ToolCancelAppointment, Error: "APPOINTMENT_NOT_FOUND"}

	assert.JSONEq(t, `{"id":"a1"}`, ok.Content())
	assert.JSONEq(t, `{"error":"APPOINTMENT_NOT_FOUND"}`, failed.Content())
	assert.True(t, failed.Failed())
}
