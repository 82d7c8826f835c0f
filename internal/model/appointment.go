// Package model defines data structures for the health companion platform.
package model

import (
	"time"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusRejected  AppointmentStatus = "rejected"
)

// transitions lists the legal next states for every non-terminal status.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusRejected, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s AppointmentStatus) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Active reports whether the appointment still occupies the expert's calendar.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment is a booked consultation between a user and an expert.
// Date and Time are kept as the strings the user agreed to so that they
// round-trip through storage without timezone conversion.
type Appointment struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	ExpertID    string            `json:"expertId"`
	ExpertName  string            `json:"expertName"`
	ExpertImage string            `json:"expertImage"`
	Date        string            `json:"date"`
	Time        string            `json:"time"`
	Status      AppointmentStatus `json:"status"`
	Notes       string            `json:"notes,omitempty"`
	MeetingLink string            `json:"meetingLink,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// AppointmentPatch holds the mutable scheduling fields of an appointment.
// Nil fields are left untouched.
type AppointmentPatch struct {
	Date        *string
	Time        *string
	Notes       *string
	MeetingLink *string
}

// Apply copies the non-nil fields of p onto a.
func (p AppointmentPatch) Apply(a *Appointment) {
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.Time != nil {
		a.Time = *p.Time
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	if p.MeetingLink != nil {
		a.MeetingLink = *p.MeetingLink
	}
}

// BookAppointmentRequest is the request to book a consultation.
type BookAppointmentRequest struct {
	ExpertID string `json:"expertId"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Notes    string `json:"notes,omitempty"`
}

// UpdateStatusRequest is the request to move an appointment to a new status.
type UpdateStatusRequest struct {
	Status AppointmentStatus `json:"status"`
}

// RescheduleRequest is the request to move an appointment to a new slot.
type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// ListAppointmentsResponse is the response for listing appointments.
type ListAppointmentsResponse struct {
	Appointments []Appointment `json:"appointments"`
	Total        int           `json:"total"`
}
