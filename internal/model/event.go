package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeError      EventType = "error"
	EventTypeToolFailed EventType = "tool_failed"
	EventTypeTimeout    EventType = "timeout"
	EventTypeClosed     EventType = "closed"
)

// ConversationEvent represents an event in an assistant session.
type ConversationEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Type      EventType      `json:"type"`
	Reason    string         `json:"reason"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AppointmentEventType names a lifecycle change of an appointment.
type AppointmentEventType string

const (
	AppointmentCreated     AppointmentEventType = "created"
	AppointmentConfirmed   AppointmentEventType = "confirmed"
	AppointmentRejected    AppointmentEventType = "rejected"
	AppointmentCancelled   AppointmentEventType = "cancelled"
	AppointmentCompleted   AppointmentEventType = "completed"
	AppointmentRescheduled AppointmentEventType = "rescheduled"
)

// AppointmentEvent is published whenever an appointment changes.
type AppointmentEvent struct {
	ID          string               `json:"id"`
	Type        AppointmentEventType `json:"type"`
	Appointment Appointment          `json:"appointment"`
	Source      string               `json:"source"`
	CreatedAt   time.Time            `json:"created_at"`
	Sequence    uint64               `json:"sequence,omitempty"`
}
