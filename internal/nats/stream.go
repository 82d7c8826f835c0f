package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/zeina-health/companion/internal/model"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the event stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()
	cfg := m.client.cfg

	if _, err := js.Stream(ctx, cfg.Stream); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Subjects:    []string{m.client.Subjects().All()},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.Retention,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Appointment lifecycle and assistant session events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// Subjects lays out the subject tree under one prefix.
type Subjects struct {
	Prefix string
}

// All matches every subject of the tree.
func (s Subjects) All() string {
	return s.Prefix + ".>"
}

// Appointment returns the subject for an appointment event.
func (s Subjects) Appointment(a *model.Appointment, eventType model.AppointmentEventType) string {
	return fmt.Sprintf("%s.appt.%s.%s.%s", s.Prefix, a.UserID, a.ID, eventType)
}

// AppointmentFilter matches every event of one appointment.
func (s Subjects) AppointmentFilter(userID, appointmentID string) string {
	return fmt.Sprintf("%s.appt.%s.%s.*", s.Prefix, userID, appointmentID)
}

// SessionEvent returns the subject for an assistant session event.
func (s Subjects) SessionEvent(sessionID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.assistant.%s.event.%s", s.Prefix, sessionID, eventType)
}

// PublishAppointmentEvent publishes an appointment lifecycle event to JetStream.
func (m *StreamManager) PublishAppointmentEvent(ctx context.Context, event *model.AppointmentEvent) (uint64, error) {
	subject := m.client.Subjects().Appointment(&event.Appointment, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal appointment event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish appointment event: %w", err)
	}

	return ack.Sequence, nil
}

// PublishConversationEvent publishes an assistant session event to JetStream.
func (m *StreamManager) PublishConversationEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	subject := m.client.Subjects().SessionEvent(event.SessionID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	return ack.Sequence, nil
}

// AppointmentHistory replays the lifecycle events of one appointment, oldest first.
func (m *StreamManager) AppointmentHistory(ctx context.Context, userID, appointmentID string, limit int) ([]model.AppointmentEvent, error) {
	js := m.client.JetStream()

	consumer, err := js.OrderedConsumer(ctx, m.client.cfg.Stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{m.client.Subjects().AppointmentFilter(userID, appointmentID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	var events []model.AppointmentEvent
	for msg := range batch.Messages() {
		var event model.AppointmentEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			event.Sequence = meta.Sequence.Stream
		}
		events = append(events, event)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, fmt.Errorf("batch error: %w", err)
	}

	return events, nil
}
