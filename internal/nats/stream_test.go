package nats

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeina-health/companion/internal/model"
)

func TestSubjects(t *testing.T) {
	a := &model.Appointment{ID: "a1", UserID: "u1"}
	s := Subjects{Prefix: DefaultSubjectPrefix}

	assert.Equal(t, "companion.>", s.All())
	assert.Equal(t, "companion.appt.u1.a1.confirmed", s.Appointment(a, model.AppointmentConfirmed))
	assert.Equal(t, "companion.appt.u1.a1.*", s.AppointmentFilter("u1", "a1"))
	assert.Equal(t, "companion.assistant.s1.event.closed", s.SessionEvent("s1", model.EventTypeClosed))

	staging := Subjects{Prefix: "staging.companion"}
	assert.Equal(t, "staging.companion.appt.u1.a1.cancelled", staging.Appointment(a, model.AppointmentCancelled))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URL: "nats://localhost:4222"}.withDefaults()

	assert.Equal(t, "companion-api", cfg.ClientName)
	assert.Equal(t, DefaultStreamName, cfg.Stream)
	assert.Equal(t, DefaultSubjectPrefix, cfg.SubjectPrefix)
	assert.Equal(t, DefaultRetention, cfg.Retention)

	custom := Config{URL: "nats://x", Stream: "CLINIC", SubjectPrefix: "clinic", Retention: time.Hour}.withDefaults()
	assert.Equal(t, "CLINIC", custom.Stream)
	assert.Equal(t, "clinic", custom.SubjectPrefix)
	assert.Equal(t, time.Hour, custom.Retention)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "minimal", cfg: Config{URL: "nats://localhost:4222"}},
		{name: "nested prefix", cfg: Config{URL: "nats://x", SubjectPrefix: "prod.companion"}},
		{name: "full tls", cfg: Config{URL: "nats://x", CAFile: "ca", CertFile: "crt", KeyFile: "key"}},
		{name: "missing url", cfg: Config{}, wantErr: true},
		{name: "wildcard prefix", cfg: Config{URL: "nats://x", SubjectPrefix: "companion.*"}, wantErr: true},
		{name: "trailing dot", cfg: Config{URL: "nats://x", SubjectPrefix: "companion."}, wantErr: true},
		{name: "dotted stream", cfg: Config{URL: "nats://x", Stream: "COMPANION.V2"}, wantErr: true},
		{name: "half tls", cfg: Config{URL: "nats://x", CAFile: "ca"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateTLSConfigMissingCA(t *testing.T) {
	dir := t.TempDir()
	_, err := createTLSConfig(filepath.Join(dir, "ca.pem"), filepath.Join(dir, "c.pem"), filepath.Join(dir, "k.pem"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CA file")
}
