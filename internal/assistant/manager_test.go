package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/pkg/logger"
)

func TestManagerOwnership(t *testing.T) {
	m := NewManager(Dependencies{}, Options{}, time.Minute, logger.NewNop())

	s := m.Create("alice", "ar", &model.User{ID: "alice"})
	assert.Equal(t, "ar", s.Language())
	assert.Equal(t, "alice", s.UserID())

	got, err := m.Get(s.ID(), "alice")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get(s.ID(), "mallory")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(s.ID(), "mallory"), ErrSessionNotFound)

	require.NoError(t, m.Close(s.ID(), "alice"))
	assert.True(t, s.Closed())
	_, err = m.Get(s.ID(), "alice")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerSweepClosesIdleSessions(t *testing.T) {
	m := NewManager(Dependencies{}, Options{}, time.Minute, logger.NewNop())

	stale := m.Create("a", "en", nil)
	fresh := m.Create("b", "en", nil)
	stale.lastUsed.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	assert.Equal(t, 1, m.Sweep(time.Now()))
	assert.True(t, stale.Closed())
	assert.False(t, fresh.Closed())
	assert.Equal(t, 1, m.Len())

	m.Shutdown()
	assert.True(t, fresh.Closed())
	assert.Equal(t, 0, m.Len())
}

func TestManagerSweepSkipsSessionMidTurn(t *testing.T) {
	m := NewManager(Dependencies{}, Options{}, time.Minute, logger.NewNop())

	s := m.Create("a", "en", nil)
	s.lastUsed.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	// A turn that started long ago is still running.
	require.True(t, s.busy.TryLock())
	assert.Equal(t, 0, m.Sweep(time.Now()))
	assert.False(t, s.Closed())
	assert.Equal(t, 1, m.Len())

	s.busy.Unlock()
	assert.Equal(t, 1, m.Sweep(time.Now()))
	assert.True(t, s.Closed())
	assert.Equal(t, 0, m.Len())

	// The sweep released the turn lock, so later sends see the close.
	_, err := s.SendMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSessionClosed)
}
