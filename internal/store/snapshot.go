package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeina-health/companion/internal/model"
)

// SchemaVersion is the layout version written into every snapshot.
const SchemaVersion = 1

// Snapshot is the on-disk layout of the local record store.
type Snapshot struct {
	SchemaVersion int                 `json:"schemaVersion"`
	Users         []model.User        `json:"users"`
	Appointments  []model.Appointment `json:"appointments"`
	Reviews       []model.Review      `json:"reviews"`
	CurrentUserID string              `json:"currentUserId,omitempty"`
}

// Snapshot returns a copy of every collection, appointments in creation order.
func (s *MemoryStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *MemoryStore) snapshotLocked() Snapshot {
	snap := Snapshot{
		SchemaVersion: SchemaVersion,
		Users:         make([]model.User, 0, len(s.users)),
		Appointments:  make([]model.Appointment, 0, len(s.order)),
		Reviews:       append([]model.Review{}, s.reviews...),
		CurrentUserID: s.currentUserID,
	}
	for _, u := range s.users {
		snap.Users = append(snap.Users, *u)
	}
	for _, id := range s.order {
		snap.Appointments = append(snap.Appointments, *s.appointments[id])
	}
	return snap
}

// Restore replaces the store contents with snap.
func (s *MemoryStore) Restore(snap Snapshot) error {
	if snap.SchemaVersion > SchemaVersion {
		return fmt.Errorf("snapshot schema version %d is newer than supported version %d", snap.SchemaVersion, SchemaVersion)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.appointments = make(map[string]*model.Appointment, len(snap.Appointments))
	s.order = s.order[:0]
	for i := range snap.Appointments {
		a := snap.Appointments[i]
		s.appointments[a.ID] = &a
		s.order = append(s.order, a.ID)
	}
	s.users = make(map[string]*model.User, len(snap.Users))
	for i := range snap.Users {
		u := snap.Users[i]
		s.users[u.ID] = &u
	}
	s.reviews = append([]model.Review{}, snap.Reviews...)
	s.currentUserID = snap.CurrentUserID
	return nil
}

// LoadSnapshot reads a snapshot file. A missing file yields an empty snapshot.
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{SchemaVersion: SchemaVersion}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	// Files written before versioning carry no version field.
	if snap.SchemaVersion == 0 {
		snap.SchemaVersion = SchemaVersion
	}
	return snap, nil
}

// SaveSnapshot writes snap to path via a temporary file and rename.
func SaveSnapshot(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
