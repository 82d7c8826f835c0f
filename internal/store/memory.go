package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/zeina-health/companion/internal/model"
)

// MemoryStore keeps every collection in process memory. When created with
// a snapshot path it rewrites the snapshot file after each mutation.
type MemoryStore struct {
	mu sync.RWMutex

	appointments map[string]*model.Appointment
	order        []string
	users        map[string]*model.User
	reviews      []model.Review

	currentUserID string
	snapshotPath  string
}

// NewMemoryStore creates an empty, non-persistent store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appointments: make(map[string]*model.Appointment),
		users:        make(map[string]*model.User),
	}
}

// OpenMemoryStore loads the snapshot at path, if any, and persists every
// subsequent write back to it.
func OpenMemoryStore(path string) (*MemoryStore, error) {
	s := NewMemoryStore()
	snap, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	if err := s.Restore(snap); err != nil {
		return nil, err
	}
	s.snapshotPath = path
	return s, nil
}

// Appointments returns the store as an AppointmentRepository.
func (s *MemoryStore) Appointments() AppointmentRepository { return memoryAppointments{s} }

// Users returns the store as a UserRepository.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Reviews returns the store as a ReviewRepository.
func (s *MemoryStore) Reviews() ReviewRepository { return memoryReviews{s} }

// SetCurrentUser records the id of the user the local session acts as.
func (s *MemoryStore) SetCurrentUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.currentUserID
	s.currentUserID = id
	if err := s.flushLocked(); err != nil {
		s.currentUserID = prev
		return err
	}
	return nil
}

// CurrentUser returns the id recorded by SetCurrentUser.
func (s *MemoryStore) CurrentUser() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentUserID
}

// flushLocked writes the snapshot file. Callers must hold the write lock
// and undo their change when it fails, so memory never runs ahead of disk.
func (s *MemoryStore) flushLocked() error {
	if s.snapshotPath == "" {
		return nil
	}
	if err := SaveSnapshot(s.snapshotPath, s.snapshotLocked()); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}

type memoryAppointments struct{ s *MemoryStore }

func (r memoryAppointments) Create(ctx context.Context, a *model.Appointment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.appointments[a.ID]; exists {
		return ErrDuplicate
	}
	stored := *a
	s.appointments[a.ID] = &stored
	s.order = append(s.order, a.ID)
	if err := s.flushLocked(); err != nil {
		delete(s.appointments, a.ID)
		s.order = s.order[:len(s.order)-1]
		return err
	}
	return nil
}

func (r memoryAppointments) GetByID(ctx context.Context, id string) (*model.Appointment, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.appointments[id]
	if !exists {
		return nil, ErrNotFound
	}
	out := *a
	return &out, nil
}

func (r memoryAppointments) ListForUser(ctx context.Context, userID string) ([]model.Appointment, error) {
	return r.list(func(a *model.Appointment) bool { return a.UserID == userID }), nil
}

func (r memoryAppointments) ListForExpert(ctx context.Context, expertID string) ([]model.Appointment, error) {
	return r.list(func(a *model.Appointment) bool { return a.ExpertID == expertID }), nil
}

func (r memoryAppointments) list(match func(*model.Appointment) bool) []model.Appointment {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Appointment{}
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.appointments[s.order[i]]
		if match(a) {
			out = append(out, *a)
		}
	}
	return out
}

func (r memoryAppointments) UpdateStatus(ctx context.Context, id string, status model.AppointmentStatus) (*model.Appointment, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.appointments[id]
	if !exists {
		return nil, ErrNotFound
	}
	noop, err := transition(a.Status, status)
	if err != nil {
		return nil, fmt.Errorf("%w: %s -> %s", err, a.Status, status)
	}
	if noop {
		out := *a
		return &out, nil
	}
	updated := *a
	updated.Status = status
	s.appointments[id] = &updated
	if err := s.flushLocked(); err != nil {
		s.appointments[id] = a
		return nil, err
	}
	out := updated
	return &out, nil
}

func (r memoryAppointments) Update(ctx context.Context, id string, patch model.AppointmentPatch) (*model.Appointment, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.appointments[id]
	if !exists {
		return nil, ErrNotFound
	}
	updated := *a
	patch.Apply(&updated)
	s.appointments[id] = &updated
	if err := s.flushLocked(); err != nil {
		s.appointments[id] = a
		return nil, err
	}
	out := updated
	return &out, nil
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Get(ctx context.Context, id string) (*model.User, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.users[id]
	if !exists {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r memoryUsers) Save(ctx context.Context, u *model.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.users[u.ID]
	stored := *u
	s.users[u.ID] = &stored
	if err := s.flushLocked(); err != nil {
		if existed {
			s.users[u.ID] = prev
		} else {
			delete(s.users, u.ID)
		}
		return err
	}
	return nil
}

type memoryReviews struct{ s *MemoryStore }

func (r memoryReviews) Add(ctx context.Context, review *model.Review) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.reviews)
	s.reviews = append(s.reviews, *review)
	if err := s.flushLocked(); err != nil {
		s.reviews = s.reviews[:n]
		return err
	}
	return nil
}

func (r memoryReviews) ListForItem(ctx context.Context, itemID string) ([]model.Review, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Review{}
	for _, review := range s.reviews {
		if review.ItemID == itemID {
			out = append(out, review)
		}
	}
	return out, nil
}
