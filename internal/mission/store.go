package mission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
)

// ErrNotFound is returned when no mission has the requested id
var ErrNotFound = errors.New("mission not found")

// Persister receives a copy of every mission change. Failures are logged
// and never roll back the in-memory state.
type Persister interface {
	SaveMission(ctx context.Context, m *Mission) error
	DeleteMission(ctx context.Context, id string) error
}

var allowedTransitions = map[Status][]Status{
	StatusDraft:     {StatusDeployed},
	StatusDeployed:  {StatusDeployed, StatusExecuting, StatusDraft},
	StatusExecuting: {StatusDeployed, StatusCompleted, StatusAborted},
	StatusCompleted: {StatusDeployed, StatusExecuting, StatusDraft},
	StatusAborted:   {StatusDeployed, StatusExecuting, StatusDraft},
}

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) func(*Store) {
	return func(s *Store) {
		s.logger = logger.With(slog.String("component", "mission-store"))
	}
}

// WithPersister enables write-through persistence
func WithPersister(p Persister) func(*Store) {
	return func(s *Store) {
		s.persister = p
	}
}

// WithClock overrides the wall clock used for timestamps
func WithClock(now func() time.Time) func(*Store) {
	return func(s *Store) {
		s.now = now
	}
}

// Store exclusively owns mission aggregates. Callers always receive deep
// copies, so a snapshot handed to the execution engine is never affected
// by later edits.
type Store struct {
	mu       sync.RWMutex
	missions map[string]*Mission

	persister Persister
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore creates an empty Store with a discard logger
func NewStore(options ...func(*Store)) *Store {
	s := Store{
		missions: make(map[string]*Mission),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Restore seeds the store with previously persisted missions. Missions
// that were executing when the process stopped come back as deployed.
func (s *Store) Restore(missions []*Mission) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range missions {
		c := m.Clone()
		if c.Status == StatusExecuting {
			c.Status = StatusDeployed
		}
		s.missions[c.ID] = c
	}
}

// Create normalises m, assigns it an id and stores it as a draft
func (s *Store) Create(ctx context.Context, m *Mission) (*Mission, error) {
	if m == nil {
		return nil, fault.New(fault.KindValidation, "mission.create", "mission is nil")
	}

	c := m.Clone()
	c.Normalize()
	if err := c.CheckStructure(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c.ID = uuid.NewString()
	c.Status = StatusDraft
	c.CreatedAt = now
	c.UpdatedAt = now

	s.mu.Lock()
	s.missions[c.ID] = c
	s.mu.Unlock()

	out := c.Clone()
	s.persist(ctx, out)

	s.logger.Info("mission created", slog.String("missionID", out.ID), slog.String("name", out.Name),
		slog.Int("waypoints", len(out.Waypoints)))
	return out, nil
}

// Get returns a copy of the mission
func (s *Store) Get(id string) (*Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.missions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.Clone(), nil
}

// List returns copies of all missions, oldest first
func (s *Store) List() []*Mission {
	s.mu.RLock()
	missions := make([]*Mission, 0, len(s.missions))
	for _, m := range s.missions {
		missions = append(missions, m.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(missions, func(a, b *Mission) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareStrings(a.ID, b.ID)
	})
	return missions
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Update applies fn to a copy of the mission and stores the result. Missions
// that are deployed or executing are immutable; an edited completed or
// aborted mission returns to draft.
func (s *Store) Update(ctx context.Context, id string, fn func(*Mission) error) (*Mission, error) {
	s.mu.Lock()
	current, ok := s.missions[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if current.Status.Frozen() {
		s.mu.Unlock()
		return nil, fault.Errorf(fault.KindProtocolState, "mission.update", "mission %s is %s", id, current.Status)
	}

	c := current.Clone()
	if err := fn(c); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	c.Normalize()
	if err := c.CheckStructure(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	c.ID = current.ID
	c.CreatedAt = current.CreatedAt
	c.Status = StatusDraft
	c.UpdatedAt = s.now().UTC()
	s.missions[id] = c
	out := c.Clone()
	s.mu.Unlock()

	s.persist(ctx, out)
	return out, nil
}

// Delete removes a mission that is not executing
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	current, ok := s.missions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if current.Status == StatusExecuting {
		s.mu.Unlock()
		return fault.Errorf(fault.KindProtocolState, "mission.delete", "mission %s is executing", id)
	}
	delete(s.missions, id)
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.DeleteMission(ctx, id); err != nil {
			s.logger.Error(fmt.Sprintf("deleting persisted mission: %s", err.Error()), slog.String("missionID", id))
		}
	}
	return nil
}

// SetStatus moves a mission along its lifecycle
func (s *Store) SetStatus(ctx context.Context, id string, status Status) (*Mission, error) {
	s.mu.Lock()
	current, ok := s.missions[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !slices.Contains(allowedTransitions[current.Status], status) {
		from := current.Status
		s.mu.Unlock()
		return nil, fault.Errorf(fault.KindProtocolState, "mission.status", "mission %s cannot go from %s to %s", id, from, status)
	}

	c := current.Clone()
	c.Status = status
	c.UpdatedAt = s.now().UTC()
	s.missions[id] = c
	out := c.Clone()
	s.mu.Unlock()

	s.persist(ctx, out)

	s.logger.Info("mission status changed", slog.String("missionID", id), slog.String("status", string(status)))
	return out, nil
}

func (s *Store) persist(ctx context.Context, m *Mission) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveMission(ctx, m); err != nil {
		s.logger.Error(fmt.Sprintf("persisting mission: %s", err.Error()), slog.String("missionID", m.ID))
	}
}
