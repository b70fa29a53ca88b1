package cycle

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no cycle exists for the given ID.
	ErrNotFound = errors.New("cycle not found")

	// ErrInvalidTransition is returned when the requested status change is
	// not permitted from the cycle's current state.
	ErrInvalidTransition = errors.New("invalid cycle state transition")

	// ErrActivationConflict is returned to the loser of two concurrent
	// activation attempts.
	ErrActivationConflict = errors.New("concurrent cycle activation conflict")

	// Validation errors.
	ErrNameRequired = errors.New("cycle name is required")
	ErrDateRange    = errors.New("end_date must be after start_date")
)

// Repo is the store surface the lifecycle controller needs. Activate must be
// atomic: archive the currently active cycle (if any) and promote the draft
// in one step, or fail without changing anything.
type Repo interface {
	Create(ctx context.Context, c *Cycle) (*Cycle, error)
	GetByID(ctx context.Context, id string) (*Cycle, error)
	List(ctx context.Context) ([]*Cycle, error)
	GetActive(ctx context.Context) (*Cycle, error)
	Activate(ctx context.Context, id string) (*Cycle, error)
	Archive(ctx context.Context, id string) (*Cycle, error)
}

// Service is the cycle lifecycle controller. It owns the draft -> active ->
// archived state machine and the single-active-cycle invariant.
type Service struct {
	repo Repo
}

// NewService creates a lifecycle controller over the given repo.
func NewService(repo Repo) *Service {
	return &Service{repo: repo}
}

// Create validates the input and creates a cycle in draft status.
func (s *Service) Create(ctx context.Context, in CreateCycleInput) (*Cycle, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrNameRequired
	}
	if !in.EndDate.After(in.StartDate) {
		return nil, ErrDateRange
	}

	return s.repo.Create(ctx, &Cycle{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Status:    StatusDraft,
	})
}

// GetByID retrieves a cycle.
func (s *Service) GetByID(ctx context.Context, id string) (*Cycle, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all cycles.
func (s *Service) List(ctx context.Context) ([]*Cycle, error) {
	return s.repo.List(ctx)
}

// GetActive returns the single active cycle, or nil if none.
func (s *Service) GetActive(ctx context.Context) (*Cycle, error) {
	return s.repo.GetActive(ctx)
}

// SetStatus applies an admin status change. Only draft -> active and
// active -> archived are legal; everything else, including any attempt to
// leave archived, fails with ErrInvalidTransition.
func (s *Service) SetStatus(ctx context.Context, id, status string) (*Cycle, error) {
	switch status {
	case StatusActive:
		return s.repo.Activate(ctx, id)
	case StatusArchived:
		return s.repo.Archive(ctx, id)
	default:
		return nil, ErrInvalidTransition
	}
}
