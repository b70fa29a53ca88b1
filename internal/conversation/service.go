package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/alecgard/entretien/internal/auth"
	"github.com/alecgard/entretien/internal/cycle"
	"github.com/alecgard/entretien/internal/user"
)

var (
	// ErrNotFound is returned when no conversation matches the request.
	ErrNotFound = errors.New("conversation not found")
	// ErrAlreadyExists is returned when a concurrent first write already
	// materialized the record.
	ErrAlreadyExists = errors.New("conversation already exists")
	// ErrNoActiveCycle is returned for operations that require an active
	// review cycle when none exists.
	ErrNoActiveCycle = errors.New("no active review cycle")
	// ErrInvalidTransition is returned for writes the conversation state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid conversation transition")
	// ErrInvalidStatus is returned for status values outside the known set.
	ErrInvalidStatus = errors.New("unknown conversation status")
	// ErrRatingRange is returned when a rating falls outside 1-5.
	ErrRatingRange = errors.New("ratings must be between 1 and 5")
)

// Repo is the persistence interface the service needs.
type Repo interface {
	Create(ctx context.Context, c *Conversation) (*Conversation, error)
	GetByID(ctx context.Context, id string) (*Conversation, error)
	GetByCycleAndEmployee(ctx context.Context, cycleID, employeeEmail string) (*Conversation, error)
	ListByCycle(ctx context.Context, cycleID string) ([]*Conversation, error)
	Update(ctx context.Context, cycleID, employeeEmail string, in UpdateInput) (*Conversation, error)
}

// CycleLookup resolves review cycles.
type CycleLookup interface {
	GetActive(ctx context.Context) (*cycle.Cycle, error)
	GetByID(ctx context.Context, id string) (*cycle.Cycle, error)
}

// Directory resolves users and reporting lines.
type Directory interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	ListReports(ctx context.Context, managerEmail string) ([]*user.User, error)
}

// Service implements the conversation workflow. All writes are scoped to
// the active cycle; archived conversations stay readable but immutable.
type Service struct {
	repo   Repo
	cycles CycleLookup
	users  Directory
	guard  *auth.Guard
}

// NewService creates a conversation service.
func NewService(repo Repo, cycles CycleLookup, users Directory, guard *auth.Guard) *Service {
	return &Service{repo: repo, cycles: cycles, users: users, guard: guard}
}

// virtual builds the conceptual empty conversation returned before the
// first write materializes a record. The manager snapshot is taken from the
// employee's current reporting line.
func virtual(cycleID string, employee *user.User) *Conversation {
	return &Conversation{
		CycleID:       cycleID,
		EmployeeEmail: employee.Email,
		ManagerEmail:  employee.ManagerEmail,
		Status:        StatusNotStarted,
	}
}

func refOf(c *Conversation) auth.ConversationRef {
	return auth.ConversationRef{
		EmployeeEmail: c.EmployeeEmail,
		ManagerEmail:  c.ManagerEmail,
		Completed:     c.Status == StatusCompleted,
	}
}

func (s *Service) activeCycle(ctx context.Context) (*cycle.Cycle, error) {
	active, err := s.cycles.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving active cycle: %w", err)
	}
	if active == nil {
		return nil, ErrNoActiveCycle
	}
	return active, nil
}

// existingOrVirtual fetches the employee's conversation in the cycle,
// falling back to the virtual not_started conversation.
func (s *Service) existingOrVirtual(ctx context.Context, cycleID string, employee *user.User) (*Conversation, error) {
	conv, err := s.repo.GetByCycleAndEmployee(ctx, cycleID, employee.Email)
	if errors.Is(err, ErrNotFound) {
		return virtual(cycleID, employee), nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetMine returns the caller's conversation in the active cycle. Before the
// first write this is a virtual not_started conversation with no ID.
func (s *Service) GetMine(ctx context.Context, caller *user.User) (*Conversation, error) {
	active, err := s.activeCycle(ctx)
	if err != nil {
		return nil, err
	}
	return s.existingOrVirtual(ctx, active.ID, caller)
}

func validEmployeeStatus(target string) error {
	switch target {
	case StatusInProgress, StatusReadyForManager:
		return nil
	case StatusNotStarted, StatusCompleted:
		return ErrInvalidTransition
	default:
		return ErrInvalidStatus
	}
}

// UpdateMine applies an employee write to the caller's conversation in the
// active cycle, materializing the record on first write. Employees may move
// the conversation to in_progress or ready_for_manager; completing it is
// the manager's transition.
func (s *Service) UpdateMine(ctx context.Context, caller *user.User, in EmployeeUpdate) (*Conversation, error) {
	active, err := s.activeCycle(ctx)
	if err != nil {
		return nil, err
	}
	if in.Status != nil {
		if err := validEmployeeStatus(*in.Status); err != nil {
			return nil, err
		}
	}

	conv, err := s.existingOrVirtual(ctx, active.ID, caller)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanEditEmployeeFields(caller, refOf(conv), true) {
		if conv.Status == StatusCompleted {
			return nil, ErrInvalidTransition
		}
		return nil, auth.ErrForbidden
	}

	if conv.ID == "" {
		return s.materialize(ctx, conv, in, caller.Email)
	}

	update := UpdateInput{
		SelfReview:      in.SelfReview,
		Achievements:    in.Achievements,
		Challenges:      in.Challenges,
		Strengths:       in.Strengths,
		GrowthAreas:     in.GrowthAreas,
		GoalsNextPeriod: in.GoalsNextPeriod,
		Status:          in.Status,
		UpdatedBy:       caller.Email,
	}
	return s.repo.Update(ctx, active.ID, caller.Email, update)
}

// materialize creates the record for a first employee write. Missing any
// explicit status, the first write lands the conversation in in_progress.
func (s *Service) materialize(ctx context.Context, conv *Conversation, in EmployeeUpdate, updatedBy string) (*Conversation, error) {
	conv.ID = uuid.NewString()
	conv.Status = StatusInProgress
	if in.Status != nil {
		conv.Status = *in.Status
	}
	setText := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setText(&conv.EmployeeFields.SelfReview, in.SelfReview)
	setText(&conv.EmployeeFields.Achievements, in.Achievements)
	setText(&conv.EmployeeFields.Challenges, in.Challenges)
	setText(&conv.EmployeeFields.Strengths, in.Strengths)
	setText(&conv.EmployeeFields.GrowthAreas, in.GrowthAreas)
	setText(&conv.EmployeeFields.GoalsNextPeriod, in.GoalsNextPeriod)
	conv.UpdatedByEmail = &updatedBy

	created, err := s.repo.Create(ctx, conv)
	if errors.Is(err, ErrAlreadyExists) {
		// Lost the race to a concurrent first write; merge into the record
		// that won.
		return s.repo.Update(ctx, conv.CycleID, conv.EmployeeEmail, UpdateInput{
			SelfReview:      in.SelfReview,
			Achievements:    in.Achievements,
			Challenges:      in.Challenges,
			Strengths:       in.Strengths,
			GrowthAreas:     in.GrowthAreas,
			GoalsNextPeriod: in.GoalsNextPeriod,
			Status:          in.Status,
			UpdatedBy:       updatedBy,
		})
	}
	return created, err
}

func validateRatings(r *Ratings) error {
	if r == nil {
		return nil
	}
	for _, v := range []*int{r.Performance, r.Collaboration, r.Growth} {
		if v != nil && (*v < 1 || *v > 5) {
			return ErrRatingRange
		}
	}
	return nil
}

// GetForReport returns a direct report's conversation in the active cycle,
// for the report's designated manager or an admin.
func (s *Service) GetForReport(ctx context.Context, caller *user.User, employeeEmail string) (*Conversation, *user.User, error) {
	employee, err := s.users.GetByEmail(ctx, user.NormalizeEmail(employeeEmail))
	if err != nil {
		return nil, nil, err
	}
	active, err := s.activeCycle(ctx)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.existingOrVirtual(ctx, active.ID, employee)
	if err != nil {
		return nil, nil, err
	}
	if !s.guard.CanAccessConversation(caller, refOf(conv)) {
		return nil, nil, auth.ErrForbidden
	}
	return conv, employee, nil
}

// UpdateFeedback applies a manager write to a report's conversation in the
// active cycle. The only manager transition is ready_for_manager to
// completed; feedback, meeting date and ratings may be written without a
// status change while the conversation is open.
func (s *Service) UpdateFeedback(ctx context.Context, caller *user.User, employeeEmail string, in ManagerUpdate) (*Conversation, error) {
	employee, err := s.users.GetByEmail(ctx, user.NormalizeEmail(employeeEmail))
	if err != nil {
		return nil, err
	}
	active, err := s.activeCycle(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRatings(in.Ratings); err != nil {
		return nil, err
	}
	if in.Status != nil {
		switch *in.Status {
		case StatusCompleted:
		case StatusNotStarted, StatusInProgress, StatusReadyForManager:
			return nil, ErrInvalidTransition
		default:
			return nil, ErrInvalidStatus
		}
	}

	conv, err := s.existingOrVirtual(ctx, active.ID, employee)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanEditManagerFeedback(caller, refOf(conv), true) {
		if conv.Status == StatusCompleted {
			return nil, ErrInvalidTransition
		}
		return nil, auth.ErrForbidden
	}
	if in.Status != nil && conv.Status != StatusReadyForManager {
		return nil, ErrInvalidTransition
	}

	if conv.ID == "" {
		conv.ID = uuid.NewString()
		conv.Status = StatusInProgress
		if in.ManagerFeedback != nil {
			conv.ManagerFeedback = *in.ManagerFeedback
		}
		conv.MeetingDate = in.MeetingDate
		if in.Ratings != nil {
			conv.Ratings = *in.Ratings
		}
		updatedBy := caller.Email
		conv.UpdatedByEmail = &updatedBy
		created, err := s.repo.Create(ctx, conv)
		if !errors.Is(err, ErrAlreadyExists) {
			return created, err
		}
		// Fall through to merge into the record a concurrent write created.
	}

	update := UpdateInput{
		ManagerFeedback: in.ManagerFeedback,
		MeetingDate:     in.MeetingDate,
		Ratings:         in.Ratings,
		Status:          in.Status,
		UpdatedBy:       caller.Email,
	}
	return s.repo.Update(ctx, active.ID, employee.Email, update)
}

// Reports lists the caller's direct reports with the status of each
// report's conversation in the active cycle. With no active cycle every
// status is not_started.
func (s *Service) Reports(ctx context.Context, caller *user.User) ([]ReportSummary, error) {
	if err := s.guard.RequireManager(ctx, caller); err != nil {
		return nil, err
	}
	reports, err := s.users.ListReports(ctx, caller.Email)
	if err != nil {
		return nil, err
	}

	active, err := s.cycles.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving active cycle: %w", err)
	}

	summaries := make([]ReportSummary, 0, len(reports))
	for _, r := range reports {
		summary := ReportSummary{Employee: r, ConversationStatus: StatusNotStarted}
		if active != nil {
			conv, err := s.repo.GetByCycleAndEmployee(ctx, active.ID, r.Email)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			if err == nil {
				id := conv.ID
				summary.ConversationID = &id
				summary.ConversationStatus = conv.Status
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetByID returns a conversation from any cycle, including archived ones.
// Access requires being the employee, the manager recorded on the
// conversation, or an admin.
func (s *Service) GetByID(ctx context.Context, caller *user.User, id string) (*Conversation, error) {
	conv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanAccessConversation(caller, refOf(conv)) {
		return nil, auth.ErrForbidden
	}
	return conv, nil
}

// ListByCycle returns every conversation in a cycle, admin only.
func (s *Service) ListByCycle(ctx context.Context, caller *user.User, cycleID string) ([]*Conversation, error) {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if _, err := s.cycles.GetByID(ctx, cycleID); err != nil {
		return nil, err
	}
	return s.repo.ListByCycle(ctx, cycleID)
}
