package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alecgard/entretien/internal/auth"
	"github.com/alecgard/entretien/internal/cycle"
	"github.com/alecgard/entretien/internal/user"
)

type memRepo struct {
	byID  map[string]*Conversation
	byKey map[string]*Conversation // cycleID|employeeEmail
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*Conversation{}, byKey: map[string]*Conversation{}}
}

func key(cycleID, email string) string { return cycleID + "|" + email }

func (r *memRepo) Create(ctx context.Context, c *Conversation) (*Conversation, error) {
	if _, ok := r.byKey[key(c.CycleID, c.EmployeeEmail)]; ok {
		return nil, fmt.Errorf("duplicate conversation")
	}
	cp := *c
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.byID[cp.ID] = &cp
	r.byKey[key(cp.CycleID, cp.EmployeeEmail)] = &cp
	out := cp
	return &out, nil
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*Conversation, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *memRepo) GetByCycleAndEmployee(ctx context.Context, cycleID, email string) (*Conversation, error) {
	c, ok := r.byKey[key(cycleID, user.NormalizeEmail(email))]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *memRepo) ListByCycle(ctx context.Context, cycleID string) ([]*Conversation, error) {
	var out []*Conversation
	for _, c := range r.byKey {
		if c.CycleID == cycleID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) Update(ctx context.Context, cycleID, email string, in UpdateInput) (*Conversation, error) {
	c, ok := r.byKey[key(cycleID, user.NormalizeEmail(email))]
	if !ok {
		return nil, ErrNotFound
	}
	setText := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setText(&c.EmployeeFields.SelfReview, in.SelfReview)
	setText(&c.EmployeeFields.Achievements, in.Achievements)
	setText(&c.EmployeeFields.Challenges, in.Challenges)
	setText(&c.EmployeeFields.Strengths, in.Strengths)
	setText(&c.EmployeeFields.GrowthAreas, in.GrowthAreas)
	setText(&c.EmployeeFields.GoalsNextPeriod, in.GoalsNextPeriod)
	setText(&c.ManagerFeedback, in.ManagerFeedback)
	if in.MeetingDate != nil {
		c.MeetingDate = in.MeetingDate
	}
	if in.Ratings != nil {
		c.Ratings = *in.Ratings
	}
	setText(&c.Status, in.Status)
	updatedBy := user.NormalizeEmail(in.UpdatedBy)
	c.UpdatedByEmail = &updatedBy
	c.UpdatedAt = time.Now()
	out := *c
	return &out, nil
}

type fakeCycles struct {
	active *cycle.Cycle
	byID   map[string]*cycle.Cycle
}

func (f *fakeCycles) GetActive(ctx context.Context) (*cycle.Cycle, error) { return f.active, nil }

func (f *fakeCycles) GetByID(ctx context.Context, id string) (*cycle.Cycle, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, cycle.ErrNotFound
	}
	return c, nil
}

type fakeDirectory struct {
	users   map[string]*user.User
	reports map[string][]*user.User
}

func (f *fakeDirectory) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeDirectory) ListReports(ctx context.Context, managerEmail string) ([]*user.User, error) {
	return f.reports[managerEmail], nil
}

func (f *fakeDirectory) HasReports(ctx context.Context, email string) (bool, error) {
	return len(f.reports[email]) > 0, nil
}

type fixture struct {
	svc    *Service
	repo   *memRepo
	cycles *fakeCycles
	dir    *fakeDirectory

	alice *user.User // employee reporting to bob
	bob   *user.User // manager by reporting line only
	carol *user.User // admin
	dave  *user.User // unrelated employee
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bobEmail := "bob@example.com"
	f := &fixture{
		alice: &user.User{Email: "alice@example.com", Name: "Alice", ManagerEmail: &bobEmail, Roles: []string{user.RoleEmployee}, IsActive: true},
		bob:   &user.User{Email: "bob@example.com", Name: "Bob", Roles: []string{user.RoleEmployee}, IsActive: true},
		carol: &user.User{Email: "carol@example.com", Name: "Carol", Roles: []string{user.RoleAdmin}, IsActive: true},
		dave:  &user.User{Email: "dave@example.com", Name: "Dave", Roles: []string{user.RoleEmployee}, IsActive: true},
	}
	f.repo = newMemRepo()
	active := &cycle.Cycle{ID: "cyc-q2", Name: "Q2 2026", Status: cycle.StatusActive}
	f.cycles = &fakeCycles{active: active, byID: map[string]*cycle.Cycle{active.ID: active}}
	f.dir = &fakeDirectory{
		users: map[string]*user.User{
			f.alice.Email: f.alice,
			f.bob.Email:   f.bob,
			f.carol.Email: f.carol,
			f.dave.Email:  f.dave,
		},
		reports: map[string][]*user.User{f.bob.Email: {f.alice}},
	}
	f.svc = NewService(f.repo, f.cycles, f.dir, auth.NewGuard(f.dir))
	return f
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestGetMine_VirtualBeforeFirstWrite(t *testing.T) {
	f := newFixture(t)

	conv, err := f.svc.GetMine(context.Background(), f.alice)
	if err != nil {
		t.Fatalf("GetMine() error = %v", err)
	}
	if conv.ID != "" {
		t.Errorf("virtual conversation has ID %q, want none", conv.ID)
	}
	if conv.Status != StatusNotStarted {
		t.Errorf("status = %q, want %q", conv.Status, StatusNotStarted)
	}
	if conv.ManagerEmail == nil || *conv.ManagerEmail != f.bob.Email {
		t.Errorf("manager snapshot = %v, want %q", conv.ManagerEmail, f.bob.Email)
	}
	if len(f.repo.byID) != 0 {
		t.Errorf("read materialized %d records, want 0", len(f.repo.byID))
	}
}

func TestUpdateMine_MaterializesOnFirstWrite(t *testing.T) {
	f := newFixture(t)

	conv, err := f.svc.UpdateMine(context.Background(), f.alice, EmployeeUpdate{
		SelfReview:   strPtr("<p>shipped the importer</p>"),
		Achievements: strPtr("importer, onboarding"),
	})
	if err != nil {
		t.Fatalf("UpdateMine() error = %v", err)
	}
	if conv.ID == "" {
		t.Fatal("first write did not materialize a record")
	}
	if conv.Status != StatusInProgress {
		t.Errorf("status = %q, want %q", conv.Status, StatusInProgress)
	}
	if conv.EmployeeFields.SelfReview != "<p>shipped the importer</p>" {
		t.Errorf("self_review = %q", conv.EmployeeFields.SelfReview)
	}
	if conv.ManagerEmail == nil || *conv.ManagerEmail != f.bob.Email {
		t.Errorf("manager snapshot = %v, want %q", conv.ManagerEmail, f.bob.Email)
	}
	if conv.UpdatedByEmail == nil || *conv.UpdatedByEmail != f.alice.Email {
		t.Errorf("updated_by = %v, want %q", conv.UpdatedByEmail, f.alice.Email)
	}

	// Second write updates rather than duplicating.
	again, err := f.svc.UpdateMine(context.Background(), f.alice, EmployeeUpdate{
		Challenges: strPtr("scope creep"),
	})
	if err != nil {
		t.Fatalf("second UpdateMine() error = %v", err)
	}
	if again.ID != conv.ID {
		t.Errorf("second write created a new record: %q != %q", again.ID, conv.ID)
	}
	if again.EmployeeFields.SelfReview != conv.EmployeeFields.SelfReview {
		t.Error("partial update clobbered self_review")
	}
}

func TestUpdateMine_StatusRules(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		wantErr error
	}{
		{"to in_progress", StatusInProgress, nil},
		{"to ready_for_manager", StatusReadyForManager, nil},
		{"employee cannot complete", StatusCompleted, ErrInvalidTransition},
		{"cannot return to not_started", StatusNotStarted, ErrInvalidTransition},
		{"unknown status", "paused", ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.UpdateMine(context.Background(), f.alice, EmployeeUpdate{Status: &tt.status})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateMine(status=%q) error = %v, want %v", tt.status, err, tt.wantErr)
			}
		})
	}
}

func TestUpdateMine_NoActiveCycle(t *testing.T) {
	f := newFixture(t)
	f.cycles.active = nil

	_, err := f.svc.UpdateMine(context.Background(), f.alice, EmployeeUpdate{SelfReview: strPtr("x")})
	if !errors.Is(err, ErrNoActiveCycle) {
		t.Errorf("UpdateMine() error = %v, want ErrNoActiveCycle", err)
	}
	if _, err := f.svc.GetMine(context.Background(), f.alice); !errors.Is(err, ErrNoActiveCycle) {
		t.Errorf("GetMine() error = %v, want ErrNoActiveCycle", err)
	}
}

// Full workflow: employee submits, manager reviews without clobbering the
// employee's fields, completes, and the record becomes immutable.
func TestWorkflow_SubmitReviewComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateMine(ctx, f.alice, EmployeeUpdate{
		SelfReview: strPtr("a strong half"),
		Status:     strPtr(StatusReadyForManager),
	})
	if err != nil {
		t.Fatalf("employee submit error = %v", err)
	}

	meeting := time.Date(2026, 7, 3, 14, 0, 0, 0, time.UTC)
	conv, err := f.svc.UpdateFeedback(ctx, f.bob, f.alice.Email, ManagerUpdate{
		ManagerFeedback: strPtr("agreed, promote the importer work"),
		MeetingDate:     &meeting,
		Ratings:         &Ratings{Performance: intPtr(4), Collaboration: intPtr(5), Growth: intPtr(3)},
	})
	if err != nil {
		t.Fatalf("manager feedback error = %v", err)
	}
	if conv.Status != StatusReadyForManager {
		t.Errorf("feedback-only write changed status to %q", conv.Status)
	}
	if conv.EmployeeFields.SelfReview != "a strong half" {
		t.Error("manager write clobbered employee fields")
	}

	conv, err = f.svc.UpdateFeedback(ctx, f.bob, f.alice.Email, ManagerUpdate{
		Status: strPtr(StatusCompleted),
	})
	if err != nil {
		t.Fatalf("complete error = %v", err)
	}
	if conv.Status != StatusCompleted {
		t.Fatalf("status = %q, want %q", conv.Status, StatusCompleted)
	}

	// Completed is terminal on both sides.
	_, err = f.svc.UpdateMine(ctx, f.alice, EmployeeUpdate{SelfReview: strPtr("one more thing")})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("employee write after completion error = %v, want ErrInvalidTransition", err)
	}
	_, err = f.svc.UpdateFeedback(ctx, f.bob, f.alice.Email, ManagerUpdate{ManagerFeedback: strPtr("more")})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("manager write after completion error = %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateFeedback_CompleteRequiresReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateMine(ctx, f.alice, EmployeeUpdate{SelfReview: strPtr("draft")}); err != nil {
		t.Fatalf("seed write error = %v", err)
	}

	_, err := f.svc.UpdateFeedback(ctx, f.bob, f.alice.Email, ManagerUpdate{Status: strPtr(StatusCompleted)})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("completing from in_progress error = %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateFeedback_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateMine(ctx, f.alice, EmployeeUpdate{SelfReview: strPtr("draft")}); err != nil {
		t.Fatalf("seed write error = %v", err)
	}

	// A user outside the reporting line cannot touch the manager side.
	_, err := f.svc.UpdateFeedback(ctx, f.dave, f.alice.Email, ManagerUpdate{ManagerFeedback: strPtr("sneaky")})
	if !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("outsider feedback error = %v, want ErrForbidden", err)
	}

	// Admins may write the manager side.
	if _, err := f.svc.UpdateFeedback(ctx, f.carol, f.alice.Email, ManagerUpdate{ManagerFeedback: strPtr("covering for bob")}); err != nil {
		t.Errorf("admin feedback error = %v", err)
	}

	// Nobody but the employee writes the employee side, admins included.
	_, err = f.svc.UpdateMine(ctx, f.carol, EmployeeUpdate{SelfReview: strPtr("carol's own")})
	if err != nil {
		t.Fatalf("admin own conversation error = %v", err)
	}
}

func TestUpdateFeedback_RatingsRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, bad := range []int{0, 6, -1} {
		_, err := f.svc.UpdateFeedback(ctx, f.bob, f.alice.Email, ManagerUpdate{
			Ratings: &Ratings{Performance: intPtr(bad)},
		})
		if !errors.Is(err, ErrRatingRange) {
			t.Errorf("rating %d error = %v, want ErrRatingRange", bad, err)
		}
	}
}

func TestUpdateFeedback_UnknownEmployee(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateFeedback(context.Background(), f.bob, "ghost@example.com", ManagerUpdate{})
	if !errors.Is(err, user.ErrNotFound) {
		t.Errorf("error = %v, want user.ErrNotFound", err)
	}
}

func TestGetForReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, employee, err := f.svc.GetForReport(ctx, f.bob, f.alice.Email)
	if err != nil {
		t.Fatalf("GetForReport() error = %v", err)
	}
	if employee.Email != f.alice.Email {
		t.Errorf("employee = %q", employee.Email)
	}
	if conv.Status != StatusNotStarted {
		t.Errorf("status = %q, want %q", conv.Status, StatusNotStarted)
	}

	if _, _, err := f.svc.GetForReport(ctx, f.dave, f.alice.Email); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("outsider GetForReport error = %v, want ErrForbidden", err)
	}
}

func TestReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Before any write, the report shows a virtual not_started status.
	summaries, err := f.svc.Reports(ctx, f.bob)
	if err != nil {
		t.Fatalf("Reports() error = %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	if summaries[0].ConversationStatus != StatusNotStarted || summaries[0].ConversationID != nil {
		t.Errorf("summary = %+v, want virtual not_started", summaries[0])
	}

	if _, err := f.svc.UpdateMine(ctx, f.alice, EmployeeUpdate{Status: strPtr(StatusReadyForManager)}); err != nil {
		t.Fatalf("seed write error = %v", err)
	}
	summaries, err = f.svc.Reports(ctx, f.bob)
	if err != nil {
		t.Fatalf("Reports() error = %v", err)
	}
	if summaries[0].ConversationStatus != StatusReadyForManager || summaries[0].ConversationID == nil {
		t.Errorf("summary = %+v, want materialized ready_for_manager", summaries[0])
	}

	// Someone with no reports and no manager role gets ErrForbidden.
	if _, err := f.svc.Reports(ctx, f.dave); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("Reports() by non-manager error = %v, want ErrForbidden", err)
	}
}

// Archived history stays readable by the employee, the snapshot manager and
// admins even after the reporting line changes.
func TestGetByID_ArchivedHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.UpdateMine(ctx, f.alice, EmployeeUpdate{SelfReview: strPtr("q2 notes")})
	if err != nil {
		t.Fatalf("seed write error = %v", err)
	}

	// Cycle ends; alice moves to a new manager.
	f.cycles.active = nil
	newManager := f.dave.Email
	f.alice.ManagerEmail = &newManager

	for _, caller := range []*user.User{f.alice, f.bob, f.carol} {
		if _, err := f.svc.GetByID(ctx, caller, conv.ID); err != nil {
			t.Errorf("GetByID() by %s error = %v", caller.Email, err)
		}
	}

	// dave manages alice now but never managed this conversation.
	if _, err := f.svc.GetByID(ctx, f.dave, conv.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("GetByID() by new manager error = %v, want ErrForbidden", err)
	}

	if _, err := f.svc.GetByID(ctx, f.alice, "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestListByCycle_AdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateMine(ctx, f.alice, EmployeeUpdate{SelfReview: strPtr("x")}); err != nil {
		t.Fatalf("seed write error = %v", err)
	}

	convs, err := f.svc.ListByCycle(ctx, f.carol, "cyc-q2")
	if err != nil {
		t.Fatalf("ListByCycle() error = %v", err)
	}
	if len(convs) != 1 {
		t.Errorf("got %d conversations, want 1", len(convs))
	}

	if _, err := f.svc.ListByCycle(ctx, f.bob, "cyc-q2"); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("ListByCycle() by manager error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.ListByCycle(ctx, f.carol, "nope"); !errors.Is(err, cycle.ErrNotFound) {
		t.Errorf("ListByCycle(unknown cycle) error = %v, want cycle.ErrNotFound", err)
	}
}
