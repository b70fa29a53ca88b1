package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/alecgard/entretien/internal/user"
)

type fakeReports struct {
	managers map[string]bool
}

func (f *fakeReports) HasReports(_ context.Context, email string) (bool, error) {
	return f.managers[email], nil
}

func strPtr(s string) *string { return &s }

func testUsers() (employee, manager, admin, outsider *user.User) {
	employee = &user.User{Email: "a@x.com", Roles: []string{user.RoleEmployee}}
	manager = &user.User{Email: "b@x.com", Roles: []string{user.RoleEmployee}}
	admin = &user.User{Email: "root@x.com", Roles: []string{user.RoleEmployee, user.RoleAdmin}}
	outsider = &user.User{Email: "c@x.com", Roles: []string{user.RoleEmployee}}
	return
}

func TestRequireAdmin(t *testing.T) {
	g := NewGuard(&fakeReports{managers: map[string]bool{}})
	_, _, admin, outsider := testUsers()

	if err := g.RequireAdmin(admin); err != nil {
		t.Errorf("admin should pass, got %v", err)
	}
	if err := g.RequireAdmin(outsider); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-admin should get ErrForbidden, got %v", err)
	}
}

func TestRequireManager(t *testing.T) {
	g := NewGuard(&fakeReports{managers: map[string]bool{"b@x.com": true}})
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  *user.User
		wantErr error
	}{
		{
			name:   "derived manager via reporting line",
			caller: &user.User{Email: "b@x.com", Roles: []string{user.RoleEmployee}},
		},
		{
			name:   "explicit manager role without reports",
			caller: &user.User{Email: "x@x.com", Roles: []string{user.RoleEmployee, user.RoleManager}},
		},
		{
			name:   "admin is a superset of manager",
			caller: &user.User{Email: "root@x.com", Roles: []string{user.RoleAdmin}},
		},
		{
			name:    "plain employee",
			caller:  &user.User{Email: "c@x.com", Roles: []string{user.RoleEmployee}},
			wantErr: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.RequireManager(ctx, tt.caller)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RequireManager() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanAccessConversation(t *testing.T) {
	g := NewGuard(&fakeReports{managers: map[string]bool{}})
	employee, manager, admin, outsider := testUsers()

	ref := ConversationRef{
		EmployeeEmail: employee.Email,
		ManagerEmail:  strPtr(manager.Email),
	}

	if !g.CanAccessConversation(employee, ref) {
		t.Error("owning employee should have access")
	}
	if !g.CanAccessConversation(manager, ref) {
		t.Error("designated manager should have access")
	}
	if !g.CanAccessConversation(admin, ref) {
		t.Error("admin should have access")
	}
	if g.CanAccessConversation(outsider, ref) {
		t.Error("unrelated user should not have access")
	}
}

func TestCanAccessConversation_SnapshotManager(t *testing.T) {
	// The manager recorded on the conversation keeps read access even if
	// the employee has since moved to a different manager.
	g := NewGuard(&fakeReports{managers: map[string]bool{}})
	formerManager := &user.User{Email: "old@x.com", Roles: []string{user.RoleEmployee}}

	ref := ConversationRef{
		EmployeeEmail: "a@x.com",
		ManagerEmail:  strPtr("old@x.com"),
	}
	if !g.CanAccessConversation(formerManager, ref) {
		t.Error("snapshot manager should retain read access to history")
	}
}

func TestCanEditEmployeeFields(t *testing.T) {
	g := NewGuard(&fakeReports{managers: map[string]bool{}})
	employee, manager, admin, _ := testUsers()

	ref := ConversationRef{EmployeeEmail: employee.Email, ManagerEmail: strPtr(manager.Email)}

	tests := []struct {
		name        string
		caller      *user.User
		ref         ConversationRef
		cycleActive bool
		want        bool
	}{
		{"owner, active cycle", employee, ref, true, true},
		{"owner, inactive cycle", employee, ref, false, false},
		{"owner, completed conversation", employee, ConversationRef{EmployeeEmail: employee.Email, Completed: true}, true, false},
		{"manager cannot write employee fields", manager, ref, true, false},
		{"admin cannot write employee fields", admin, ref, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.CanEditEmployeeFields(tt.caller, tt.ref, tt.cycleActive); got != tt.want {
				t.Errorf("CanEditEmployeeFields() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanEditManagerFeedback(t *testing.T) {
	g := NewGuard(&fakeReports{managers: map[string]bool{}})
	employee, manager, admin, outsider := testUsers()

	ref := ConversationRef{EmployeeEmail: employee.Email, ManagerEmail: strPtr(manager.Email)}
	completed := ConversationRef{EmployeeEmail: employee.Email, ManagerEmail: strPtr(manager.Email), Completed: true}

	tests := []struct {
		name        string
		caller      *user.User
		ref         ConversationRef
		cycleActive bool
		want        bool
	}{
		{"designated manager, active cycle", manager, ref, true, true},
		{"admin, active cycle", admin, ref, true, true},
		{"owner cannot write feedback", employee, ref, true, false},
		{"unrelated manager", outsider, ref, true, false},
		{"inactive cycle", manager, ref, false, false},
		{"completed conversation", manager, completed, true, false},
		{"admin still locked out of completed", admin, completed, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.CanEditManagerFeedback(tt.caller, tt.ref, tt.cycleActive); got != tt.want {
				t.Errorf("CanEditManagerFeedback() = %v, want %v", got, tt.want)
			}
		})
	}
}
