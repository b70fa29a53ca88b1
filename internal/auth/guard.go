package auth

import (
	"context"

	"github.com/alecgard/entretien/internal/user"
)

// ReportsLookup answers whether anyone reports to a given email.
type ReportsLookup interface {
	HasReports(ctx context.Context, email string) (bool, error)
}

// ConversationRef carries the identity and lock state the guard needs to
// decide access to a conversation, without depending on the conversation
// package itself.
type ConversationRef struct {
	EmployeeEmail string
	ManagerEmail  *string // snapshot taken at conversation creation
	Completed     bool
}

// Guard resolves a caller's effective capabilities against a target
// resource. Authorization is resource-scoped: a manager role alone grants
// nothing; the guard checks the concrete reporting relationship.
type Guard struct {
	reports ReportsLookup
}

// NewGuard creates a Guard using the given reporting-line lookup.
func NewGuard(reports ReportsLookup) *Guard {
	return &Guard{reports: reports}
}

// RequireAdmin fails with ErrForbidden unless the caller holds the admin role.
func (g *Guard) RequireAdmin(caller *user.User) error {
	if caller.IsAdmin() {
		return nil
	}
	return ErrForbidden
}

// IsManager reports whether the caller has manager capability: the admin
// role, an explicit manager role, or a derived grant from being referenced
// as someone's manager. The derived grant is computed here at authorization
// time rather than stored, so it cannot drift from the reporting data.
func (g *Guard) IsManager(ctx context.Context, caller *user.User) (bool, error) {
	if caller.IsAdmin() || caller.HasRole(user.RoleManager) {
		return true, nil
	}
	return g.reports.HasReports(ctx, caller.Email)
}

// RequireManager fails with ErrForbidden unless the caller has manager
// capability. Admin is a superset of manager.
func (g *Guard) RequireManager(ctx context.Context, caller *user.User) error {
	ok, err := g.IsManager(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// CanAccessConversation reports whether the caller may read the
// conversation: the owning employee, the manager recorded on the
// conversation at creation time, or an admin. Matching the snapshot (rather
// than the employee's current manager) keeps archived history readable by
// the manager who actually held the reports.
func (g *Guard) CanAccessConversation(caller *user.User, ref ConversationRef) bool {
	if caller.IsAdmin() {
		return true
	}
	if caller.Email == ref.EmployeeEmail {
		return true
	}
	return ref.ManagerEmail != nil && caller.Email == *ref.ManagerEmail
}

// CanEditEmployeeFields reports whether the caller may write the employee's
// side of the conversation. Only the owning employee may, and only while the
// cycle is active and the conversation is not completed. Admins cannot write
// another person's self-assessment.
func (g *Guard) CanEditEmployeeFields(caller *user.User, ref ConversationRef, cycleActive bool) bool {
	if caller.Email != ref.EmployeeEmail {
		return false
	}
	return cycleActive && !ref.Completed
}

// CanEditManagerFeedback reports whether the caller may write the manager
// side: the designated manager or an admin, while the cycle is active and
// the conversation is not completed.
func (g *Guard) CanEditManagerFeedback(caller *user.User, ref ConversationRef, cycleActive bool) bool {
	if !cycleActive || ref.Completed {
		return false
	}
	if caller.IsAdmin() {
		return true
	}
	return ref.ManagerEmail != nil && caller.Email == *ref.ManagerEmail
}
