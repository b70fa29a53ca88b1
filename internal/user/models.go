package user

import (
	"strings"
	"time"
)

// Role values stored on a user account. Manager capability can also be
// derived from reporting lines without an explicit grant; see the auth guard.
const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)

// User represents a person in the review system.
type User struct {
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	Department         string    `json:"department"`
	ManagerEmail       *string   `json:"manager_email"`
	Roles              []string  `json:"roles"`
	PasswordHash       string    `json:"-"`
	MustChangePassword bool      `json:"must_change_password"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasRole reports whether the user carries the given stored role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// NormalizeEmail case-folds and trims an email address. Every store lookup
// and every stored reference goes through this, so comparisons are exact.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUserInput holds the fields required to create a new user.
type CreateUserInput struct {
	Email              string
	Name               string
	Department         string
	ManagerEmail       *string
	Roles              []string
	PasswordHash       string
	MustChangePassword bool
}

// UpdateUserInput holds optional fields for a partial user update.
// Only non-nil fields are applied.
type UpdateUserInput struct {
	Name         *string
	Department   *string
	ManagerEmail **string
	Roles        *[]string
	IsActive     *bool
}

// ImportRecord is one already-parsed row from the bulk-import layer.
type ImportRecord struct {
	EmployeeEmail string  `json:"employee_email"`
	EmployeeName  string  `json:"employee_name"`
	ManagerEmail  *string `json:"manager_email"`
	Department    string  `json:"department"`
	IsAdmin       bool    `json:"is_admin"`
}

// GeneratedCredential pairs an email with its one-time generated password.
// The plaintext exists only in the import/reset response; never persisted.
type GeneratedCredential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ImportError records a single failed row without aborting the batch.
type ImportError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Created     int                   `json:"created"`
	Updated     int                   `json:"updated"`
	Errors      []ImportError         `json:"errors"`
	Credentials []GeneratedCredential `json:"generated_credentials"`
}
