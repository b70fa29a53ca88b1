package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecgard/entretien/internal/credential"
)

// ErrEmailRequired is returned for an import record with no employee email.
var ErrEmailRequired = errors.New("employee_email is required")

// ImportRepo is the narrow store surface the import service needs.
type ImportRepo interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, in CreateUserInput) (*User, error)
	Update(ctx context.Context, email string, in UpdateUserInput) (*User, error)
}

// Importer applies bulk-import records to the user store. New accounts get a
// generated one-time password; existing accounts keep their credentials and
// only have profile fields refreshed.
type Importer struct {
	repo ImportRepo
}

// NewImporter creates an Importer over the given repo.
func NewImporter(repo ImportRepo) *Importer {
	return &Importer{repo: repo}
}

// Import upserts each record. Row failures are collected, not fatal: a bad
// row must not abort the rest of an org-chart upload.
func (im *Importer) Import(ctx context.Context, records []ImportRecord) (*ImportResult, error) {
	result := &ImportResult{
		Errors:      []ImportError{},
		Credentials: []GeneratedCredential{},
	}

	for _, rec := range records {
		email := NormalizeEmail(rec.EmployeeEmail)
		if email == "" {
			result.Errors = append(result.Errors, ImportError{
				Email: rec.EmployeeEmail,
				Error: ErrEmailRequired.Error(),
			})
			continue
		}

		roles := []string{RoleEmployee}
		if rec.IsAdmin {
			roles = append(roles, RoleAdmin)
		}

		existing, err := im.repo.GetByEmail(ctx, email)
		switch {
		case errors.Is(err, ErrNotFound):
			plaintext, err := credential.GeneratePassword()
			if err != nil {
				return nil, fmt.Errorf("generating password: %w", err)
			}
			hash, err := credential.HashPassword(plaintext)
			if err != nil {
				return nil, fmt.Errorf("hashing generated password: %w", err)
			}

			_, err = im.repo.Create(ctx, CreateUserInput{
				Email:              email,
				Name:               rec.EmployeeName,
				Department:         rec.Department,
				ManagerEmail:       rec.ManagerEmail,
				Roles:              roles,
				PasswordHash:       hash,
				MustChangePassword: true,
			})
			if err != nil {
				result.Errors = append(result.Errors, ImportError{Email: email, Error: err.Error()})
				continue
			}
			result.Created++
			result.Credentials = append(result.Credentials, GeneratedCredential{
				Email:    email,
				Password: plaintext,
			})

		case err != nil:
			result.Errors = append(result.Errors, ImportError{Email: email, Error: err.Error()})

		default:
			// The record is authoritative for admin; an explicit manager
			// grant survives because no import field can express it.
			if existing.HasRole(RoleManager) {
				roles = append(roles, RoleManager)
			}
			active := true
			_, err := im.repo.Update(ctx, email, UpdateUserInput{
				Name:         &rec.EmployeeName,
				Department:   &rec.Department,
				ManagerEmail: &rec.ManagerEmail,
				Roles:        &roles,
				IsActive:     &active,
			})
			if err != nil {
				result.Errors = append(result.Errors, ImportError{Email: email, Error: err.Error()})
				continue
			}
			result.Updated++
		}
	}

	return result, nil
}
