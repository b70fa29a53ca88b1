package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alecgard/entretien/internal/credential"
	"github.com/alecgard/entretien/internal/user"
)

// UserStore is the user surface the session manager needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	SetPassword(ctx context.Context, email, hash string, mustChange bool) error
}

// SessionStore is the session surface the session manager needs.
type SessionStore interface {
	Create(ctx context.Context, userEmail string, ttl time.Duration) (string, *Session, error)
	GetUser(ctx context.Context, token string) (*user.User, error)
	Delete(ctx context.Context, token string) error
	DeleteForUser(ctx context.Context, userEmail string) error
	DeleteForUserExcept(ctx context.Context, userEmail, token string) error
}

// Service manages credentials and sessions: login, validation, logout,
// password change and admin password reset.
type Service struct {
	users    UserStore
	sessions SessionStore
	ttl      time.Duration
}

// NewService creates a session manager with the given session TTL.
func NewService(users UserStore, sessions SessionStore, ttl time.Duration) *Service {
	return &Service{users: users, sessions: sessions, ttl: ttl}
}

// Login verifies credentials and issues a session. Every failure path
// returns ErrUnauthenticated, and an unknown email still pays for a bcrypt
// comparison, so the response does not reveal whether the account exists.
func (s *Service) Login(ctx context.Context, email, password string) (string, *user.User, error) {
	u, err := s.users.GetByEmail(ctx, user.NormalizeEmail(email))
	if errors.Is(err, user.ErrNotFound) {
		credential.BurnVerification(password)
		return "", nil, ErrUnauthenticated
	}
	if err != nil {
		return "", nil, fmt.Errorf("looking up user: %w", err)
	}

	if !credential.CheckPassword(password, u.PasswordHash) {
		return "", nil, ErrUnauthenticated
	}
	if !u.IsActive {
		return "", nil, ErrUnauthenticated
	}

	token, _, err := s.sessions.Create(ctx, u.Email, s.ttl)
	if err != nil {
		return "", nil, fmt.Errorf("creating session: %w", err)
	}
	return token, u, nil
}

// Validate resolves a bearer token to its user. It fails closed: any
// resolution problem surfaces as ErrUnauthenticated.
func (s *Service) Validate(ctx context.Context, token string) (*user.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	u, err := s.sessions.GetUser(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, ErrUnauthenticated
		}
		slog.Error("session lookup failed", "error", err)
		return nil, ErrUnauthenticated
	}
	if !u.IsActive {
		return nil, ErrUnauthenticated
	}
	return u, nil
}

// Logout revokes the session unconditionally. Idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Delete(ctx, token)
}

// ChangePassword is the self-service rotation path. The current password
// must verify; the caller's own session stays alive and every other session
// for the user is revoked.
func (s *Service) ChangePassword(ctx context.Context, caller *user.User, token, current, newPassword string) error {
	if !credential.CheckPassword(current, caller.PasswordHash) {
		return ErrUnauthenticated
	}
	if err := credential.ValidateNewPassword(newPassword); err != nil {
		return err
	}

	hash, err := credential.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, caller.Email, hash, false); err != nil {
		return fmt.Errorf("storing new password: %w", err)
	}
	if err := s.sessions.DeleteForUserExcept(ctx, caller.Email, token); err != nil {
		return fmt.Errorf("revoking other sessions: %w", err)
	}
	return nil
}

// ResetPassword is the admin-triggered path: it generates a fresh one-time
// password, flags the account for a forced change, and revokes every session
// the user holds. The plaintext is returned once for distribution.
func (s *Service) ResetPassword(ctx context.Context, email string) (string, error) {
	u, err := s.users.GetByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		return "", err
	}

	plaintext, err := credential.GeneratePassword()
	if err != nil {
		return "", err
	}
	hash, err := credential.HashPassword(plaintext)
	if err != nil {
		return "", err
	}

	if err := s.users.SetPassword(ctx, u.Email, hash, true); err != nil {
		return "", fmt.Errorf("storing reset password: %w", err)
	}
	if err := s.sessions.DeleteForUser(ctx, u.Email); err != nil {
		return "", fmt.Errorf("revoking sessions: %w", err)
	}
	return plaintext, nil
}

// ResetPasswords resets a batch of accounts, collecting per-row failures.
func (s *Service) ResetPasswords(ctx context.Context, emails []string) ([]user.GeneratedCredential, []user.ImportError) {
	creds := []user.GeneratedCredential{}
	failures := []user.ImportError{}
	for _, email := range emails {
		plaintext, err := s.ResetPassword(ctx, email)
		if err != nil {
			failures = append(failures, user.ImportError{
				Email: user.NormalizeEmail(email),
				Error: err.Error(),
			})
			continue
		}
		creds = append(creds, user.GeneratedCredential{
			Email:    user.NormalizeEmail(email),
			Password: plaintext,
		})
	}
	return creds, failures
}
