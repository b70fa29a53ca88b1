package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/entretien/internal/user"
)

// Session represents an active login session. Only the SHA-256 hash of the
// token is stored; the plaintext is returned once at creation.
type Session struct {
	TokenHash string    `json:"-"`
	UserEmail string    `json:"user_email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store provides database operations for sessions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new session store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create issues a new session for the given user. It returns the opaque
// plaintext token (to be sent to the client) and the stored session.
func (s *Store) Create(ctx context.Context, userEmail string, ttl time.Duration) (string, *Session, error) {
	b := make([]byte, 32) // 256 bits of entropy
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}
	plaintext := hex.EncodeToString(b)
	tokenHash := hashToken(plaintext)

	now := time.Now()
	expiresAt := now.Add(ttl)

	sess := &Session{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (token_hash, user_email, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING token_hash, user_email, created_at, expires_at`,
		tokenHash, user.NormalizeEmail(userEmail), now, expiresAt,
	).Scan(&sess.TokenHash, &sess.UserEmail, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("creating session: %w", err)
	}

	return plaintext, sess, nil
}

// GetUser looks up a session by its plaintext token and returns the
// associated user. Expired sessions are treated as absent.
func (s *Store) GetUser(ctx context.Context, plaintext string) (*user.User, error) {
	tokenHash := hashToken(plaintext)

	u := &user.User{}
	var rolesJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT u.email, u.name, u.department, u.manager_email, u.roles,
		        u.password_hash, u.must_change_password, u.is_active, u.created_at, u.updated_at
		 FROM sessions s JOIN users u ON s.user_email = u.email
		 WHERE s.token_hash = $1 AND s.expires_at > now()`,
		tokenHash,
	).Scan(&u.Email, &u.Name, &u.Department, &u.ManagerEmail, &rolesJSON,
		&u.PasswordHash, &u.MustChangePassword, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("getting session user: %w", err)
	}
	if err := unmarshalRoles(rolesJSON, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes a session by its plaintext token. Deleting an absent
// session is not an error.
func (s *Store) Delete(ctx context.Context, plaintext string) error {
	tokenHash := hashToken(plaintext)
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteForUser removes every session belonging to the given user.
func (s *Store) DeleteForUser(ctx context.Context, userEmail string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_email = $1`,
		user.NormalizeEmail(userEmail))
	if err != nil {
		return fmt.Errorf("deleting sessions for user: %w", err)
	}
	return nil
}

// DeleteForUserExcept removes every session for the user other than the one
// identified by the given plaintext token.
func (s *Store) DeleteForUserExcept(ctx context.Context, userEmail, plaintext string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE user_email = $1 AND token_hash <> $2`,
		user.NormalizeEmail(userEmail), hashToken(plaintext))
	if err != nil {
		return fmt.Errorf("deleting other sessions for user: %w", err)
	}
	return nil
}

// CleanExpired deletes all sessions that have expired.
func (s *Store) CleanExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("cleaning expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func hashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

func unmarshalRoles(rolesJSON []byte, u *user.User) error {
	if len(rolesJSON) > 0 {
		if err := json.Unmarshal(rolesJSON, &u.Roles); err != nil {
			return fmt.Errorf("unmarshaling roles: %w", err)
		}
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	return nil
}
