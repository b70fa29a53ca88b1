package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no user exists for the given email.
var ErrNotFound = errors.New("user not found")

// Store provides database operations for users.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new user store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `email, name, department, manager_email, roles,
	password_hash, must_change_password, is_active, created_at, updated_at`

// scanUser scans a user row, handling the JSONB roles column.
func scanUser(scan func(dest ...any) error) (*User, error) {
	u := &User{}
	var rolesJSON []byte
	err := scan(&u.Email, &u.Name, &u.Department, &u.ManagerEmail, &rolesJSON,
		&u.PasswordHash, &u.MustChangePassword, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(rolesJSON) > 0 {
		if err := json.Unmarshal(rolesJSON, &u.Roles); err != nil {
			return nil, fmt.Errorf("unmarshaling roles: %w", err)
		}
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	return u, nil
}

func marshalRoles(roles []string) ([]byte, error) {
	if len(roles) == 0 {
		roles = []string{RoleEmployee}
	}
	return json.Marshal(roles)
}

// Create inserts a new user. The password hash is supplied by the caller;
// this store never sees a plaintext password.
func (s *Store) Create(ctx context.Context, in CreateUserInput) (*User, error) {
	rolesJSON, err := marshalRoles(in.Roles)
	if err != nil {
		return nil, fmt.Errorf("marshaling roles: %w", err)
	}

	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			fmt.Sprintf(`INSERT INTO users
			 (email, name, department, manager_email, roles, password_hash, must_change_password)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING %s`, userColumns),
			NormalizeEmail(in.Email), in.Name, in.Department, normalizeManager(in.ManagerEmail),
			rolesJSON, in.PasswordHash, in.MustChangePassword,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by case-normalized email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns),
			NormalizeEmail(email),
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// List returns all users ordered by email.
func (s *Store) List(ctx context.Context) ([]*User, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM users ORDER BY email`, userColumns))
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update performs a partial update on the user with the given email.
func (s *Store) Update(ctx context.Context, email string, in UpdateUserInput) (*User, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	if in.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *in.Name)
		argIdx++
	}
	if in.Department != nil {
		setClauses = append(setClauses, fmt.Sprintf("department = $%d", argIdx))
		args = append(args, *in.Department)
		argIdx++
	}
	if in.ManagerEmail != nil {
		setClauses = append(setClauses, fmt.Sprintf("manager_email = $%d", argIdx))
		args = append(args, normalizeManager(*in.ManagerEmail))
		argIdx++
	}
	if in.Roles != nil {
		rolesJSON, err := marshalRoles(*in.Roles)
		if err != nil {
			return nil, fmt.Errorf("marshaling roles: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("roles = $%d", argIdx))
		args = append(args, rolesJSON)
		argIdx++
	}
	if in.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *in.IsActive)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.GetByEmail(ctx, email)
	}
	setClauses = append(setClauses, "updated_at = now()")

	args = append(args, NormalizeEmail(email))
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE email = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, userColumns,
	)

	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx, query, args...).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return u, nil
}

// SetPassword replaces the stored hash and the must-change flag.
func (s *Store) SetPassword(ctx context.Context, email, hash string, mustChange bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, must_change_password = $2, updated_at = now()
		 WHERE email = $3`,
		hash, mustChange, NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("setting password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user. Sessions and conversations cascade at the schema
// level.
func (s *Store) Delete(ctx context.Context, email string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE email = $1`, NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReports returns the users whose manager_email is the given email.
func (s *Store) ListReports(ctx context.Context, managerEmail string) ([]*User, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM users WHERE manager_email = $1 ORDER BY email`, userColumns),
		NormalizeEmail(managerEmail))
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// HasReports reports whether anyone lists the given email as their manager.
func (s *Store) HasReports(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE manager_email = $1)`,
		NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking reports: %w", err)
	}
	return exists, nil
}

func normalizeManager(email *string) *string {
	if email == nil {
		return nil
	}
	norm := NormalizeEmail(*email)
	if norm == "" {
		return nil
	}
	return &norm
}
