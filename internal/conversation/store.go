package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/entretien/internal/user"
)

// Store provides database operations for conversations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new conversation store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const conversationColumns = `id, cycle_id, employee_email, manager_email,
	self_review, achievements, challenges, strengths, growth_areas, goals_next_period,
	manager_feedback, meeting_date, ratings, status, updated_by_email, created_at, updated_at`

// scanConversation scans a conversation row, handling the JSONB ratings
// column.
func scanConversation(scan func(dest ...any) error) (*Conversation, error) {
	c := &Conversation{}
	var ratingsJSON []byte
	err := scan(&c.ID, &c.CycleID, &c.EmployeeEmail, &c.ManagerEmail,
		&c.EmployeeFields.SelfReview, &c.EmployeeFields.Achievements,
		&c.EmployeeFields.Challenges, &c.EmployeeFields.Strengths,
		&c.EmployeeFields.GrowthAreas, &c.EmployeeFields.GoalsNextPeriod,
		&c.ManagerFeedback, &c.MeetingDate, &ratingsJSON, &c.Status,
		&c.UpdatedByEmail, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(ratingsJSON) > 0 {
		if err := json.Unmarshal(ratingsJSON, &c.Ratings); err != nil {
			return nil, fmt.Errorf("unmarshaling ratings: %w", err)
		}
	}
	return c, nil
}

// Create inserts a new conversation. The UNIQUE(cycle_id, employee_email)
// constraint ensures at most one record per employee per cycle.
func (s *Store) Create(ctx context.Context, c *Conversation) (*Conversation, error) {
	ratingsJSON, err := json.Marshal(c.Ratings)
	if err != nil {
		return nil, fmt.Errorf("marshaling ratings: %w", err)
	}

	out, err := scanConversation(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			fmt.Sprintf(`INSERT INTO conversations
			 (id, cycle_id, employee_email, manager_email,
			  self_review, achievements, challenges, strengths, growth_areas, goals_next_period,
			  manager_feedback, meeting_date, ratings, status, updated_by_email)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			 RETURNING %s`, conversationColumns),
			c.ID, c.CycleID, user.NormalizeEmail(c.EmployeeEmail), c.ManagerEmail,
			c.EmployeeFields.SelfReview, c.EmployeeFields.Achievements,
			c.EmployeeFields.Challenges, c.EmployeeFields.Strengths,
			c.EmployeeFields.GrowthAreas, c.EmployeeFields.GoalsNextPeriod,
			c.ManagerFeedback, c.MeetingDate, ratingsJSON, c.Status, c.UpdatedByEmail,
		).Scan(dest...)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return out, nil
}

// GetByID retrieves a conversation regardless of its cycle's status.
func (s *Store) GetByID(ctx context.Context, id string) (*Conversation, error) {
	c, err := scanConversation(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			fmt.Sprintf(`SELECT %s FROM conversations WHERE id = $1`, conversationColumns),
			id,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return c, nil
}

// GetByCycleAndEmployee retrieves the employee's conversation in the given
// cycle.
func (s *Store) GetByCycleAndEmployee(ctx context.Context, cycleID, employeeEmail string) (*Conversation, error) {
	c, err := scanConversation(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			fmt.Sprintf(`SELECT %s FROM conversations
			 WHERE cycle_id = $1 AND employee_email = $2`, conversationColumns),
			cycleID, user.NormalizeEmail(employeeEmail),
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return c, nil
}

// ListByCycle returns all conversations in a cycle, ordered by employee.
func (s *Store) ListByCycle(ctx context.Context, cycleID string) ([]*Conversation, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM conversations WHERE cycle_id = $1 ORDER BY employee_email`,
			conversationColumns),
		cycleID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// Update performs a field-level partial update on the employee's
// conversation in the given cycle. Only non-nil fields are written, so
// employee and manager edits merge instead of clobbering each other.
func (s *Store) Update(ctx context.Context, cycleID, employeeEmail string, in UpdateInput) (*Conversation, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	textField := func(column string, value *string) {
		if value == nil {
			return
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, *value)
		argIdx++
	}
	textField("self_review", in.SelfReview)
	textField("achievements", in.Achievements)
	textField("challenges", in.Challenges)
	textField("strengths", in.Strengths)
	textField("growth_areas", in.GrowthAreas)
	textField("goals_next_period", in.GoalsNextPeriod)
	textField("manager_feedback", in.ManagerFeedback)
	if in.MeetingDate != nil {
		setClauses = append(setClauses, fmt.Sprintf("meeting_date = $%d", argIdx))
		args = append(args, *in.MeetingDate)
		argIdx++
	}
	if in.Ratings != nil {
		ratingsJSON, err := json.Marshal(in.Ratings)
		if err != nil {
			return nil, fmt.Errorf("marshaling ratings: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("ratings = $%d", argIdx))
		args = append(args, ratingsJSON)
		argIdx++
	}
	textField("status", in.Status)

	if len(setClauses) == 0 {
		return s.GetByCycleAndEmployee(ctx, cycleID, employeeEmail)
	}
	setClauses = append(setClauses, fmt.Sprintf("updated_by_email = $%d", argIdx))
	args = append(args, user.NormalizeEmail(in.UpdatedBy))
	argIdx++
	setClauses = append(setClauses, "updated_at = now()")

	args = append(args, cycleID, user.NormalizeEmail(employeeEmail))
	query := fmt.Sprintf(
		`UPDATE conversations SET %s WHERE cycle_id = $%d AND employee_email = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, argIdx+1, conversationColumns,
	)

	c, err := scanConversation(func(dest ...any) error {
		return s.pool.QueryRow(ctx, query, args...).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	return c, nil
}
