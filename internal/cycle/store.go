package cycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for review cycles.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new cycle store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const cycleColumns = `id, name, start_date, end_date, status, created_at, updated_at`

func scanCycle(row pgx.Row) (*Cycle, error) {
	c := &Cycle{}
	err := row.Scan(&c.ID, &c.Name, &c.StartDate, &c.EndDate, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a new cycle in draft status.
func (s *Store) Create(ctx context.Context, c *Cycle) (*Cycle, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO cycles (id, name, start_date, end_date, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING %s`, cycleColumns),
		c.ID, c.Name, c.StartDate, c.EndDate, StatusDraft)
	created, err := scanCycle(row)
	if err != nil {
		return nil, fmt.Errorf("creating cycle: %w", err)
	}
	return created, nil
}

// GetByID retrieves a cycle by its ID.
func (s *Store) GetByID(ctx context.Context, id string) (*Cycle, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM cycles WHERE id = $1`, cycleColumns), id)
	c, err := scanCycle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting cycle: %w", err)
	}
	return c, nil
}

// List returns all cycles, newest first.
func (s *Store) List(ctx context.Context) ([]*Cycle, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM cycles ORDER BY created_at DESC`, cycleColumns))
	if err != nil {
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	defer rows.Close()

	var cycles []*Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cycle row: %w", err)
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// GetActive returns the single active cycle, or nil if none is active.
func (s *Store) GetActive(ctx context.Context) (*Cycle, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM cycles WHERE status = $1`, cycleColumns), StatusActive)
	c, err := scanCycle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting active cycle: %w", err)
	}
	return c, nil
}

// Activate promotes a draft cycle and archives whatever cycle was previously
// active, as one transaction. A partial unique index on status = 'active'
// backs the single-active invariant at the schema level, so two concurrent
// activations cannot both commit; the loser reports ErrActivationConflict.
func (s *Store) Activate(ctx context.Context, id string) (*Cycle, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("beginning activation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM cycles WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking cycle: %w", err)
	}
	if status != StatusDraft {
		return nil, ErrInvalidTransition
	}

	if _, err := tx.Exec(ctx,
		`UPDATE cycles SET status = $1, updated_at = now() WHERE status = $2`,
		StatusArchived, StatusActive); err != nil {
		return nil, fmt.Errorf("archiving previous active cycle: %w", err)
	}

	row := tx.QueryRow(ctx,
		fmt.Sprintf(`UPDATE cycles SET status = $1, updated_at = now()
		 WHERE id = $2 RETURNING %s`, cycleColumns),
		StatusActive, id)
	c, err := scanCycle(row)
	if err != nil {
		return nil, classifyConflict(fmt.Errorf("activating cycle: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classifyConflict(fmt.Errorf("committing activation: %w", err))
	}
	return c, nil
}

// Archive marks an active cycle as archived. The compare in the WHERE clause
// makes the transition atomic: a cycle that already left active does not
// match.
func (s *Store) Archive(ctx context.Context, id string) (*Cycle, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE cycles SET status = $1, updated_at = now()
		 WHERE id = $2 AND status = $3 RETURNING %s`, cycleColumns),
		StatusArchived, id, StatusActive)
	c, err := scanCycle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Decide between absent and wrong state.
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("archiving cycle: %w", err)
	}
	return c, nil
}

// classifyConflict maps serialization failures and unique-index violations
// from concurrent activations to ErrActivationConflict.
func classifyConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return ErrActivationConflict
		}
	}
	return err
}
