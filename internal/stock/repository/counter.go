package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/harvestline/harvestline-backend/pkg/database"
	"github.com/harvestline/harvestline-backend/pkg/errors"
)

// CounterRepository is the Postgres-backed counter store
type CounterRepository struct {
	db *database.DB
}

// NewCounterRepository creates a new counter repository
func NewCounterRepository(db *database.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Next increments the named counter and returns the new value. The upsert
// is a single statement, so concurrent callers serialize on the row and
// never observe the same value.
func (r *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.BadRequest("counter name is required")
	}

	query := `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`

	var value int64
	if err := r.db.QueryRowxContext(ctx, query, name).Scan(&value); err != nil {
		return 0, database.Classify(fmt.Errorf("increment counter %s: %w", name, err))
	}
	return value, nil
}

// Current returns the last issued value without incrementing; zero for a
// counter that was never used
func (r *CounterRepository) Current(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.BadRequest("counter name is required")
	}

	var value int64
	err := r.db.GetContext(ctx, &value, `SELECT value FROM counters WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, database.Classify(fmt.Errorf("read counter %s: %w", name, err))
	}
	return value, nil
}
