package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/database"
	"github.com/harvestline/harvestline-backend/pkg/errors"
)

const batchColumns = `id, code, kind, expiry, notes, version, created_at, updated_at`

// BatchRepository handles arrival and production batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts the batch and its refs in one transaction. A collision on
// the issued code is reported as DuplicateIdentifier.
func (r *BatchRepository) Create(ctx context.Context, b *domain.StockBatch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO stock_batches (id, code, kind, expiry, notes)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING version, created_at, updated_at
		`
		if err := tx.QueryRowxContext(ctx, query, b.ID, b.Code, b.Kind, b.Expiry, b.Notes).
			Scan(&b.Version, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return err
		}
		return insertRefs(ctx, tx, b.ID, b.Refs)
	})
	if err != nil {
		if database.IsUniqueViolation(err, "stock_batches_code_key") {
			return errors.DuplicateIdentifier(b.Code, err)
		}
		return database.Classify(fmt.Errorf("create batch: %w", err))
	}
	return nil
}

// GetByID gets a batch with its refs
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.StockBatch, error) {
	var b domain.StockBatch
	query := `SELECT ` + batchColumns + ` FROM stock_batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, database.Classify(fmt.Errorf("get batch: %w", err))
	}

	refs := []domain.MaterialRef{}
	if err := r.db.SelectContext(ctx, &refs,
		`SELECT material_id, quantity, direction FROM stock_batch_refs WHERE batch_id = $1 ORDER BY line_no`, id); err != nil {
		return nil, database.Classify(fmt.Errorf("get batch refs: %w", err))
	}
	b.Refs = refs

	return &b, nil
}

// Update replaces the batch's refs, expiry and notes if the stored version
// still equals b.Version
func (r *BatchRepository) Update(ctx context.Context, b *domain.StockBatch) error {
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE stock_batches SET expiry = $2, notes = $3, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $4
			RETURNING version, updated_at
		`
		if err := tx.QueryRowxContext(ctx, query, b.ID, b.Expiry, b.Notes, b.Version).
			Scan(&b.Version, &b.UpdatedAt); err != nil {
			if err == sql.ErrNoRows {
				return staleOrMissing(ctx, tx, b.ID)
			}
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM stock_batch_refs WHERE batch_id = $1`, b.ID); err != nil {
			return err
		}
		return insertRefs(ctx, tx, b.ID, b.Refs)
	})
	if err != nil {
		return database.Classify(fmt.Errorf("update batch: %w", err))
	}
	return nil
}

// Delete removes a batch at the given version; its refs go with it
func (r *BatchRepository) Delete(ctx context.Context, id string, version int64) error {
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM stock_batches WHERE id = $1 AND version = $2`, id, version)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return staleOrMissing(ctx, tx, id)
		}
		return nil
	})
	if err != nil {
		return database.Classify(fmt.Errorf("delete batch: %w", err))
	}
	return nil
}

// staleOrMissing tells a version mismatch from a missing batch after a
// versioned write matched no row
func staleOrMissing(ctx context.Context, tx *sqlx.Tx, id string) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM stock_batches WHERE id = $1)`, id); err != nil {
		return err
	}
	if !exists {
		return errors.NotFound("batch")
	}
	return errors.Conflict("batch was changed by another request, reload and retry")
}

// List lists batches of a kind, newest first. An empty kind lists all.
func (r *BatchRepository) List(ctx context.Context, kind domain.BatchKind, page domain.Page) ([]*domain.StockBatch, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM stock_batches WHERE $1 = '' OR kind = $1`, string(kind)); err != nil {
		return nil, 0, database.Classify(fmt.Errorf("count batches: %w", err))
	}

	query := `SELECT ` + batchColumns + ` FROM stock_batches
		WHERE $1 = '' OR kind = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	batches := []*domain.StockBatch{}
	if err := r.db.SelectContext(ctx, &batches, query, string(kind), page.Limit, page.Offset); err != nil {
		return nil, 0, database.Classify(fmt.Errorf("list batches: %w", err))
	}
	return batches, total, nil
}

// ListExpiringAfter returns up to limit batches whose expiry is at or
// before cutoff and whose ID is greater than afterID, in ID order. Refs
// are not loaded.
func (r *BatchRepository) ListExpiringAfter(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]*domain.StockBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM stock_batches
		WHERE expiry IS NOT NULL AND expiry <= $1 AND id > $2
		ORDER BY id
		LIMIT $3`

	batches := []*domain.StockBatch{}
	if err := r.db.SelectContext(ctx, &batches, query, cutoff, afterID, limit); err != nil {
		return nil, database.Classify(fmt.Errorf("list expiring batches: %w", err))
	}
	return batches, nil
}

func insertRefs(ctx context.Context, tx *sqlx.Tx, batchID string, refs []domain.MaterialRef) error {
	query := `
		INSERT INTO stock_batch_refs (batch_id, line_no, material_id, quantity, direction)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i, ref := range refs {
		if _, err := tx.ExecContext(ctx, query, batchID, i+1, ref.MaterialID, ref.Quantity, ref.Direction); err != nil {
			return err
		}
	}
	return nil
}
