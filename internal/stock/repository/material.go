package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/database"
	"github.com/harvestline/harvestline-backend/pkg/errors"
)

const materialColumns = `id, name, quantity, unit, reorder_level, created_at, updated_at`

// MaterialRepository handles material persistence. Quantities change only
// through ApplyDelta.
type MaterialRepository struct {
	db *database.DB
}

// NewMaterialRepository creates a new material repository
func NewMaterialRepository(db *database.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// Create inserts a catalogue entry. Quantity starts at zero regardless of
// what the caller set.
func (r *MaterialRepository) Create(ctx context.Context, m *domain.MaterialStock) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.Quantity = decimal.Zero

	query := `
		INSERT INTO materials (id, name, quantity, unit, reorder_level)
		VALUES ($1, $2, 0, $3, $4)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query, m.ID, m.Name, m.Unit, m.ReorderLevel).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return database.Classify(fmt.Errorf("create material: %w", err))
	}
	return nil
}

// GetByID gets a material by ID
func (r *MaterialRepository) GetByID(ctx context.Context, id string) (*domain.MaterialStock, error) {
	var m domain.MaterialStock
	query := `SELECT ` + materialColumns + ` FROM materials WHERE id = $1`
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("material")
		}
		return nil, database.Classify(fmt.Errorf("get material: %w", err))
	}
	return &m, nil
}

// List lists materials by name with pagination
func (r *MaterialRepository) List(ctx context.Context, page domain.Page) ([]*domain.MaterialStock, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM materials`); err != nil {
		return nil, 0, database.Classify(fmt.Errorf("count materials: %w", err))
	}

	query := `SELECT ` + materialColumns + ` FROM materials ORDER BY name, id LIMIT $1 OFFSET $2`

	materials := []*domain.MaterialStock{}
	if err := r.db.SelectContext(ctx, &materials, query, page.Limit, page.Offset); err != nil {
		return nil, 0, database.Classify(fmt.Errorf("list materials: %w", err))
	}
	return materials, total, nil
}

// ListAfter returns up to limit materials with ID greater than afterID, in
// ID order. Used for keyset iteration over the whole catalogue.
func (r *MaterialRepository) ListAfter(ctx context.Context, afterID string, limit int) ([]*domain.MaterialStock, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE id > $1 ORDER BY id LIMIT $2`

	materials := []*domain.MaterialStock{}
	if err := r.db.SelectContext(ctx, &materials, query, afterID, limit); err != nil {
		return nil, database.Classify(fmt.Errorf("list materials after %q: %w", afterID, err))
	}
	return materials, nil
}

// UpdateReorderLevel sets the reorder threshold and returns the material
func (r *MaterialRepository) UpdateReorderLevel(ctx context.Context, id string, level decimal.Decimal) (*domain.MaterialStock, error) {
	query := `
		UPDATE materials SET reorder_level = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + materialColumns

	var m domain.MaterialStock
	if err := r.db.GetContext(ctx, &m, query, id, level); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("material")
		}
		return nil, database.Classify(fmt.Errorf("update reorder level: %w", err))
	}
	return &m, nil
}

// ApplyDelta adds delta to the material's quantity in one conditional
// update. A negative delta only applies when enough stock is on hand;
// otherwise nothing changes and InsufficientStock is returned.
func (r *MaterialRepository) ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) (*domain.MaterialStock, error) {
	query := `
		UPDATE materials SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING ` + materialColumns

	var m domain.MaterialStock
	err := r.db.GetContext(ctx, &m, query, id, delta)
	if err == nil {
		return &m, nil
	}
	if err != sql.ErrNoRows {
		return nil, database.Classify(fmt.Errorf("apply delta to material %s: %w", id, err))
	}

	// nothing matched: unknown material or not enough stock
	var available decimal.Decimal
	err = r.db.GetContext(ctx, &available, `SELECT quantity FROM materials WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("material")
	}
	if err != nil {
		return nil, database.Classify(fmt.Errorf("read material %s: %w", id, err))
	}
	return nil, errors.InsufficientStock(id, available.String(), delta.Neg().String())
}
