package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/database"
	"github.com/harvestline/harvestline-backend/pkg/errors"
)

// MovementRepository stores the audit trail of manual corrections
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Create records a movement
func (r *MovementRepository) Create(ctx context.Context, m *domain.StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_movements (id, code, material_id, delta, reason, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query, m.ID, m.Code, m.MaterialID, m.Delta, m.Reason, m.CreatedBy).
		Scan(&m.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "stock_movements_code_key") {
			return errors.DuplicateIdentifier(m.Code, err)
		}
		return database.Classify(fmt.Errorf("create stock movement: %w", err))
	}
	return nil
}

// ListByMaterial lists a material's movements, newest first
func (r *MovementRepository) ListByMaterial(ctx context.Context, materialID string, page domain.Page) ([]*domain.StockMovement, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM stock_movements WHERE material_id = $1`, materialID); err != nil {
		return nil, 0, database.Classify(fmt.Errorf("count stock movements: %w", err))
	}

	query := `
		SELECT id, code, material_id, delta, reason, created_by, created_at
		FROM stock_movements
		WHERE material_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	movements := []*domain.StockMovement{}
	if err := r.db.SelectContext(ctx, &movements, query, materialID, page.Limit, page.Offset); err != nil {
		return nil, 0, database.Classify(fmt.Errorf("list stock movements: %w", err))
	}
	return movements, total, nil
}
