package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/errors"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// CreateMaterialInput adds a raw material to the catalogue
type CreateMaterialInput struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Unit         string          `json:"unit" validate:"max=20"`
	ReorderLevel decimal.Decimal `json:"reorder_level" validate:"gte=0"`
}

// Catalogue manages the material list. It never changes quantities.
type Catalogue struct {
	materials MaterialStore
	engine    *NotificationEngine
	logger    *logger.Logger
}

// NewCatalogue creates a new catalogue service
func NewCatalogue(materials MaterialStore, engine *NotificationEngine, log *logger.Logger) *Catalogue {
	return &Catalogue{
		materials: materials,
		engine:    engine,
		logger:    log.WithComponent("catalogue"),
	}
}

// CreateMaterial adds a material with zero stock
func (c *Catalogue) CreateMaterial(ctx context.Context, in CreateMaterialInput) (*domain.MaterialStock, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.Validation(map[string]string{"name": "is required"})
	}
	if in.ReorderLevel.IsNegative() {
		return nil, errors.Validation(map[string]string{"reorder_level": "must not be negative"})
	}

	m := &domain.MaterialStock{
		Name:         name,
		Unit:         strings.TrimSpace(in.Unit),
		ReorderLevel: in.ReorderLevel,
	}
	if err := c.materials.Create(ctx, m); err != nil {
		return nil, err
	}

	c.logger.Info().Str("material_id", m.ID).Str("name", m.Name).Msg("material created")

	// a new material has no stock, so it may start out low
	c.engine.EvaluateMaterials(ctx, []*domain.MaterialStock{m})
	return m, nil
}

// GetMaterial gets a material by ID
func (c *Catalogue) GetMaterial(ctx context.Context, id string) (*domain.MaterialStock, error) {
	return c.materials.GetByID(ctx, id)
}

// ListMaterials lists materials by name
func (c *Catalogue) ListMaterials(ctx context.Context, page domain.Page) ([]*domain.MaterialStock, int64, error) {
	return c.materials.List(ctx, page)
}

// UpdateReorderLevel changes the threshold and re-evaluates the material
// right away
func (c *Catalogue) UpdateReorderLevel(ctx context.Context, id string, level decimal.Decimal) (*domain.MaterialStock, error) {
	if level.IsNegative() {
		return nil, errors.Validation(map[string]string{"reorder_level": "must not be negative"})
	}

	m, err := c.materials.UpdateReorderLevel(ctx, id, level)
	if err != nil {
		return nil, err
	}

	c.engine.EvaluateMaterials(ctx, []*domain.MaterialStock{m})
	return m, nil
}
