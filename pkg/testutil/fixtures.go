package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
)

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Material creates a material with zero stock and a reorder level of 10
func (f *FixtureFactory) Material(opts ...func(*domain.MaterialStock)) *domain.MaterialStock {
	seq := f.nextSeq()
	now := time.Now().UTC()
	m := &domain.MaterialStock{
		ID:           uuid.New().String(),
		Name:         fmt.Sprintf("Material %d", seq),
		Quantity:     decimal.Zero,
		Unit:         "kg",
		ReorderLevel: decimal.NewFromInt(10),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithMaterialName sets the material name
func WithMaterialName(name string) func(*domain.MaterialStock) {
	return func(m *domain.MaterialStock) {
		m.Name = name
	}
}

// WithQuantity sets the on-hand quantity
func WithQuantity(q int64) func(*domain.MaterialStock) {
	return func(m *domain.MaterialStock) {
		m.Quantity = decimal.NewFromInt(q)
	}
}

// WithReorderLevel sets the reorder level
func WithReorderLevel(level int64) func(*domain.MaterialStock) {
	return func(m *domain.MaterialStock) {
		m.ReorderLevel = decimal.NewFromInt(level)
	}
}

// Batch creates an arrival batch with no refs
func (f *FixtureFactory) Batch(opts ...func(*domain.StockBatch)) *domain.StockBatch {
	seq := f.nextSeq()
	now := time.Now().UTC()
	b := &domain.StockBatch{
		ID:        uuid.New().String(),
		Code:      fmt.Sprintf("INV-%04d", seq),
		Kind:      domain.BatchKindArrival,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithKind sets the batch kind
func WithKind(kind domain.BatchKind) func(*domain.StockBatch) {
	return func(b *domain.StockBatch) {
		b.Kind = kind
	}
}

// WithExpiry sets the batch expiry
func WithExpiry(t time.Time) func(*domain.StockBatch) {
	return func(b *domain.StockBatch) {
		b.Expiry = &t
	}
}

// WithRef appends a batch line
func WithRef(materialID string, qty int64, dir domain.Direction) func(*domain.StockBatch) {
	return func(b *domain.StockBatch) {
		b.Refs = append(b.Refs, Ref(materialID, qty, dir))
	}
}

// Ref builds a batch line
func Ref(materialID string, qty int64, dir domain.Direction) domain.MaterialRef {
	return domain.MaterialRef{
		MaterialID: materialID,
		Quantity:   decimal.NewFromInt(qty),
		Direction:  dir,
	}
}

// Alert creates an unread low-stock alert
func (f *FixtureFactory) Alert(opts ...func(*domain.Alert)) *domain.Alert {
	seq := f.nextSeq()
	a := &domain.Alert{
		ID:        uuid.New().String(),
		Type:      domain.AlertTypeLowStock,
		SubjectID: uuid.New().String(),
		Message:   fmt.Sprintf("alert %d", seq),
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithAlertType sets the alert type
func WithAlertType(t domain.AlertType) func(*domain.Alert) {
	return func(a *domain.Alert) {
		a.Type = t
	}
}

// WithSubject sets the alert subject
func WithSubject(id string) func(*domain.Alert) {
	return func(a *domain.Alert) {
		a.SubjectID = id
	}
}

// WithCreatedAt sets the alert creation time
func WithCreatedAt(t time.Time) func(*domain.Alert) {
	return func(a *domain.Alert) {
		a.CreatedAt = t
	}
}
