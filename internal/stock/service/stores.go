// Package service implements the stock engine: identifier issuance, the
// stock ledger, alert derivation, the reconciliation sweep and the use
// cases that drive them.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
)

// CounterStore hands out values of named monotonic counters. Next must
// increment and read in one atomic storage operation: concurrent callers
// on the same name get distinct values forming a contiguous run.
type CounterStore interface {
	Next(ctx context.Context, name string) (int64, error)
	Current(ctx context.Context, name string) (int64, error)
}

// MaterialStore persists materials. ApplyDelta must be a single
// conditional update that never leaves quantity negative.
type MaterialStore interface {
	Create(ctx context.Context, m *domain.MaterialStock) error
	GetByID(ctx context.Context, id string) (*domain.MaterialStock, error)
	List(ctx context.Context, page domain.Page) ([]*domain.MaterialStock, int64, error)
	ListAfter(ctx context.Context, afterID string, limit int) ([]*domain.MaterialStock, error)
	UpdateReorderLevel(ctx context.Context, id string, level decimal.Decimal) (*domain.MaterialStock, error)
	ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) (*domain.MaterialStock, error)
}

// BatchStore persists arrival and production batches. Update and Delete
// only succeed against the version the caller read and return Conflict
// otherwise; Update bumps b.Version.
type BatchStore interface {
	Create(ctx context.Context, b *domain.StockBatch) error
	GetByID(ctx context.Context, id string) (*domain.StockBatch, error)
	Update(ctx context.Context, b *domain.StockBatch) error
	Delete(ctx context.Context, id string, version int64) error
	List(ctx context.Context, kind domain.BatchKind, page domain.Page) ([]*domain.StockBatch, int64, error)
	ListExpiringAfter(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]*domain.StockBatch, error)
}

// AlertStore persists alerts. OpenIfAbsent and OpenOrRefresh must decide
// and write in one atomic step so at most one unread deduplicated alert
// exists per subject and type.
type AlertStore interface {
	Create(ctx context.Context, a *domain.Alert) error
	OpenIfAbsent(ctx context.Context, a *domain.Alert) (bool, error)
	OpenOrRefresh(ctx context.Context, a *domain.Alert, notBefore time.Time) (domain.AlertOutcome, error)
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	MarkRead(ctx context.Context, id string, at time.Time) (*domain.Alert, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, int64, error)
}

// MovementStore persists manual correction records
type MovementStore interface {
	Create(ctx context.Context, m *domain.StockMovement) error
	ListByMaterial(ctx context.Context, materialID string, page domain.Page) ([]*domain.StockMovement, int64, error)
}
