// Package domain holds the stock engine's entity types and the pure rules
// that operate on them.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Counter is a named monotonically increasing sequence. It is created lazily
// on first use and only ever touched through a CounterStore.
type Counter struct {
	Name  string `db:"name" bson:"_id" json:"name"`
	Value int64  `db:"value" bson:"value" json:"value"`
}

// MaterialStock is the authoritative on-hand quantity of one raw material
type MaterialStock struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Quantity     decimal.Decimal `db:"quantity" json:"quantity"`
	Unit         string          `db:"unit" json:"unit"`
	ReorderLevel decimal.Decimal `db:"reorder_level" json:"reorder_level"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// IsLow reports whether the material is at or below its reorder level
func (m *MaterialStock) IsLow() bool {
	return m.Quantity.LessThanOrEqual(m.ReorderLevel)
}

// BatchKind distinguishes deliveries from production runs
type BatchKind string

const (
	BatchKindArrival    BatchKind = "arrival"
	BatchKindProduction BatchKind = "production"
)

// Direction says whether a batch line adds to or draws from stock
type Direction string

const (
	DirectionReceive Direction = "receive"
	DirectionConsume Direction = "consume"
)

// MaterialRef is one line of a batch: a quantity of a material moving in the
// given direction
type MaterialRef struct {
	MaterialID string          `db:"material_id" json:"material_id" validate:"required"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity" validate:"gt=0"`
	Direction  Direction       `db:"direction" json:"direction" validate:"required,oneof=receive consume"`
}

// Delta returns the signed effect of the line on stock
func (r MaterialRef) Delta() decimal.Decimal {
	if r.Direction == DirectionConsume {
		return r.Quantity.Neg()
	}
	return r.Quantity
}

// StockBatch is an arrival or a production run. Its refs are what was
// applied to the ledger when the batch was recorded.
type StockBatch struct {
	ID        string        `db:"id" json:"id"`
	Code      string        `db:"code" json:"code"`
	Kind      BatchKind     `db:"kind" json:"kind"`
	Refs      []MaterialRef `db:"-" json:"material_refs"`
	Expiry    *time.Time    `db:"expiry" json:"expiry,omitempty"`
	Notes     string        `db:"notes" json:"notes,omitempty"`
	Version   int64         `db:"version" json:"version"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// AlertType classifies alerts. LowStock and Expiring are deduplicated per
// subject; Informational never is.
type AlertType string

const (
	AlertTypeLowStock      AlertType = "low_stock"
	AlertTypeExpiring      AlertType = "expiring"
	AlertTypeInformational AlertType = "informational"
)

// Deduplicated reports whether at most one unread alert of this type may
// exist per subject
func (t AlertType) Deduplicated() bool {
	return t == AlertTypeLowStock || t == AlertTypeExpiring
}

// Alert is a notification record. SubjectID is a material ID for low-stock
// alerts and a batch ID for expiry alerts.
type Alert struct {
	ID        string     `db:"id" json:"id"`
	Type      AlertType  `db:"type" json:"type"`
	SubjectID string     `db:"subject_id" json:"subject_id"`
	Message   string     `db:"message" json:"message"`
	IsRead    bool       `db:"is_read" json:"is_read"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// AlertFilter narrows alert listings. Zero values mean "any".
type AlertFilter struct {
	Type      AlertType
	SubjectID string
	Unread    *bool
	Page      int
	PerPage   int
}

// StockMovement is the audit record of a manual correction
type StockMovement struct {
	ID         string          `db:"id" json:"id"`
	Code       string          `db:"code" json:"code"`
	MaterialID string          `db:"material_id" json:"material_id"`
	Delta      decimal.Decimal `db:"delta" json:"delta"`
	Reason     string          `db:"reason" json:"reason"`
	CreatedBy  string          `db:"created_by" json:"created_by"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Page is a window into a listing
type Page struct {
	Limit  int
	Offset int
}

// AlertOutcome is what a deduplicated alert write did
type AlertOutcome int

const (
	AlertUnchanged AlertOutcome = iota
	AlertOpened
	AlertRefreshed
)

func (o AlertOutcome) String() string {
	switch o {
	case AlertOpened:
		return "opened"
	case AlertRefreshed:
		return "refreshed"
	default:
		return "unchanged"
	}
}

// SweepResult summarizes one detection pass
type SweepResult struct {
	MaterialsChecked int       `json:"materials_checked"`
	BatchesChecked   int       `json:"batches_checked"`
	AlertsOpened     int       `json:"alerts_opened"`
	AlertsRefreshed  int       `json:"alerts_refreshed"`
	Failures         int       `json:"failures"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}
