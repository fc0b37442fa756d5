package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/errors"
	"github.com/harvestline/harvestline-backend/pkg/logger"
	"github.com/harvestline/harvestline-backend/pkg/telemetry"
)

// Ledger is the only writer of material quantities. Every change is one
// conditional per-row update in the MaterialStore; stock is never clamped.
type Ledger struct {
	materials MaterialStore
	tracer    trace.Tracer
	logger    *logger.Logger
}

// NewLedger creates a new stock ledger
func NewLedger(materials MaterialStore, log *logger.Logger) *Ledger {
	return &Ledger{
		materials: materials,
		tracer:    otel.Tracer(telemetry.InstrumentationName),
		logger:    log.WithComponent("ledger"),
	}
}

// ReceiveStock adds qty to a material
func (l *Ledger) ReceiveStock(ctx context.Context, materialID string, qty decimal.Decimal) (*domain.MaterialStock, error) {
	ctx, span := l.start(ctx, "ledger.receive", materialID)
	defer span.End()

	if err := validateMove(materialID, qty); err != nil {
		return nil, fail(span, err)
	}
	m, err := l.materials.ApplyDelta(ctx, materialID, qty)
	return m, fail(span, err)
}

// ConsumeStock draws qty from a material. If less than qty is on hand the
// ledger is left unchanged and InsufficientStock is returned.
func (l *Ledger) ConsumeStock(ctx context.Context, materialID string, qty decimal.Decimal) (*domain.MaterialStock, error) {
	ctx, span := l.start(ctx, "ledger.consume", materialID)
	defer span.End()

	if err := validateMove(materialID, qty); err != nil {
		return nil, fail(span, err)
	}
	m, err := l.materials.ApplyDelta(ctx, materialID, qty.Neg())
	return m, fail(span, err)
}

// AdjustConsumption corrects a recorded consumption from oldQty to newQty
// by applying only the difference. An unchanged quantity is a no-op that
// returns the current material.
func (l *Ledger) AdjustConsumption(ctx context.Context, materialID string, oldQty, newQty decimal.Decimal) (*domain.MaterialStock, error) {
	ctx, span := l.start(ctx, "ledger.adjust", materialID)
	defer span.End()

	if materialID == "" {
		return nil, fail(span, errors.BadRequest("material id is required"))
	}
	if oldQty.IsNegative() || newQty.IsNegative() {
		return nil, fail(span, errors.Validation(map[string]string{
			"quantity": "must not be negative",
		}))
	}

	delta := oldQty.Sub(newQty)
	span.SetAttributes(attribute.String("stock.delta", delta.String()))
	if delta.IsZero() {
		m, err := l.materials.GetByID(ctx, materialID)
		return m, fail(span, err)
	}
	m, err := l.materials.ApplyDelta(ctx, materialID, delta)
	return m, fail(span, err)
}

// ApplyBatch applies every ref of a batch, all or nothing
func (l *Ledger) ApplyBatch(ctx context.Context, refs []domain.MaterialRef) ([]*domain.MaterialStock, error) {
	ctx, span := l.start(ctx, "ledger.apply_batch", "")
	defer span.End()

	if err := validateRefs(refs); err != nil {
		return nil, fail(span, err)
	}
	out, err := l.applyDeltas(ctx, domain.NetDeltas(refs))
	return out, fail(span, err)
}

// ReverseBatch undoes the effect of refs, all or nothing. Reversing an
// arrival whose stock was already consumed fails with InsufficientStock.
func (l *Ledger) ReverseBatch(ctx context.Context, refs []domain.MaterialRef) ([]*domain.MaterialStock, error) {
	ctx, span := l.start(ctx, "ledger.reverse_batch", "")
	defer span.End()

	if err := validateRefs(refs); err != nil {
		return nil, fail(span, err)
	}
	out, err := l.applyDeltas(ctx, domain.NetDeltas(domain.Invert(refs)))
	return out, fail(span, err)
}

// ReviseBatch replaces the effect of oldRefs with that of newRefs using one
// net delta per material, all or nothing
func (l *Ledger) ReviseBatch(ctx context.Context, oldRefs, newRefs []domain.MaterialRef) ([]*domain.MaterialStock, error) {
	ctx, span := l.start(ctx, "ledger.revise_batch", "")
	defer span.End()

	if err := validateRefs(oldRefs); err != nil {
		return nil, fail(span, err)
	}
	if err := validateRefs(newRefs); err != nil {
		return nil, fail(span, err)
	}
	out, err := l.applyDeltas(ctx, domain.ReviseDeltas(oldRefs, newRefs))
	return out, fail(span, err)
}

// applyDeltas rejects up front when any material is short, then commits
// the deltas in material ID order. A commit failure (another writer drained
// stock after the check) is undone by applying the inverse of every
// committed delta in reverse order.
func (l *Ledger) applyDeltas(ctx context.Context, deltas []domain.MaterialDelta) ([]*domain.MaterialStock, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("stock.materials", len(deltas)))

	for _, d := range deltas {
		m, err := l.materials.GetByID(ctx, d.MaterialID)
		if err != nil {
			return nil, err
		}
		if m.Quantity.Add(d.Delta).IsNegative() {
			return nil, errors.InsufficientStock(d.MaterialID, m.Quantity.String(), d.Delta.Neg().String())
		}
	}

	out := make([]*domain.MaterialStock, 0, len(deltas))
	applied := make([]domain.MaterialDelta, 0, len(deltas))
	for _, d := range deltas {
		m, err := l.materials.ApplyDelta(ctx, d.MaterialID, d.Delta)
		if err != nil {
			l.compensate(ctx, applied)
			return nil, err
		}
		applied = append(applied, d)
		out = append(out, m)
	}
	return out, nil
}

// compensate reverts committed deltas. It runs even if ctx was cancelled.
func (l *Ledger) compensate(ctx context.Context, applied []domain.MaterialDelta) {
	ctx = context.WithoutCancel(ctx)
	for i := len(applied) - 1; i >= 0; i-- {
		d := applied[i]
		if _, err := l.materials.ApplyDelta(ctx, d.MaterialID, d.Delta.Neg()); err != nil {
			l.logger.Error().
				Err(err).
				Str("material_id", d.MaterialID).
				Str("delta", d.Delta.Neg().String()).
				Msg("ledger compensation failed, material needs manual correction")
		}
	}
}

func (l *Ledger) start(ctx context.Context, name, materialID string) (context.Context, trace.Span) {
	ctx, span := l.tracer.Start(ctx, name)
	if materialID != "" {
		span.SetAttributes(attribute.String("stock.material_id", materialID))
	}
	return ctx, span
}

func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func validateMove(materialID string, qty decimal.Decimal) error {
	if materialID == "" {
		return errors.BadRequest("material id is required")
	}
	if !qty.IsPositive() {
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})
	}
	return nil
}

func validateRefs(refs []domain.MaterialRef) error {
	for _, ref := range refs {
		if err := validateMove(ref.MaterialID, ref.Quantity); err != nil {
			return err
		}
		if ref.Direction != domain.DirectionReceive && ref.Direction != domain.DirectionConsume {
			return errors.Validation(map[string]string{
				"direction": "must be receive or consume",
			})
		}
	}
	return nil
}
