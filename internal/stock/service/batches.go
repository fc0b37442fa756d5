package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/internal/stock/events"
	"github.com/harvestline/harvestline-backend/pkg/errors"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// LineInput is one material line of a batch request
type LineInput struct {
	MaterialID string          `json:"material_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity" validate:"gt=0"`
}

// batchBook keeps a batch record and its ledger effect in step. The ledger
// moves first; if the record cannot be written afterwards the ledger move is
// undone, so stock never reflects a batch that does not exist. Edits and
// deletes write the record against the version they read, so of two
// concurrent edits computed from the same old lines only one keeps its
// ledger move.
type batchBook struct {
	kind      domain.BatchKind
	namespace string
	issuer    *SequenceIssuer
	ledger    *Ledger
	batches   BatchStore
	engine    *NotificationEngine
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

func (k *batchBook) create(ctx context.Context, refs []domain.MaterialRef, expiry *time.Time, notes string) (*domain.StockBatch, error) {
	if len(refs) == 0 {
		return nil, errors.Validation(map[string]string{
			"material_refs": "at least one line is required",
		})
	}

	code, err := k.issuer.Issue(ctx, k.namespace)
	if err != nil {
		return nil, err
	}

	touched, err := k.ledger.ApplyBatch(ctx, refs)
	if err != nil {
		return nil, err
	}

	b := &domain.StockBatch{
		Code:   code,
		Kind:   k.kind,
		Refs:   refs,
		Expiry: expiry,
		Notes:  notes,
	}
	if err := k.batches.Create(ctx, b); err != nil {
		k.undo(ctx, code, func(ctx context.Context) error {
			_, err := k.ledger.ReverseBatch(ctx, refs)
			return err
		})
		return nil, err
	}

	k.settle(ctx, b, touched, domain.NetDeltas(refs))
	return b, nil
}

func (k *batchBook) revise(ctx context.Context, id string, refs []domain.MaterialRef, expiry *time.Time, notes string) (*domain.StockBatch, error) {
	if len(refs) == 0 {
		return nil, errors.Validation(map[string]string{
			"material_refs": "at least one line is required",
		})
	}

	b, err := k.get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldRefs := b.Refs

	touched, err := k.ledger.ReviseBatch(ctx, oldRefs, refs)
	if err != nil {
		return nil, err
	}

	b.Refs, b.Expiry, b.Notes = refs, expiry, notes
	if err := k.batches.Update(ctx, b); err != nil {
		k.undo(ctx, b.Code, func(ctx context.Context) error {
			_, err := k.ledger.ReviseBatch(ctx, refs, oldRefs)
			return err
		})
		return nil, err
	}

	k.settle(ctx, b, touched, domain.ReviseDeltas(oldRefs, refs))
	return b, nil
}

func (k *batchBook) remove(ctx context.Context, id string) error {
	b, err := k.get(ctx, id)
	if err != nil {
		return err
	}

	touched, err := k.ledger.ReverseBatch(ctx, b.Refs)
	if err != nil {
		return err
	}

	if err := k.batches.Delete(ctx, id, b.Version); err != nil {
		k.undo(ctx, b.Code, func(ctx context.Context) error {
			_, err := k.ledger.ApplyBatch(ctx, b.Refs)
			return err
		})
		return err
	}

	k.publishMoves(ctx, touched, domain.NetDeltas(domain.Invert(b.Refs)), "delete", b.Code)
	k.engine.EvaluateMaterials(ctx, touched)
	return nil
}

func (k *batchBook) get(ctx context.Context, id string) (*domain.StockBatch, error) {
	b, err := k.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Kind != k.kind {
		return nil, errors.NotFound(string(k.kind) + " batch")
	}
	return b, nil
}

func (k *batchBook) list(ctx context.Context, page domain.Page) ([]*domain.StockBatch, int64, error) {
	return k.batches.List(ctx, k.kind, page)
}

// settle runs the follow-ups of a committed batch change
func (k *batchBook) settle(ctx context.Context, b *domain.StockBatch, touched []*domain.MaterialStock, deltas []domain.MaterialDelta) {
	k.publishMoves(ctx, touched, deltas, string(k.kind), b.Code)
	k.engine.EvaluateMaterials(ctx, touched)
	if _, err := k.engine.EvaluateBatch(ctx, b); err != nil {
		k.logger.Warn().Err(err).Str("batch_id", b.ID).Msg("expiry evaluation failed")
	}
}

func (k *batchBook) publishMoves(ctx context.Context, touched []*domain.MaterialStock, deltas []domain.MaterialDelta, reason, reference string) {
	// ledger results come back in the same material order as the deltas
	for i, m := range touched {
		if i < len(deltas) {
			k.publisher.PublishStockMoved(ctx, m, deltas[i], reason, reference)
		}
	}
}

// undo runs a compensating ledger move after a failed batch write
func (k *batchBook) undo(ctx context.Context, code string, fn func(context.Context) error) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		k.logger.Error().Err(err).Str("batch_code", code).
			Msg("failed to undo ledger change after batch write failed, stock needs manual correction")
		return
	}
	k.logger.Warn().Str("batch_code", code).Msg("batch write failed, ledger change undone")
}

func linesToRefs(lines []LineInput, dir domain.Direction) []domain.MaterialRef {
	refs := make([]domain.MaterialRef, 0, len(lines))
	for _, l := range lines {
		refs = append(refs, domain.MaterialRef{
			MaterialID: l.MaterialID,
			Quantity:   l.Quantity,
			Direction:  dir,
		})
	}
	return refs
}
