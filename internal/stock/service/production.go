package service

import (
	"context"
	"fmt"
	"time"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/internal/stock/events"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// ProductionInput describes a production run: the materials it consumed
// and optionally the good it produced
type ProductionInput struct {
	Consumed []LineInput `json:"consumed" validate:"required,min=1,dive"`
	Produced *LineInput  `json:"produced,omitempty"`
	Expiry   *time.Time  `json:"expiry,omitempty"`
	Notes    string      `json:"notes,omitempty" validate:"max=1000"`
}

func (in ProductionInput) refs() []domain.MaterialRef {
	refs := linesToRefs(in.Consumed, domain.DirectionConsume)
	if in.Produced != nil {
		refs = append(refs, linesToRefs([]LineInput{*in.Produced}, domain.DirectionReceive)...)
	}
	return refs
}

// ProductionService records production runs against the ledger
type ProductionService struct {
	book   *batchBook
	engine *NotificationEngine
	logger *logger.Logger
}

// NewProductionService creates a new production service
func NewProductionService(
	issuer *SequenceIssuer,
	ledger *Ledger,
	batches BatchStore,
	engine *NotificationEngine,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *ProductionService {
	log = log.WithComponent("production")
	return &ProductionService{
		book: &batchBook{
			kind:      domain.BatchKindProduction,
			namespace: NamespaceProduction,
			issuer:    issuer,
			ledger:    ledger,
			batches:   batches,
			engine:    engine,
			publisher: publisher,
			logger:    log,
		},
		engine: engine,
		logger: log,
	}
}

// CreateRun issues a PRO- code, draws every consumed material all or
// nothing, and raises a "production complete" notice
func (s *ProductionService) CreateRun(ctx context.Context, in ProductionInput) (*domain.StockBatch, error) {
	b, err := s.book.create(ctx, in.refs(), in.Expiry, in.Notes)
	if err != nil {
		return nil, err
	}

	if _, err := s.engine.Notify(ctx, b.ID, fmt.Sprintf("Production run %s complete", b.Code)); err != nil {
		s.logger.Warn().Err(err).Str("batch_id", b.ID).Msg("failed to raise production complete notice")
	}
	return b, nil
}

// EditRun replaces the run's lines. Only the net change per material hits
// the ledger: raising a 5kg consumption to 8kg draws 3kg more.
func (s *ProductionService) EditRun(ctx context.Context, id string, in ProductionInput) (*domain.StockBatch, error) {
	return s.book.revise(ctx, id, in.refs(), in.Expiry, in.Notes)
}

// DeleteRun restores the consumed materials and removes the run
func (s *ProductionService) DeleteRun(ctx context.Context, id string) error {
	return s.book.remove(ctx, id)
}

// GetRun gets a production run by ID
func (s *ProductionService) GetRun(ctx context.Context, id string) (*domain.StockBatch, error) {
	return s.book.get(ctx, id)
}

// ListRuns lists production runs, newest first
func (s *ProductionService) ListRuns(ctx context.Context, page domain.Page) ([]*domain.StockBatch, int64, error) {
	return s.book.list(ctx, page)
}
