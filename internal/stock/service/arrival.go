package service

import (
	"context"
	"time"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/internal/stock/events"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// ArrivalInput records a supplier delivery
type ArrivalInput struct {
	Lines  []LineInput `json:"lines" validate:"required,min=1,dive"`
	Expiry *time.Time  `json:"expiry,omitempty"`
	Notes  string      `json:"notes,omitempty" validate:"max=1000"`
}

// ArrivalService records supplier deliveries against the ledger
type ArrivalService struct {
	book *batchBook
}

// NewArrivalService creates a new arrival service
func NewArrivalService(
	issuer *SequenceIssuer,
	ledger *Ledger,
	batches BatchStore,
	engine *NotificationEngine,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *ArrivalService {
	return &ArrivalService{
		book: &batchBook{
			kind:      domain.BatchKindArrival,
			namespace: NamespaceInventory,
			issuer:    issuer,
			ledger:    ledger,
			batches:   batches,
			engine:    engine,
			publisher: publisher,
			logger:    log.WithComponent("arrivals"),
		},
	}
}

// RecordArrival issues an INV- code, receives every line into stock and
// stores the arrival
func (s *ArrivalService) RecordArrival(ctx context.Context, in ArrivalInput) (*domain.StockBatch, error) {
	return s.book.create(ctx, linesToRefs(in.Lines, domain.DirectionReceive), in.Expiry, in.Notes)
}

// UpdateArrival replaces the delivered lines, moving stock by the net
// difference only
func (s *ArrivalService) UpdateArrival(ctx context.Context, id string, in ArrivalInput) (*domain.StockBatch, error) {
	return s.book.revise(ctx, id, linesToRefs(in.Lines, domain.DirectionReceive), in.Expiry, in.Notes)
}

// DeleteArrival takes the delivered stock back out and removes the record.
// Fails with InsufficientStock if the delivery was already consumed.
func (s *ArrivalService) DeleteArrival(ctx context.Context, id string) error {
	return s.book.remove(ctx, id)
}

// GetArrival gets an arrival by ID
func (s *ArrivalService) GetArrival(ctx context.Context, id string) (*domain.StockBatch, error) {
	return s.book.get(ctx, id)
}

// ListArrivals lists arrivals, newest first
func (s *ArrivalService) ListArrivals(ctx context.Context, page domain.Page) ([]*domain.StockBatch, int64, error) {
	return s.book.list(ctx, page)
}
