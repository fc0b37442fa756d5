package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/internal/stock/events"
	"github.com/harvestline/harvestline-backend/pkg/errors"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// CorrectionInput is a manual stock correction. A positive delta adds
// stock, a negative one removes it.
type CorrectionInput struct {
	MaterialID string          `json:"material_id" validate:"required"`
	Delta      decimal.Decimal `json:"delta"`
	Reason     string          `json:"reason" validate:"required,max=500"`
}

// CorrectionResult is the recorded movement and the material after it
type CorrectionResult struct {
	Movement *domain.StockMovement `json:"movement"`
	Material *domain.MaterialStock `json:"material"`
}

// CorrectionService applies manual stock corrections and keeps an SM-
// numbered audit trail of them
type CorrectionService struct {
	issuer    *SequenceIssuer
	ledger    *Ledger
	movements MovementStore
	engine    *NotificationEngine
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

// NewCorrectionService creates a new correction service
func NewCorrectionService(
	issuer *SequenceIssuer,
	ledger *Ledger,
	movements MovementStore,
	engine *NotificationEngine,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *CorrectionService {
	return &CorrectionService{
		issuer:    issuer,
		ledger:    ledger,
		movements: movements,
		engine:    engine,
		publisher: publisher,
		logger:    log.WithComponent("corrections"),
	}
}

// Correct moves stock by in.Delta. A decrease larger than the stock on
// hand is rejected with InsufficientStock; it is never clamped to zero.
func (s *CorrectionService) Correct(ctx context.Context, in CorrectionInput, userID string) (*CorrectionResult, error) {
	if in.Delta.IsZero() {
		return nil, errors.Validation(map[string]string{
			"delta": "must not be zero",
		})
	}

	var (
		m   *domain.MaterialStock
		err error
	)
	if in.Delta.IsPositive() {
		m, err = s.ledger.ReceiveStock(ctx, in.MaterialID, in.Delta)
	} else {
		m, err = s.ledger.ConsumeStock(ctx, in.MaterialID, in.Delta.Neg())
	}
	if err != nil {
		return nil, err
	}

	movement, err := s.record(ctx, in, userID)
	if err != nil {
		s.undo(ctx, in)
		return nil, err
	}

	s.logger.Info().
		Str("material_id", in.MaterialID).
		Str("delta", in.Delta.String()).
		Str("code", movement.Code).
		Str("user_id", userID).
		Msg("stock corrected")

	s.publisher.PublishStockMoved(ctx, m, domain.MaterialDelta{MaterialID: in.MaterialID, Delta: in.Delta}, "correction", movement.Code)
	s.engine.EvaluateMaterials(ctx, []*domain.MaterialStock{m})

	return &CorrectionResult{Movement: movement, Material: m}, nil
}

// ListMovements lists a material's corrections, newest first
func (s *CorrectionService) ListMovements(ctx context.Context, materialID string, page domain.Page) ([]*domain.StockMovement, int64, error) {
	return s.movements.ListByMaterial(ctx, materialID, page)
}

func (s *CorrectionService) record(ctx context.Context, in CorrectionInput, userID string) (*domain.StockMovement, error) {
	code, err := s.issuer.Issue(ctx, NamespaceMovement)
	if err != nil {
		return nil, err
	}

	movement := &domain.StockMovement{
		Code:       code,
		MaterialID: in.MaterialID,
		Delta:      in.Delta,
		Reason:     in.Reason,
		CreatedBy:  userID,
	}
	if err := s.movements.Create(ctx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

func (s *CorrectionService) undo(ctx context.Context, in CorrectionInput) {
	ctx = context.WithoutCancel(ctx)

	var err error
	if in.Delta.IsPositive() {
		_, err = s.ledger.ConsumeStock(ctx, in.MaterialID, in.Delta)
	} else {
		_, err = s.ledger.ReceiveStock(ctx, in.MaterialID, in.Delta.Neg())
	}
	if err != nil {
		s.logger.Error().Err(err).Str("material_id", in.MaterialID).
			Msg("failed to undo correction after audit write failed, stock needs manual correction")
	}
}
