package events

import (
	"context"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/logger"
	"github.com/harvestline/harvestline-backend/pkg/messaging"
)

// Sink is where events go. *messaging.Publisher is the production sink.
type Sink interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// StockEventPublisher publishes ledger, alert and sweep events. A nil
// publisher is valid and drops everything, so services run without a broker.
// Publishing failures are logged, never returned: the ledger change has
// already committed.
type StockEventPublisher struct {
	sink   Sink
	logger *logger.Logger
}

// NewStockEventPublisher creates a publisher on the stock events exchange
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}
	return NewStockEventPublisherWithSink(publisher, log), nil
}

// NewStockEventPublisherWithSink creates a publisher writing to sink
func NewStockEventPublisherWithSink(sink Sink, log *logger.Logger) *StockEventPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &StockEventPublisher{
		sink:   sink,
		logger: log.WithComponent("stock-events"),
	}
}

// PublishStockMoved publishes stock.received or stock.consumed depending on
// the sign of delta
func (p *StockEventPublisher) PublishStockMoved(ctx context.Context, m *domain.MaterialStock, d domain.MaterialDelta, reason, reference string) {
	if p == nil {
		return
	}

	eventType := messaging.EventStockReceived
	if d.Delta.IsNegative() {
		eventType = messaging.EventStockConsumed
	}

	data := messaging.StockMovedEvent{
		MaterialID:  d.MaterialID,
		Delta:       d.Delta.String(),
		NewQuantity: m.Quantity.String(),
		Reason:      reason,
		Reference:   reference,
	}

	if err := p.sink.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("material_id", d.MaterialID).Msg("failed to publish stock moved event")
	}
}

// PublishAlertGenerated publishes an alert generated event
func (p *StockEventPublisher) PublishAlertGenerated(ctx context.Context, a *domain.Alert, refreshed bool) {
	if p == nil {
		return
	}

	data := messaging.AlertGeneratedEvent{
		AlertID:   a.ID,
		AlertType: string(a.Type),
		SubjectID: a.SubjectID,
		Message:   a.Message,
		Refreshed: refreshed,
	}

	if err := p.sink.Publish(ctx, messaging.EventAlertGenerated, data); err != nil {
		p.logger.Error().Err(err).Str("alert_id", a.ID).Msg("failed to publish alert generated event")
	}
}

// PublishSweepCompleted publishes a sweep summary
func (p *StockEventPublisher) PublishSweepCompleted(ctx context.Context, r domain.SweepResult) {
	if p == nil {
		return
	}

	data := messaging.SweepCompletedEvent{
		MaterialsChecked: r.MaterialsChecked,
		BatchesChecked:   r.BatchesChecked,
		AlertsOpened:     r.AlertsOpened,
		AlertsRefreshed:  r.AlertsRefreshed,
		Failures:         r.Failures,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
	}

	if err := p.sink.Publish(ctx, messaging.EventSweepCompleted, data); err != nil {
		p.logger.Error().Err(err).Msg("failed to publish sweep completed event")
	}
}
