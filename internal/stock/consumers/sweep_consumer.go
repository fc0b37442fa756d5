package consumers

import (
	"context"
	stderrors "errors"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/internal/stock/service"
	"github.com/harvestline/harvestline-backend/pkg/logger"
	"github.com/harvestline/harvestline-backend/pkg/messaging"
)

const sweepQueue = "stock-service.sweep-requests"

// sweeper is the part of service.Sweep the consumer drives
type sweeper interface {
	RunDetectionPass(ctx context.Context) (domain.SweepResult, error)
}

// SweepRequestConsumer runs a detection pass for every stock.sweep.requested
// event
type SweepRequestConsumer struct {
	consumer *messaging.Consumer
	sweep    sweeper
	logger   *logger.Logger
}

// NewSweepRequestConsumer creates a new sweep request consumer
func NewSweepRequestConsumer(rmq *messaging.RabbitMQ, sweep *service.Sweep, log *logger.Logger) (*SweepRequestConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, sweepQueue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeStockEvents, messaging.EventSweepRequested); err != nil {
		return nil, err
	}

	c := &SweepRequestConsumer{
		consumer: consumer,
		sweep:    sweep,
		logger:   log.WithComponent("sweep-consumer"),
	}
	consumer.RegisterHandler(messaging.EventSweepRequested, c.handleSweepRequested)

	return c, nil
}

// Start starts consuming messages
func (c *SweepRequestConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *SweepRequestConsumer) handleSweepRequested(ctx context.Context, event *messaging.Event) error {
	var data messaging.SweepRequestedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("event_id", event.ID).
		Str("requested_by", data.RequestedBy).
		Msg("received sweep request")

	_, err := c.sweep.RunDetectionPass(ctx)
	if stderrors.Is(err, service.ErrSweepInProgress) {
		// dropped; the next scheduled pass re-evaluates everything
		c.logger.Info().Str("event_id", event.ID).Msg("detection pass already running, request dropped")
		return nil
	}
	return err
}
