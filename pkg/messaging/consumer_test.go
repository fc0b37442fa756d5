package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// recordingAck captures what the consumer did with a delivery
type recordingAck struct {
	acked    bool
	nacked   bool
	requeue  bool
	rejected bool
}

func (r *recordingAck) Ack(uint64, bool) error { r.acked = true; return nil }
func (r *recordingAck) Nack(_ uint64, _ bool, requeue bool) error {
	r.nacked, r.requeue = true, requeue
	return nil
}
func (r *recordingAck) Reject(_ uint64, requeue bool) error {
	r.rejected, r.requeue = true, requeue
	return nil
}

func delivery(t *testing.T, ack *recordingAck, eventType string, redelivered bool) amqp.Delivery {
	t.Helper()
	event, err := NewEvent(eventType, "test", "corr-1", SweepRequestedEvent{RequestedBy: "ops"})
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, Redelivered: redelivered}
}

func TestConsumer_HandleMessage(t *testing.T) {
	t.Run("acks on success and passes correlation id", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		var gotCorrelation, gotRequester string
		c.RegisterHandler(EventSweepRequested, func(ctx context.Context, e *Event) error {
			gotCorrelation = CorrelationID(ctx)
			var data SweepRequestedEvent
			require.NoError(t, e.UnmarshalData(&data))
			gotRequester = data.RequestedBy
			return nil
		})

		ack := &recordingAck{}
		c.handleMessage(context.Background(), delivery(t, ack, EventSweepRequested, false))

		assert.True(t, ack.acked)
		assert.Equal(t, "corr-1", gotCorrelation)
		assert.Equal(t, "ops", gotRequester)
	})

	t.Run("acks unknown event types", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		ack := &recordingAck{}
		c.handleMessage(context.Background(), delivery(t, ack, "something.else", false))
		assert.True(t, ack.acked)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		ack := &recordingAck{}
		c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{")})
		assert.True(t, ack.rejected)
		assert.False(t, ack.requeue)
	})

	t.Run("requeues first failure", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		c.RegisterHandler(EventSweepRequested, func(context.Context, *Event) error {
			return errors.New("busy")
		})
		ack := &recordingAck{}
		c.handleMessage(context.Background(), delivery(t, ack, EventSweepRequested, false))
		assert.True(t, ack.nacked)
		assert.True(t, ack.requeue)
	})

	t.Run("dead-letters after retries", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		c.RegisterHandler(EventSweepRequested, func(context.Context, *Event) error {
			return errors.New("busy")
		})
		ack := &recordingAck{}
		d := delivery(t, ack, EventSweepRequested, true)
		d.Headers = amqp.Table{"x-death": []interface{}{amqp.Table{"count": int64(1)}}}
		c.handleMessage(context.Background(), d)
		assert.True(t, ack.rejected)
		assert.False(t, ack.requeue)
	})
}
