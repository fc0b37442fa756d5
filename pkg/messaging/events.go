package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Ledger events
	EventStockReceived = "stock.received"
	EventStockConsumed = "stock.consumed"

	// Notification events
	EventAlertGenerated = "stock.alert.generated"

	// Sweep events
	EventSweepRequested = "stock.sweep.requested"
	EventSweepCompleted = "stock.sweep.completed"
)

// Exchange names
const (
	ExchangeStockEvents = "stock.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Ledger Events

// StockMovedEvent is published after a ledger mutation committed.
// Delta is signed: positive for receipts, negative for consumption.
type StockMovedEvent struct {
	MaterialID  string `json:"material_id"`
	Delta       string `json:"delta"`
	NewQuantity string `json:"new_quantity"`
	Reason      string `json:"reason,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

// Notification Events

// AlertGeneratedEvent is published when an alert is opened or refreshed
type AlertGeneratedEvent struct {
	AlertID   string `json:"alert_id"`
	AlertType string `json:"alert_type"`
	SubjectID string `json:"subject_id"`
	Message   string `json:"message"`
	Refreshed bool   `json:"refreshed,omitempty"`
}

// Sweep Events

// SweepRequestedEvent asks a stock service to run a detection pass now
type SweepRequestedEvent struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// SweepCompletedEvent summarises a finished detection pass
type SweepCompletedEvent struct {
	MaterialsChecked int       `json:"materials_checked"`
	BatchesChecked   int       `json:"batches_checked"`
	AlertsOpened     int       `json:"alerts_opened"`
	AlertsRefreshed  int       `json:"alerts_refreshed"`
	Failures         int       `json:"failures"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
