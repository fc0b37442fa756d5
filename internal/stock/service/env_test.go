package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/internal/stock/events"
	"github.com/harvestline/harvestline-backend/internal/stock/repository/memory"
	"github.com/harvestline/harvestline-backend/pkg/config"
	"github.com/harvestline/harvestline-backend/pkg/logger"
	"github.com/harvestline/harvestline-backend/pkg/testutil"
)

// testEnv wires every service over in-memory stores
type testEnv struct {
	counters   *memory.CounterStore
	materials  *memory.MaterialStore
	batches    *memory.BatchStore
	alerts     *memory.AlertStore
	movements  *memory.MovementStore
	sink       *testutil.MockPublisher
	issuer     *SequenceIssuer
	ledger     *Ledger
	engine     *NotificationEngine
	sweep      *Sweep
	arrivals   *ArrivalService
	production *ProductionService
	correction *CorrectionService
	catalogue  *Catalogue
	clock      *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil, nil)
}

// newTestEnvWith lets a test swap the material or batch store for a wrapper
func newTestEnvWith(t *testing.T, wrapMaterials func(MaterialStore) MaterialStore, wrapBatches func(BatchStore) BatchStore) *testEnv {
	t.Helper()
	log := logger.Nop()

	env := &testEnv{
		counters:  memory.NewCounterStore(),
		materials: memory.NewMaterialStore(),
		batches:   memory.NewBatchStore(),
		alerts:    memory.NewAlertStore(),
		movements: memory.NewMovementStore(),
		sink:      testutil.NewMockPublisher(),
		clock:     &fakeClock{t: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)},
	}

	var materials MaterialStore = env.materials
	if wrapMaterials != nil {
		materials = wrapMaterials(materials)
	}
	var batches BatchStore = env.batches
	if wrapBatches != nil {
		batches = wrapBatches(batches)
	}

	publisher := events.NewStockEventPublisherWithSink(env.sink, log)
	env.issuer = NewSequenceIssuer(env.counters, log)
	env.ledger = NewLedger(materials, log)
	env.engine = NewNotificationEngine(env.alerts, config.AlertsConfig{
		ExpiryWindowDays: 7,
		ReminderInterval: 24 * time.Hour,
	}, publisher, log)
	env.engine.now = env.clock.Now
	env.sweep = NewSweep(materials, batches, env.engine, publisher, 2, log)
	env.arrivals = NewArrivalService(env.issuer, env.ledger, batches, env.engine, publisher, log)
	env.production = NewProductionService(env.issuer, env.ledger, batches, env.engine, publisher, log)
	env.correction = NewCorrectionService(env.issuer, env.ledger, env.movements, env.engine, publisher, log)
	env.catalogue = NewCatalogue(materials, env.engine, log)
	return env
}

// seed stores a material with the given stock and reorder level
func (e *testEnv) seed(id string, qty, reorder int64) {
	e.materials.Put(&domain.MaterialStock{
		ID:           id,
		Name:         id,
		Unit:         "kg",
		Quantity:     decimal.NewFromInt(qty),
		ReorderLevel: decimal.NewFromInt(reorder),
	})
}

func (e *testEnv) quantity(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	m, err := e.materials.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get material %s: %v", id, err)
	}
	return m.Quantity
}

func (e *testEnv) unreadAlerts(t *testing.T, subject string, typ domain.AlertType) []*domain.Alert {
	t.Helper()
	unread := true
	alerts, _, err := e.alerts.List(context.Background(), domain.AlertFilter{
		SubjectID: subject,
		Type:      typ,
		Unread:    &unread,
		PerPage:   100,
	})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	return alerts
}

func qty(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
