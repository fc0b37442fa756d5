package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/errors"
	"github.com/harvestline/harvestline-backend/pkg/messaging"
)

func line(materialID string, n int64) LineInput {
	return LineInput{MaterialID: materialID, Quantity: qty(n)}
}

func stockMoves(env *testEnv) []messaging.StockMovedEvent {
	var out []messaging.StockMovedEvent
	for _, e := range env.sink.Events() {
		if moved, ok := e.Payload.(messaging.StockMovedEvent); ok {
			out = append(out, moved)
		}
	}
	return out
}

func TestArrival_RecordReceivesEveryLine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 0, 0)
	env.seed("sugar", 3, 0)
	expiry := env.clock.Now().AddDate(0, 0, 30)

	b, err := env.arrivals.RecordArrival(ctx, ArrivalInput{
		Lines:  []LineInput{line("flour", 25), line("sugar", 10)},
		Expiry: &expiry,
	})

	require.NoError(t, err)
	assert.Equal(t, "INV-0001", b.Code)
	assert.Equal(t, domain.BatchKindArrival, b.Kind)
	assert.True(t, env.quantity(t, "flour").Equal(qty(25)))
	assert.True(t, env.quantity(t, "sugar").Equal(qty(13)))
	assert.Len(t, stockMoves(env), 2)
	assert.Equal(t, 2, env.sink.Count(messaging.EventStockReceived))

	got, err := env.arrivals.GetArrival(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, got.Refs, 2)
}

func TestArrival_RejectsEmptyAndUnknownMaterials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.arrivals.RecordArrival(ctx, ArrivalInput{})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = env.arrivals.RecordArrival(ctx, ArrivalInput{Lines: []LineInput{line("ghost", 1)}})
	assert.True(t, errors.IsNotFound(err))

	_, total, err := env.arrivals.ListArrivals(ctx, domain.Page{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestArrival_DeleteAfterConsumptionIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 0, 0)

	arrival, err := env.arrivals.RecordArrival(ctx, ArrivalInput{Lines: []LineInput{line("flour", 10)}})
	require.NoError(t, err)
	_, err = env.production.CreateRun(ctx, ProductionInput{Consumed: []LineInput{line("flour", 8)}})
	require.NoError(t, err)

	err = env.arrivals.DeleteArrival(ctx, arrival.ID)

	assert.ErrorIs(t, err, errors.ErrInsufficientStock)
	assert.True(t, env.quantity(t, "flour").Equal(qty(2)))
	_, err = env.arrivals.GetArrival(ctx, arrival.ID)
	assert.NoError(t, err, "arrival must survive a rejected delete")
}

func TestArrival_DeleteRestoresStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 5, 0)

	arrival, err := env.arrivals.RecordArrival(ctx, ArrivalInput{Lines: []LineInput{line("flour", 10)}})
	require.NoError(t, err)

	require.NoError(t, env.arrivals.DeleteArrival(ctx, arrival.ID))
	assert.True(t, env.quantity(t, "flour").Equal(qty(5)))

	_, err = env.arrivals.GetArrival(ctx, arrival.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestArrival_UpdateMovesNetDifference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 0, 0)
	env.seed("salt", 0, 0)

	arrival, err := env.arrivals.RecordArrival(ctx, ArrivalInput{Lines: []LineInput{line("flour", 10)}})
	require.NoError(t, err)

	updated, err := env.arrivals.UpdateArrival(ctx, arrival.ID, ArrivalInput{
		Lines: []LineInput{line("flour", 6), line("salt", 2)},
		Notes: "short delivery",
	})

	require.NoError(t, err)
	assert.Equal(t, arrival.Code, updated.Code)
	assert.True(t, env.quantity(t, "flour").Equal(qty(6)))
	assert.True(t, env.quantity(t, "salt").Equal(qty(2)))
}

// failingBatches rejects every batch write
type failingBatches struct {
	BatchStore
}

func (f *failingBatches) Create(ctx context.Context, b *domain.StockBatch) error {
	return fmt.Errorf("disk full")
}

func (f *failingBatches) Update(ctx context.Context, b *domain.StockBatch) error {
	return fmt.Errorf("disk full")
}

func TestArrival_FailedRecordWriteUndoesLedgerMove(t *testing.T) {
	env := newTestEnvWith(t, nil, func(inner BatchStore) BatchStore {
		return &failingBatches{BatchStore: inner}
	})
	ctx := context.Background()
	env.seed("flour", 4, 0)

	_, err := env.arrivals.RecordArrival(ctx, ArrivalInput{Lines: []LineInput{line("flour", 10)}})

	require.Error(t, err)
	assert.True(t, env.quantity(t, "flour").Equal(qty(4)))
	assert.Zero(t, env.sink.Count(messaging.EventStockReceived))

	// the burned code is not reused
	next, err := env.issuer.Issue(ctx, NamespaceInventory)
	require.NoError(t, err)
	assert.Equal(t, "INV-0002", next)
}

func TestProduction_CreateRunConsumesAndProduces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 100, 0)
	env.seed("bread", 0, 0)

	run, err := env.production.CreateRun(ctx, ProductionInput{
		Consumed: []LineInput{line("flour", 5)},
		Produced: &LineInput{MaterialID: "bread", Quantity: qty(12)},
	})

	require.NoError(t, err)
	assert.Equal(t, "PRO-0001", run.Code)
	assert.True(t, env.quantity(t, "flour").Equal(qty(95)))
	assert.True(t, env.quantity(t, "bread").Equal(qty(12)))

	notices := env.unreadAlerts(t, run.ID, domain.AlertTypeInformational)
	require.Len(t, notices, 1)
	assert.Equal(t, "Production run PRO-0001 complete", notices[0].Message)
}

func TestProduction_ShortMaterialLeavesEverythingUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 100, 0)
	env.seed("yeast", 1, 0)

	_, err := env.production.CreateRun(ctx, ProductionInput{
		Consumed: []LineInput{line("flour", 50), line("yeast", 2)},
	})

	assert.ErrorIs(t, err, errors.ErrInsufficientStock)
	assert.True(t, env.quantity(t, "flour").Equal(qty(100)))
	assert.True(t, env.quantity(t, "yeast").Equal(qty(1)))
	assert.Empty(t, stockMoves(env))
}

func TestProduction_EditRunAppliesOnlyTheNetChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 100, 0)

	run, err := env.production.CreateRun(ctx, ProductionInput{Consumed: []LineInput{line("flour", 5)}})
	require.NoError(t, err)
	env.sink.Reset()

	_, err = env.production.EditRun(ctx, run.ID, ProductionInput{Consumed: []LineInput{line("flour", 8)}})

	require.NoError(t, err)
	assert.True(t, env.quantity(t, "flour").Equal(qty(92)))
	moves := stockMoves(env)
	require.Len(t, moves, 1)
	assert.Equal(t, "-3", moves[0].Delta)
	assert.Equal(t, "92", moves[0].NewQuantity)
	assert.Equal(t, run.Code, moves[0].Reference)
}

// readBarrier holds every armed GetByID until all expected readers have
// loaded the batch, so concurrent edits start from the same lines
type readBarrier struct {
	BatchStore
	armed atomic.Bool
	reads sync.WaitGroup
}

func (g *readBarrier) GetByID(ctx context.Context, id string) (*domain.StockBatch, error) {
	b, err := g.BatchStore.GetByID(ctx, id)
	if g.armed.Load() {
		g.reads.Done()
		g.reads.Wait()
	}
	return b, err
}

func TestProduction_ConcurrentEditsApplyTheNetChangeOnce(t *testing.T) {
	var gate *readBarrier
	env := newTestEnvWith(t, nil, func(inner BatchStore) BatchStore {
		gate = &readBarrier{BatchStore: inner}
		return gate
	})
	ctx := context.Background()
	env.seed("jackfruit", 100, 0)

	run, err := env.production.CreateRun(ctx, ProductionInput{Consumed: []LineInput{line("jackfruit", 5)}})
	require.NoError(t, err)

	gate.reads.Add(2)
	gate.armed.Store(true)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.production.EditRun(ctx, run.ID, ProductionInput{
				Consumed: []LineInput{line("jackfruit", 8)},
			})
		}(i)
	}
	wg.Wait()
	gate.armed.Store(false)

	conflicts := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, errors.ErrConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts)

	got, err := env.production.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got.Refs, 1)
	assert.True(t, got.Refs[0].Quantity.Equal(qty(8)))
	assert.True(t, env.quantity(t, "jackfruit").Equal(qty(92)), "ledger must match the recorded run")
}

// touchAfterRead bumps the stored batch right after it was read, as a
// concurrent edit would
type touchAfterRead struct {
	BatchStore
	armed atomic.Bool
}

func (w *touchAfterRead) GetByID(ctx context.Context, id string) (*domain.StockBatch, error) {
	b, err := w.BatchStore.GetByID(ctx, id)
	if err == nil && w.armed.Load() {
		other := *b
		other.Notes = "edited elsewhere"
		if err := w.BatchStore.Update(ctx, &other); err != nil {
			return nil, err
		}
	}
	return b, err
}

func TestProduction_DeleteRunLosingToAnEditIsUndone(t *testing.T) {
	var touch *touchAfterRead
	env := newTestEnvWith(t, nil, func(inner BatchStore) BatchStore {
		touch = &touchAfterRead{BatchStore: inner}
		return touch
	})
	ctx := context.Background()
	env.seed("jackfruit", 100, 0)

	run, err := env.production.CreateRun(ctx, ProductionInput{Consumed: []LineInput{line("jackfruit", 5)}})
	require.NoError(t, err)

	touch.armed.Store(true)
	err = env.production.DeleteRun(ctx, run.ID)
	touch.armed.Store(false)

	assert.ErrorIs(t, err, errors.ErrConflict)
	assert.True(t, env.quantity(t, "jackfruit").Equal(qty(95)))
	_, err = env.production.GetRun(ctx, run.ID)
	assert.NoError(t, err)
}

func TestProduction_EditRunWithoutNetChangeMovesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 100, 0)

	run, err := env.production.CreateRun(ctx, ProductionInput{Consumed: []LineInput{line("flour", 5)}})
	require.NoError(t, err)
	env.sink.Reset()

	_, err = env.production.EditRun(ctx, run.ID, ProductionInput{
		Consumed: []LineInput{line("flour", 2), line("flour", 3)},
		Notes:    "split lines",
	})

	require.NoError(t, err)
	assert.True(t, env.quantity(t, "flour").Equal(qty(95)))
	assert.Empty(t, stockMoves(env))
}

func TestProduction_DeleteRunRestoresMaterials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 100, 0)

	run, err := env.production.CreateRun(ctx, ProductionInput{Consumed: []LineInput{line("flour", 40)}})
	require.NoError(t, err)

	require.NoError(t, env.production.DeleteRun(ctx, run.ID))
	assert.True(t, env.quantity(t, "flour").Equal(qty(100)))
}

func TestProduction_ArrivalIsNotARun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 0, 0)

	arrival, err := env.arrivals.RecordArrival(ctx, ArrivalInput{Lines: []LineInput{line("flour", 1)}})
	require.NoError(t, err)

	_, err = env.production.GetRun(ctx, arrival.ID)
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(env.production.DeleteRun(ctx, arrival.ID)))
}

func TestProduction_ConsumingIntoLowStockAlerts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("banana", 100, 20)

	_, err := env.production.CreateRun(ctx, ProductionInput{Consumed: []LineInput{line("banana", 90)}})
	require.NoError(t, err)
	_, err = env.production.CreateRun(ctx, ProductionInput{Consumed: []LineInput{line("banana", 1)}})
	require.NoError(t, err)

	assert.Len(t, env.unreadAlerts(t, "banana", domain.AlertTypeLowStock), 1)
}

func TestCorrection_RecordsMovement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 10, 0)

	res, err := env.correction.Correct(ctx, CorrectionInput{MaterialID: "flour", Delta: qty(-4), Reason: "spillage"}, "user-1")

	require.NoError(t, err)
	assert.Equal(t, "SM-1", res.Movement.Code)
	assert.Equal(t, "user-1", res.Movement.CreatedBy)
	assert.True(t, res.Material.Quantity.Equal(qty(6)))
	assert.Equal(t, 1, env.sink.Count(messaging.EventStockConsumed))

	movements, total, err := env.correction.ListMovements(ctx, "flour", domain.Page{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "SM-1", movements[0].Code)
}

func TestCorrection_RejectsInsteadOfClamping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("flour", 3, 0)

	_, err := env.correction.Correct(ctx, CorrectionInput{MaterialID: "flour", Delta: qty(-5), Reason: "recount"}, "user-1")

	assert.ErrorIs(t, err, errors.ErrInsufficientStock)
	assert.True(t, env.quantity(t, "flour").Equal(qty(3)))

	_, total, err := env.correction.ListMovements(ctx, "flour", domain.Page{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCorrection_ZeroDeltaIsInvalid(t *testing.T) {
	env := newTestEnv(t)
	env.seed("flour", 3, 0)

	_, err := env.correction.Correct(context.Background(), CorrectionInput{MaterialID: "flour", Reason: "noop"}, "user-1")

	assert.ErrorIs(t, err, errors.ErrValidation)
	env.sink.AssertNoEventsPublished(t)
}

func TestCatalogue_CreateMaterialStartsEmptyAndLow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	m, err := env.catalogue.CreateMaterial(ctx, CreateMaterialInput{Name: "  Cocoa ", Unit: "kg", ReorderLevel: qty(5)})

	require.NoError(t, err)
	assert.Equal(t, "Cocoa", m.Name)
	assert.True(t, m.Quantity.IsZero())
	assert.Len(t, env.unreadAlerts(t, m.ID, domain.AlertTypeLowStock), 1)

	_, err = env.catalogue.CreateMaterial(ctx, CreateMaterialInput{Name: "cocoa"})
	assert.ErrorIs(t, err, errors.ErrConflict)

	_, err = env.catalogue.CreateMaterial(ctx, CreateMaterialInput{Name: "Salt", ReorderLevel: qty(-1)})
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestCatalogue_RaisingReorderLevelAlerts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed("rice", 30, 10)

	_, err := env.catalogue.UpdateReorderLevel(ctx, "rice", qty(40))

	require.NoError(t, err)
	assert.Len(t, env.unreadAlerts(t, "rice", domain.AlertTypeLowStock), 1)

	_, err = env.catalogue.UpdateReorderLevel(ctx, "ghost", qty(1))
	assert.True(t, errors.IsNotFound(err))
}

func TestUseCases_ConcurrentRunsNeverOversell(t *testing.T) {
	env := newTestEnv(t)
	env.seed("flour", 20, 0)

	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, err := env.production.CreateRun(context.Background(), ProductionInput{Consumed: []LineInput{line("flour", 3)}})
			results <- err
		}()
	}

	ok := 0
	for i := 0; i < 10; i++ {
		select {
		case err := <-results:
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, errors.ErrInsufficientStock)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for runs")
		}
	}

	assert.Equal(t, 6, ok)
	assert.True(t, env.quantity(t, "flour").Equal(qty(2)))
}
