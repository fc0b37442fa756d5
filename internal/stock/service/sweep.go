package service

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/internal/stock/events"
	"github.com/harvestline/harvestline-backend/pkg/logger"
	"github.com/harvestline/harvestline-backend/pkg/telemetry"
)

// ErrSweepInProgress is returned when a detection pass is requested while
// the same sweep is still running one
var ErrSweepInProgress = stderrors.New("sweep already in progress")

const defaultSweepPageSize = 200

// Sweep re-derives alerts from the whole ledger. A pass is idempotent: the
// alert store's deduplication makes re-evaluating a subject harmless, so a
// pass can run at any time and be repeated after a partial failure.
type Sweep struct {
	materials MaterialStore
	batches   BatchStore
	engine    *NotificationEngine
	publisher *events.StockEventPublisher
	pageSize  int
	running   atomic.Bool
	metrics   sweepMetrics
	logger    *logger.Logger
}

type sweepMetrics struct {
	runs     metric.Int64Counter
	checked  metric.Int64Counter
	alerts   metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// NewSweep creates a reconciliation sweep reading pageSize rows at a time
func NewSweep(
	materials MaterialStore,
	batches BatchStore,
	engine *NotificationEngine,
	publisher *events.StockEventPublisher,
	pageSize int,
	log *logger.Logger,
) *Sweep {
	if pageSize <= 0 {
		pageSize = defaultSweepPageSize
	}

	s := &Sweep{
		materials: materials,
		batches:   batches,
		engine:    engine,
		publisher: publisher,
		pageSize:  pageSize,
		logger:    log.WithComponent("sweep"),
	}
	s.metrics = s.newMetrics()
	return s
}

func (s *Sweep) newMetrics() sweepMetrics {
	m, err := buildSweepMetrics(otel.Meter(telemetry.InstrumentationName))
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to create sweep instruments, metrics disabled")
		m, _ = buildSweepMetrics(noop.NewMeterProvider().Meter(telemetry.InstrumentationName))
	}
	return m
}

func buildSweepMetrics(meter metric.Meter) (sweepMetrics, error) {
	var (
		m    sweepMetrics
		errs [5]error
	)
	m.runs, errs[0] = meter.Int64Counter("stock.sweep.runs", metric.WithDescription("Completed detection passes"))
	m.checked, errs[1] = meter.Int64Counter("stock.sweep.items_checked", metric.WithDescription("Materials and batches evaluated"))
	m.alerts, errs[2] = meter.Int64Counter("stock.sweep.alerts", metric.WithDescription("Alerts opened or refreshed by the sweep"))
	m.failures, errs[3] = meter.Int64Counter("stock.sweep.failures", metric.WithDescription("Items whose evaluation failed"))
	m.duration, errs[4] = meter.Float64Histogram("stock.sweep.duration", metric.WithUnit("s"), metric.WithDescription("Detection pass duration"))
	return m, stderrors.Join(errs[:]...)
}

// RunDetectionPass evaluates every material and every batch expiring within
// the alert window. Per-item failures are logged and counted and the pass
// carries on. Cancellation is checked between pages.
func (s *Sweep) RunDetectionPass(ctx context.Context) (domain.SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.SweepResult{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	result := domain.SweepResult{StartedAt: time.Now().UTC()}

	err := s.sweepMaterials(ctx, &result)
	if err == nil {
		err = s.sweepBatches(ctx, &result)
	}

	result.FinishedAt = time.Now().UTC()
	s.record(ctx, result, err)

	if err != nil {
		s.logger.Warn().Err(err).
			Int("materials_checked", result.MaterialsChecked).
			Int("batches_checked", result.BatchesChecked).
			Msg("detection pass aborted")
		return result, err
	}

	s.logger.Info().
		Int("materials_checked", result.MaterialsChecked).
		Int("batches_checked", result.BatchesChecked).
		Int("alerts_opened", result.AlertsOpened).
		Int("alerts_refreshed", result.AlertsRefreshed).
		Int("failures", result.Failures).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("detection pass completed")
	s.publisher.PublishSweepCompleted(ctx, result)
	return result, nil
}

func (s *Sweep) sweepMaterials(ctx context.Context, result *domain.SweepResult) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.materials.ListAfter(ctx, after, s.pageSize)
		if err != nil {
			return err
		}

		for _, m := range page {
			result.MaterialsChecked++
			outcome, err := s.engine.EvaluateMaterial(ctx, m)
			if err != nil {
				result.Failures++
				s.logger.Error().Err(err).Str("material_id", m.ID).Msg("sweep: low stock evaluation failed")
				continue
			}
			countOutcome(result, outcome)
		}

		if len(page) < s.pageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func (s *Sweep) sweepBatches(ctx context.Context, result *domain.SweepResult) error {
	cutoff := domain.ExpiryCutoff(s.engine.ExpiryWindowDays(), s.engine.now())

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.batches.ListExpiringAfter(ctx, cutoff, after, s.pageSize)
		if err != nil {
			return err
		}

		for _, b := range page {
			result.BatchesChecked++
			outcome, err := s.engine.EvaluateBatch(ctx, b)
			if err != nil {
				result.Failures++
				s.logger.Error().Err(err).Str("batch_id", b.ID).Msg("sweep: expiry evaluation failed")
				continue
			}
			countOutcome(result, outcome)
		}

		if len(page) < s.pageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func countOutcome(result *domain.SweepResult, outcome domain.AlertOutcome) {
	switch outcome {
	case domain.AlertOpened:
		result.AlertsOpened++
	case domain.AlertRefreshed:
		result.AlertsRefreshed++
	}
}

func (s *Sweep) record(ctx context.Context, r domain.SweepResult, err error) {
	ctx = context.WithoutCancel(ctx)

	status := attribute.String("status", "ok")
	if err != nil {
		status = attribute.String("status", "aborted")
	}
	s.metrics.runs.Add(ctx, 1, metric.WithAttributes(status))
	s.metrics.checked.Add(ctx, int64(r.MaterialsChecked), metric.WithAttributes(attribute.String("kind", "material")))
	s.metrics.checked.Add(ctx, int64(r.BatchesChecked), metric.WithAttributes(attribute.String("kind", "batch")))
	s.metrics.alerts.Add(ctx, int64(r.AlertsOpened), metric.WithAttributes(attribute.String("outcome", "opened")))
	s.metrics.alerts.Add(ctx, int64(r.AlertsRefreshed), metric.WithAttributes(attribute.String("outcome", "refreshed")))
	s.metrics.failures.Add(ctx, int64(r.Failures))
	s.metrics.duration.Record(ctx, r.FinishedAt.Sub(r.StartedAt).Seconds())
}
