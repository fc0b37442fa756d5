package service

import (
	"context"
	"fmt"
	"time"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/internal/stock/events"
	"github.com/harvestline/harvestline-backend/pkg/config"
	"github.com/harvestline/harvestline-backend/pkg/errors"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// NotificationEngine decides when low-stock, expiry and informational
// alerts are raised. Delivery is not its concern; opened alerts are
// published and stored for the UI to read.
type NotificationEngine struct {
	alerts           AlertStore
	publisher        *events.StockEventPublisher
	expiryWindowDays int
	reminderInterval time.Duration
	now              func() time.Time
	logger           *logger.Logger
}

// NewNotificationEngine creates a new notification engine
func NewNotificationEngine(alerts AlertStore, cfg config.AlertsConfig, publisher *events.StockEventPublisher, log *logger.Logger) *NotificationEngine {
	window := cfg.ExpiryWindowDays
	reminder := cfg.ReminderInterval
	if reminder <= 0 {
		reminder = 24 * time.Hour
	}

	return &NotificationEngine{
		alerts:           alerts,
		publisher:        publisher,
		expiryWindowDays: window,
		reminderInterval: reminder,
		now:              func() time.Time { return time.Now().UTC() },
		logger:           log.WithComponent("notifications"),
	}
}

// ExpiryWindowDays is how close to expiry a batch must be to alert
func (e *NotificationEngine) ExpiryWindowDays() int {
	return e.expiryWindowDays
}

// EvaluateMaterial opens a low-stock alert when the material is at or
// below its reorder level and none is open yet. An open alert keeps the
// message it was opened with.
func (e *NotificationEngine) EvaluateMaterial(ctx context.Context, m *domain.MaterialStock) (domain.AlertOutcome, error) {
	if !m.IsLow() {
		return domain.AlertUnchanged, nil
	}

	a := &domain.Alert{
		Type:      domain.AlertTypeLowStock,
		SubjectID: m.ID,
		Message:   lowStockMessage(m),
		CreatedAt: e.now(),
	}

	opened, err := e.alerts.OpenIfAbsent(ctx, a)
	if err != nil {
		return domain.AlertUnchanged, fmt.Errorf("open low stock alert for %s: %w", m.ID, err)
	}
	if !opened {
		return domain.AlertUnchanged, nil
	}

	e.logger.Info().
		Str("material_id", m.ID).
		Str("alert_type", string(a.Type)).
		Str("quantity", m.Quantity.String()).
		Msg("low stock alert opened")
	e.publisher.PublishAlertGenerated(ctx, a, false)
	return domain.AlertOpened, nil
}

// EvaluateMaterials evaluates each material after a ledger change. The
// change has already committed, so failures are logged and left for the
// sweep to retry.
func (e *NotificationEngine) EvaluateMaterials(ctx context.Context, materials []*domain.MaterialStock) {
	for _, m := range materials {
		if _, err := e.EvaluateMaterial(ctx, m); err != nil {
			e.logger.Warn().Err(err).Str("material_id", m.ID).Msg("low stock evaluation failed")
		}
	}
}

// EvaluateBatch raises an expiry reminder for a batch expiring within the
// window, expired ones included. At most one reminder is created per
// reminder interval; a stale unread reminder is refreshed in place.
func (e *NotificationEngine) EvaluateBatch(ctx context.Context, b *domain.StockBatch) (domain.AlertOutcome, error) {
	now := e.now()
	if !b.ExpiresWithin(e.expiryWindowDays, now) {
		return domain.AlertUnchanged, nil
	}

	a := &domain.Alert{
		Type:      domain.AlertTypeExpiring,
		SubjectID: b.ID,
		Message:   expiryMessage(b, now),
		CreatedAt: now,
	}

	outcome, err := e.alerts.OpenOrRefresh(ctx, a, now.Add(-e.reminderInterval))
	if err != nil {
		return domain.AlertUnchanged, fmt.Errorf("open expiry alert for %s: %w", b.ID, err)
	}
	if outcome == domain.AlertUnchanged {
		return outcome, nil
	}

	e.logger.Info().
		Str("batch_id", b.ID).
		Str("alert_type", string(a.Type)).
		Str("outcome", outcome.String()).
		Msg("expiry alert raised")
	e.publisher.PublishAlertGenerated(ctx, a, outcome == domain.AlertRefreshed)
	return outcome, nil
}

// Notify stores a one-shot informational alert. These are never
// deduplicated.
func (e *NotificationEngine) Notify(ctx context.Context, subjectID, message string) (*domain.Alert, error) {
	if subjectID == "" || message == "" {
		return nil, errors.BadRequest("subject and message are required")
	}

	a := &domain.Alert{
		Type:      domain.AlertTypeInformational,
		SubjectID: subjectID,
		Message:   message,
		CreatedAt: e.now(),
	}
	if err := e.alerts.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create informational alert: %w", err)
	}

	e.publisher.PublishAlertGenerated(ctx, a, false)
	return a, nil
}

// MarkRead closes an alert. The next evaluation of its subject may open a
// new one.
func (e *NotificationEngine) MarkRead(ctx context.Context, id string) (*domain.Alert, error) {
	return e.alerts.MarkRead(ctx, id, e.now())
}

// Delete removes an alert
func (e *NotificationEngine) Delete(ctx context.Context, id string) error {
	return e.alerts.Delete(ctx, id)
}

// List lists alerts newest first
func (e *NotificationEngine) List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, int64, error) {
	return e.alerts.List(ctx, filter)
}

func lowStockMessage(m *domain.MaterialStock) string {
	unit := ""
	if m.Unit != "" {
		unit = " " + m.Unit
	}
	return fmt.Sprintf("%s is low on stock: %s%s left, reorder level %s%s",
		m.Name, m.Quantity.String(), unit, m.ReorderLevel.String(), unit)
}

func expiryMessage(b *domain.StockBatch, now time.Time) string {
	days := domain.DaysUntil(*b.Expiry, now)
	switch {
	case days < 0:
		return fmt.Sprintf("Batch %s expired %d day(s) ago", b.Code, -days)
	case days == 0:
		return fmt.Sprintf("Batch %s expires today", b.Code)
	default:
		return fmt.Sprintf("Batch %s expires in %d day(s)", b.Code, days)
	}
}
