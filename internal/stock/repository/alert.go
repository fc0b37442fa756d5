package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/database"
	"github.com/harvestline/harvestline-backend/pkg/errors"
)

const alertColumns = `id, type, subject_id, message, is_read, created_at, read_at`

// openConflict matches the alerts_one_open partial unique index
const openConflict = `ON CONFLICT (subject_id, type) WHERE is_read = FALSE AND type <> 'informational'`

// AlertRepository handles alert persistence. Deduplication is enforced by
// the alerts_one_open index, never by a read-then-write.
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts an alert unconditionally. Meant for informational alerts;
// a deduplicated type hitting an open alert returns Conflict.
func (r *AlertRepository) Create(ctx context.Context, a *domain.Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	query := `
		INSERT INTO alerts (id, type, subject_id, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, a.ID, a.Type, a.SubjectID, a.Message, a.CreatedAt); err != nil {
		return database.Classify(fmt.Errorf("create alert: %w", err))
	}
	return nil
}

// OpenIfAbsent inserts a as an unread alert unless one is already open for
// its subject and type. Reports whether a row was inserted.
func (r *AlertRepository) OpenIfAbsent(ctx context.Context, a *domain.Alert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	query := `
		INSERT INTO alerts (id, type, subject_id, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		` + openConflict + ` DO NOTHING
		RETURNING id
	`

	var id string
	err := r.db.QueryRowxContext(ctx, query, a.ID, a.Type, a.SubjectID, a.Message, a.CreatedAt).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, database.Classify(fmt.Errorf("open alert: %w", err))
	}
	return true, nil
}

// OpenOrRefresh implements the rolling reminder. If any alert for the
// subject and type was created after notBefore, nothing happens. Otherwise
// a new unread alert is inserted, or, when an older unread one is still
// open, that one is refreshed in place with a's message and timestamp.
// A writer that loses the insert race to a fresh alert refreshes nothing.
// On return a.ID is the affected alert's ID.
func (r *AlertRepository) OpenOrRefresh(ctx context.Context, a *domain.Alert, notBefore time.Time) (domain.AlertOutcome, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	query := `
		INSERT INTO alerts (id, type, subject_id, message, is_read, created_at)
		SELECT $1, $2, $3, $4, FALSE, $5::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts
			WHERE subject_id = $3 AND type = $2 AND created_at > $6
		)
		` + openConflict + ` DO UPDATE
			SET message = EXCLUDED.message, created_at = EXCLUDED.created_at
			WHERE alerts.created_at <= $6
		RETURNING id, (xmax = 0) AS inserted
	`

	var row struct {
		ID       string `db:"id"`
		Inserted bool   `db:"inserted"`
	}
	err := r.db.QueryRowxContext(ctx, query, a.ID, a.Type, a.SubjectID, a.Message, a.CreatedAt, notBefore).StructScan(&row)
	if err == sql.ErrNoRows {
		return domain.AlertUnchanged, nil
	}
	if err != nil {
		return domain.AlertUnchanged, database.Classify(fmt.Errorf("open or refresh alert: %w", err))
	}

	a.ID = row.ID
	if row.Inserted {
		return domain.AlertOpened, nil
	}
	return domain.AlertRefreshed, nil
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	var a domain.Alert
	if err := r.db.GetContext(ctx, &a, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("alert")
		}
		return nil, database.Classify(fmt.Errorf("get alert: %w", err))
	}
	return &a, nil
}

// MarkRead closes an alert. Marking an already read alert keeps its
// original read time.
func (r *AlertRepository) MarkRead(ctx context.Context, id string, at time.Time) (*domain.Alert, error) {
	query := `
		UPDATE alerts SET is_read = TRUE, read_at = COALESCE(read_at, $2)
		WHERE id = $1
		RETURNING ` + alertColumns

	var a domain.Alert
	if err := r.db.GetContext(ctx, &a, query, id, at); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("alert")
		}
		return nil, database.Classify(fmt.Errorf("mark alert read: %w", err))
	}
	return &a, nil
}

// Delete removes an alert
func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return database.Classify(fmt.Errorf("delete alert: %w", err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return database.Classify(err)
	}
	if rows == 0 {
		return errors.NotFound("alert")
	}
	return nil
}

// List lists alerts newest first
func (r *AlertRepository) List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, int64, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Type != "" {
		conds = append(conds, "type = "+arg(filter.Type))
	}
	if filter.SubjectID != "" {
		conds = append(conds, "subject_id = "+arg(filter.SubjectID))
	}
	if filter.Unread != nil {
		conds = append(conds, "is_read = "+arg(!*filter.Unread))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM alerts`+where, args...); err != nil {
		return nil, 0, database.Classify(fmt.Errorf("count alerts: %w", err))
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	query := `SELECT ` + alertColumns + ` FROM alerts` + where +
		` ORDER BY created_at DESC, id LIMIT ` + arg(perPage) + ` OFFSET ` + arg((page-1)*perPage)

	alerts := []*domain.Alert{}
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, database.Classify(fmt.Errorf("list alerts: %w", err))
	}
	return alerts, total, nil
}
