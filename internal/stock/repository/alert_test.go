package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/internal/stock/repository"
	"github.com/harvestline/harvestline-backend/pkg/errors"
	"github.com/harvestline/harvestline-backend/pkg/testutil"
)

func TestAlertRepository_OpenIfAbsent(t *testing.T) {
	fixtures := testutil.NewFixtureFactory()

	t.Run("inserts when nothing is open", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		a := fixtures.Alert(testutil.WithSubject("banana"))
		mockDB.ExpectQuery("ON CONFLICT (subject_id, type) WHERE is_read = FALSE AND type <> 'informational' DO NOTHING RETURNING id").
			WithArgs(a.ID, domain.AlertTypeLowStock, "banana", a.Message, a.CreatedAt).
			WillReturnRows(testutil.MockRows("id").AddRow(a.ID))

		repo := repository.NewAlertRepository(mockDB.Wrapped())
		opened, err := repo.OpenIfAbsent(context.Background(), a)

		require.NoError(t, err)
		assert.True(t, opened)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("no row means one is already open", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("INSERT INTO alerts").
			WillReturnError(sql.ErrNoRows)

		repo := repository.NewAlertRepository(mockDB.Wrapped())
		opened, err := repo.OpenIfAbsent(context.Background(), fixtures.Alert())

		require.NoError(t, err)
		assert.False(t, opened)
		mockDB.ExpectationsWereMet(t)
	})
}

func TestAlertRepository_OpenOrRefresh(t *testing.T) {
	fixtures := testutil.NewFixtureFactory()
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	notBefore := now.Add(-24 * time.Hour)

	tests := []struct {
		name string
		row  []driver.Value
		err  error
		want domain.AlertOutcome
	}{
		{name: "fresh insert", row: []driver.Value{"new-id", true}, want: domain.AlertOpened},
		{name: "refreshed in place", row: []driver.Value{"old-id", false}, want: domain.AlertRefreshed},
		{name: "recent alert exists", err: sql.ErrNoRows, want: domain.AlertUnchanged},
		{name: "conflicting alert is fresh", err: sql.ErrNoRows, want: domain.AlertUnchanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB := testutil.NewMockDB(t)
			defer mockDB.Close()

			a := fixtures.Alert(
				testutil.WithAlertType(domain.AlertTypeExpiring),
				testutil.WithCreatedAt(now),
			)

			exp := mockDB.ExpectQuery("WHERE alerts.created_at <= $6").
				WithArgs(a.ID, domain.AlertTypeExpiring, a.SubjectID, a.Message, now, notBefore)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnRows(testutil.MockRows("id", "inserted").AddRow(tt.row...))
			}

			repo := repository.NewAlertRepository(mockDB.Wrapped())
			outcome, err := repo.OpenOrRefresh(context.Background(), a, notBefore)

			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)
			if tt.err == nil {
				assert.Equal(t, tt.row[0], a.ID)
			}
			mockDB.ExpectationsWereMet(t)
		})
	}
}

func TestAlertRepository_MarkRead_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("UPDATE alerts SET is_read = TRUE, read_at = COALESCE(read_at, $2)").
		WithArgs("missing", testutil.AnyTime{}).
		WillReturnError(sql.ErrNoRows)

	repo := repository.NewAlertRepository(mockDB.Wrapped())
	_, err := repo.MarkRead(context.Background(), "missing", time.Now())

	assert.True(t, errors.IsNotFound(err))
	mockDB.ExpectationsWereMet(t)
}

func TestAlertRepository_Delete_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec("DELETE FROM alerts WHERE id = $1").
		WithArgs("missing").
		WillReturnResult(sqlmockResult(0))

	repo := repository.NewAlertRepository(mockDB.Wrapped())
	err := repo.Delete(context.Background(), "missing")

	assert.True(t, errors.IsNotFound(err))
	mockDB.ExpectationsWereMet(t)
}

func TestAlertRepository_List_Filters(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT COUNT(*) FROM alerts WHERE type = $1 AND is_read = $2").
		WithArgs(domain.AlertTypeLowStock, false).
		WillReturnRows(testutil.MockRows("count").AddRow(int64(1)))
	mockDB.ExpectQuery("ORDER BY created_at DESC, id LIMIT $3 OFFSET $4").
		WithArgs(domain.AlertTypeLowStock, false, 10, 10).
		WillReturnRows(testutil.MockRows("id", "type", "subject_id", "message", "is_read", "created_at", "read_at").
			AddRow("a1", "low_stock", "banana", "low", false, time.Now(), nil))

	repo := repository.NewAlertRepository(mockDB.Wrapped())
	alerts, total, err := repo.List(context.Background(), domain.AlertFilter{
		Type:    domain.AlertTypeLowStock,
		Unread:  testutil.PtrBool(true),
		Page:    2,
		PerPage: 10,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, alerts, 1)
	assert.Nil(t, alerts[0].ReadAt)
	mockDB.ExpectationsWereMet(t)
}
