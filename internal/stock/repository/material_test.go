package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/internal/stock/repository"
	"github.com/harvestline/harvestline-backend/pkg/errors"
	"github.com/harvestline/harvestline-backend/pkg/testutil"
)

var materialCols = []string{"id", "name", "quantity", "unit", "reorder_level", "created_at", "updated_at"}

func TestMaterialRepository_ApplyDelta(t *testing.T) {
	now := time.Now()

	t.Run("applies when stock suffices", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("SET quantity = quantity + $2, updated_at = NOW() WHERE id = $1 AND quantity + $2 >= 0").
			WithArgs("banana", decimal.NewFromInt(-90)).
			WillReturnRows(testutil.MockRows(materialCols...).
				AddRow("banana", "Banana", "10", "kg", "20", now, now))

		repo := repository.NewMaterialRepository(mockDB.Wrapped())
		m, err := repo.ApplyDelta(context.Background(), "banana", decimal.NewFromInt(-90))

		require.NoError(t, err)
		assert.True(t, m.Quantity.Equal(decimal.NewFromInt(10)))
		assert.True(t, m.IsLow())
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("insufficient stock leaves the row alone", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("UPDATE materials SET quantity").
			WithArgs("banana", decimal.NewFromInt(-20)).
			WillReturnError(sql.ErrNoRows)
		mockDB.ExpectQuery("SELECT quantity FROM materials WHERE id = $1").
			WithArgs("banana").
			WillReturnRows(testutil.MockRows("quantity").AddRow("10"))

		repo := repository.NewMaterialRepository(mockDB.Wrapped())
		_, err := repo.ApplyDelta(context.Background(), "banana", decimal.NewFromInt(-20))

		require.ErrorIs(t, err, errors.ErrInsufficientStock)
		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "10", appErr.Details["available"])
		assert.Equal(t, "20", appErr.Details["requested"])
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("unknown material", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("UPDATE materials SET quantity").
			WillReturnError(sql.ErrNoRows)
		mockDB.ExpectQuery("SELECT quantity FROM materials").
			WillReturnError(sql.ErrNoRows)

		repo := repository.NewMaterialRepository(mockDB.Wrapped())
		_, err := repo.ApplyDelta(context.Background(), "ghost", decimal.NewFromInt(5))

		assert.True(t, errors.IsNotFound(err))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("deadlock is retryable", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("UPDATE materials SET quantity").
			WillReturnError(&pq.Error{Code: "40P01"})

		repo := repository.NewMaterialRepository(mockDB.Wrapped())
		_, err := repo.ApplyDelta(context.Background(), "banana", decimal.NewFromInt(5))

		assert.True(t, errors.IsRetryable(err))
	})
}

func TestMaterialRepository_Create(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectQuery("INSERT INTO materials (id, name, quantity, unit, reorder_level)").
		WithArgs(testutil.AnyUUID{}, "Jackfruit", "kg", decimal.NewFromInt(5)).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))

	repo := repository.NewMaterialRepository(mockDB.Wrapped())
	m := &domain.MaterialStock{
		Name:         "Jackfruit",
		Quantity:     decimal.NewFromInt(99),
		Unit:         "kg",
		ReorderLevel: decimal.NewFromInt(5),
	}
	require.NoError(t, repo.Create(context.Background(), m))

	assert.NotEmpty(t, m.ID)
	assert.True(t, m.Quantity.IsZero())
	mockDB.ExpectationsWereMet(t)
}

func TestMaterialRepository_Create_DuplicateName(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO materials").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "materials_name_key"})

	repo := repository.NewMaterialRepository(mockDB.Wrapped())
	err := repo.Create(context.Background(), &domain.MaterialStock{Name: "Banana"})

	assert.ErrorIs(t, err, errors.ErrConflict)
}

func TestMaterialRepository_ListAfter(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectQuery("FROM materials WHERE id > $1 ORDER BY id LIMIT $2").
		WithArgs("m2", 2).
		WillReturnRows(testutil.MockRows(materialCols...).
			AddRow("m3", "C", "1", "kg", "0", now, now).
			AddRow("m4", "D", "2", "kg", "0", now, now))

	repo := repository.NewMaterialRepository(mockDB.Wrapped())
	got, err := repo.ListAfter(context.Background(), "m2", 2)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m3", got[0].ID)
	mockDB.ExpectationsWereMet(t)
}

func TestMaterialRepository_UpdateReorderLevel_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("UPDATE materials SET reorder_level = $2").
		WithArgs("ghost", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	repo := repository.NewMaterialRepository(mockDB.Wrapped())
	_, err := repo.UpdateReorderLevel(context.Background(), "ghost", decimal.NewFromInt(3))

	assert.True(t, errors.IsNotFound(err))
}
