package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
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

func sqlmockResult(rows int64) driver.Result {
	return sqlmock.NewResult(0, rows)
}

func TestBatchRepository_Create(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	fixtures := testutil.NewFixtureFactory()
	b := fixtures.Batch(
		testutil.WithRef("banana", 5, domain.DirectionReceive),
		testutil.WithRef("flour", 2, domain.DirectionReceive),
	)
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO stock_batches (id, code, kind, expiry, notes)").
		WithArgs(b.ID, b.Code, domain.BatchKindArrival, nil, "").
		WillReturnRows(testutil.MockRows("version", "created_at", "updated_at").AddRow(1, now, now))
	mockDB.ExpectExec("INSERT INTO stock_batch_refs").
		WithArgs(b.ID, 1, "banana", decimal.NewFromInt(5), domain.DirectionReceive).
		WillReturnResult(sqlmockResult(1))
	mockDB.ExpectExec("INSERT INTO stock_batch_refs").
		WithArgs(b.ID, 2, "flour", decimal.NewFromInt(2), domain.DirectionReceive).
		WillReturnResult(sqlmockResult(1))
	mockDB.ExpectCommit()

	repo := repository.NewBatchRepository(mockDB.Wrapped())
	require.NoError(t, repo.Create(context.Background(), b))

	assert.True(t, now.Equal(b.CreatedAt))
	assert.Equal(t, int64(1), b.Version)
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_Create_DuplicateCode(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO stock_batches").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "stock_batches_code_key"})
	mockDB.ExpectRollback()

	repo := repository.NewBatchRepository(mockDB.Wrapped())
	err := repo.Create(context.Background(), testutil.NewFixtureFactory().Batch())

	assert.ErrorIs(t, err, errors.ErrDuplicateIdentifier)
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_GetByID(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectQuery("FROM stock_batches WHERE id = $1").
		WithArgs("b1").
		WillReturnRows(testutil.MockRows("id", "code", "kind", "expiry", "notes", "version", "created_at", "updated_at").
			AddRow("b1", "PRO-0003", "production", nil, "", 2, now, now))
	mockDB.ExpectQuery("FROM stock_batch_refs WHERE batch_id = $1 ORDER BY line_no").
		WithArgs("b1").
		WillReturnRows(testutil.MockRows("material_id", "quantity", "direction").
			AddRow("jackfruit", "5", "consume"))

	repo := repository.NewBatchRepository(mockDB.Wrapped())
	b, err := repo.GetByID(context.Background(), "b1")

	require.NoError(t, err)
	assert.Equal(t, domain.BatchKindProduction, b.Kind)
	assert.Nil(t, b.Expiry)
	assert.Equal(t, int64(2), b.Version)
	require.Len(t, b.Refs, 1)
	assert.True(t, b.Refs[0].Delta().Equal(decimal.NewFromInt(-5)))
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_Update_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("UPDATE stock_batches SET expiry = $2, notes = $3").
		WillReturnError(sql.ErrNoRows)
	mockDB.ExpectQuery("SELECT EXISTS (SELECT 1 FROM stock_batches WHERE id = $1)").
		WithArgs("ghost").
		WillReturnRows(testutil.MockRows("exists").AddRow(false))
	mockDB.ExpectRollback()

	repo := repository.NewBatchRepository(mockDB.Wrapped())
	err := repo.Update(context.Background(), &domain.StockBatch{ID: "ghost", Version: 1})

	assert.True(t, errors.IsNotFound(err))
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_Update_StaleVersion(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("WHERE id = $1 AND version = $4").
		WithArgs("b1", nil, "", int64(1)).
		WillReturnError(sql.ErrNoRows)
	mockDB.ExpectQuery("SELECT EXISTS (SELECT 1 FROM stock_batches WHERE id = $1)").
		WithArgs("b1").
		WillReturnRows(testutil.MockRows("exists").AddRow(true))
	mockDB.ExpectRollback()

	repo := repository.NewBatchRepository(mockDB.Wrapped())
	err := repo.Update(context.Background(), &domain.StockBatch{ID: "b1", Version: 1})

	assert.ErrorIs(t, err, errors.ErrConflict)
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_Update_BumpsVersion(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("version = version + 1").
		WithArgs("b1", nil, "", int64(3)).
		WillReturnRows(testutil.MockRows("version", "updated_at").AddRow(4, now))
	mockDB.ExpectExec("DELETE FROM stock_batch_refs WHERE batch_id = $1").
		WithArgs("b1").
		WillReturnResult(sqlmockResult(1))
	mockDB.ExpectExec("INSERT INTO stock_batch_refs").
		WithArgs("b1", 1, "jackfruit", decimal.NewFromInt(8), domain.DirectionConsume).
		WillReturnResult(sqlmockResult(1))
	mockDB.ExpectCommit()

	repo := repository.NewBatchRepository(mockDB.Wrapped())
	b := &domain.StockBatch{
		ID:      "b1",
		Version: 3,
		Refs:    []domain.MaterialRef{testutil.Ref("jackfruit", 8, domain.DirectionConsume)},
	}
	require.NoError(t, repo.Update(context.Background(), b))

	assert.Equal(t, int64(4), b.Version)
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_Delete_StaleVersion(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectExec("DELETE FROM stock_batches WHERE id = $1 AND version = $2").
		WithArgs("b1", int64(1)).
		WillReturnResult(sqlmockResult(0))
	mockDB.ExpectQuery("SELECT EXISTS (SELECT 1 FROM stock_batches WHERE id = $1)").
		WithArgs("b1").
		WillReturnRows(testutil.MockRows("exists").AddRow(true))
	mockDB.ExpectRollback()

	repo := repository.NewBatchRepository(mockDB.Wrapped())
	err := repo.Delete(context.Background(), "b1", 1)

	assert.ErrorIs(t, err, errors.ErrConflict)
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_ListExpiringAfter(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	cutoff := time.Date(2026, 5, 17, 0, 0, 0, 0, time.UTC)
	expiry := cutoff.Add(-48 * time.Hour)

	mockDB.ExpectQuery("WHERE expiry IS NOT NULL AND expiry <= $1 AND id > $2").
		WithArgs(cutoff, "", 50).
		WillReturnRows(testutil.MockRows("id", "code", "kind", "expiry", "notes", "version", "created_at", "updated_at").
			AddRow("b1", "INV-0001", "arrival", expiry, "", 1, expiry, expiry))

	repo := repository.NewBatchRepository(mockDB.Wrapped())
	got, err := repo.ListExpiringAfter(context.Background(), cutoff, "", 50)

	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Expiry)
	assert.True(t, got[0].Expiry.Equal(expiry))
	mockDB.ExpectationsWereMet(t)
}

func TestMovementRepository_Create_DuplicateCode(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO stock_movements").
		WithArgs(testutil.AnyUUID{}, "SM-4", "banana", sqlmock.AnyArg(), "spoilage", "user-1").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "stock_movements_code_key"})

	repo := repository.NewMovementRepository(mockDB.Wrapped())
	err := repo.Create(context.Background(), &domain.StockMovement{
		Code:       "SM-4",
		MaterialID: "banana",
		Delta:      decimal.NewFromInt(-2),
		Reason:     "spoilage",
		CreatedBy:  "user-1",
	})

	assert.ErrorIs(t, err, errors.ErrDuplicateIdentifier)
	mockDB.ExpectationsWereMet(t)
}
