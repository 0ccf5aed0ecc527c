package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"tophome-storefront/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	getQuery    = `SELECT value FROM client_state WHERE key = $1`
	upsertQuery = `
		INSERT INTO client_state (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	deleteQuery      = `DELETE FROM client_state WHERE key = $1`
	deleteStaleQuery = `DELETE FROM client_state WHERE updated_at <= $1`
)

func setupStateRepositoryMocks(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare(regexp.QuoteMeta(getQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(upsertQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(deleteQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(deleteStaleQuery))
}

func newTestRepository(t *testing.T) (*StateRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	setupStateRepositoryMocks(mock)

	repo, err := NewStateRepository(db)
	require.NoError(t, err)
	return repo, mock, db
}

func TestNewStateRepository(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		repo, mock, _ := newTestRepository(t)
		assert.NotNil(t, repo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails_when_prepare_upsert_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(getQuery))
		mock.ExpectPrepare(regexp.QuoteMeta(upsertQuery)).WillReturnError(errors.New("prepare failed"))

		repo, err := NewStateRepository(db)
		require.Error(t, err)
		assert.Nil(t, repo)
		assert.Contains(t, err.Error(), "failed to prepare upsert statement")
	})
}

func TestStateRepository_Get(t *testing.T) {
	t.Run("returns_stored_value", func(t *testing.T) {
		repo, mock, _ := newTestRepository(t)

		record := []byte(`{"state":{"token":"abc"},"version":0}`)
		mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
			WithArgs("auth-storage:shopper-1").
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(record))

		value, err := repo.Get(context.Background(), "auth-storage:shopper-1")
		require.NoError(t, err)
		assert.JSONEq(t, string(record), string(value))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing_key", func(t *testing.T) {
		repo, mock, _ := newTestRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
			WithArgs("auth-storage:unknown").
			WillReturnError(sql.ErrNoRows)

		value, err := repo.Get(context.Background(), "auth-storage:unknown")
		assert.Nil(t, value)
		assert.ErrorIs(t, err, domain.ErrStateNotFound)
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock, _ := newTestRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
			WithArgs("k").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.Get(context.Background(), "k")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get client state")
	})
}

func TestStateRepository_Set(t *testing.T) {
	t.Run("upserts_value", func(t *testing.T) {
		repo, mock, _ := newTestRepository(t)

		mock.ExpectExec(regexp.QuoteMeta(upsertQuery)).
			WithArgs("k", `{"a":1}`, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Set(context.Background(), "k", []byte(`{"a":1}`))
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock, _ := newTestRepository(t)

		mock.ExpectExec(regexp.QuoteMeta(upsertQuery)).
			WillReturnError(errors.New("disk full"))

		err := repo.Set(context.Background(), "k", []byte(`{}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to set client state")
	})
}

func TestStateRepository_Delete(t *testing.T) {
	repo, mock, _ := newTestRepository(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStateRepository_DeleteStale(t *testing.T) {
	t.Run("reports_rows_deleted", func(t *testing.T) {
		repo, mock, _ := newTestRepository(t)

		mock.ExpectExec(regexp.QuoteMeta(deleteStaleQuery)).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 3))

		count, err := repo.DeleteStale(context.Background(), 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock, _ := newTestRepository(t)

		mock.ExpectExec(regexp.QuoteMeta(deleteStaleQuery)).
			WillReturnError(errors.New("timeout"))

		_, err := repo.DeleteStale(context.Background(), time.Hour)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to delete stale client state")
	})
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(Schema)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
