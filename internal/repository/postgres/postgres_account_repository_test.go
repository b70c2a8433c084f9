package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/finbridge/settlement-service/internal/models"
	repository "github.com/finbridge/settlement-service/internal/repository/postgres"
	pkgerrors "github.com/finbridge/settlement-service/pkg/errors"
)

func TestPostgresAccountRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAccountRepository(db)
	ctx := context.Background()

	t.Run("NilAccount", func(t *testing.T) {
		err := repo.Create(ctx, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrNilAccount)
	})

	t.Run("NegativeBalance", func(t *testing.T) {
		account := &models.Account{ID: uuid.New(), Balance: dec("-1.00")}
		err := repo.Create(ctx, account)
		assert.ErrorIs(t, err, pkgerrors.ErrNegativeBalance)
	})

	t.Run("Success", func(t *testing.T) {
		account := &models.Account{ID: uuid.New(), Balance: dec("100.00")}
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO accounts (id, balance)`)).
			WithArgs(account.ID, account.Balance).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))

		err := repo.Create(ctx, account)
		assert.NoError(t, err)
		assert.WithinDuration(t, createdAt, account.CreatedAt, time.Second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		account := &models.Account{ID: uuid.New(), Balance: dec("100.00")}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO accounts (id, balance)`)).
			WithArgs(account.ID, account.Balance).
			WillReturnError(fmt.Errorf("database error"))

		err := repo.Create(ctx, account)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create account")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAccountRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAccountRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		accountID := uuid.New()
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, balance, created_at FROM accounts WHERE id = $1`)).
			WithArgs(accountID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "created_at"}).
				AddRow(accountID.String(), "100.00", createdAt))

		account, err := repo.GetByID(ctx, accountID)
		assert.NoError(t, err)
		assert.Equal(t, accountID, account.ID)
		assert.True(t, account.Balance.Equal(dec("100.00")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AccountNotFound", func(t *testing.T) {
		accountID := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, balance, created_at FROM accounts WHERE id = $1`)).
			WithArgs(accountID).
			WillReturnError(sql.ErrNoRows)

		account, err := repo.GetByID(ctx, accountID)
		assert.Nil(t, account)
		assert.ErrorIs(t, err, pkgerrors.ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MalformedRecord", func(t *testing.T) {
		accountID := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, balance, created_at FROM accounts WHERE id = $1`)).
			WithArgs(accountID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "created_at"}).
				AddRow(accountID.String(), "-50.00", time.Now().UTC()))

		account, err := repo.GetByID(ctx, accountID)
		assert.Nil(t, account)
		assert.ErrorIs(t, err, pkgerrors.ErrMalformedRecord)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAccountRepository_GetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAccountRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		accountID := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM accounts WHERE id = $1`)).
			WithArgs(accountID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("42.50"))

		balance, err := repo.GetBalance(ctx, accountID)
		assert.NoError(t, err)
		assert.True(t, balance.Equal(dec("42.50")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AccountNotFound", func(t *testing.T) {
		accountID := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM accounts WHERE id = $1`)).
			WithArgs(accountID).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetBalance(ctx, accountID)
		assert.ErrorIs(t, err, pkgerrors.ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
