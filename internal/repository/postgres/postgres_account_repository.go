package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbridge/settlement-service/internal/models"
	pkgerrors "github.com/finbridge/settlement-service/pkg/errors"
)

type PostgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account == nil {
		return pkgerrors.ErrNilAccount
	}
	if account.Balance.IsNegative() {
		return pkgerrors.ErrNegativeBalance
	}

	query := `
	INSERT INTO accounts (id, balance)
	VALUES ($1, $2)
	RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, account.ID, account.Balance).Scan(&account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := `SELECT id, balance, created_at FROM accounts WHERE id = $1`

	var account models.Account
	err := r.db.QueryRowContext(ctx, query, id).Scan(&account.ID, &account.Balance, &account.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrAccountNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}

	if account.Balance.IsNegative() {
		return nil, fmt.Errorf("%w: negative balance %s", pkgerrors.ErrMalformedRecord, account.Balance)
	}
	return &account, nil
}

func (r *PostgresAccountRepository) GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT balance FROM accounts WHERE id = $1`

	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, id).Scan(&balance)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return decimal.Zero, pkgerrors.ErrAccountNotFound
	case err != nil:
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}
