package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbridge/settlement-service/internal/models"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)

	// SelectEligible returns every pending transaction whose scheduled time has
	// elapsed (a NULL scheduled_at is immediately eligible), oldest first, ties
	// broken by id. Pure read; re-querying is safe.
	SelectEligible(ctx context.Context, now time.Time) ([]models.Transaction, error)

	// Complete transitions the transaction from pending to completed and applies
	// delta to the account balance as one atomic unit. Returns ErrAlreadySettled
	// if the status already left pending, ErrInsufficientFunds if the balance
	// re-check rejects the delta at write time. Either both writes commit or
	// neither does.
	Complete(ctx context.Context, txID, accountID uuid.UUID, delta decimal.Decimal, settledAt time.Time) (decimal.Decimal, error)

	// Fail transitions the transaction from pending to failed without touching
	// the account. Returns ErrAlreadySettled if the status already left pending.
	Fail(ctx context.Context, txID uuid.UUID, reason string, settledAt time.Time) error

	GetHistory(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error)
}
