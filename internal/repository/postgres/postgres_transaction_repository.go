package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/finbridge/settlement-service/internal/infrastructure/observability"
	"github.com/finbridge/settlement-service/internal/models"
	pkgerrors "github.com/finbridge/settlement-service/pkg/errors"
)

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateTransaction", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateTransaction").Observe(time.Since(start).Seconds())
	}()

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return err
	}

	if tx.Direction != models.DirectionCredit && tx.Direction != models.DirectionDebit {
		err = pkgerrors.ErrInvalidDirection
		slog.Error("invalid transaction direction", "method", "Create", "direction", tx.Direction, "error", err)
		return err
	}

	if tx.Status != models.StatusPending {
		err = pkgerrors.ErrInvalidStatus
		slog.Error("transaction must be created pending", "method", "Create", "status", tx.Status, "error", err)
		return err
	}

	if !tx.Amount.IsPositive() {
		err = pkgerrors.ErrInvalidAmount
		slog.Error("amount must be positive", "method", "Create", "amount", tx.Amount, "error", err)
		return err
	}

	span.SetAttributes(
		attribute.String("transaction_id", tx.ID.String()),
		attribute.String("account_id", tx.AccountID.String()),
		attribute.String("amount", tx.Amount.String()),
		attribute.String("direction", string(tx.Direction)),
	)

	query := `INSERT INTO transactions (id, account_id, amount, direction, status, scheduled_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query, tx.ID, tx.AccountID, tx.Amount, tx.Direction, tx.Status, tx.ScheduledAt).Scan(&tx.CreatedAt)
	if err != nil {
		slog.Error("failed to create transaction", "method", "Create", "transaction_id", tx.ID, "account_id", tx.AccountID, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "transaction_id", tx.ID, "account_id", tx.AccountID, "direction", tx.Direction, "amount", tx.Amount)
	return nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "GetTransactionByID")
	span.SetAttributes(attribute.String("transaction_id", id.String()))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("GetTransactionByID", status).Inc()
		observability.RepositoryDuration.WithLabelValues("GetTransactionByID").Observe(time.Since(start).Seconds())
	}()

	query := `SELECT id, account_id, amount, direction, status, failure_reason, scheduled_at, settled_at, created_at FROM transactions WHERE id = $1`
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		slog.Error("transaction not found", "method", "GetByID", "transaction_id", id)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}

	return tx, nil
}

func (r *PostgresTransactionRepository) SelectEligible(ctx context.Context, now time.Time) ([]models.Transaction, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "SelectEligible")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("SelectEligible", status).Inc()
		observability.RepositoryDuration.WithLabelValues("SelectEligible").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT id, account_id, amount, direction, status, failure_reason, scheduled_at, settled_at, created_at
		FROM transactions
		WHERE status = 'pending' AND (scheduled_at IS NULL OR scheduled_at <= $1)
		ORDER BY scheduled_at ASC NULLS FIRST, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		slog.Error("failed to select eligible transactions", "method", "SelectEligible", "error", err)
		return nil, fmt.Errorf("failed to select eligible transactions: %w", err)
	}
	defer rows.Close()

	var eligible []models.Transaction
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			if stderrors.Is(scanErr, pkgerrors.ErrMalformedRecord) {
				// Malformed rows are rejected at the boundary; one bad record
				// must not block the rest of the batch.
				slog.Error("skipping malformed transaction record", "method", "SelectEligible", "error", scanErr)
				continue
			}
			err = fmt.Errorf("failed to scan transaction: %w", scanErr)
			return nil, err
		}
		eligible = append(eligible, *tx)
	}
	if err = rows.Err(); err != nil {
		slog.Error("failed to iterate eligible transactions", "method", "SelectEligible", "error", err)
		return nil, fmt.Errorf("failed to iterate eligible transactions: %w", err)
	}

	span.SetAttributes(attribute.Int("eligible_count", len(eligible)))
	slog.Info("eligible transactions selected", "method", "SelectEligible", "count", len(eligible))
	return eligible, nil
}

// Complete is the Executor's serialization point: the status transition and the
// balance mutation commit together or not at all. Both UPDATEs are conditional,
// so a concurrent settler or a stale balance read is detected at write time.
func (r *PostgresTransactionRepository) Complete(ctx context.Context, txID, accountID uuid.UUID, delta decimal.Decimal, settledAt time.Time) (decimal.Decimal, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "CompleteTransaction")
	span.SetAttributes(
		attribute.String("transaction_id", txID.String()),
		attribute.String("account_id", accountID.String()),
		attribute.String("delta", delta.String()),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CompleteTransaction", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CompleteTransaction").Observe(time.Since(start).Seconds())
	}()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Complete", "error", err)
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	res, err := dbTx.ExecContext(ctx,
		`UPDATE transactions SET status = 'completed', settled_at = $2 WHERE id = $1 AND status = 'pending'`,
		txID, settledAt,
	)
	if err != nil {
		err = rollback(dbTx, fmt.Errorf("failed to update transaction status: %w", err))
		slog.Error("failed to update transaction status", "method", "Complete", "transaction_id", txID, "error", err)
		return decimal.Zero, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		err = rollback(dbTx, fmt.Errorf("rows affected: %w", err))
		return decimal.Zero, err
	}
	if affected == 0 {
		// Someone else already moved the status. Idempotency guard.
		err = rollback(dbTx, pkgerrors.ErrAlreadySettled)
		slog.Warn("transaction already settled by another writer", "method", "Complete", "transaction_id", txID)
		return decimal.Zero, err
	}

	var newBalance decimal.Decimal
	err = dbTx.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE id = $2 AND balance + $1 >= 0 RETURNING balance`,
		delta, accountID,
	).Scan(&newBalance)
	if stderrors.Is(err, sql.ErrNoRows) {
		// The balance moved under us and no longer covers the delta. Rolling
		// back also reverts the status update, so the caller can fail the
		// transaction against the committed balance.
		err = rollback(dbTx, pkgerrors.ErrInsufficientFunds)
		slog.Warn("balance re-check rejected settlement", "method", "Complete", "transaction_id", txID, "account_id", accountID, "delta", delta)
		return decimal.Zero, err
	}
	if err != nil {
		err = rollback(dbTx, fmt.Errorf("failed to update account balance: %w", err))
		slog.Error("failed to update account balance", "method", "Complete", "account_id", accountID, "error", err)
		return decimal.Zero, err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit settlement", "method", "Complete", "transaction_id", txID, "error", err)
		return decimal.Zero, fmt.Errorf("failed to commit settlement: %w", err)
	}

	slog.Info("transaction completed", "method", "Complete", "transaction_id", txID, "account_id", accountID, "delta", delta, "new_balance", newBalance)
	return newBalance, nil
}

func (r *PostgresTransactionRepository) Fail(ctx context.Context, txID uuid.UUID, reason string, settledAt time.Time) error {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "FailTransaction")
	span.SetAttributes(
		attribute.String("transaction_id", txID.String()),
		attribute.String("reason", reason),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("FailTransaction", status).Inc()
		observability.RepositoryDuration.WithLabelValues("FailTransaction").Observe(time.Since(start).Seconds())
	}()

	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET status = 'failed', settled_at = $2, failure_reason = $3 WHERE id = $1 AND status = 'pending'`,
		txID, settledAt, reason,
	)
	if err != nil {
		slog.Error("failed to fail transaction", "method", "Fail", "transaction_id", txID, "error", err)
		return fmt.Errorf("failed to fail transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		err = pkgerrors.ErrAlreadySettled
		slog.Warn("transaction already settled by another writer", "method", "Fail", "transaction_id", txID)
		return err
	}

	slog.Info("transaction failed", "method", "Fail", "transaction_id", txID, "reason", reason)
	return nil
}

func (r *PostgresTransactionRepository) GetHistory(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "GetHistory")
	span.SetAttributes(attribute.String("account_id", accountID.String()))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("GetHistory", status).Inc()
		observability.RepositoryDuration.WithLabelValues("GetHistory").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT id, account_id, amount, direction, status, failure_reason, scheduled_at, settled_at, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		slog.Error("failed to get history", "method", "GetHistory", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var history []models.Transaction
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan transaction: %w", scanErr)
			return nil, err
		}
		history = append(history, *tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	return history, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*models.Transaction, error) {
	var tx models.Transaction
	var reason sql.NullString
	err := s.Scan(&tx.ID, &tx.AccountID, &tx.Amount, &tx.Direction, &tx.Status, &reason, &tx.ScheduledAt, &tx.SettledAt, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		tx.FailureReason = reason.String
	}
	if err := validateStored(&tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// validateStored rejects malformed rows at the store boundary instead of
// letting partial objects reach the settlement core.
func validateStored(tx *models.Transaction) error {
	if tx.Direction != models.DirectionCredit && tx.Direction != models.DirectionDebit {
		return fmt.Errorf("%w: direction %q", pkgerrors.ErrMalformedRecord, tx.Direction)
	}
	if tx.Status != models.StatusPending && tx.Status != models.StatusCompleted && tx.Status != models.StatusFailed {
		return fmt.Errorf("%w: status %q", pkgerrors.ErrMalformedRecord, tx.Status)
	}
	if !tx.Amount.IsPositive() {
		return fmt.Errorf("%w: amount %s", pkgerrors.ErrMalformedRecord, tx.Amount)
	}
	return nil
}

func rollback(dbTx *sql.Tx, cause error) error {
	if rbErr := dbTx.Rollback(); rbErr != nil {
		return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, cause)
	}
	return cause
}
