package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/finbridge/settlement-service/internal/infrastructure/observability"
	"github.com/finbridge/settlement-service/internal/models"
	pkgerrors "github.com/finbridge/settlement-service/pkg/errors"
)

// Settle advances one pending transaction to a terminal status and applies its
// balance effect. Safe to invoke twice, sequentially or concurrently: the
// conditional writes in the repository guarantee the amount is applied at most
// once, the loser observes already_terminal. A non-nil error means transient
// storage trouble; the transaction stays pending and is re-selected next pass.
func (s *ledgerService) Settle(ctx context.Context, id uuid.UUID) (models.SettlementOutcome, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "Settle")
	span.SetAttributes(attribute.String("transaction_id", id.String()))
	defer span.End()

	tx, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction load failed")
		return models.SettlementOutcome{}, err
	}

	if tx.IsTerminal() {
		observability.SettlementOutcomes.WithLabelValues(string(models.OutcomeAlreadyTerminal)).Inc()
		slog.Info("transaction already terminal", "transaction_id", id, "status", tx.Status)
		return models.SettlementOutcome{Kind: models.OutcomeAlreadyTerminal}, nil
	}

	account, err := s.accountRepo.GetByID(ctx, tx.AccountID)
	if stderrors.Is(err, pkgerrors.ErrAccountNotFound) {
		// Integrity anomaly: the transaction stays pending so it can be retried
		// once the account data is repaired externally.
		observability.SettlementOutcomes.WithLabelValues(string(models.OutcomeAccountNotFound)).Inc()
		slog.Error("referenced account missing, leaving transaction pending", "transaction_id", id, "account_id", tx.AccountID)
		return models.SettlementOutcome{Kind: models.OutcomeAccountNotFound}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account load failed")
		return models.SettlementOutcome{}, err
	}

	now := time.Now().UTC()
	delta := tx.Delta()
	candidate := account.Balance.Add(delta)

	if candidate.IsNegative() {
		return s.failSettlement(ctx, tx, now)
	}

	newBalance, err := s.transactionRepo.Complete(ctx, tx.ID, tx.AccountID, delta, now)
	if stderrors.Is(err, pkgerrors.ErrAlreadySettled) {
		observability.SettlementOutcomes.WithLabelValues(string(models.OutcomeAlreadyTerminal)).Inc()
		slog.Info("lost settlement race, already terminal", "transaction_id", id)
		return models.SettlementOutcome{Kind: models.OutcomeAlreadyTerminal}, nil
	}
	if stderrors.Is(err, pkgerrors.ErrInsufficientFunds) {
		// The balance moved between our read and the write; the write-time
		// re-check rejected the delta, so the deterministic outcome against the
		// committed balance is failed.
		return s.failSettlement(ctx, tx, now)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settlement write failed")
		return models.SettlementOutcome{}, err
	}

	s.invalidateBalance(ctx, tx.AccountID)
	s.notify(ctx, tx, models.OutcomeCompleted, now)

	observability.SettlementOutcomes.WithLabelValues(string(models.OutcomeCompleted)).Inc()
	slog.Info("transaction settled", "transaction_id", id, "account_id", tx.AccountID, "direction", tx.Direction, "amount", tx.Amount, "new_balance", newBalance)
	return models.SettlementOutcome{Kind: models.OutcomeCompleted}, nil
}

func (s *ledgerService) failSettlement(ctx context.Context, tx *models.Transaction, now time.Time) (models.SettlementOutcome, error) {
	const reason = "insufficient funds"

	err := s.transactionRepo.Fail(ctx, tx.ID, reason, now)
	if stderrors.Is(err, pkgerrors.ErrAlreadySettled) {
		observability.SettlementOutcomes.WithLabelValues(string(models.OutcomeAlreadyTerminal)).Inc()
		slog.Info("lost settlement race, already terminal", "transaction_id", tx.ID)
		return models.SettlementOutcome{Kind: models.OutcomeAlreadyTerminal}, nil
	}
	if err != nil {
		return models.SettlementOutcome{}, err
	}

	s.notify(ctx, tx, models.OutcomeFailed, now)

	observability.SettlementOutcomes.WithLabelValues(string(models.OutcomeFailed)).Inc()
	slog.Info("transaction failed", "transaction_id", tx.ID, "account_id", tx.AccountID, "reason", reason)
	return models.SettlementOutcome{Kind: models.OutcomeFailed, Reason: reason}, nil
}

// notify emits the terminal outcome to the notification sink. Best-effort:
// delivery failure is logged and dropped, never rolls back settlement.
func (s *ledgerService) notify(ctx context.Context, tx *models.Transaction, outcome models.OutcomeKind, settledAt time.Time) {
	record := models.SettlementNotification{
		AccountID:     tx.AccountID,
		TransactionID: tx.ID,
		Outcome:       outcome,
		Amount:        tx.Amount,
		Direction:     tx.Direction,
		SettledAt:     settledAt.Format(time.RFC3339),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		slog.Error("failed to marshal settlement notification", "transaction_id", tx.ID, "error", err)
		return
	}
	if err := s.producer.Send(ctx, "settlements", tx.ID.String(), payload); err != nil {
		slog.Error("failed to send settlement notification", "transaction_id", tx.ID, "error", err)
	}
}

func (s *ledgerService) invalidateBalance(ctx context.Context, accountID uuid.UUID) {
	if err := s.redisClient.Del(ctx, balanceCacheKey(accountID)); err != nil {
		slog.Error("failed to invalidate balance cache", "account_id", accountID, "error", err)
	}
}
