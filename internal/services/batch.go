package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/finbridge/settlement-service/internal/infrastructure/observability"
	"github.com/finbridge/settlement-service/internal/models"
	pkgerrors "github.com/finbridge/settlement-service/pkg/errors"
)

// RunBatch performs one settlement pass: select the eligible set once, settle
// in order, aggregate outcomes. One bad transaction never starves the rest;
// only a failure of the selection itself aborts the run. Overlapping runs are
// safe because Settle is idempotent.
func (s *ledgerService) RunBatch(ctx context.Context, now time.Time) (models.BatchReport, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "RunBatch")
	defer span.End()

	start := time.Now()
	defer func() {
		observability.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	eligible, err := s.transactionRepo.SelectEligible(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "selection failed")
		observability.BatchRuns.WithLabelValues("error").Inc()
		slog.Error("batch run aborted, selection failed", "error", err)
		return models.BatchReport{}, fmt.Errorf("batch run aborted: %w", err)
	}

	report := models.BatchReport{Total: len(eligible)}
	for _, tx := range eligible {
		if ctx.Err() != nil {
			// Settled transactions stay settled; the rest remain pending for
			// the next run.
			slog.Warn("batch run cancelled", "processed", report.Completed+report.Failed+report.Retryable, "total", report.Total)
			observability.BatchRuns.WithLabelValues("cancelled").Inc()
			return report, ctx.Err()
		}

		outcome, err := s.settleWithRetry(ctx, tx.ID)
		switch {
		case err != nil:
			report.Retryable++
			slog.Error("settlement still failing after retries, leaving pending", "transaction_id", tx.ID, "error", err)
		case outcome.Kind == models.OutcomeCompleted:
			report.Completed++
		case outcome.Kind == models.OutcomeFailed:
			report.Failed++
		case outcome.Kind == models.OutcomeAccountNotFound:
			report.Retryable++
		case outcome.Kind == models.OutcomeAlreadyTerminal:
			// A concurrent runner got there first; the race is already
			// resolved, nothing to report.
			slog.Info("transaction settled by another runner", "transaction_id", tx.ID)
		}
	}

	span.SetAttributes(
		attribute.Int("completed", report.Completed),
		attribute.Int("failed", report.Failed),
		attribute.Int("retryable", report.Retryable),
		attribute.Int("total", report.Total),
	)
	observability.BatchRuns.WithLabelValues("success").Inc()
	slog.Info("batch run finished",
		"completed", report.Completed,
		"failed", report.Failed,
		"retryable", report.Retryable,
		"total", report.Total)
	return report, nil
}

// settleWithRetry retries transient settlement errors with bounded exponential
// backoff inside the pass. Business outcomes are never retried here.
func (s *ledgerService) settleWithRetry(ctx context.Context, id uuid.UUID) (models.SettlementOutcome, error) {
	var outcome models.SettlementOutcome

	op := func() error {
		var err error
		outcome, err = s.Settle(ctx, id)
		if err != nil {
			if stderrors.Is(err, pkgerrors.ErrTransactionNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryBase
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxAttempts-1)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return models.SettlementOutcome{}, err
	}
	return outcome, nil
}
