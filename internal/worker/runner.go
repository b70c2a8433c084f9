package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/finbridge/settlement-service/internal/models"
)

// BatchRunner is the slice of the ledger service the worker needs.
type BatchRunner interface {
	RunBatch(ctx context.Context, now time.Time) (models.BatchReport, error)
}

// Runner triggers a settlement pass on a fixed interval. A slow pass simply
// delays the next tick; overlapping with a manually triggered run is safe.
type Runner struct {
	service  BatchRunner
	interval time.Duration
}

func NewRunner(service BatchRunner, interval time.Duration) *Runner {
	return &Runner{service: service, interval: interval}
}

func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Runner) loop(ctx context.Context) {
	slog.Info("settlement worker started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("settlement worker stopped")
			return
		case <-ticker.C:
			report, err := r.service.RunBatch(ctx, time.Now().UTC())
			if err != nil {
				slog.Error("scheduled batch run failed", "error", err)
				continue
			}
			slog.Info("scheduled batch run finished",
				"completed", report.Completed,
				"failed", report.Failed,
				"retryable", report.Retryable,
				"total", report.Total)
		}
	}
}
