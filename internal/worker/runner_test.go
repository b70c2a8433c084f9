package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/finbridge/settlement-service/internal/models"
)

type stubBatchRunner struct {
	mu    sync.Mutex
	runs  int
	err   error
	runCh chan struct{}
}

func (s *stubBatchRunner) RunBatch(ctx context.Context, now time.Time) (models.BatchReport, error) {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	select {
	case s.runCh <- struct{}{}:
	default:
	}
	return models.BatchReport{Total: 1, Completed: 1}, s.err
}

func (s *stubBatchRunner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func TestRunner_TriggersOnInterval(t *testing.T) {
	stub := &stubBatchRunner{runCh: make(chan struct{}, 1)}
	runner := NewRunner(stub, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)

	select {
	case <-stub.runCh:
	case <-time.After(time.Second):
		t.Fatal("worker never triggered a batch run")
	}
}

func TestRunner_StopsOnCancel(t *testing.T) {
	stub := &stubBatchRunner{runCh: make(chan struct{}, 1)}
	runner := NewRunner(stub, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx)

	select {
	case <-stub.runCh:
	case <-time.After(time.Second):
		t.Fatal("worker never triggered a batch run")
	}
	cancel()

	time.Sleep(20 * time.Millisecond)
	runs := stub.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, runs, stub.count(), "no runs after cancellation")
}

func TestRunner_KeepsTickingAfterError(t *testing.T) {
	stub := &stubBatchRunner{runCh: make(chan struct{}, 1), err: assert.AnError}
	runner := NewRunner(stub, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-stub.runCh:
		case <-time.After(time.Second):
			t.Fatal("worker stopped ticking after a failed run")
		}
	}
}
