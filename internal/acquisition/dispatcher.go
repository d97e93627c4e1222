package acquisition

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// dispatcher runs cache write-backs and metrics updates after the HTTP
// response has been sent. Each task gets its own goroutine and a fresh
// context with a bounded timeout, so a slow Redis never holds a request
// open. Failures are logged and counted, never surfaced to clients.
type dispatcher struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *zap.Logger
}

func newDispatcher(timeout time.Duration, logger *zap.Logger) *dispatcher {
	return &dispatcher{
		timeout: timeout,
		logger:  logger,
	}
}

// Go schedules fn on its own goroutine. op names the task in logs and
// the failure counter.
func (d *dispatcher) Go(op string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("background task panicked",
					zap.String("op", op),
					zap.Any("panic", r))
				dispatchFailuresTotal.WithLabelValues(op).Inc()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			d.logger.Error("background task failed",
				zap.String("op", op),
				zap.Error(err))
			dispatchFailuresTotal.WithLabelValues(op).Inc()
		}
	}()
}

// Drain blocks until every scheduled task has finished or ctx expires.
// Called during shutdown and by tests that assert on async effects.
func (d *dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
