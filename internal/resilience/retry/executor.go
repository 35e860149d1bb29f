// Package retry runs operations with bounded, exponentially backed-off
// retries.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/metrics"
	"github.com/vietddude/resilience/internal/resilience/classify"
)

// Config defines retry behavior.
type Config struct {
	Name       string        `yaml:"-"`
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	Name:       "default",
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// Operation is a unit of work that may be attempted more than once.
// It should be idempotent.
type Operation func(ctx context.Context) error

// ShouldRetry decides whether a failure is worth another attempt. When
// supplied it replaces the classifier's verdict.
type ShouldRetry func(err error) bool

// Executor holds the retry state for one logical operation.
//
// An Executor is not safe for concurrent use: Execute mutates the retry count.
// Use one Executor per in-flight operation. The retry count is only reset by a
// successful attempt or by Reset, so a terminal failure leaves it in place.
type Executor struct {
	cfg        Config
	retryCount int
	log        *slog.Logger
}

// NewExecutor creates an executor. Negative values are clamped to zero and
// a MaxDelay below BaseDelay is raised to BaseDelay.
func NewExecutor(cfg Config) *Executor {
	if cfg.Name == "" {
		cfg.Name = DefaultConfig.Name
	}
	cfg.MaxRetries = max(cfg.MaxRetries, 0)
	cfg.BaseDelay = max(cfg.BaseDelay, 0)
	cfg.MaxDelay = max(cfg.MaxDelay, cfg.BaseDelay)

	return &Executor{
		cfg: cfg,
		log: slog.Default().With("component", "retry", "operation", cfg.Name),
	}
}

// Config returns the executor configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// RetryCount returns the number of retries performed since the last success
// or Reset.
func (e *Executor) RetryCount() int {
	return e.retryCount
}

// Reset clears the retry count.
func (e *Executor) Reset() {
	e.retryCount = 0
}

// Delay returns the backoff before the given retry (1-based):
// BaseDelay * 2^(retry-1), capped at MaxDelay.
func (e *Executor) Delay(retry int) time.Duration {
	if retry < 1 || e.cfg.BaseDelay == 0 {
		return 0
	}
	shift := retry - 1
	if shift >= 62 {
		return e.cfg.MaxDelay
	}
	delay := e.cfg.BaseDelay << shift
	if delay <= 0 || delay > e.cfg.MaxDelay || delay>>shift != e.cfg.BaseDelay {
		return e.cfg.MaxDelay
	}
	return delay
}

// Execute runs op until it succeeds, fails with an error that should not be
// retried, or MaxRetries retries have been spent. The final failure is
// returned as-is. If ctx is done while an attempt fails or while waiting
// between attempts, a *domain.CancelledError is returned instead.
func (e *Executor) Execute(ctx context.Context, op Operation, shouldRetry ShouldRetry) error {
	for {
		if err := ctx.Err(); err != nil {
			return &domain.CancelledError{Cause: err}
		}

		err := op(ctx)
		if err == nil {
			e.retryCount = 0
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return &domain.CancelledError{Cause: ctxErr, Last: err}
		}

		c := classify.Classify(err)
		retryable := c.Retryable
		if shouldRetry != nil {
			retryable = shouldRetry(err)
		}

		if e.retryCount >= e.cfg.MaxRetries || !retryable {
			if retryable {
				metrics.RetryExhaustedTotal.WithLabelValues(e.cfg.Name).Inc()
				e.log.Debug("Retries exhausted", "retries", e.retryCount, "kind", c.Kind, "error", err)
			}
			return err
		}

		e.retryCount++
		delay := e.Delay(e.retryCount)
		metrics.RetryAttemptsTotal.WithLabelValues(e.cfg.Name, string(c.Kind)).Inc()
		e.log.Debug("Retrying operation",
			"retry", e.retryCount,
			"max_retries", e.cfg.MaxRetries,
			"delay", delay,
			"kind", c.Kind,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &domain.CancelledError{Cause: ctx.Err(), Last: err}
		case <-timer.C:
		}
	}
}

// Do is Execute for operations that produce a value.
func Do[T any](
	ctx context.Context,
	e *Executor,
	op func(ctx context.Context) (T, error),
	shouldRetry ShouldRetry,
) (T, error) {
	var result T
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, shouldRetry)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
