package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vietddude/resilience/internal/core/domain"
)

func testConfig(maxRetries int) Config {
	return Config{
		Name:       "test",
		MaxRetries: maxRetries,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

func TestDelaySequence(t *testing.T) {
	r := require.New(t)

	e := NewExecutor(Config{BaseDelay: time.Second, MaxDelay: 10 * time.Second, MaxRetries: 5})

	var got []time.Duration
	for i := 1; i <= 5; i++ {
		got = append(got, e.Delay(i))
	}
	r.Equal([]time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
	}, got)

	r.Equal(time.Duration(0), e.Delay(0))
	r.Equal(10*time.Second, e.Delay(200))
}

func TestNewExecutorSanitizes(t *testing.T) {
	r := require.New(t)

	e := NewExecutor(Config{MaxRetries: -1, BaseDelay: 2 * time.Second, MaxDelay: time.Second})
	cfg := e.Config()
	r.Equal(0, cfg.MaxRetries)
	r.Equal(2*time.Second, cfg.MaxDelay)
	r.Equal("default", cfg.Name)
}

// The delays observed between attempts follow the backoff schedule.
func TestExecuteBackoffTiming(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r := require.New(t)

		e := NewExecutor(testConfig(5))
		opErr := domain.NewNetworkError(errors.New("unreachable"))

		var calls []time.Time
		err := e.Execute(t.Context(), func(context.Context) error {
			calls = append(calls, time.Now())
			return opErr
		}, nil)
		r.Same(opErr, err)
		r.Len(calls, 6)

		var gaps []time.Duration
		for i := 1; i < len(calls); i++ {
			gaps = append(gaps, calls[i].Sub(calls[i-1]))
		}
		r.Equal([]time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			10 * time.Second,
		}, gaps)
	})
}

func TestExecuteFailsTwiceThenSucceeds(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r := require.New(t)

		e := NewExecutor(testConfig(3))
		attempts := 0
		got, err := Do(t.Context(), e, func(context.Context) (string, error) {
			attempts++
			if attempts <= 2 {
				return "", domain.NewAPIError(503, "unavailable")
			}
			return "ok", nil
		}, nil)

		r.NoError(err)
		r.Equal("ok", got)
		r.Equal(3, attempts)
		r.Equal(0, e.RetryCount())
	})
}

func TestExecuteBoundedAttempts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r := require.New(t)

		e := NewExecutor(testConfig(3))
		opErr := domain.NewAPIError(500, "boom")
		attempts := 0
		err := e.Execute(t.Context(), func(context.Context) error {
			attempts++
			return opErr
		}, nil)

		r.Same(opErr, err)
		r.Equal(4, attempts)
		r.Equal(3, e.RetryCount())
	})
}

func TestExecuteNonRetryableShortCircuit(t *testing.T) {
	r := require.New(t)

	e := NewExecutor(testConfig(10))
	opErr := domain.NewValidationError("name is required", map[string]string{"name": "required"})
	attempts := 0
	err := e.Execute(context.Background(), func(context.Context) error {
		attempts++
		return opErr
	}, nil)

	r.Same(opErr, err)
	r.Equal(1, attempts)
	r.Equal(0, e.RetryCount())
}

func TestExecuteCustomPredicate(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r := require.New(t)

		// A plain error is not retryable by classification, but the predicate
		// takes precedence.
		e := NewExecutor(testConfig(2))
		attempts := 0
		err := e.Execute(t.Context(), func(context.Context) error {
			attempts++
			return errors.New("flaky")
		}, func(error) bool { return true })
		r.Error(err)
		r.Equal(3, attempts)

		// And the predicate can veto a retryable classification.
		e = NewExecutor(testConfig(2))
		attempts = 0
		err = e.Execute(t.Context(), func(context.Context) error {
			attempts++
			return domain.NewNetworkError(errors.New("reset"))
		}, func(error) bool { return false })
		r.Error(err)
		r.Equal(1, attempts)
	})
}

// The retry count survives a terminal failure; only success or Reset clear it.
func TestExecuteStaleRetryCount(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r := require.New(t)

		e := NewExecutor(testConfig(3))
		attempts := 0
		err := e.Execute(t.Context(), func(context.Context) error {
			attempts++
			if attempts <= 2 {
				return domain.NewNetworkError(errors.New("reset"))
			}
			return domain.NewValidationError("rejected", nil)
		}, nil)
		r.Error(err)
		r.Equal(3, attempts)
		r.Equal(2, e.RetryCount())

		// The next, unrelated call only gets the remaining budget.
		attempts = 0
		err = e.Execute(t.Context(), func(context.Context) error {
			attempts++
			return domain.NewNetworkError(errors.New("reset"))
		}, nil)
		r.Error(err)
		r.Equal(2, attempts)
		r.Equal(3, e.RetryCount())

		e.Reset()
		r.Equal(0, e.RetryCount())
		attempts = 0
		_ = e.Execute(t.Context(), func(context.Context) error {
			attempts++
			return domain.NewNetworkError(errors.New("reset"))
		}, nil)
		r.Equal(4, attempts)
	})
}

func TestExecuteCancelDuringBackoff(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r := require.New(t)

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		e := NewExecutor(Config{Name: "test", MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour})
		opErr := domain.NewNetworkError(errors.New("down"))
		var attempts atomic.Int32

		done := make(chan error, 1)
		go func() {
			done <- e.Execute(ctx, func(context.Context) error {
				attempts.Add(1)
				return opErr
			}, nil)
		}()

		// The first attempt fails and the executor blocks in its backoff.
		synctest.Wait()
		r.Equal(int32(1), attempts.Load())

		cancel()
		err := <-done

		var cancelled *domain.CancelledError
		r.ErrorAs(err, &cancelled)
		r.ErrorIs(err, context.Canceled)
		r.ErrorIs(err, opErr)
		r.Equal(int32(1), attempts.Load())
	})
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	r := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewExecutor(testConfig(3)).Execute(ctx, func(context.Context) error {
		called = true
		return nil
	}, nil)

	r.False(called)
	r.True(domain.IsCancelled(err))
}

func TestExecuteZeroRetries(t *testing.T) {
	r := require.New(t)

	e := NewExecutor(testConfig(0))
	attempts := 0
	err := e.Execute(context.Background(), func(context.Context) error {
		attempts++
		return domain.NewNetworkError(errors.New("down"))
	}, nil)
	r.Error(err)
	r.Equal(1, attempts)
}
