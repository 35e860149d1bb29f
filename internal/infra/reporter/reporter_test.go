package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/resilience/internal/core/domain"
	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/resilience/classify"
	"github.com/vietddude/resilience/internal/resilience/retry"
)

func sampleReport() domain.ErrorReport {
	return domain.ErrorReport{
		ID:          "0b9e3c1e-6a55-4d44-9b1f-2f7d5b0e9c01",
		Message:     "api error (503): unavailable",
		Stack:       "goroutine 1 [running]",
		TimestampMs: 1700000000000,
		UserAgent:   "resilience/1.0",
		URL:         "https://inspections.example/psv",
	}
}

func TestHTTPReport(t *testing.T) {
	r := require.New(t)

	var got atomic.Value
	var userAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var report domain.ErrorReport
		if err := json.NewDecoder(req.Body).Decode(&report); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		got.Store(report)
		userAgent.Store(req.UserAgent())
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, time.Second)
	r.NoError(h.Report(context.Background(), sampleReport()))
	r.Equal(sampleReport(), got.Load())
	r.Equal("resilience/1.0", userAgent.Load())
}

func TestHTTPReportFailures(t *testing.T) {
	r := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "collector overloaded", http.StatusServiceUnavailable)
	}))

	h := NewHTTP(srv.URL, time.Second)
	err := h.Report(context.Background(), sampleReport())
	var apiErr *domain.APIError
	r.ErrorAs(err, &apiErr)
	r.Equal(http.StatusServiceUnavailable, apiErr.StatusCode)
	r.Equal("collector overloaded", apiErr.Body)
	r.True(classify.IsRetryable(err))

	srv.Close()
	err = h.Report(context.Background(), sampleReport())
	r.Equal(domain.KindNetwork, classify.Classify(err).Kind)
}

type flakyReporter struct {
	calls    int
	failures int
	err      error
}

func (f *flakyReporter) Report(context.Context, domain.ErrorReport) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func TestRetryingReporter(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r := require.New(t)

		cfg := retry.Config{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

		flaky := &flakyReporter{failures: 2, err: domain.NewAPIError(502, "bad gateway")}
		r.NoError(WithRetry(flaky, cfg).Report(t.Context(), sampleReport()))
		r.Equal(3, flaky.calls)

		// Each report starts with a fresh budget.
		down := &flakyReporter{failures: 100, err: domain.NewNetworkError(errors.New("down"))}
		rep := WithRetry(down, cfg)
		r.Error(rep.Report(t.Context(), sampleReport()))
		r.Error(rep.Report(t.Context(), sampleReport()))
		r.Equal(6, down.calls)

		rejected := &flakyReporter{failures: 100, err: domain.NewValidationError("bad payload", nil)}
		r.Error(WithRetry(rejected, cfg).Report(t.Context(), sampleReport()))
		r.Equal(1, rejected.calls)
	})
}

func TestStreamValues(t *testing.T) {
	r := require.New(t)

	values := streamValues(sampleReport())
	r.Equal("1700000000000", values["timestamp_ms"])
	r.Equal("resilience/1.0", values["user_agent"])
	r.Equal("https://inspections.example/psv", values["url"])
	r.Equal("goroutine 1 [running]", values["stack"])

	noStack := sampleReport()
	noStack.Stack = ""
	r.NotContains(streamValues(noStack), "stack")
}

func TestRedisReportUnreachable(t *testing.T) {
	r := require.New(t)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	client := redisclient.NewClientFromRDB(rdb)
	defer client.Close()

	rep := NewRedis(client, "", 1000)
	r.Equal(DefaultStream, rep.stream)

	err := rep.Report(context.Background(), sampleReport())
	r.Error(err)
	r.Equal(domain.KindNetwork, classify.Classify(err).Kind)
}
