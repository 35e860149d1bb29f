// Package reporter delivers error reports to an external telemetry backend.
//
// This package contains:
//   - HTTP: JSON POST to a collector endpoint
//   - Redis: entry appended to a Redis stream
//   - Retrying: wrapper running each delivery through a retry executor
package reporter

import (
	"context"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/resilience/retry"
)

// Reporter delivers a single report.
type Reporter interface {
	Report(ctx context.Context, report domain.ErrorReport) error
}

// Config selects and configures the reporting channel.
type Config struct {
	Type       string `yaml:"type"` // none, http, redis
	URL        string `yaml:"url"`
	Stream     string `yaml:"stream"`
	MaxLen     int64  `yaml:"max_len"`
	MaxRetries int    `yaml:"max_retries"`
}

const (
	TypeNone  = "none"
	TypeHTTP  = "http"
	TypeRedis = "redis"
)

// Retrying runs every delivery through a fresh retry executor, so concurrent
// reports never share retry state.
type Retrying struct {
	next Reporter
	cfg  retry.Config
}

// WithRetry wraps next with retries.
func WithRetry(next Reporter, cfg retry.Config) *Retrying {
	if cfg.Name == "" {
		cfg.Name = "report"
	}
	return &Retrying{next: next, cfg: cfg}
}

// Report implements Reporter.
func (r *Retrying) Report(ctx context.Context, report domain.ErrorReport) error {
	return retry.NewExecutor(r.cfg).Execute(ctx, func(ctx context.Context) error {
		return r.next.Report(ctx, report)
	}, nil)
}
