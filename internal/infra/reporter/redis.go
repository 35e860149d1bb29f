package reporter

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/vietddude/resilience/internal/core/domain"
	redisclient "github.com/vietddude/resilience/internal/infra/redis"
)

// DefaultStream is the stream reports are appended to when none is set.
const DefaultStream = "resilience:errors"

// Redis appends reports to a Redis stream consumed by the telemetry backend.
type Redis struct {
	client *redisclient.Client
	stream string
	maxLen int64
}

// NewRedis creates a Redis stream reporter.
func NewRedis(client *redisclient.Client, stream string, maxLen int64) *Redis {
	if stream == "" {
		stream = DefaultStream
	}
	return &Redis{client: client, stream: stream, maxLen: maxLen}
}

// Report implements Reporter.
func (r *Redis) Report(ctx context.Context, report domain.ErrorReport) error {
	_, err := r.client.Append(ctx, r.stream, streamValues(report), r.maxLen)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return domain.NewNetworkError(err)
		}
		return err
	}
	return nil
}

func streamValues(report domain.ErrorReport) map[string]any {
	values := map[string]any{
		"id":           report.ID,
		"message":      report.Message,
		"timestamp_ms": strconv.FormatInt(report.TimestampMs, 10),
		"user_agent":   report.UserAgent,
		"url":          report.URL,
	}
	if report.Stack != "" {
		values["stack"] = report.Stack
	}
	return values
}
