// Package health exposes the admin endpoints of a running instance: the
// liveness endpoint peers probe, a detailed status view, the recent error
// history and Prometheus metrics.
package health

import "github.com/vietddude/resilience/internal/core/domain"

// SystemStatus represents the overall health state of the instance.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
)

// Connectivity is the read side of the network monitor.
type Connectivity interface {
	IsOnline() bool
}

// ErrorHistory is the admin view of the error sink.
type ErrorHistory interface {
	Recent(limit int) []domain.ErrorRecord
	Len() int
	Capacity() int
	Clear()
}

// Report contains the detailed health report.
type Report struct {
	Status        SystemStatus `json:"status"`
	Online        bool         `json:"online"`
	QueueSize     int          `json:"queue_size"`
	QueueCapacity int          `json:"queue_capacity"`
	UptimeSeconds int64        `json:"uptime_seconds"`
}

// ErrorsResponse is the body of GET /errors.
type ErrorsResponse struct {
	Errors []domain.ErrorRecord `json:"errors"`
	Total  int                  `json:"total"`
}
