package netmon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/metrics"
)

// Prober performs a single liveness check. A nil error means reachable.
type Prober interface {
	Name() string
	Probe(ctx context.Context) error
}

// HTTPProber checks reachability with a lightweight request to a health
// endpoint. Any 2xx response means reachable.
type HTTPProber struct {
	url        string
	method     string
	httpClient *http.Client
}

// NewHTTPProber creates a prober for url. method defaults to HEAD.
func NewHTTPProber(url, method string, timeout time.Duration) *HTTPProber {
	if method == "" {
		method = http.MethodHead
	}
	return &HTTPProber{
		url:    url,
		method: method,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name implements Prober.
func (p *HTTPProber) Name() string {
	return "http"
}

// URL returns the probed endpoint.
func (p *HTTPProber) URL() string {
	return p.url
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, p.method, p.url, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.FromHTTPResponse(nil, err)
	}
	defer resp.Body.Close()

	if err := domain.FromHTTPResponse(resp, nil); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// probeOnce runs prober and records the outcome.
func probeOnce(ctx context.Context, prober Prober, log *slog.Logger) bool {
	start := time.Now()
	err := prober.Probe(ctx)
	metrics.ProbeLatency.WithLabelValues(prober.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ConnectivityProbesTotal.WithLabelValues(prober.Name(), "failure").Inc()
		log.Debug("Liveness probe failed", "prober", prober.Name(), "error", err)
		return false
	}
	metrics.ConnectivityProbesTotal.WithLabelValues(prober.Name(), "success").Inc()
	return true
}
