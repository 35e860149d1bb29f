package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
)

// HTTP posts reports as JSON to a collector endpoint.
type HTTP struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTP creates an HTTP reporter.
func NewHTTP(endpoint string, timeout time.Duration) *HTTP {
	return &HTTP{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Report implements Reporter. Transport failures come back as
// *domain.NetworkError and non-2xx responses as *domain.APIError.
func (h *HTTP) Report(ctx context.Context, report domain.ErrorReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if report.UserAgent != "" {
		req.Header.Set("User-Agent", report.UserAgent)
	}

	resp, err := h.httpClient.Do(req)
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
