package domain

import (
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 4 << 10

// FromHTTPResponse converts the outcome of an HTTP round trip into one of the
// failure variants. A transport error becomes a NetworkError, a non-2xx
// response an APIError carrying the status and a prefix of the body. A 2xx
// response yields nil. The caller still owns resp.Body.
func FromHTTPResponse(resp *http.Response, err error) error {
	if err != nil {
		return NewNetworkError(err)
	}
	if resp == nil {
		return &NetworkError{Message: "no response"}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}
	if resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr.Body = strings.TrimSpace(string(body))
	}
	return apiErr
}
