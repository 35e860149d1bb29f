package domain

// ErrorRecord is one captured error held by the error sink.
type ErrorRecord struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	Stack       string    `json:"stack,omitempty"`
	TimestampMs int64     `json:"timestamp_ms"`
	Kind        ErrorKind `json:"kind"`
	Origin      string    `json:"origin,omitempty"`
}

// ErrorReport is the payload forwarded to the external reporting channel.
type ErrorReport struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	Stack       string `json:"stack,omitempty"`
	TimestampMs int64  `json:"timestampMs"`
	UserAgent   string `json:"userAgent"`
	URL         string `json:"url"`
}

// Report builds the outbound payload for a record.
func (r ErrorRecord) Report(userAgent string) ErrorReport {
	return ErrorReport{
		ID:          r.ID,
		Message:     r.Message,
		Stack:       r.Stack,
		TimestampMs: r.TimestampMs,
		UserAgent:   userAgent,
		URL:         r.Origin,
	}
}
