package sink

import "context"

type ctxKey struct{}

// WithContext returns a copy of ctx carrying s.
func WithContext(ctx context.Context, s *Sink) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the sink carried by ctx, or nil.
func FromContext(ctx context.Context) *Sink {
	s, _ := ctx.Value(ctxKey{}).(*Sink)
	return s
}

// CaptureContext records err in the sink carried by ctx, if any.
func CaptureContext(ctx context.Context, err error) {
	if s := FromContext(ctx); s != nil {
		s.Capture(err)
	}
}
