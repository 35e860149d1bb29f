// Package sink keeps a bounded history of recently observed errors and
// forwards them to an external reporting channel.
//
// The application constructs exactly one Sink with New and shares it, either
// explicitly or through WithContext/FromContext. Close is the teardown.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/metrics"
	"github.com/vietddude/resilience/internal/resilience/classify"
)

// Reporter delivers a record to the external reporting channel.
type Reporter interface {
	Report(ctx context.Context, report domain.ErrorReport) error
}

// CrashSignals delivers uncaught panics and unhandled errors from the host.
type CrashSignals interface {
	OnCrash(h CrashHandler) (unsubscribe func())
}

// CrashHandler receives crash signals.
type CrashHandler interface {
	// HandlePanic is called with a recovered panic value and its stack.
	HandlePanic(value any, stack []byte)

	// HandleUnhandled is called with an error nobody handled. Returning true
	// tells the host not to log it itself.
	HandleUnhandled(err error) bool
}

// Config holds sink settings.
type Config struct {
	MaxQueueSize  int           `yaml:"max_queue_size"`
	Production    bool          `yaml:"-"`
	ReportRate    float64       `yaml:"report_rate"`  // reports per second, 0 = unlimited
	ReportBurst   int           `yaml:"report_burst"` // defaults to 1 when rate is set
	ReportTimeout time.Duration `yaml:"report_timeout"`
	Origin        string        `yaml:"origin"`
	UserAgent     string        `yaml:"-"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxQueueSize:  100,
	ReportRate:    5,
	ReportBurst:   10,
	ReportTimeout: 5 * time.Second,
}

// Sink is a bounded FIFO of error records. Oldest records are evicted first.
// All methods are safe for concurrent use.
type Sink struct {
	cfg      Config
	reporter Reporter
	limiter  *rate.Limiter
	log      *slog.Logger

	mu    sync.Mutex
	queue []domain.ErrorRecord // ring buffer
	head  int                  // index of the oldest record
	size  int

	unsub    func()
	closed   bool
	inflight sync.WaitGroup
	now      func() time.Time
}

// New creates a sink and subscribes it to host crash signals. reporter and
// host may be nil.
func New(cfg Config, reporter Reporter, host CrashSignals) *Sink {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultConfig.MaxQueueSize
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = DefaultConfig.ReportTimeout
	}

	limit := rate.Inf
	if cfg.ReportRate > 0 {
		limit = rate.Limit(cfg.ReportRate)
		cfg.ReportBurst = max(cfg.ReportBurst, 1)
	}

	s := &Sink{
		cfg:      cfg,
		reporter: reporter,
		limiter:  rate.NewLimiter(limit, cfg.ReportBurst),
		log:      slog.Default().With("component", "sink"),
		queue:    make([]domain.ErrorRecord, cfg.MaxQueueSize),
		now:      time.Now,
	}

	if host != nil {
		s.unsub = host.OnCrash(s)
	}
	metrics.ErrorQueueSize.Set(0)

	return s
}

// Capture records err. Nil errors are ignored.
func (s *Sink) Capture(err error) {
	if err == nil {
		return
	}
	s.capture(err, stackOf(err), "capture")
}

// HandlePanic implements CrashHandler.
func (s *Sink) HandlePanic(value any, stack []byte) {
	err, ok := value.(error)
	if !ok {
		err = &PanicError{Value: value}
	}
	s.capture(err, string(stack), "panic")
}

// HandleUnhandled implements CrashHandler. The sink takes ownership of
// surfacing the error, so it always reports it as handled.
func (s *Sink) HandleUnhandled(err error) bool {
	if err == nil {
		return true
	}
	s.capture(err, stackOf(err), "unhandled")
	return true
}

func (s *Sink) capture(err error, stack, source string) {
	c := classify.Classify(err)
	rec := domain.ErrorRecord{
		ID:          uuid.NewString(),
		Message:     c.Message,
		Stack:       stack,
		TimestampMs: s.now().UnixMilli(),
		Kind:        c.Kind,
		Origin:      s.cfg.Origin,
	}

	s.mu.Lock()
	s.push(rec)
	size := s.size
	forward := s.cfg.Production && s.reporter != nil && !s.closed
	if forward {
		s.inflight.Add(1)
	}
	s.mu.Unlock()

	metrics.ErrorsCapturedTotal.WithLabelValues(string(c.Kind), source).Inc()
	metrics.ErrorQueueSize.Set(float64(size))

	// Crash signals are suppressed at the host, so the sink surfaces them.
	switch source {
	case "panic":
		s.log.Error("Uncaught panic", "id", rec.ID, "kind", c.Kind, "error", c.Message, "stack", stack)
	case "unhandled":
		s.log.Error("Unhandled error", "id", rec.ID, "kind", c.Kind, "error", c.Message)
	}

	if forward {
		go s.forward(rec)
	}
}

// push appends rec, evicting the oldest record when full. Callers hold mu.
func (s *Sink) push(rec domain.ErrorRecord) {
	capacity := len(s.queue)
	if s.size < capacity {
		s.queue[(s.head+s.size)%capacity] = rec
		s.size++
		return
	}
	s.queue[s.head] = rec
	s.head = (s.head + 1) % capacity
}

func (s *Sink) forward(rec domain.ErrorRecord) {
	defer s.inflight.Done()

	if !s.limiter.Allow() {
		metrics.ErrorReportsTotal.WithLabelValues("dropped").Inc()
		s.log.Warn("Error report dropped by rate limit", "id", rec.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReportTimeout)
	defer cancel()

	if err := s.reporter.Report(ctx, rec.Report(s.cfg.UserAgent)); err != nil {
		metrics.ErrorReportsTotal.WithLabelValues("failed").Inc()
		s.log.Error("Failed to forward error report", "id", rec.ID, "error", err)
		return
	}
	metrics.ErrorReportsTotal.WithLabelValues("sent").Inc()
}

// Recent returns up to limit records, newest first. A non-positive limit
// returns none.
func (s *Sink) Recent(limit int) []domain.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(max(limit, 0), s.size)

	out := make([]domain.ErrorRecord, 0, n)
	capacity := len(s.queue)
	for i := 0; i < n; i++ {
		idx := (s.head + s.size - 1 - i + capacity) % capacity
		out = append(out, s.queue[idx])
	}
	return out
}

// All returns every record held, newest first.
func (s *Sink) All() []domain.ErrorRecord {
	return s.Recent(len(s.queue))
}

// Len returns the number of records held.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Capacity returns the maximum number of records held.
func (s *Sink) Capacity() int {
	return len(s.queue)
}

// Clear drops all records. Crash signal subscriptions are kept.
func (s *Sink) Clear() {
	s.mu.Lock()
	clear(s.queue)
	s.head = 0
	s.size = 0
	s.mu.Unlock()

	metrics.ErrorQueueSize.Set(0)
}

// Close unsubscribes from crash signals and waits for in-flight reports until
// ctx is done. Records stay readable after Close.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PanicError wraps a recovered panic value that is not an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	switch v := e.Value.(type) {
	case string:
		return "panic: " + v
	default:
		return "panic: " + classify.Classify(v).Message
	}
}

// stackTracer is implemented by errors that carry their own stack.
type stackTracer interface {
	StackTrace() string
}

func stackOf(err error) string {
	var st stackTracer
	if errors.As(err, &st) {
		return st.StackTrace()
	}
	return ""
}
