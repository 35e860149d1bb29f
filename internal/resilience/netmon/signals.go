package netmon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PollingSignals is a HostSignals for hosts without native connectivity
// events. It runs a Prober on an interval and emits a signal whenever the
// outcome flips.
type PollingSignals struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	online  bool
	started bool
	subs    map[int]func(bool)
	nextID  int

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	log       *slog.Logger
}

// NewPollingSignals creates polling signals. initial is the state reported
// before the first probe completes.
func NewPollingSignals(prober Prober, interval, timeout time.Duration, initial bool) *PollingSignals {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &PollingSignals{
		prober:   prober,
		interval: interval,
		timeout:  timeout,
		online:   initial,
		subs:     make(map[int]func(bool)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      slog.Default().With("component", "netmon"),
	}
}

// IsOnline implements HostSignals.
func (s *PollingSignals) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Subscribe implements HostSignals.
func (s *PollingSignals) Subscribe(fn func(online bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Start probes immediately and then on every interval until ctx is done or
// Stop is called. Only the first call runs; later calls and calls after Stop
// return at once.
func (s *PollingSignals) Start(ctx context.Context) {
	first := false
	s.startOnce.Do(func() { first = true })
	if !first {
		return
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	defer close(s.done)

	select {
	case <-s.stop:
		return
	default:
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// Stop ends polling and waits for Start to return if it is running.
func (s *PollingSignals) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *PollingSignals) poll(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	online := probeOnce(probeCtx, s.prober, s.log)
	cancel()

	if ctx.Err() != nil {
		return
	}
	s.emit(online)
}

func (s *PollingSignals) emit(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	subs := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}
