// Package netmon tracks network connectivity.
//
// This package contains:
//   - Monitor: online/offline state driven by host signals, with listeners
//   - HostSignals: capability delivering connectivity transitions
//   - PollingSignals: HostSignals backed by a periodic liveness probe
//   - Prober: one-shot liveness probe (HTTPProber, GRPCProber)
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/resilience/internal/metrics"
)

// HostSignals delivers connectivity state from the host.
type HostSignals interface {
	// IsOnline returns the host's current view of connectivity.
	IsOnline() bool

	// Subscribe registers fn for "online"/"offline" signals and returns a
	// function that removes the subscription.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Listener is notified synchronously on every connectivity transition.
type Listener func(online bool)

// DefaultProbeTimeout bounds a single CheckConnectivity probe.
const DefaultProbeTimeout = 5 * time.Second

type listenerEntry struct {
	id int
	fn Listener
}

// Monitor tracks online/offline state.
//
// State changes only in response to host signals; CheckConnectivity is a
// one-shot probe and never changes it.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners []listenerEntry
	nextID    int
	unsub     func()
	signalled bool
	destroyed bool

	prober       Prober
	probeTimeout time.Duration
	log          *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithProbeTimeout sets the timeout applied to CheckConnectivity.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// NewMonitor creates a monitor initialized from host's current state and
// subscribed to its signals. prober may be nil, in which case
// CheckConnectivity always reports false.
func NewMonitor(host HostSignals, prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		prober:       prober,
		probeTimeout: DefaultProbeTimeout,
		log:          slog.Default().With("component", "netmon"),
	}
	for _, opt := range opts {
		opt(m)
	}

	// Subscribe before reading the state so no transition falls in between.
	// A signal that arrives meanwhile is newer than the read and wins.
	m.unsub = host.Subscribe(m.handleSignal)
	initial := host.IsOnline()

	m.mu.Lock()
	if !m.signalled {
		m.online = initial
	}
	online := m.online
	m.mu.Unlock()
	metrics.NetworkOnline.Set(metrics.BoolGauge(online))

	return m
}

// IsOnline returns the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// AddListener registers fn and returns a function that removes exactly this
// registration. Calling the returned function more than once is a no-op.
func (m *Monitor) AddListener(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return func() {}
	}

	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { m.removeListener(id) })
	}
}

// ListenerCount returns the number of registered listeners.
func (m *Monitor) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

func (m *Monitor) removeListener(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, l := range m.listeners {
		if l.id == id {
			m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
			return
		}
	}
}

// CheckConnectivity actively probes the liveness endpoint. Any failure,
// including a timeout, yields false. The cached state is not modified.
func (m *Monitor) CheckConnectivity(ctx context.Context) bool {
	if m.prober == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	return probeOnce(ctx, m.prober, m.log)
}

// Destroy unsubscribes from the host and drops all listeners. It is safe to
// call more than once.
func (m *Monitor) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	unsub := m.unsub
	m.unsub = nil
	m.listeners = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (m *Monitor) handleSignal(online bool) {
	m.mu.Lock()
	m.signalled = true
	if m.destroyed || m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	snapshot := make([]listenerEntry, len(m.listeners))
	copy(snapshot, m.listeners)
	m.mu.Unlock()

	state := "offline"
	if online {
		state = "online"
	}
	metrics.NetworkOnline.Set(metrics.BoolGauge(online))
	metrics.NetworkTransitionsTotal.WithLabelValues(state).Inc()
	m.log.Info("Connectivity changed", "state", state, "listeners", len(snapshot))

	for _, l := range snapshot {
		m.notify(l, online)
	}
}

// notify isolates a panicking listener from the ones after it.
func (m *Monitor) notify(l listenerEntry, online bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Connectivity listener panicked", "listener", l.id, "panic", r)
		}
	}()
	l.fn(online)
}
