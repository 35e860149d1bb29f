package sink

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Supervisor is the CrashSignals host for goroutines started through it.
// A panic inside a supervised goroutine is recovered and delivered to
// HandlePanic; an error it returns is delivered to HandleUnhandled. When no
// handler claims an error, the supervisor logs it.
type Supervisor struct {
	mu       sync.Mutex
	handlers map[int]CrashHandler
	order    []int
	nextID   int
	wg       sync.WaitGroup
	log      *slog.Logger
}

// NewSupervisor creates a supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		handlers: make(map[int]CrashHandler),
		log:      slog.Default().With("component", "supervisor"),
	}
}

// OnCrash implements CrashSignals.
func (s *Supervisor) OnCrash(h CrashHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.handlers, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Go runs fn in a supervised goroutine.
func (s *Supervisor) Go(fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(fn)
	}()
}

// Run calls fn on the current goroutine with the same supervision as Go.
func (s *Supervisor) Run(fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.dispatchPanic(r, debug.Stack())
		}
	}()

	if err := fn(); err != nil {
		s.dispatchUnhandled(err)
	}
}

// Wait blocks until all goroutines started with Go have returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) snapshot() []CrashHandler {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CrashHandler, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.handlers[id])
	}
	return out
}

func (s *Supervisor) dispatchPanic(value any, stack []byte) {
	handlers := s.snapshot()
	if len(handlers) == 0 {
		s.log.Error("Uncaught panic", "panic", value, "stack", string(stack))
		return
	}
	for _, h := range handlers {
		h.HandlePanic(value, stack)
	}
}

func (s *Supervisor) dispatchUnhandled(err error) {
	handled := false
	for _, h := range s.snapshot() {
		if h.HandleUnhandled(err) {
			handled = true
		}
	}
	if !handled {
		s.log.Error("Unhandled error", "error", err)
	}
}
