package danzohttp

import (
	"sync"
	"sync/atomic"
)

// stopSignal is the shared pause flag. Workers poll Stopped at buffer granularity and
// select on Done while sleeping. Once disposed it stays raised.
type stopSignal struct {
	raised   atomic.Bool
	mu       sync.Mutex
	ch       chan struct{} // closed while raised
	disposed bool
}

func newStopSignal() *stopSignal {
	return &stopSignal{ch: make(chan struct{})}
}

func (s *stopSignal) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.raised.Load() {
		s.raised.Store(true)
		close(s.ch)
	}
}

func (s *stopSignal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || !s.raised.Load() {
		return
	}
	s.ch = make(chan struct{})
	s.raised.Store(false)
}

func (s *stopSignal) Stopped() bool {
	return s.raised.Load()
}

func (s *stopSignal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (s *stopSignal) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
	s.Stop()
}
