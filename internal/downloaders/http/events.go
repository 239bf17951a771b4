package danzohttp

import "sync"

type EventKind int

const (
	EventState EventKind = iota
	EventProgress
	EventSegment
	EventSpeed
	EventETA
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventProgress:
		return "progress"
	case EventSegment:
		return "segment"
	case EventSpeed:
		return "speed"
	case EventETA:
		return "eta"
	}
	return "unknown"
}

// Event is a single notification. Which fields are set depends on Kind:
// State/Message for EventState, Value/Max for EventProgress, Segment/Value/Max for
// EventSegment, Speed for EventSpeed and ETA for EventETA.
type Event struct {
	Kind    EventKind
	State   State
	Message string
	Segment int
	Value   int64
	Max     int64
	Speed   int64
	ETA     string
}

// hub fans events out to subscribers. Publishing never blocks: every subscriber owns an
// unbounded queue drained by its own pump goroutine, so events reach a subscriber in
// publish order and none are dropped while it keeps reading.
type hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[*subscriber]struct{})}
}

func (h *hub) subscribe(buffer int) (<-chan Event, func()) {
	s := &subscriber{
		notify: make(chan struct{}, 1),
		out:    make(chan Event, max(buffer, 0)),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.out)
		return s.out, func() {}
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	go s.pump()
	return s.out, func() {
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
		s.abort()
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.push(ev)
	}
}

// finish delivers what is queued, then closes every subscription.
func (h *hub) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		s.finish()
		delete(h.subs, s)
	}
}

// abort closes every subscription without draining.
func (h *hub) abort() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		s.abort()
		delete(h.subs, s)
	}
}

type subscriber struct {
	mu      sync.Mutex
	queue   []Event
	closing bool
	notify  chan struct{}
	out     chan Event
	done    chan struct{}
	once    sync.Once
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.wake()
}

func (s *subscriber) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) finish() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.wake()
}

func (s *subscriber) abort() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		closing := s.closing
		s.mu.Unlock()
		for _, ev := range batch {
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		if closing {
			return
		}
		select {
		case <-s.notify:
		case <-s.done:
			return
		}
	}
}
