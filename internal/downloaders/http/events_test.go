package danzohttp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("subscription was not closed")
			return out
		}
	}
}

func TestHubDeliversInOrderThenCloses(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe(0)
	defer cancel()

	for i := range 500 {
		h.publish(Event{Kind: EventSegment, Segment: 1, Value: int64(i)})
	}
	h.finish()

	events := drain(t, ch)
	require.Len(t, events, 500)
	for i, ev := range events {
		assert.Equal(t, int64(i), ev.Value)
	}
}

func TestHubCancelClosesSubscription(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe(1)
	h.publish(Event{Kind: EventState})
	cancel()
	drain(t, ch)

	// publishing after cancel must not block or panic
	h.publish(Event{Kind: EventState})
}

func TestHubSubscribeAfterFinish(t *testing.T) {
	h := newHub()
	h.finish()
	ch, _ := h.subscribe(1)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestHubAbort(t *testing.T) {
	h := newHub()
	ch, _ := h.subscribe(0)
	h.publish(Event{Kind: EventProgress})
	h.abort()
	drain(t, ch)
}

func TestStopSignal(t *testing.T) {
	s := newStopSignal()
	assert.False(t, s.Stopped())
	done := s.Done()

	s.Stop()
	assert.True(t, s.Stopped())
	select {
	case <-done:
	default:
		t.Fatal("Done should be closed while stopped")
	}

	s.Reset()
	assert.False(t, s.Stopped())
	select {
	case <-s.Done():
		t.Fatal("Done should be open after Reset")
	default:
	}

	s.Dispose()
	s.Reset()
	assert.True(t, s.Stopped())
}
