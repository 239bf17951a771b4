package danzohttp

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// etaWindow is how many ETA samples are averaged into one published estimate.
const etaWindow = 4

// Progress is a read-only snapshot. Segments stay the source of truth; a snapshot may
// trail the workers by one buffer.
type Progress struct {
	Value    int64
	Max      int64
	Speed    int64 // bytes per second over the last sample
	ETA      string
	State    State
	Message  string
	Segments []SegmentProgress
}

type SegmentProgress struct {
	Index     int
	Value     int64
	Max       int64
	Completed bool
	Failed    bool
	Err       string
}

// Percent returns the completed fraction in [0, 1], or false when the size is unknown.
func (p Progress) Percent() (float64, bool) {
	if p.Max <= 0 {
		return 0, false
	}
	return float64(p.Value) / float64(p.Max), true
}

func snapshotSegments(segments []*Segment) (value, total int64, out []SegmentProgress) {
	out = make([]SegmentProgress, 0, len(segments))
	for _, seg := range segments {
		sp := SegmentProgress{
			Index:     seg.Index,
			Value:     seg.Value(),
			Max:       seg.Max(),
			Completed: seg.Completed(),
			Failed:    seg.Failed(),
		}
		if err := seg.LastError(); err != nil {
			sp.Err = err.Error()
		}
		value += sp.Value
		total += sp.Max
		out = append(out, sp)
	}
	return value, total, out
}

func sumSegments(segments []*Segment) (value, total int64) {
	for _, seg := range segments {
		value += seg.Value()
		total += seg.Max()
	}
	return value, total
}

// throughput turns periodic byte totals into a speed and a smoothed ETA.
type throughput struct {
	interval time.Duration

	mu      sync.Mutex
	last    int64
	samples []int64
	speed   int64
	eta     string
}

func newThroughput(interval time.Duration) *throughput {
	return &throughput{interval: interval}
}

// observe records the totals of one tick. etaChanged is set whenever the published ETA
// was recomputed or cleared.
func (t *throughput) observe(value, total int64) (speed int64, eta string, etaChanged bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delta := value - t.last
	t.last = value
	seconds := t.interval.Seconds()
	if delta <= 0 || seconds <= 0 {
		t.speed = 0
		return 0, t.eta, false
	}
	t.speed = int64(float64(delta) / seconds)
	remaining := int64(float64(total-value) / float64(delta) * seconds)
	if remaining < 1 {
		t.eta = ""
		return t.speed, "", true
	}
	t.samples = append(t.samples, remaining)
	if len(t.samples) > etaWindow {
		var sum int64
		for _, s := range t.samples {
			sum += s
		}
		avg := int64(math.Ceil(float64(sum) / float64(len(t.samples))))
		t.samples = t.samples[:0]
		t.eta = FormatETA(avg)
		return t.speed, t.eta, true
	}
	return t.speed, t.eta, false
}

func (t *throughput) current() (int64, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speed, t.eta
}

// FormatETA renders seconds as HH:MM:SS, dropping the hour field when it is zero.
func FormatETA(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds/60)%60, seconds%60
	text := fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	return strings.TrimPrefix(text, "00:")
}
