package danzohttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/danzo-http/internal/metrics"
)

// errStopped reports a cooperative stop. It is an outcome, never a segment error.
var errStopped = errors.New("stopped")

// SegmentError is the terminal error of a segment that ran out of retries.
type SegmentError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d failed after %d attempts: %v", e.Index, e.Attempts, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// Segment is one planned span plus its download state. Only the worker that owns the
// segment writes to it; counters are atomics so the aggregator may read at any time.
type Segment struct {
	Span
	Path string

	value     atomic.Int64
	max       atomic.Int64
	completed atomic.Bool

	mu      sync.Mutex
	failed  bool
	lastErr error
}

func newSegment(span Span, path string) *Segment {
	s := &Segment{Span: span, Path: path}
	s.max.Store(span.Length)
	return s
}

func (s *Segment) Value() int64    { return s.value.Load() }
func (s *Segment) Max() int64      { return s.max.Load() }
func (s *Segment) Completed() bool { return s.completed.Load() }

func (s *Segment) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

func (s *Segment) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Segment) setError(err error, failed bool) {
	s.mu.Lock()
	s.lastErr = err
	s.failed = failed
	s.mu.Unlock()
}

// pending reports whether a (re)dispatch still has work to do for this segment.
func (s *Segment) pending() bool {
	return !s.Completed() && !s.Failed()
}

// segmentWorker holds what every segment download of one transfer shares.
type segmentWorker struct {
	requester  Requester
	url        string
	canRange   bool
	bufferSize int
	retryCount int
	backoff    time.Duration
	stop       *stopSignal
	publish    func(Event)
	log        zerolog.Logger
}

func (w *segmentWorker) stopped(ctx context.Context) bool {
	return w.stop.Stopped() || ctx.Err() != nil
}

func (w *segmentWorker) report(seg *Segment) {
	w.publish(Event{Kind: EventSegment, Segment: seg.Index, Value: seg.Value(), Max: seg.Max()})
}

// download runs attempts with a fixed backoff until the segment completes, the stop
// signal is observed (errStopped) or retries are exhausted (*SegmentError).
func (w *segmentWorker) download(ctx context.Context, seg *Segment) error {
	log := w.log.With().Int("segment", seg.Index).Logger()
	metrics.ActiveSegments.Inc()
	defer metrics.ActiveSegments.Dec()
	attempts := 0
	for {
		if w.stopped(ctx) {
			return errStopped
		}
		err := w.attempt(ctx, seg)
		if err == nil {
			seg.setError(nil, false)
			seg.completed.Store(true)
			metrics.SegmentsCompleted.Inc()
			return nil
		}
		if errors.Is(err, errStopped) || w.stopped(ctx) {
			log.Debug().Int64("bytes", seg.Value()).Msg("Segment stopped")
			return errStopped
		}
		attempts++
		if attempts > w.retryCount {
			seg.setError(err, true)
			metrics.SegmentsFailed.Inc()
			log.Error().Err(err).Int("attempts", attempts).Msg("Segment failed after all retries")
			return &SegmentError{Index: seg.Index, Attempts: attempts, Err: err}
		}
		seg.setError(err, false)
		metrics.SegmentRetries.Inc()
		log.Debug().Err(err).Int("attempt", attempts).Int("maxRetries", w.retryCount).Msg("Retrying segment")
		timer := time.NewTimer(w.backoff)
		select {
		case <-timer.C:
		case <-w.stop.Done():
			timer.Stop()
			return errStopped
		case <-ctx.Done():
			timer.Stop()
			return errStopped
		}
	}
}

func (w *segmentWorker) attempt(ctx context.Context, seg *Segment) error {
	file, err := os.OpenFile(seg.Path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("error opening temp file: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("error reading temp file: %w", err)
	}
	size := info.Size()

	if seg.Length > 0 && size >= seg.Length {
		// Bytes past the planned end would shift every later segment in the merge.
		if size > seg.Length {
			if err := file.Truncate(seg.Length); err != nil {
				return fmt.Errorf("error trimming temp file: %w", err)
			}
		}
		seg.max.Store(seg.Length)
		seg.value.Store(seg.Length)
		metrics.SegmentsResumed.Inc()
		w.report(seg)
		return nil
	}

	var rng *ByteRange
	var resume int64
	if w.canRange {
		resume = size
		rng = &ByteRange{Start: seg.Start + resume, End: seg.End() - 1}
	} else if size > 0 {
		if err := file.Truncate(0); err != nil {
			return fmt.Errorf("error discarding partial file: %w", err)
		}
	}

	resp, err := w.requester.Open(ctx, w.url, rng)
	if err != nil {
		return fmt.Errorf("error requesting segment: %w", err)
	}
	defer resp.Body.Close()
	if rng != nil && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status code for range %s: %d", rng.Header(), resp.StatusCode)
	}
	if rng == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if rng != nil && resp.ContentLength > 0 && resp.ContentLength != rng.Len() {
		return fmt.Errorf("unexpected content length for range %s: %d", rng.Header(), resp.ContentLength)
	}
	if resp.ContentLength > 0 {
		seg.max.Store(resume + resp.ContentLength)
	}
	if _, err := file.Seek(resume, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking temp file: %w", err)
	}
	seg.value.Store(resume)
	if resume > 0 {
		w.log.Debug().Int("segment", seg.Index).Int64("offset", resume).Msg("Resuming segment")
	}
	w.report(seg)

	buffer := make([]byte, w.bufferSize)
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if w.stopped(ctx) {
				return errStopped
			}
			if _, err := file.Write(buffer[:n]); err != nil {
				return fmt.Errorf("error writing temp file: %w", err)
			}
			seg.value.Add(int64(n))
			metrics.BytesDownloaded.Add(float64(n))
			w.report(seg)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("error reading response body: %w", readErr)
		}
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("error syncing temp file: %w", err)
	}
	got, want := seg.Value(), seg.Max()
	if want > 0 && got != want {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", want, got)
	}
	if want == 0 {
		seg.max.Store(got)
	}
	return nil
}
