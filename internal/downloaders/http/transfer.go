package danzohttp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tanq16/danzo-http/internal/metrics"
	"github.com/tanq16/danzo-http/internal/utils"
)

type State int32

const (
	Idle State = iota
	Downloading
	Stopped
	Complete
	Fail
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Downloading:
		return "downloading"
	case Stopped:
		return "stopped"
	case Complete:
		return "complete"
	case Fail:
		return "fail"
	}
	return "unknown"
}

// Terminal reports whether a transfer in this state can never run again.
func (s State) Terminal() bool {
	return s == Complete || s == Fail
}

const (
	DefaultBufferSize     = 64 * 1024
	DefaultRetryBackoff   = time.Second
	DefaultSampleInterval = time.Second

	msgUserStopped = "user stopped"
	msgIncomplete  = "incomplete download"
)

var (
	ErrUserStopped = errors.New("transfer stopped by user")
	ErrIncomplete  = errors.New(msgIncomplete)
	ErrTerminal    = errors.New("transfer already finished")
	ErrNotStopped  = errors.New("transfer is not stopped")
	ErrNotRunning  = errors.New("transfer is not downloading")
	ErrStarted     = errors.New("transfer already started")
	ErrDisposed    = errors.New("transfer disposed")
)

// Options tunes a Transfer. Zero values select the defaults, except RetryCount where zero
// means a failed attempt is final.
type Options struct {
	// SavePath is the directory holding the working directory and the final file.
	SavePath string
	// ID names the working directory <SavePath>/<ID>. A stable ID lets a new process pick
	// up the temp files of an earlier one; default is a random UUID.
	ID             string
	ChunkSize      int64
	BufferSize     int
	RetryCount     int // attempts after the first one
	RetryBackoff   time.Duration
	SampleInterval time.Duration
	// Requester defaults to a ClientRequester built from HTTPClientConfig.
	Requester        Requester
	HTTPClientConfig utils.HTTPClientConfig
}

func (o *Options) setDefaults() {
	if o.SavePath == "" {
		o.SavePath = "."
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.RetryCount < 0 {
		o.RetryCount = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = DefaultSampleInterval
	}
	if o.Requester == nil {
		o.Requester = NewClientRequester(o.HTTPClientConfig)
	}
}

// Result is delivered once per Start or Resume. Path is empty unless State is Complete;
// Stopped and Fail are told apart by State, Message and Err.
type Result struct {
	Path    string
	State   State
	Message string
	Err     error
}

// Transfer downloads one URL in segments. Start it once; Pause and Resume may follow any
// number of times until it reaches Complete or Fail.
type Transfer struct {
	url     string
	opts    Options
	workDir string
	log     zerolog.Logger

	stop       *stopSignal
	events     *hub
	throughput *throughput

	ctx      context.Context // cancelled by Dispose
	cancel   context.CancelFunc
	disposed atomic.Bool

	mu       sync.Mutex
	state    State
	message  string
	segments []*Segment
	canRange bool
	fileName string
	threads  int
	running  chan struct{} // closed when the latest run returns
	gen      int           // bumped by every Resume
	result   Result        // outcome of the latest finished run
}

func New(url string, opts Options) *Transfer {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Transfer{
		url:        url,
		opts:       opts,
		workDir:    filepath.Join(opts.SavePath, opts.ID),
		log:        utils.GetLogger("transfer").With().Str("id", opts.ID).Logger(),
		stop:       newStopSignal(),
		events:     newHub(),
		throughput: newThroughput(opts.SampleInterval),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (t *Transfer) ID() string      { return t.opts.ID }
func (t *Transfer) URL() string     { return t.url }
func (t *Transfer) WorkDir() string { return t.workDir }

func (t *Transfer) FileName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fileName
}

func (t *Transfer) State() (State, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.message
}

// Subscribe returns a channel of events and a cancel func. The channel closes after
// Complete or Fail, on Dispose, or on cancel.
func (t *Transfer) Subscribe(buffer int) (<-chan Event, func()) {
	return t.events.subscribe(buffer)
}

func (t *Transfer) Snapshot() Progress {
	t.mu.Lock()
	state, message, segments := t.state, t.message, t.segments
	t.mu.Unlock()
	value, total, segs := snapshotSegments(segments)
	speed, eta := t.throughput.current()
	return Progress{
		Value:    value,
		Max:      total,
		Speed:    speed,
		ETA:      eta,
		State:    state,
		Message:  message,
		Segments: segs,
	}
}

// Start probes, plans and downloads in the background with up to threadCount workers
// (the CPU count when threadCount <= 0). fileName overrides the name taken from the
// response. The channel yields exactly one Result.
func (t *Transfer) Start(ctx context.Context, threadCount int, fileName string) <-chan Result {
	out := make(chan Result, 1)
	t.mu.Lock()
	switch {
	case t.disposed.Load():
		state := t.state
		t.mu.Unlock()
		out <- Result{State: state, Err: ErrDisposed}
		close(out)
		return out
	case t.state != Idle || t.running != nil:
		state := t.state
		t.mu.Unlock()
		out <- Result{State: state, Err: ErrStarted}
		close(out)
		return out
	}
	if threadCount <= 0 {
		threadCount = runtime.NumCPU()
	}
	t.threads = threadCount
	gen := t.gen
	done := make(chan struct{})
	t.running = done
	t.mu.Unlock()

	runCtx, cancelRun := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(t.ctx, cancelRun)
	go func() {
		defer close(done)
		defer cancelRun()
		defer stopAfter()
		out <- t.guard(func() Result { return t.begin(runCtx, gen, fileName) })
		close(out)
	}()
	return out
}

// Pause raises the stop signal. Workers leave at their next buffer and keep their temp
// files, so Resume continues where they stopped. A transfer paused while still probing
// finishes its plan and then settles as Stopped without dispatching any segment.
func (t *Transfer) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed.Load() {
		return ErrDisposed
	}
	probing := t.state == Idle && t.running != nil
	if t.state != Downloading && !probing {
		return ErrNotRunning
	}
	t.stop.Stop()
	t.setStateLocked(Stopped, msgUserStopped)
	t.log.Info().Msg("Transfer paused")
	return nil
}

// Resume clears the stop signal and redispatches every segment that has neither completed
// nor failed, using the segments planned by Start. The new run waits for the previous one
// to return first; if that run finished the transfer anyway, its Result is repeated.
func (t *Transfer) Resume() (<-chan Result, error) {
	t.mu.Lock()
	if t.disposed.Load() {
		t.mu.Unlock()
		return nil, ErrDisposed
	}
	if t.state.Terminal() {
		t.mu.Unlock()
		return nil, ErrTerminal
	}
	if t.state != Stopped {
		t.mu.Unlock()
		return nil, ErrNotStopped
	}
	prev := t.running
	done := make(chan struct{})
	t.running = done
	t.gen++
	gen := t.gen
	t.stop.Reset()
	t.setStateLocked(Downloading, "")
	t.mu.Unlock()
	t.log.Info().Msg("Transfer resumed")

	out := make(chan Result, 1)
	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		t.mu.Lock()
		state, last := t.state, t.result
		t.mu.Unlock()
		if state.Terminal() {
			out <- last
			close(out)
			return
		}
		ctx, cancel := context.WithCancel(t.ctx)
		defer cancel()
		out <- t.guard(func() Result { return t.run(ctx, gen) })
		close(out)
	}()
	return out, nil
}

// Dispose releases the transfer: it raises the stop signal for good, cancels in-flight
// requests and closes subscriptions. It does not wait for workers to return.
func (t *Transfer) Dispose() {
	if t.disposed.Swap(true) {
		return
	}
	t.stop.Dispose()
	t.cancel()
	t.events.abort()
}

// guard turns a panic escaping the pool into a failed transfer.
func (t *Transfer) guard(fn func() Result) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("transfer panicked: %v", r)
			t.log.Error().Err(err).Msg("Transfer aborted")
			os.RemoveAll(t.workDir)
			res = t.finish(Result{State: Fail, Message: err.Error(), Err: err})
		}
	}()
	return fn()
}

func (t *Transfer) begin(ctx context.Context, gen int, fileName string) Result {
	if err := os.MkdirAll(t.workDir, 0755); err != nil {
		err = fmt.Errorf("error creating working directory: %w", err)
		os.RemoveAll(t.workDir)
		return t.finish(Result{State: Fail, Message: err.Error(), Err: err})
	}

	t.mu.Lock()
	threads := t.threads
	t.mu.Unlock()
	probe := Probe(ctx, t.opts.Requester, t.url, threads)
	if probe.Err != nil {
		t.log.Warn().Err(probe.Err).Msg("Falling back to a single segment")
	}
	if fileName == "" {
		fileName = probe.FileName
	}
	if fileName == "" {
		fileName = utils.FileNameFromURL(t.url)
	}

	spans := Plan(probe.Length, probe.CanRange, t.opts.ChunkSize)
	segments := make([]*Segment, len(spans))
	for i, span := range spans {
		segments[i] = newSegment(span, filepath.Join(t.workDir, span.FileName()))
	}
	t.log.Debug().Int64("length", probe.Length).Bool("canRange", probe.CanRange).Int("segments", len(segments)).Str("file", fileName).Msg("Planned transfer")

	t.mu.Lock()
	t.fileName = fileName
	t.canRange = probe.CanRange
	t.segments = segments
	// A Resume issued while probing owns the next run; this one only hands over the plan.
	paused := t.state == Stopped || t.gen != gen
	if !paused {
		t.setStateLocked(Downloading, "")
	}
	t.mu.Unlock()

	go t.sample()
	if paused {
		t.log.Debug().Msg("Paused while probing, no segment dispatched")
		return t.settleStop(gen, msgUserStopped)
	}
	return t.run(ctx, gen)
}

// run dispatches every pending segment to a bounded pool and settles the outcome.
func (t *Transfer) run(ctx context.Context, gen int) Result {
	t.mu.Lock()
	segments, threads := t.segments, t.threads
	worker := &segmentWorker{
		requester:  t.opts.Requester,
		url:        t.url,
		canRange:   t.canRange,
		bufferSize: t.opts.BufferSize,
		retryCount: t.opts.RetryCount,
		backoff:    t.opts.RetryBackoff,
		stop:       t.stop,
		publish:    t.events.publish,
		log:        t.log,
	}
	t.mu.Unlock()

	var pending []*Segment
	for _, seg := range segments {
		if seg.pending() {
			pending = append(pending, seg)
		}
	}

	var stopped atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(max(1, min(threads, len(pending))))
	for _, seg := range pending {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("segment %d panicked: %v", seg.Index, r)
				}
			}()
			if derr := worker.download(ctx, seg); errors.Is(derr, errStopped) {
				stopped.Store(true)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.log.Error().Err(err).Msg("Worker pool failed")
		os.RemoveAll(t.workDir)
		return t.finish(Result{State: Fail, Message: err.Error(), Err: err})
	}

	if stopped.Load() {
		message := msgUserStopped
		if !t.stop.Stopped() && ctx.Err() != nil {
			message = ctx.Err().Error()
		}
		return t.settleStop(gen, message)
	}

	var errs []error
	var messages []string
	seen := make(map[string]bool)
	for _, seg := range segments {
		if seg.Completed() {
			continue
		}
		err := seg.LastError()
		if err == nil {
			continue
		}
		errs = append(errs, &SegmentError{Index: seg.Index, Err: err})
		if msg := err.Error(); !seen[msg] {
			seen[msg] = true
			messages = append(messages, msg)
		}
	}
	incomplete := false
	for _, seg := range segments {
		if !seg.Completed() {
			incomplete = true
			break
		}
	}
	if incomplete {
		message := msgIncomplete
		err := ErrIncomplete
		if len(messages) > 0 {
			message = strings.Join(messages, "; ")
			err = errors.Join(errs...)
		}
		os.RemoveAll(t.workDir)
		return t.finish(Result{State: Fail, Message: message, Err: err})
	}

	paths := make([]string, len(segments))
	for i, seg := range segments {
		paths[i] = seg.Path
	}
	t.mu.Lock()
	dest := filepath.Join(t.opts.SavePath, t.fileName)
	t.mu.Unlock()
	path, err := Merge(paths, dest, t.workDir)
	if err != nil {
		return t.finish(Result{State: Fail, Message: err.Error(), Err: err})
	}
	t.log.Info().Str("path", path).Msg("Transfer complete")
	return t.finish(Result{Path: path, State: Complete})
}

// settleStop records a stopped run. A run superseded by Resume leaves the state alone.
func (t *Transfer) settleStop(gen int, message string) Result {
	res := Result{State: Stopped, Message: message, Err: ErrUserStopped}
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen == t.gen && t.state == Downloading {
		t.setStateLocked(Stopped, message)
	}
	t.result = res
	return res
}

func (t *Transfer) finish(res Result) Result {
	t.mu.Lock()
	if !t.state.Terminal() {
		t.setStateLocked(res.State, res.Message)
	}
	t.result = res
	segments := t.segments
	t.mu.Unlock()
	if res.State.Terminal() {
		value, total := sumSegments(segments)
		t.events.publish(Event{Kind: EventProgress, Value: value, Max: total})
		t.events.finish()
	}
	return res
}

func (t *Transfer) setStateLocked(state State, message string) {
	if t.state.Terminal() {
		return
	}
	t.state = state
	t.message = message
	if state.Terminal() {
		metrics.TransfersFinished.WithLabelValues(state.String()).Inc()
	}
	t.events.publish(Event{Kind: EventState, State: state, Message: message})
}

// sample publishes speed, ETA and totals once per interval while the transfer is
// downloading or paused.
func (t *Transfer) sample() {
	ticker := time.NewTicker(t.opts.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
		}
		t.mu.Lock()
		state, segments := t.state, t.segments
		t.mu.Unlock()
		if state != Downloading && state != Stopped {
			return
		}
		value, total := sumSegments(segments)
		speed, eta, etaChanged := t.throughput.observe(value, total)
		t.events.publish(Event{Kind: EventSpeed, Speed: speed})
		if etaChanged {
			t.events.publish(Event{Kind: EventETA, ETA: eta})
		}
		t.events.publish(Event{Kind: EventProgress, Value: value, Max: total})
	}
}
