// Package probe finds how long a server keeps an idle session alive.
//
// A Scheduler reissues one captured request at growing idle offsets and
// stops at the first offset whose response carries the expiry indicator.
package probe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"sessionprobe/internal/logx"
	"sessionprobe/internal/metrics"
	"sessionprobe/internal/stats"

	"github.com/google/uuid"
)

const defaultUpdateBuffer = 64

// Sender delivers the raw request to endpoint and returns the raw response.
type Sender interface {
	Send(ctx context.Context, endpoint Endpoint, raw []byte) ([]byte, error)
}

type Options struct {
	Clock        Clock
	Logger       logx.Logger
	Metrics      *metrics.Metrics
	UpdateBuffer int
	// Tick is the wall time of one second of offset arithmetic.
	Tick time.Duration
}

type Scheduler struct {
	sender Sender
	opts   Options

	mu     sync.Mutex
	active *Handle
}

func NewScheduler(sender Sender, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	if opts.UpdateBuffer <= 0 {
		opts.UpdateBuffer = defaultUpdateBuffer
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	return &Scheduler{sender: sender, opts: opts}
}

// Active returns the running handle, or nil.
func (s *Scheduler) Active() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start validates the run and launches it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context, cfg Config, base BaseRequest) (*Handle, error) {
	if err := validateRun(cfg, base); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, &AlreadyRunningError{RunID: s.active.id}
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:      uuid.New().String(),
		cfg:     cfg,
		base:    BaseRequest{Endpoint: base.Endpoint, Raw: append([]byte(nil), base.Raw...)},
		updates: make(chan RunState, s.opts.UpdateBuffer),
		done:    make(chan struct{}),
		cancel:  cancel,
		stats:   stats.NewStats(),
	}
	h.state.Store(&RunState{Status: StatusIdle})
	s.active = h

	s.opts.Metrics.RunStarted()
	go s.run(runCtx, h)
	return h, nil
}

func (s *Scheduler) run(ctx context.Context, h *Handle) {
	log := s.opts.Logger.With(logx.String("run", h.id))
	clock := s.opts.Clock
	cfg := h.cfg

	defer func() {
		s.mu.Lock()
		if s.active == h {
			s.active = nil
		}
		s.mu.Unlock()
		h.cancel()
		close(h.updates)
		close(h.done)
	}()

	log.Info("run started",
		logx.String("endpoint", h.base.Endpoint.String()),
		logx.String("match", cfg.Match),
		logx.Uint("min", cfg.MinOffset),
		logx.Uint("max", cfg.MaxOffset),
		logx.Uint("interval", cfg.Interval),
	)

	st := RunState{
		Status:         StatusRunning,
		NextOffset:     cfg.MinOffset,
		UntilNextProbe: cfg.MinOffset,
		Remaining:      TotalHorizon(cfg.MinOffset, cfg.MaxOffset, cfg.Interval),
		StartedAt:      clock.Now(),
	}
	s.opts.Metrics.SetOffset(st.NextOffset)
	h.publish(st, clock.Now())

	for st.Status == StatusRunning && st.NextOffset <= cfg.MaxOffset {
		_ = clock.Sleep(ctx, s.opts.Tick)
		if ctx.Err() != nil {
			st.Status = StatusCancelled
			break
		}

		if st.UntilNextProbe == 0 {
			rec, err := s.probe(ctx, h, st.NextOffset, log)
			st.Probes++
			if err != nil {
				st.Status = StatusCompleted
				st.Err = &TransportError{Offset: st.NextOffset, Err: err}
				break
			}
			if rec.Matched {
				detected := st.NextOffset
				st.DetectedOffset = &detected
				st.Status = StatusTimeoutDetected
				break
			}
			next := st.NextOffset + cfg.Interval
			if next < st.NextOffset {
				// offset space exhausted
				break
			}
			st.NextOffset = next
			st.UntilNextProbe = next
			s.opts.Metrics.SetOffset(next)
		}

		st.UntilNextProbe--
		st.Remaining--
		st.Elapsed++
		h.publish(st, clock.Now())
	}

	if st.Status == StatusRunning {
		st.Status = StatusCompleted
	}
	h.publish(st, clock.Now())
	s.opts.Metrics.RunFinished(st.Status.String())

	fields := []logx.Field{
		logx.String("status", st.Status.String()),
		logx.Int("probes", st.Probes),
		logx.Int64("elapsed", st.Elapsed),
	}
	if off, ok := st.Detected(); ok {
		fields = append(fields, logx.Uint("detected_offset", off))
	}
	if st.Err != nil {
		log.Error("run aborted", append(fields, logx.Err(st.Err))...)
		return
	}
	log.Info("run finished", fields...)
}

// probe sends the captured request once. Cancelling the run does not
// interrupt a probe already on the wire.
func (s *Scheduler) probe(ctx context.Context, h *Handle, offset uint, log logx.Logger) (ProbeRecord, error) {
	clock := s.opts.Clock
	start := clock.Now()
	body, err := s.sender.Send(context.WithoutCancel(ctx), h.base.Endpoint, h.base.Raw)
	latency := clock.Now().Sub(start)

	rec := ProbeRecord{
		Offset:  offset,
		At:      start,
		Latency: latency,
	}
	if err != nil {
		rec.Err = err.Error()
		s.opts.Metrics.ObserveProbe(metrics.OutcomeError, latency)
		h.stats.Add(false, true, 0, latency)
		h.record(rec)
		log.Warn("probe failed", logx.Uint("offset", offset), logx.Err(err))
		return rec, err
	}

	rec.StatusCode = StatusCode(body)
	rec.Bytes = len(body)
	rec.Matched = Matches(body, h.cfg.Match)

	outcome := metrics.OutcomeNoMatch
	if rec.Matched {
		outcome = metrics.OutcomeMatch
	}
	s.opts.Metrics.ObserveProbe(outcome, latency)
	h.stats.Add(rec.Matched, false, rec.Bytes, latency)
	h.record(rec)

	log.Info("probe sent",
		logx.Uint("offset", offset),
		logx.Int("status_code", rec.StatusCode),
		logx.Int("bytes", rec.Bytes),
		logx.Duration("latency", latency),
		logx.Bool("matched", rec.Matched),
	)
	return rec, nil
}

// Handle controls and observes one run.
type Handle struct {
	id   string
	cfg  Config
	base BaseRequest

	state   atomic.Pointer[RunState]
	updates chan RunState
	done    chan struct{}

	cancel     context.CancelFunc
	cancelOnce sync.Once

	mu      sync.Mutex
	results []ProbeRecord
	stats   *stats.Stats
}

func (h *Handle) ID() string        { return h.id }
func (h *Handle) Config() Config    { return h.cfg }
func (h *Handle) Base() BaseRequest { return h.base }

// State returns the latest published snapshot.
func (h *Handle) State() RunState { return *h.state.Load() }

// Updates yields one snapshot per tick and is closed after the terminal
// snapshot. Snapshots are dropped when the reader falls behind.
func (h *Handle) Updates() <-chan RunState { return h.updates }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run ends or ctx is done.
func (h *Handle) Wait(ctx context.Context) (RunState, error) {
	select {
	case <-h.done:
		return h.State(), nil
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

// Cancel asks the run to stop at the next tick boundary. Safe to call more
// than once and after the run ended.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(h.cancel)
}

// Results returns a copy of the probes issued so far.
func (h *Handle) Results() []ProbeRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ProbeRecord(nil), h.results...)
}

func (h *Handle) Stats() *stats.Stats { return h.stats }

func (h *Handle) record(rec ProbeRecord) {
	h.mu.Lock()
	rec.Seq = len(h.results) + 1
	h.results = append(h.results, rec)
	h.mu.Unlock()
}

func (h *Handle) publish(st RunState, now time.Time) {
	st.UpdatedAt = now
	snap := st
	h.state.Store(&snap)

	select {
	case h.updates <- snap:
	default:
		// reader is behind; State() still has the latest
	}
}
