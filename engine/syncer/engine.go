// Package syncer keeps a solver result in step with an edited topology. At
// most one synchronization is in flight; edits made meanwhile coalesce into a
// single follow-up call, and time-driven components arm a one-shot wake.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/solver"
)

// Source is the owner of the topology being synchronized. The engine never
// holds its own lock while calling a Source.
type Source interface {
	// Request serializes the current topology.
	Request(now time.Time) solver.Request
	// Apply receives a successful result.
	Apply(ctx context.Context, res *solver.Result)
	// Fail receives a failed synchronization.
	Fail(ctx context.Context, err error)
	// TimeDriven lists components whose state changes without edits.
	TimeDriven() []circuit.Component
}

// Timer is a cancellable one-shot callback. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// Options configures an Engine.
type Options struct {
	CallTimeout time.Duration // per solver call; 0 leaves it to the client
	Logger      *slog.Logger
	Now         func() time.Time
	AfterFunc   func(time.Duration, func()) Timer
}

// State is a point-in-time view of the engine flags.
type State struct {
	Dirty   bool      `json:"dirty"`
	Pending bool      `json:"pending"`
	Active  bool      `json:"active"`
	Wake    time.Time `json:"wake,omitzero"`
}

// Engine drives synchronization for one Source.
type Engine struct {
	src       Source
	client    solver.Client
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
	afterFunc func(time.Duration, func()) Timer

	mu      sync.Mutex
	dirty   bool
	pending bool
	active  bool
	closed  bool
	wake    Timer
	wakeAt  time.Time
	gen     uint64

	wg sync.WaitGroup
}

// New creates an inactive engine.
func New(src Source, client solver.Client, opts Options) *Engine {
	e := &Engine{
		src:       src,
		client:    client,
		timeout:   opts.CallTimeout,
		logger:    opts.Logger,
		now:       opts.Now,
		afterFunc: opts.AfterFunc,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.afterFunc == nil {
		e.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return e
}

// MarkDirty records an edit and synchronizes if simulation is active and no
// call is outstanding.
func (e *Engine) MarkDirty() {
	e.mu.Lock()
	e.dirty = true
	if e.pending {
		syncCoalescedTotal.Inc()
	}
	start := e.claimLocked()
	e.mu.Unlock()
	if start {
		e.launch()
	}
}

// Synchronize requests a synchronization even when nothing changed. If one is
// in flight, a follow-up is queued instead.
func (e *Engine) Synchronize() {
	e.mu.Lock()
	start := e.claimLocked()
	if !start && e.active {
		e.dirty = true
	}
	e.mu.Unlock()
	if start {
		e.launch()
	}
}

// SetActive turns simulation on or off. Turning it on synchronizes at once;
// turning it off disarms the wake timer. An outstanding call still completes.
func (e *Engine) SetActive(on bool) {
	e.mu.Lock()
	if e.closed {
		on = false
	}
	e.active = on
	var start bool
	if on {
		start = e.claimLocked()
	} else {
		e.disarmLocked()
	}
	e.mu.Unlock()
	if start {
		e.launch()
	}
}

// Active reports whether simulation is on.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// State returns the current flags.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{Dirty: e.dirty, Pending: e.pending, Active: e.active, Wake: e.wakeAt}
}

// Wait blocks until no synchronization is in flight.
func (e *Engine) Wait() { e.wg.Wait() }

// Close deactivates the engine permanently and waits for outstanding calls.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.active = false
	e.disarmLocked()
	e.mu.Unlock()
	e.wg.Wait()
}

// claimLocked takes the single flight when simulation is active.
func (e *Engine) claimLocked() bool {
	if !e.active || e.pending {
		return false
	}
	e.pending, e.dirty = true, false
	e.wg.Add(1)
	return true
}

func (e *Engine) launch() {
	req := e.src.Request(e.now())
	go e.roundTrip(req)
}

func (e *Engine) roundTrip(req solver.Request) {
	defer e.wg.Done()

	ctx, span := otel.Tracer("engine/syncer").Start(context.Background(), "syncer.synchronize",
		trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.Int("components", len(req.Components)),
		attribute.Int("wires", len(req.Wires)),
	)

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	start := time.Now()
	res, err := e.client.Simulate(callCtx, req)
	cancel()
	elapsed := time.Since(start)
	syncDuration.Observe(elapsed.Seconds())
	if err == nil && res == nil {
		err = solver.ErrEmptyResponse
	}

	var comps []circuit.Component
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		syncRequestsTotal.WithLabelValues("error").Inc()
		e.logger.Warn("synchronization failed", "error", err, "duration", elapsed)
		e.src.Fail(ctx, err)
	} else {
		syncRequestsTotal.WithLabelValues("ok").Inc()
		e.logger.Debug("synchronized", "duration", elapsed, "faults", len(res.Faults), "solve_errors", len(res.SolveErrors))
		e.src.Apply(ctx, res)
		comps = e.src.TimeDriven()
	}
	span.End()

	e.mu.Lock()
	e.pending = false
	if err == nil {
		e.armLocked(comps)
	}
	again := e.dirty && e.claimLocked()
	e.mu.Unlock()
	if again {
		e.launch()
	}
}

// armLocked replaces the wake timer with one for the next time-driven change.
func (e *Engine) armLocked(comps []circuit.Component) {
	e.disarmLocked()
	if !e.active {
		return
	}
	now := e.now()
	next, ok := NextWake(comps, now)
	if !ok {
		return
	}
	d := ClampWake(next)
	gen := e.gen
	e.wakeAt = now.Add(d)
	e.wake = e.afterFunc(d, func() { e.fire(gen) })
	e.logger.Debug("wake armed", "in", d)
}

func (e *Engine) disarmLocked() {
	if e.wake != nil {
		e.wake.Stop()
		e.wake = nil
	}
	e.wakeAt = time.Time{}
	e.gen++
}

func (e *Engine) fire(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || !e.active {
		e.mu.Unlock()
		return
	}
	e.wake = nil
	e.wakeAt = time.Time{}
	syncWakeupsTotal.Inc()
	start := e.claimLocked()
	if !start {
		e.dirty = true
	}
	e.mu.Unlock()
	if start {
		e.launch()
	}
}
