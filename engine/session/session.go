// Package session owns one editing session: the topology, its undo journal,
// the sync engine and the derived view of the latest solver result. All
// topology access is serialized behind a single mutex; edits mark the engine
// dirty after the lock is released.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/derive"
	"github.com/WessleyAI/wessley-schematic/engine/solver"
	"github.com/WessleyAI/wessley-schematic/engine/store"
	"github.com/WessleyAI/wessley-schematic/engine/syncer"
	"github.com/WessleyAI/wessley-schematic/engine/topology"
)

// ErrNoSolver is returned by New without a solver client.
var ErrNoSolver = errors.New("session: solver client is required")

// Publisher receives a notice after every synchronization.
type Publisher interface {
	PublishSync(ctx context.Context, ev solver.SyncEvent) error
}

// Options configures a Session.
type Options struct {
	ID           string        // default: random UUID
	Solver       solver.Client // required
	Store        store.Store   // default: in-memory
	Publisher    Publisher     // optional
	HistoryLimit int           // default: history.DefaultLimit
	NewID        func() string // component, wire and meter ids
	Now          func() time.Time
	AfterFunc    func(time.Duration, func()) syncer.Timer
	CallTimeout  time.Duration // per solver call
	MeasureRate  rate.Limit    // measurements per second; default 5
	MeasureBurst int           // default 1
	MeterWorkers int           // concurrent measurements; default 2
	Logger       *slog.Logger
}

// Session is one schematic being edited and simulated.
type Session struct {
	id      string
	solver  solver.Client
	store   store.Store
	pub     Publisher
	limiter *rate.Limiter
	workers int
	now     func() time.Time
	logger  *slog.Logger
	engine  *syncer.Engine
	debug   debugLog

	mu          sync.Mutex
	active      bool
	model       *topology.Model
	view        *derive.View
	status      derive.Summary
	meterErrors map[string]string
}

// New creates a session with an empty topology and simulation off.
func New(opts Options) (*Session, error) {
	if opts.Solver == nil {
		return nil, ErrNoSolver
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory(store.MemoryOptions{Now: opts.Now})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MeasureRate <= 0 {
		opts.MeasureRate = 5
	}
	if opts.MeasureBurst <= 0 {
		opts.MeasureBurst = 1
	}
	if opts.MeterWorkers <= 0 {
		opts.MeterWorkers = 2
	}
	logger := opts.Logger.With("session", opts.ID)

	s := &Session{
		id:          opts.ID,
		solver:      opts.Solver,
		store:       opts.Store,
		pub:         opts.Publisher,
		limiter:     rate.NewLimiter(opts.MeasureRate, opts.MeasureBurst),
		workers:     opts.MeterWorkers,
		now:         opts.Now,
		logger:      logger,
		model:       topology.New(topology.Options{HistoryLimit: opts.HistoryLimit, NewID: opts.NewID}),
		view:        derive.New(nil, false),
		status:      idle(),
		meterErrors: map[string]string{},
	}
	s.engine = syncer.New(s, opts.Solver, syncer.Options{
		CallTimeout: opts.CallTimeout,
		Logger:      logger,
		Now:         opts.Now,
		AfterFunc:   opts.AfterFunc,
	})
	return s, nil
}

func idle() derive.Summary {
	return derive.Summary{Status: derive.StatusOK, Text: "Simulation off.", Details: []string{}}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Close stops simulation and waits for outstanding calls.
func (s *Session) Close() { s.engine.Close() }

// Wait blocks until no synchronization is in flight.
func (s *Session) Wait() { s.engine.Wait() }

// edit runs f on the model under the lock and marks the engine dirty when f
// succeeds.
func (s *Session) edit(f func(m *topology.Model) error) error {
	s.mu.Lock()
	err := f(s.model)
	historyDepth.Set(float64(s.model.HistoryLen()))
	s.mu.Unlock()
	if err == nil {
		s.engine.MarkDirty()
	}
	return err
}

// AddComponent places a library variant at (x, y).
func (s *Session) AddComponent(variant string, x, y float64) (circuit.Component, error) {
	var c circuit.Component
	err := s.edit(func(m *topology.Model) (err error) {
		c, err = m.AddComponent(variant, x, y)
		return err
	})
	return c, err
}

func (s *Session) MoveComponent(id string, x, y float64) error {
	return s.edit(func(m *topology.Model) error { return m.MoveComponent(id, x, y) })
}

func (s *Session) RotateComponent(id string, step int) error {
	return s.edit(func(m *topology.Model) error { return m.RotateComponent(id, step) })
}

// RemoveComponent deletes a component with its wires and forgets any
// derived state for it.
func (s *Session) RemoveComponent(id string) ([]string, error) {
	var removed []string
	err := s.edit(func(m *topology.Model) (err error) {
		if removed, err = m.RemoveComponent(id); err == nil {
			s.view.Forget(id)
			delete(s.meterErrors, id)
		}
		return err
	})
	return removed, err
}

// PatchProps merges a JSON object into a component's props.
func (s *Session) PatchProps(id string, raw json.RawMessage) error {
	return s.edit(func(m *topology.Model) error { return m.PatchProps(id, raw) })
}

// UpdateProps edits a component's props in place.
func (s *Session) UpdateProps(id string, f func(circuit.Props) error) error {
	return s.edit(func(m *topology.Model) error { return m.UpdateProps(id, f) })
}

// Toggle flips a switch while simulating. Not recorded.
func (s *Session) Toggle(id string) error {
	return s.edit(func(m *topology.Model) error { return m.Toggle(id) })
}

// Press closes a push button until Release.
func (s *Session) Press(id string) error {
	return s.edit(func(m *topology.Model) error { return m.SetMomentary(id, true) })
}

// Release opens a pressed push button.
func (s *Session) Release(id string) error {
	return s.edit(func(m *topology.Model) error { return m.SetMomentary(id, false) })
}

func (s *Session) AddWire(from, to circuit.TerminalRef, points []circuit.Point) (circuit.Wire, error) {
	var w circuit.Wire
	err := s.edit(func(m *topology.Model) (err error) {
		w, err = m.AddWire(from, to, points)
		return err
	})
	return w, err
}

func (s *Session) RemoveWire(id string) error {
	return s.edit(func(m *topology.Model) error { return m.RemoveWire(id) })
}

func (s *Session) SetWireStyle(id string, style circuit.WireStyle) error {
	return s.edit(func(m *topology.Model) error { return m.SetWireStyle(id, style) })
}

func (s *Session) SetWireDefaults(style circuit.WireStyle) {
	s.edit(func(m *topology.Model) error {
		m.SetWireDefaults(style)
		return nil
	})
}

func (s *Session) InsertWirePoint(id string, p circuit.Point) (int, error) {
	var i int
	err := s.edit(func(m *topology.Model) (err error) {
		i, err = m.InsertWirePoint(id, p)
		return err
	})
	return i, err
}

func (s *Session) RemoveWirePoint(id string, p circuit.Point) error {
	return s.edit(func(m *topology.Model) error { return m.RemoveWirePoint(id, p) })
}

func (s *Session) MoveWirePoint(id string, index int, p circuit.Point) error {
	return s.edit(func(m *topology.Model) error { return m.MoveWirePoint(id, index, p) })
}

// AddMeter attaches a meter. Its reading arrives with the next refresh.
func (s *Session) AddMeter(mt circuit.Meter) (circuit.Meter, error) {
	var out circuit.Meter
	err := s.edit(func(m *topology.Model) (err error) {
		out, err = m.AddMeter(mt)
		return err
	})
	return out, err
}

func (s *Session) RemoveMeter(id string) error {
	return s.edit(func(m *topology.Model) error {
		delete(s.meterErrors, id)
		return m.RemoveMeter(id)
	})
}

// MoveMeter repositions a meter label without resynchronizing.
func (s *Session) MoveMeter(id string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.MoveMeter(id, x, y)
}

func (s *Session) SetCanvasSize(w, h float64) circuit.CanvasSize {
	var cs circuit.CanvasSize
	s.edit(func(m *topology.Model) error {
		cs = m.SetCanvasSize(w, h)
		return nil
	})
	return cs
}

// Select marks a component selected; SelectWire a wire.
func (s *Session) Select(id string) {
	s.mu.Lock()
	s.model.Select(id)
	s.mu.Unlock()
}

func (s *Session) SelectWire(id string) {
	s.mu.Lock()
	s.model.SelectWire(id)
	s.mu.Unlock()
}

func (s *Session) Selection() (component, wire string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Selection()
}

// Undo restores the previous topology. It reports false when there is
// nothing to undo.
func (s *Session) Undo() bool {
	var ok bool
	s.edit(func(m *topology.Model) error {
		if ok = m.Undo(); !ok {
			return errNothing
		}
		return nil
	})
	return ok
}

var errNothing = errors.New("nothing to do")

// Clear empties the topology, stops simulation and drops derived state.
func (s *Session) Clear() {
	s.mu.Lock()
	s.active = false
	s.model.Clear()
	historyDepth.Set(float64(s.model.HistoryLen()))
	s.view = derive.New(nil, false)
	s.status = idle()
	s.meterErrors = map[string]string{}
	s.mu.Unlock()
	s.engine.SetActive(false)
	s.logger.Info("topology cleared")
}

// Load replaces the topology with snap. The journal is kept.
func (s *Session) Load(snap circuit.Snapshot) {
	s.edit(func(m *topology.Model) error {
		m.Load(snap)
		s.view = derive.New(nil, s.active)
		s.meterErrors = map[string]string{}
		return nil
	})
	s.logger.Info("topology loaded", "components", len(snap.Components), "wires", len(snap.Wires))
}

// SetSimulation turns simulation on or off. Turning it off keeps the last
// result but reports every derived predicate as off.
func (s *Session) SetSimulation(on bool) {
	s.mu.Lock()
	s.active = on
	s.view = s.view.WithActive(on)
	if !on {
		s.status = derive.Summary{Status: derive.StatusOK, Text: "Simulation paused.", Details: []string{}}
	}
	s.mu.Unlock()
	s.engine.SetActive(on)
	s.logger.Info("simulation toggled", "on", on)
}

// Simulating reports whether simulation is on.
func (s *Session) Simulating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SyncState returns the sync engine flags.
func (s *Session) SyncState() syncer.State { return s.engine.State() }

// Snapshot returns a copy of the serializable topology.
func (s *Session) Snapshot() circuit.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Snapshot()
}

// HistoryLen reports how many edits can be undone.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.HistoryLen()
}

// Status returns the latest synchronization summary.
func (s *Session) Status() derive.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// DebugEntries returns the debug log, newest first.
func (s *Session) DebugEntries() []DebugEntry { return s.debug.newest() }

// ClearDebug empties the debug log.
func (s *Session) ClearDebug() { s.debug.reset() }

// Save stores the current topology under name. A non-empty id overwrites
// that save.
func (s *Session) Save(ctx context.Context, name, id string) (store.SaveInfo, error) {
	info, err := s.store.Put(ctx, name, s.Snapshot(), id)
	if err != nil {
		return store.SaveInfo{}, err
	}
	s.logger.Info("topology saved", "save", info.ID, "name", info.Name)
	return info, nil
}

// LoadSave replaces the topology with a stored save.
func (s *Session) LoadSave(ctx context.Context, id string) error {
	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	s.Load(snap)
	return nil
}

func (s *Session) DeleteSave(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Session) ListSaves(ctx context.Context) ([]store.SaveInfo, error) {
	return s.store.List(ctx)
}
