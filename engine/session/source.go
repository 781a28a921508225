package session

import (
	"context"
	"time"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/derive"
	"github.com/WessleyAI/wessley-schematic/engine/solver"
	"github.com/WessleyAI/wessley-schematic/engine/syncer"
)

var _ syncer.Source = (*Session)(nil)

// Request implements syncer.Source.
func (s *Session) Request(now time.Time) solver.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return solver.NewRequest(s.model.Snapshot(), now)
}

// TimeDriven implements syncer.Source.
func (s *Session) TimeDriven() []circuit.Component {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.TimeDriven()
}

// Apply implements syncer.Source: timer progress is written back so the
// next request carries it, and the derived view is replaced.
func (s *Session) Apply(ctx context.Context, res *solver.Result) {
	s.mu.Lock()
	for id, st := range res.TimerStates {
		s.model.SetTimerState(id, st)
	}
	s.view = derive.New(res, s.active)
	s.status = derive.Summarize(res, len(s.model.Components()), len(s.model.Wires()))
	live := len(s.view.Energized(resolvable(s)))
	status := s.status
	s.mu.Unlock()

	s.debug.add(s.now(), status)
	s.publish(ctx, status, live)
	s.RefreshMeters(ctx)
}

// Fail implements syncer.Source. The previous derived view stays in place.
func (s *Session) Fail(ctx context.Context, err error) {
	status := derive.Failure(err)
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()

	s.debug.add(s.now(), status)
	s.publish(ctx, status, 0)
	s.RefreshMeters(ctx)
}

func (s *Session) publish(ctx context.Context, status derive.Summary, live int) {
	if s.pub == nil {
		return
	}
	ev := solver.SyncEvent{
		Session: s.id,
		Status:  status.Status,
		Summary: status.Text,
		SimTime: s.now().UnixMilli(),
		Live:    live,
	}
	if err := s.pub.PublishSync(ctx, ev); err != nil {
		s.logger.Warn("publish sync event", "error", err)
	}
}
