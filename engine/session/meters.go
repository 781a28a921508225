package session

import (
	"context"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/solver"
	"github.com/WessleyAI/wessley-schematic/pkg/fn"
)

// RefreshMeters reads every resolvable meter from the measurement service.
// A failed reading clears the meter's value and keeps the service's message
// as its readout. Meters whose terminals no longer resolve are cleared.
func (s *Session) RefreshMeters(ctx context.Context) {
	s.mu.Lock()
	snap := s.model.Snapshot()
	var meters []circuit.Meter
	for _, mt := range snap.Meters {
		if s.model.MeterResolvable(mt) {
			meters = append(meters, mt)
		} else {
			s.model.SetMeterValue(mt.ID, nil)
			delete(s.meterErrors, mt.ID)
		}
	}
	s.mu.Unlock()
	if len(meters) == 0 {
		return
	}

	results := fn.ParMapResult(meters, s.workers, func(mt circuit.Meter) fn.Result[solver.Measurement] {
		return s.measure(ctx, snap, mt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range results {
		id := meters[i].ID
		m, err := r.Unwrap()
		if err != nil {
			// the meter may have been removed while it was measured
			if s.model.SetMeterValue(id, nil) {
				s.meterErrors[id] = err.Error()
			}
			continue
		}
		s.model.SetMeterValue(id, m.Value)
		delete(s.meterErrors, id)
	}
}

func (s *Session) measure(ctx context.Context, snap circuit.Snapshot, mt circuit.Meter) fn.Result[solver.Measurement] {
	ctx, span := otel.Tracer("engine/session").Start(ctx, "session.measure", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("meter", mt.ID), attribute.String("mode", string(mt.Mode)))

	if err := s.limiter.Wait(ctx); err != nil {
		meterMeasurementsTotal.WithLabelValues("throttled").Inc()
		return fn.Err[solver.Measurement](err)
	}
	m, err := s.solver.Measure(ctx, solver.NewMeasureRequest(snap, mt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		meterMeasurementsTotal.WithLabelValues("error").Inc()
		return fn.Err[solver.Measurement](err)
	}
	if m.Value != nil && (math.IsInf(*m.Value, 0) || math.IsNaN(*m.Value)) {
		m.Value = nil
	}
	meterMeasurementsTotal.WithLabelValues("ok").Inc()
	return fn.Ok(m)
}
