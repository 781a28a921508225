package solver

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/wessley-schematic/pkg/natsutil"
)

// NATS subjects served by the solver worker.
const (
	SubjectSimulate = "circuit.simulate"
	SubjectMeasure  = "circuit.measure"
	SubjectSync     = "circuit.sync" // + "." + session id
)

// SimulateReply is the NATS reply for a simulation: a result or an error.
type SimulateReply struct {
	Result
	Error string `json:"error,omitempty"`
}

// SyncEvent announces the outcome of one synchronization of a session.
type SyncEvent struct {
	Session string `json:"session"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
	SimTime int64  `json:"simTime"`
	Live    int    `json:"liveWires"`
}

// NATS is a request-reply solver transport.
type NATS struct {
	nc *nats.Conn
}

// NewNATS wraps an established connection.
func NewNATS(nc *nats.Conn) *NATS { return &NATS{nc: nc} }

// Simulate implements Client.
func (c *NATS) Simulate(ctx context.Context, req Request) (*Result, error) {
	reply, err := natsutil.Request[Request, SimulateReply](ctx, c.nc, SubjectSimulate, req)
	if err != nil {
		return nil, fmt.Errorf("solver %s: %w", SubjectSimulate, err)
	}
	if reply.Error != "" {
		return nil, &ServiceError{Message: reply.Error}
	}
	return &reply.Result, nil
}

// Measure implements Client.
func (c *NATS) Measure(ctx context.Context, req MeasureRequest) (Measurement, error) {
	m, err := natsutil.Request[MeasureRequest, Measurement](ctx, c.nc, SubjectMeasure, req)
	if err != nil {
		return Measurement{}, fmt.Errorf("solver %s: %w", SubjectMeasure, err)
	}
	if m.Error != "" {
		return Measurement{}, &ServiceError{Message: m.Error}
	}
	return m, nil
}

// PublishSync broadcasts ev on the session's sync subject.
func (c *NATS) PublishSync(ctx context.Context, ev SyncEvent) error {
	return natsutil.Publish(ctx, c.nc, SubjectSync+"."+ev.Session, ev)
}
