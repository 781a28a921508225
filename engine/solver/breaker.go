package solver

import (
	"context"

	"github.com/WessleyAI/wessley-schematic/pkg/fn"
	"github.com/WessleyAI/wessley-schematic/pkg/resilience"
)

type breakerClient struct {
	next Client
	b    *resilience.Breaker
}

// WithBreaker guards c with b. While the breaker is open calls fail fast with
// resilience.ErrCircuitOpen. Build b with NeutralErrors so that rejected
// requests do not count against the service.
func WithBreaker(c Client, b *resilience.Breaker) Client {
	return &breakerClient{next: c, b: b}
}

// NeutralErrors is the breaker classifier for solver clients.
func NeutralErrors(err error) bool { return IsServiceError(err) }

func (c *breakerClient) Simulate(ctx context.Context, req Request) (*Result, error) {
	return resilience.CallResult(c.b, ctx, func(ctx context.Context) fn.Result[*Result] {
		res, err := c.next.Simulate(ctx, req)
		return fn.FromPair(res, err)
	}).Unwrap()
}

func (c *breakerClient) Measure(ctx context.Context, req MeasureRequest) (Measurement, error) {
	var m Measurement
	err := c.b.Call(ctx, func(ctx context.Context) error {
		var err error
		m, err = c.next.Measure(ctx, req)
		return err
	})
	return m, err
}
