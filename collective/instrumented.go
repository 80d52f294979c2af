package collective

import (
	"context"
	"time"

	"github.com/arloliu/dkmeans/types"
)

type instrumented struct {
	types.Communicator
	metrics types.CollectiveMetrics
}

// WithMetrics wraps comm so every collective records its latency and failures.
//
// Parameters:
//   - comm: Communicator to wrap
//   - metrics: Destination for per-operation metrics; nil returns comm unchanged
//
// Returns:
//   - types.Communicator: Instrumented communicator
func WithMetrics(comm types.Communicator, metrics types.CollectiveMetrics) types.Communicator {
	if metrics == nil {
		return comm
	}

	return &instrumented{Communicator: comm, metrics: metrics}
}

func (c *instrumented) observe(op Op, start time.Time, err error) error {
	c.metrics.RecordCollective(string(op), time.Since(start).Seconds())
	if err != nil {
		c.metrics.IncrementCollectiveError(string(op))
	}

	return err
}

func (c *instrumented) Broadcast(ctx context.Context, root int, buf []float64) error {
	start := time.Now()
	return c.observe(OpBroadcast, start, c.Communicator.Broadcast(ctx, root, buf))
}

func (c *instrumented) AllReduceFloat64(ctx context.Context, buf []float64) error {
	start := time.Now()
	return c.observe(OpAllReduceFloat64, start, c.Communicator.AllReduceFloat64(ctx, buf))
}

func (c *instrumented) AllReduceInt64(ctx context.Context, buf []int64) error {
	start := time.Now()
	return c.observe(OpAllReduceInt64, start, c.Communicator.AllReduceInt64(ctx, buf))
}

func (c *instrumented) Barrier(ctx context.Context) error {
	start := time.Now()
	return c.observe(OpBarrier, start, c.Communicator.Barrier(ctx))
}
