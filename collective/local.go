package collective

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/arloliu/dkmeans/types"
)

// LocalGroup is a fixed-size group of in-process workers that synchronize over channels.
//
// Rank 0 doubles as the combiner: the other ranks hand their contribution to
// rank 0 through a shared inbox and block on a private result channel until
// rank 0 has seen every contribution for the same call.
//
// Thread Safety:
//   - The group is safe for concurrent use by its P communicators
//   - Each LocalComm must be used by a single goroutine
type LocalGroup struct {
	size  int
	inbox chan localMsg
	out   []chan localResult
	comms []*LocalComm

	done      chan struct{}
	closeOnce sync.Once
}

type localMsg struct {
	h   header
	f64 []float64
	i64 []int64
}

type localResult struct {
	seq uint64
	f64 []float64
	i64 []int64
	err error
}

// NewLocalGroup creates an in-process group of size workers.
//
// Parameters:
//   - size: Number of workers (must be > 0)
//
// Returns:
//   - *LocalGroup: Group whose communicators are obtained with Comm(rank)
//   - error: ErrConfiguration for a non-positive size
//
// Example:
//
//	group, _ := collective.NewLocalGroup(4)
//	defer group.Close()
//	for r := range 4 {
//	    go work(group.Comm(r))
//	}
func NewLocalGroup(size int) (*LocalGroup, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: group size must be positive, got %d", types.ErrConfiguration, size)
	}

	g := &LocalGroup{
		size:  size,
		inbox: make(chan localMsg, size),
		out:   make([]chan localResult, size),
		comms: make([]*LocalComm, size),
		done:  make(chan struct{}),
	}
	for r := range size {
		g.out[r] = make(chan localResult, 1)
		g.comms[r] = &LocalComm{g: g, rank: r}
	}

	return g, nil
}

// Size returns the number of workers in the group.
func (g *LocalGroup) Size() int {
	return g.size
}

// Comm returns the communicator for rank.
//
// Panics if rank is outside [0, Size()).
func (g *LocalGroup) Comm(rank int) *LocalComm {
	return g.comms[rank]
}

// Close unblocks every pending collective with ErrCommunicatorClosed.
//
// Safe to call multiple times.
func (g *LocalGroup) Close() error {
	g.closeOnce.Do(func() { close(g.done) })

	return nil
}

// LocalComm is one rank's view of a LocalGroup.
type LocalComm struct {
	g      *LocalGroup
	rank   int
	seq    uint64
	closed atomic.Bool
}

// Compile-time assertion that LocalComm implements Communicator.
var _ types.Communicator = (*LocalComm)(nil)

// Rank returns this worker's rank.
func (c *LocalComm) Rank() int { return c.rank }

// Size returns the group size.
func (c *LocalComm) Size() int { return c.g.size }

// Close detaches this rank. Later collectives on it fail; other ranks are unaffected
// until they next need this rank's contribution.
func (c *LocalComm) Close() error {
	c.closed.Store(true)

	return nil
}

// Broadcast overwrites buf on every rank with root's buf.
func (c *LocalComm) Broadcast(ctx context.Context, root int, buf []float64) error {
	if err := checkRoot(root, c.g.size); err != nil {
		return err
	}

	var data []float64
	if c.rank == root {
		data = slices.Clone(buf)
	}

	res, err := c.exchange(ctx, header{Op: OpBroadcast, Root: root, Len: len(buf)}, data, nil)
	if err != nil {
		return err
	}
	copy(buf, res.f64)

	return nil
}

// AllReduceFloat64 replaces buf with the element-wise sum over all ranks.
func (c *LocalComm) AllReduceFloat64(ctx context.Context, buf []float64) error {
	res, err := c.exchange(ctx, header{Op: OpAllReduceFloat64, Root: -1, Len: len(buf)}, slices.Clone(buf), nil)
	if err != nil {
		return err
	}
	copy(buf, res.f64)

	return nil
}

// AllReduceInt64 replaces buf with the element-wise sum over all ranks.
func (c *LocalComm) AllReduceInt64(ctx context.Context, buf []int64) error {
	res, err := c.exchange(ctx, header{Op: OpAllReduceInt64, Root: -1, Len: len(buf)}, nil, slices.Clone(buf))
	if err != nil {
		return err
	}
	copy(buf, res.i64)

	return nil
}

// Barrier returns once every rank has entered it.
func (c *LocalComm) Barrier(ctx context.Context) error {
	_, err := c.exchange(ctx, header{Op: OpBarrier, Root: -1}, nil, nil)

	return err
}

// exchange runs one collective call and returns the combined result.
func (c *LocalComm) exchange(ctx context.Context, h header, f64 []float64, i64 []int64) (localResult, error) {
	if c.closed.Load() {
		return localResult{}, types.ErrCommunicatorClosed
	}

	h.Seq = c.seq
	h.Rank = c.rank
	c.seq++

	msg := localMsg{h: h, f64: f64, i64: i64}
	if c.rank == 0 {
		return c.combine(ctx, msg)
	}

	select {
	case c.g.inbox <- msg:
	case <-ctx.Done():
		return localResult{}, fmt.Errorf("%w: %s#%d send: %w", types.ErrCollectiveFailed, h.Op, h.Seq, ctx.Err())
	case <-c.g.done:
		return localResult{}, types.ErrCommunicatorClosed
	}

	select {
	case res := <-c.g.out[c.rank]:
		if res.err != nil {
			return localResult{}, res.err
		}
		if res.seq != h.Seq {
			return localResult{}, fmt.Errorf("%w: rank %d expected result #%d, got #%d",
				types.ErrProtocolViolation, c.rank, h.Seq, res.seq)
		}

		return res, nil
	case <-ctx.Done():
		return localResult{}, fmt.Errorf("%w: %s#%d wait: %w", types.ErrCollectiveFailed, h.Op, h.Seq, ctx.Err())
	case <-c.g.done:
		return localResult{}, types.ErrCommunicatorClosed
	}
}

// combine runs on rank 0: gather every contribution, validate, combine, distribute.
func (c *LocalComm) combine(ctx context.Context, own localMsg) (localResult, error) {
	size := c.g.size
	msgs := make([]localMsg, size)
	seen := make([]bool, size)
	msgs[0], seen[0] = own, true

	var violation error
	for range size - 1 {
		select {
		case m := <-c.g.inbox:
			if m.h.Rank < 0 || m.h.Rank >= size || seen[m.h.Rank] {
				if violation == nil {
					violation = fmt.Errorf("%w: unexpected contribution from rank %d", types.ErrProtocolViolation, m.h.Rank)
				}
				continue
			}
			msgs[m.h.Rank], seen[m.h.Rank] = m, true
			if err := own.h.matches(m.h); err != nil && violation == nil {
				violation = err
			}
		case <-ctx.Done():
			return localResult{}, fmt.Errorf("%w: %s#%d gather: %w", types.ErrCollectiveFailed, own.h.Op, own.h.Seq, ctx.Err())
		case <-c.g.done:
			return localResult{}, types.ErrCommunicatorClosed
		}
	}

	if violation != nil {
		c.distribute(localResult{seq: own.h.Seq, err: violation})
		return localResult{}, violation
	}

	res := localResult{seq: own.h.Seq}
	switch own.h.Op {
	case OpBroadcast, OpAllReduceFloat64:
		contribs := make([][]float64, size)
		for r, m := range msgs {
			contribs[r] = m.f64
		}
		res.f64 = make([]float64, own.h.Len)
		combineFloat64(own.h.Op, own.h.Root, contribs, res.f64)
	case OpAllReduceInt64:
		contribs := make([][]int64, size)
		for r, m := range msgs {
			contribs[r] = m.i64
		}
		res.i64 = make([]int64, own.h.Len)
		combineInt64(contribs, res.i64)
	case OpBarrier:
	}

	c.distribute(res)

	return res, nil
}

// distribute hands the (read-only) result to every rank except 0.
func (c *LocalComm) distribute(res localResult) {
	for r := 1; r < c.g.size; r++ {
		select {
		case c.g.out[r] <- res:
		case <-c.g.done:
			return
		}
	}
}
