package collective

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arloliu/dkmeans/internal/logging"
	"github.com/arloliu/dkmeans/internal/natsutil"
	"github.com/arloliu/dkmeans/types"
	"github.com/nats-io/nats.go"
)

const (
	// envelopeOverhead is reserved in each message for the JSON header fields.
	envelopeOverhead = 1024

	joinRetryInterval = 100 * time.Millisecond
)

// NATSConfig configures a NATS communicator.
type NATSConfig struct {
	// Rank of this process in [0, Size).
	Rank int

	// Size is the number of processes in the group.
	Size int

	// Subject is the subject prefix shared by the group (e.g. "dkmeans.run1").
	Subject string

	// Timeout bounds each collective call. Zero waits forever.
	Timeout time.Duration

	// JoinTimeout bounds the startup handshake (default 30s).
	JoinTimeout time.Duration

	// Logger for transport events (default no-op).
	Logger types.Logger
}

// NATSComm is a types.Communicator whose ranks are separate processes
// connected to the same NATS server.
//
// Subjects used:
//   - <prefix>.join    startup handshake, request/reply to rank 0
//   - <prefix>.contrib contributions from ranks 1..P-1 to rank 0
//   - <prefix>.result  combined results from rank 0 to everyone else
//
// A NATSComm must be used by a single goroutine.
type NATSComm struct {
	nc      *nats.Conn
	cfg     NATSConfig
	logger  types.Logger
	maxElem int

	contribSub *nats.Subscription
	resultSub  *nats.Subscription

	seq    uint64
	closed atomic.Bool
}

// Compile-time assertion that NATSComm implements Communicator.
var _ types.Communicator = (*NATSComm)(nil)

type joinRequest struct {
	Rank int `json:"rank"`
	Size int `json:"size"`
}

type joinReply struct {
	Err string `json:"err,omitempty"`
}

// NewNATS joins a NATS-backed group.
//
// Blocks until all cfg.Size ranks have joined or cfg.JoinTimeout expires. Rank 0
// waits for a join request from every other rank and answers them all at once;
// other ranks retry their request until rank 0 is listening.
//
// The connection stays owned by the caller: Close releases subscriptions only.
//
// Parameters:
//   - ctx: Context for the handshake
//   - nc: Connected NATS client
//   - cfg: Group configuration
//
// Returns:
//   - *NATSComm: Joined communicator
//   - error: ErrConfiguration for bad parameters, ErrCollectiveFailed if the handshake fails
func NewNATS(ctx context.Context, nc *nats.Conn, cfg NATSConfig) (*NATSComm, error) {
	if nc == nil {
		return nil, fmt.Errorf("%w: NATS connection is nil", types.ErrConfiguration)
	}
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("%w: group size must be positive, got %d", types.ErrConfiguration, cfg.Size)
	}
	if cfg.Rank < 0 || cfg.Rank >= cfg.Size {
		return nil, fmt.Errorf("%w: rank %d not in [0,%d)", types.ErrInvalidRank, cfg.Rank, cfg.Size)
	}
	if cfg.Subject == "" {
		return nil, fmt.Errorf("%w: subject prefix is empty", types.ErrConfiguration)
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 30 * time.Second
	}

	c := &NATSComm{
		nc:      nc,
		cfg:     cfg,
		logger:  cfg.Logger,
		maxElem: max(1, int((nc.MaxPayload()-envelopeOverhead)*3/4/8)),
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}

	if cfg.Size == 1 {
		return c, nil
	}

	joinCtx, cancel := context.WithTimeout(ctx, cfg.JoinTimeout)
	defer cancel()

	var err error
	if cfg.Rank == 0 {
		err = c.acceptJoins(joinCtx)
	} else {
		err = c.join(joinCtx)
	}
	if err != nil {
		c.unsubscribe()
		return nil, err
	}

	c.logger.Info("joined collective group", "rank", cfg.Rank, "size", cfg.Size, "subject", cfg.Subject)

	return c, nil
}

func (c *NATSComm) subject(suffix string) string {
	return c.cfg.Subject + "." + suffix
}

// acceptJoins runs on rank 0: listen for contributions, then wait for every join.
func (c *NATSComm) acceptJoins(ctx context.Context) error {
	var err error
	c.contribSub, err = c.nc.SubscribeSync(c.subject("contrib"))
	if err != nil {
		return fmt.Errorf("%w: subscribe contrib: %w", types.ErrCollectiveFailed, err)
	}
	if err := c.contribSub.SetPendingLimits(-1, -1); err != nil {
		return fmt.Errorf("%w: pending limits: %w", types.ErrCollectiveFailed, err)
	}

	joinSub, err := c.nc.SubscribeSync(c.subject("join"))
	if err != nil {
		return fmt.Errorf("%w: subscribe join: %w", types.ErrCollectiveFailed, err)
	}
	defer func() { _ = joinSub.Unsubscribe() }()

	if err := c.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: flush: %w", types.ErrCollectiveFailed, err)
	}

	replies := make(map[int]string, c.cfg.Size-1)
	for len(replies) < c.cfg.Size-1 {
		msg, err := joinSub.NextMsgWithContext(ctx)
		if err != nil {
			return fmt.Errorf("%w: waiting for joins (%d/%d): %w",
				types.ErrCollectiveFailed, len(replies), c.cfg.Size-1, err)
		}

		var req joinRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.logger.Warn("ignoring malformed join request", "error", err)
			continue
		}

		if req.Size != c.cfg.Size || req.Rank <= 0 || req.Rank >= c.cfg.Size {
			c.logger.Warn("rejecting join request", "rank", req.Rank, "size", req.Size)
			c.reply(msg.Reply, joinReply{Err: fmt.Sprintf("rank %d/size %d does not fit group of %d", req.Rank, req.Size, c.cfg.Size)})

			continue
		}

		// A retried request replaces the earlier reply address.
		replies[req.Rank] = msg.Reply
		c.logger.Debug("rank joined", "rank", req.Rank, "joined", len(replies)+1, "size", c.cfg.Size)
	}

	for _, reply := range replies {
		c.reply(reply, joinReply{})
	}

	return nil
}

func (c *NATSComm) reply(subject string, r joinReply) {
	if subject == "" {
		return
	}
	data, _ := json.Marshal(r)
	if err := c.nc.Publish(subject, data); err != nil {
		c.logger.Warn("failed to answer join request", "error", err)
	}
}

// join runs on ranks 1..P-1: listen for results, then register with rank 0.
func (c *NATSComm) join(ctx context.Context) error {
	var err error
	c.resultSub, err = c.nc.SubscribeSync(c.subject("result"))
	if err != nil {
		return fmt.Errorf("%w: subscribe result: %w", types.ErrCollectiveFailed, err)
	}
	if err := c.resultSub.SetPendingLimits(-1, -1); err != nil {
		return fmt.Errorf("%w: pending limits: %w", types.ErrCollectiveFailed, err)
	}
	if err := c.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: flush: %w", types.ErrCollectiveFailed, err)
	}

	data, err := json.Marshal(joinRequest{Rank: c.cfg.Rank, Size: c.cfg.Size})
	if err != nil {
		return err
	}

	for {
		msg, err := c.nc.RequestWithContext(ctx, c.subject("join"), data)
		if err == nil {
			var rep joinReply
			if err := json.Unmarshal(msg.Data, &rep); err != nil {
				return fmt.Errorf("%w: malformed join reply: %w", types.ErrProtocolViolation, err)
			}
			if rep.Err != "" {
				return fmt.Errorf("%w: join rejected: %s", types.ErrConfiguration, rep.Err)
			}

			return nil
		}

		if !natsutil.IsConnectivityError(err) || ctx.Err() != nil {
			return fmt.Errorf("%w: join: %w", types.ErrCollectiveFailed, err)
		}

		c.logger.Debug("coordinator not ready, retrying join", "rank", c.cfg.Rank, "error", err)

		select {
		case <-time.After(joinRetryInterval):
		case <-ctx.Done():
			return fmt.Errorf("%w: join: %w", types.ErrCollectiveFailed, ctx.Err())
		}
	}
}

// Rank returns this process's rank.
func (c *NATSComm) Rank() int { return c.cfg.Rank }

// Size returns the group size.
func (c *NATSComm) Size() int { return c.cfg.Size }

// Close releases subscriptions. The NATS connection is left open.
func (c *NATSComm) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.unsubscribe()

	return nil
}

func (c *NATSComm) unsubscribe() {
	if c.contribSub != nil {
		_ = c.contribSub.Unsubscribe()
	}
	if c.resultSub != nil {
		_ = c.resultSub.Unsubscribe()
	}
}

// Broadcast overwrites buf on every rank with root's buf.
func (c *NATSComm) Broadcast(ctx context.Context, root int, buf []float64) error {
	if err := checkRoot(root, c.cfg.Size); err != nil {
		return err
	}

	var data []float64
	if c.cfg.Rank == root {
		data = buf
	}

	return c.exchange(ctx, header{Op: OpBroadcast, Root: root, Len: len(buf)}, data, nil, buf, nil)
}

// AllReduceFloat64 replaces buf with the element-wise sum over all ranks.
func (c *NATSComm) AllReduceFloat64(ctx context.Context, buf []float64) error {
	return c.exchange(ctx, header{Op: OpAllReduceFloat64, Root: -1, Len: len(buf)}, buf, nil, buf, nil)
}

// AllReduceInt64 replaces buf with the element-wise sum over all ranks.
func (c *NATSComm) AllReduceInt64(ctx context.Context, buf []int64) error {
	return c.exchange(ctx, header{Op: OpAllReduceInt64, Root: -1, Len: len(buf)}, nil, buf, nil, buf)
}

// Barrier returns once every rank has entered it.
func (c *NATSComm) Barrier(ctx context.Context) error {
	return c.exchange(ctx, header{Op: OpBarrier, Root: -1}, nil, nil, nil, nil)
}

// exchange sends this rank's contribution (f64 or i64) and writes the combined
// result into dstF64 or dstI64.
func (c *NATSComm) exchange(ctx context.Context, h header, f64 []float64, i64 []int64, dstF64 []float64, dstI64 []int64) error {
	if c.closed.Load() {
		return types.ErrCommunicatorClosed
	}

	h.Seq = c.seq
	h.Rank = c.cfg.Rank
	c.seq++

	if c.cfg.Size == 1 {
		return nil
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if c.cfg.Rank == 0 {
		return c.combine(ctx, h, f64, i64, dstF64, dstI64)
	}

	if err := c.publish(c.subject("contrib"), chunk(h, f64, i64, c.maxElem)); err != nil {
		return err
	}

	return c.awaitResult(ctx, h, dstF64, dstI64)
}

func (c *NATSComm) publish(subject string, envs []envelope) error {
	for _, env := range envs {
		data, err := marshalEnvelope(env)
		if err != nil {
			return fmt.Errorf("%w: encode %s#%d: %w", types.ErrCollectiveFailed, env.Op, env.Seq, err)
		}
		if err := c.nc.Publish(subject, data); err != nil {
			return fmt.Errorf("%w: publish %s#%d: %w", types.ErrCollectiveFailed, env.Op, env.Seq, err)
		}
	}

	return nil
}

func (c *NATSComm) awaitResult(ctx context.Context, h header, dstF64 []float64, dstI64 []int64) error {
	for {
		msg, err := c.resultSub.NextMsgWithContext(ctx)
		if err != nil {
			return fmt.Errorf("%w: %s#%d wait: %w", types.ErrCollectiveFailed, h.Op, h.Seq, err)
		}

		env, err := unmarshalEnvelope(msg.Data)
		if err != nil {
			return err
		}
		if err := env.remoteError(); err != nil {
			return err
		}
		if env.Seq != h.Seq {
			return fmt.Errorf("%w: rank %d expected result #%d, got #%d",
				types.ErrProtocolViolation, h.Rank, h.Seq, env.Seq)
		}

		switch {
		case len(env.F64) > 0:
			err = decodeFloat64s(env.F64, dstF64, env.Off)
		case len(env.I64) > 0:
			err = decodeInt64s(env.I64, dstI64, env.Off)
		}
		if err != nil {
			return err
		}

		if env.Last {
			return nil
		}
	}
}

// partial accumulates one rank's chunked contribution on rank 0.
type partial struct {
	h    header
	f64  []float64
	i64  []int64
	done bool
}

// combine runs on rank 0: gather every contribution, validate, combine, publish.
func (c *NATSComm) combine(ctx context.Context, h header, f64 []float64, i64 []int64, dstF64 []float64, dstI64 []int64) error {
	size := c.cfg.Size
	parts := make([]*partial, size)
	parts[0] = &partial{h: h, f64: f64, i64: i64, done: true}

	var violation error
	note := func(err error) {
		if violation == nil {
			violation = err
		}
	}

	for remaining := size - 1; remaining > 0; {
		msg, err := c.contribSub.NextMsgWithContext(ctx)
		if err != nil {
			err = fmt.Errorf("%w: %s#%d gather: %w", types.ErrCollectiveFailed, h.Op, h.Seq, err)
			_ = c.publish(c.subject("result"), []envelope{errorEnvelope(h, errKindFailed, err)})

			return err
		}

		env, err := unmarshalEnvelope(msg.Data)
		if err != nil {
			// The sender is unknown, so the chunk cannot be counted.
			note(err)
			continue
		}

		r := env.Rank
		if r <= 0 || r >= size || (parts[r] != nil && parts[r].done) {
			note(fmt.Errorf("%w: unexpected contribution from rank %d", types.ErrProtocolViolation, r))
			continue
		}

		p := parts[r]
		if p == nil {
			p = &partial{h: env.header}
			parts[r] = p
			if err := h.matches(env.header); err != nil {
				note(err)
			} else if h.Op == OpAllReduceInt64 {
				p.i64 = make([]int64, h.Len)
			} else if h.Op != OpBarrier && (h.Op != OpBroadcast || r == h.Root) {
				p.f64 = make([]float64, h.Len)
			}
		}

		if violation == nil {
			switch {
			case len(env.F64) > 0:
				err = decodeFloat64s(env.F64, p.f64, env.Off)
			case len(env.I64) > 0:
				err = decodeInt64s(env.I64, p.i64, env.Off)
			}
			if err != nil {
				note(err)
			}
		}

		if env.Last {
			p.done = true
			remaining--
		}
	}

	if violation != nil {
		_ = c.publish(c.subject("result"), []envelope{errorEnvelope(h, errKindProtocol, violation)})
		return violation
	}

	switch h.Op {
	case OpBroadcast, OpAllReduceFloat64:
		contribs := make([][]float64, size)
		for r, p := range parts {
			contribs[r] = p.f64
		}
		result := make([]float64, h.Len)
		combineFloat64(h.Op, h.Root, contribs, result)
		if err := c.publish(c.subject("result"), chunk(h, result, nil, c.maxElem)); err != nil {
			return err
		}
		copy(dstF64, result)
	case OpAllReduceInt64:
		contribs := make([][]int64, size)
		for r, p := range parts {
			contribs[r] = p.i64
		}
		result := make([]int64, h.Len)
		combineInt64(contribs, result)
		if err := c.publish(c.subject("result"), chunk(h, nil, result, c.maxElem)); err != nil {
			return err
		}
		copy(dstI64, result)
	case OpBarrier:
		if err := c.publish(c.subject("result"), chunk(h, nil, nil, c.maxElem)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown op %q", types.ErrProtocolViolation, h.Op)
	}

	return nil
}
