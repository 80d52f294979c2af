package rankclaim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/dkmeans/internal/logging"
	"github.com/arloliu/dkmeans/types"
)

// claimRecord is stored as the value of a claimed rank key, for operators.
type claimRecord struct {
	Host      string    `json:"host"`
	PID       int       `json:"pid"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Claimer claims one rank of a fixed-size group.
type Claimer struct {
	kv     jetstream.KeyValue
	size   int
	rank   int
	logger types.Logger
}

// NewClaimer creates a rank claimer.
//
// Parameters:
//   - kv: KV bucket shared by the group (see EnsureBucket)
//   - size: Group size; ranks 0..size-1 are claimable
//   - logger: Logger for claim progress (nil for no-op)
//
// Returns:
//   - *Claimer: Claimer with no rank held
//
// Example:
//
//	kv, _ := rankclaim.EnsureBucket(ctx, js, jetstream.KeyValueConfig{Bucket: "dkmeans-ranks", TTL: time.Minute}, 3)
//	claimer := rankclaim.NewClaimer(kv, 4, logger)
//	rank, err := claimer.Claim(ctx)
//	defer claimer.Release(context.Background())
func NewClaimer(kv jetstream.KeyValue, size int, logger types.Logger) *Claimer {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Claimer{kv: kv, size: size, rank: -1, logger: logger}
}

// Key returns the KV key for rank.
func Key(rank int) string {
	return fmt.Sprintf("rank-%d", rank)
}

// Claim takes the lowest free rank.
//
// Ranks are tried in ascending order with an atomic KV Create; a rank that is
// already held is skipped.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - int: Claimed rank
//   - error: ErrNoAvailableRank if every rank is held, context error, or NATS error
func (c *Claimer) Claim(ctx context.Context) (int, error) {
	if c.rank >= 0 {
		return c.rank, nil
	}

	host, _ := os.Hostname()
	value, err := json.Marshal(claimRecord{Host: host, PID: os.Getpid(), ClaimedAt: time.Now().UTC()})
	if err != nil {
		return -1, err
	}

	for r := range c.size {
		if err := ctx.Err(); err != nil {
			c.logger.Debug("rank claim cancelled", "tried", r)
			return -1, err
		}

		revision, err := c.kv.Create(ctx, Key(r), value)
		if err == nil {
			c.rank = r
			c.logger.Info("rank claimed", "rank", r, "size", c.size, "revision", revision)

			return r, nil
		}

		if !errors.Is(err, jetstream.ErrKeyExists) {
			c.logger.Error("rank claim failed with unexpected error", "rank", r, "error", err)
			return -1, fmt.Errorf("failed to claim rank %d: %w", r, err)
		}

		c.logger.Debug("rank already claimed, trying next", "rank", r)
	}

	c.logger.Error("no available ranks", "size", c.size)

	return -1, fmt.Errorf("%w: all %d ranks are held", types.ErrNoAvailableRank, c.size)
}

// Rank returns the claimed rank, or -1 if none is held.
func (c *Claimer) Rank() int {
	return c.rank
}

// Release frees the claimed rank.
//
// Returns:
//   - error: ErrRankNotClaimed if no rank is held, or the KV delete error
func (c *Claimer) Release(ctx context.Context) error {
	if c.rank < 0 {
		return types.ErrRankNotClaimed
	}

	if err := c.kv.Delete(ctx, Key(c.rank)); err != nil {
		return fmt.Errorf("failed to release rank %d: %w", c.rank, err)
	}

	c.logger.Debug("rank released", "rank", c.rank)
	c.rank = -1

	return nil
}

// Held lists the ranks currently claimed in the bucket, ascending.
func (c *Claimer) Held(ctx context.Context) ([]int, error) {
	keys, err := c.kv.Keys(ctx)
	if err != nil {
		if types.IsNoKeysFoundError(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list ranks: %w", err)
	}

	ranks := make([]int, 0, len(keys))
	for _, key := range keys {
		num, ok := strings.CutPrefix(key, "rank-")
		if !ok {
			continue
		}
		r, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		ranks = append(ranks, r)
	}
	slices.Sort(ranks)

	return ranks, nil
}
