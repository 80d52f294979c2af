package rankclaim

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	dktest "github.com/arloliu/dkmeans/testing"
	"github.com/arloliu/dkmeans/types"
)

func newBucket(t *testing.T, name string) jetstream.KeyValue {
	t.Helper()

	_, nc := dktest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	kv, err := EnsureBucket(context.Background(), js, jetstream.KeyValueConfig{
		Bucket:  name,
		TTL:     time.Minute,
		Storage: jetstream.MemoryStorage,
	}, 3)
	require.NoError(t, err)

	return kv
}

func TestClaimer_ReleaseWithoutClaim(t *testing.T) {
	t.Parallel()

	c := NewClaimer(nil, 4, nil)
	require.Equal(t, -1, c.Rank())
	require.ErrorIs(t, c.Release(context.Background()), types.ErrRankNotClaimed)
}

func TestClaimer_ClaimsLowestFreeRank(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := newBucket(t, "ranks-lowest")

	a := NewClaimer(kv, 3, nil)
	b := NewClaimer(kv, 3, nil)

	ra, err := a.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, ra)

	rb, err := b.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rb)

	again, err := a.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, again)

	require.NoError(t, a.Release(ctx))
	require.ErrorIs(t, a.Release(ctx), types.ErrRankNotClaimed)

	held, err := b.Held(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{1}, held)

	c := NewClaimer(kv, 3, nil)
	rc, err := c.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, rc)

	held, err = c.Held(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, held)
}

func TestClaimer_HeldEmptyBucket(t *testing.T) {
	t.Parallel()
	kv := newBucket(t, "ranks-empty")

	held, err := NewClaimer(kv, 2, nil).Held(context.Background())
	require.NoError(t, err)
	require.Empty(t, held)
}

func TestClaimer_PoolExhausted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := newBucket(t, "ranks-exhausted")

	_, err := NewClaimer(kv, 1, nil).Claim(ctx)
	require.NoError(t, err)

	_, err = NewClaimer(kv, 1, nil).Claim(ctx)
	require.ErrorIs(t, err, types.ErrNoAvailableRank)
}

func TestClaimer_ConcurrentClaimsAreUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := newBucket(t, "ranks-concurrent")

	const size = 6
	var (
		mu    sync.Mutex
		ranks []int
		wg    sync.WaitGroup
	)
	for range size {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := NewClaimer(kv, size, nil).Claim(ctx)
			if err != nil {
				return
			}
			mu.Lock()
			ranks = append(ranks, r)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(ranks)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5}, ranks)
}

func TestClaimer_CancelledContext(t *testing.T) {
	t.Parallel()
	kv := newBucket(t, "ranks-cancelled")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClaimer(kv, 2, nil).Claim(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEnsureBucket_ConcurrentCreates(t *testing.T) {
	t.Parallel()
	_, nc := dktest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	const workers = 5
	errs := make(chan error, workers)
	for range workers {
		go func() {
			_, err := EnsureBucket(context.Background(), js, jetstream.KeyValueConfig{
				Bucket:  "ranks-race",
				Storage: jetstream.MemoryStorage,
			}, 5)
			errs <- err
		}()
	}

	for range workers {
		require.NoError(t, <-errs)
	}
}
