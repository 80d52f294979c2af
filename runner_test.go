package dkmeans

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/dkmeans/collective"
	"github.com/arloliu/dkmeans/internal/logging"
	"github.com/arloliu/dkmeans/internal/metrics"
	"github.com/arloliu/dkmeans/source"
	dktest "github.com/arloliu/dkmeans/testing"
)

func TestNewRunner_RequiredParameters(t *testing.T) {
	group, err := collective.NewLocalGroup(1)
	require.NoError(t, err)
	defer group.Close()

	src := newSeededSource(t, column(1, 2, 3, 4), column(1, 4))
	cfg := localConfig(1, 4, 2, 1, 1)

	t.Run("nil config", func(t *testing.T) {
		_, err := NewRunner(nil, group.Comm(0), src)
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("nil communicator", func(t *testing.T) {
		_, err := NewRunner(&cfg, nil, src)
		require.ErrorIs(t, err, ErrCommunicatorRequired)
	})

	t.Run("nil source", func(t *testing.T) {
		_, err := NewRunner(&cfg, group.Comm(0), nil)
		require.ErrorIs(t, err, ErrPointSourceRequired)
	})

	t.Run("invalid config", func(t *testing.T) {
		bad := cfg
		bad.Clusters = 5
		_, err := NewRunner(&bad, group.Comm(0), src)
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("communicator size mismatch", func(t *testing.T) {
		bad := cfg
		bad.Workers = 2
		_, err := NewRunner(&bad, group.Comm(0), src)
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("defaults optional dependencies", func(t *testing.T) {
		r, err := NewRunner(&cfg, group.Comm(0), src)
		require.NoError(t, err)
		require.NotNil(t, r.logger)
		require.NotNil(t, r.metrics)
		require.NotNil(t, r.hooks.OnError)
		require.Equal(t, StateInit, r.State())
	})
}

func TestRunner_RunTwice(t *testing.T) {
	group, err := collective.NewLocalGroup(1)
	require.NoError(t, err)
	defer group.Close()

	cfg := localConfig(1, 4, 2, 1, 1)
	r, err := NewRunner(&cfg, group.Comm(0), newSeededSource(t, column(1, 2, 3, 4), column(1, 4)))
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateDone, r.State())

	_, err = r.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestRunLocal_FixedPoint(t *testing.T) {
	for _, workers := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("P=%d", workers), func(t *testing.T) {
			t.Parallel()

			cfg := localConfig(1, 4, 2, 3, workers)
			src := newSeededSource(t, column(0, 0, 10, 10), column(0, 10))

			res, err := RunLocal(context.Background(), &cfg, src)
			require.NoError(t, err)
			require.Equal(t, []float64{0, 10}, res.Centroids.RawMatrix().Data)
			require.Equal(t, []int64{2, 2}, res.Counts)
		})
	}
}

func TestRunLocal_OneIteration(t *testing.T) {
	for _, workers := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("P=%d", workers), func(t *testing.T) {
			t.Parallel()

			cfg := localConfig(1, 4, 2, 1, workers)
			src := newSeededSource(t, column(1, 2, 3, 4), column(1, 4))

			res, err := RunLocal(context.Background(), &cfg, src)
			require.NoError(t, err)
			require.Equal(t, 0, res.Rank)
			require.Equal(t, 1, res.Iterations)
			require.Equal(t, []float64{1.5, 3.5}, res.Centroids.RawMatrix().Data)
			require.Equal(t, []int64{2, 2}, res.Counts)
		})
	}
}

func TestRunLocal_SingleClusterIsMean(t *testing.T) {
	points := integerPoints(16, 3, 11)

	var want [3]float64
	for _, p := range points {
		for j, v := range p {
			want[j] += v
		}
	}
	for j := range want {
		want[j] /= float64(len(points))
	}

	for _, workers := range []int{1, 2, 4, 8} {
		t.Run(fmt.Sprintf("P=%d", workers), func(t *testing.T) {
			t.Parallel()

			src, err := source.FromRows(points)
			require.NoError(t, err)
			cfg := localConfig(3, 16, 1, 2, workers)

			res, err := RunLocal(context.Background(), &cfg, src)
			require.NoError(t, err)
			require.Equal(t, want[:], res.Centroids.RawRowView(0))
			require.Equal(t, []int64{16}, res.Counts)
		})
	}
}

func TestRunLocal_EmptyClusterKeepsCentroid(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheus(reg, "test")

	cfg := localConfig(1, 4, 2, 2, 2)
	src := newSeededSource(t, column(1, 2, 3, 4), column(2, 100))

	res, err := RunLocal(context.Background(), &cfg, src, WithMetrics(collector))
	require.NoError(t, err)
	require.Equal(t, []float64{2.5, 100}, res.Centroids.RawMatrix().Data)
	require.Equal(t, []int64{4, 0}, res.Counts)

	// Cluster 1 is empty in both iterations on both workers.
	expected := `
# HELP test_cluster_empty_total Clusters that received no points and kept their previous centroid.
# TYPE test_cluster_empty_total counter
test_cluster_empty_total 4
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_cluster_empty_total"))
}

func TestRunLocal_ZeroIterationsReportsSeeds(t *testing.T) {
	cfg := localConfig(1, 4, 2, 0, 2)
	src := newSeededSource(t, column(1, 2, 3, 4), column(1, 4))

	res, err := RunLocal(context.Background(), &cfg, src)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 4}, res.Centroids.RawMatrix().Data)
	require.Nil(t, res.Counts)
}

func TestRunLocal_PartitionInvariance(t *testing.T) {
	points := integerPoints(64, 3, 5)

	run := func(workers int) *Result {
		src, err := source.FromRows(points)
		require.NoError(t, err)
		cfg := localConfig(3, 64, 4, 6, workers)
		cfg.Seed = 7

		res, err := RunLocal(context.Background(), &cfg, src)
		require.NoError(t, err)

		return res
	}

	want := run(1)
	for _, workers := range []int{2, 4, 8} {
		got := run(workers)
		require.True(t, mat.Equal(want.Centroids, got.Centroids), "P=%d centroids differ", workers)
		require.Equal(t, want.Counts, got.Counts, "P=%d counts differ", workers)
	}
}

func TestRunLocal_SameSeedSameResult(t *testing.T) {
	points := integerPoints(40, 2, 9)

	run := func() *Result {
		src, err := source.FromRows(points)
		require.NoError(t, err)
		cfg := localConfig(2, 40, 5, 4, 4)
		cfg.Seed = 42

		res, err := RunLocal(context.Background(), &cfg, src)
		require.NoError(t, err)

		return res
	}

	first, second := run(), run()
	require.True(t, mat.Equal(first.Centroids, second.Centroids))
}

func TestRunLocal_ReadFailureAbortsGroup(t *testing.T) {
	static, err := source.FromRows(integerPoints(16, 2, 3))
	require.NoError(t, err)
	src := &failingSource{Static: static, failStart: 8}

	cfg := localConfig(2, 16, 2, 5, 4)
	group, err := collective.NewLocalGroup(cfg.Workers)
	require.NoError(t, err)
	defer group.Close()

	runners := make([]*Runner, cfg.Workers)
	for rank := range runners {
		runners[rank], err = NewRunner(&cfg, group.Comm(rank), src, WithLogger(logging.NewTest(t, fmt.Sprintf("rank-%d", rank))))
		require.NoError(t, err)
	}

	errs := make([]error, cfg.Workers)
	var wg sync.WaitGroup
	for rank, r := range runners {
		wg.Go(func() {
			_, errs[rank] = r.Run(context.Background())
		})
	}
	wg.Wait()

	for rank, err := range errs {
		if rank == 2 {
			require.ErrorIs(t, err, ErrIO)
			require.NotErrorIs(t, err, ErrPeerFailed)
		} else {
			require.ErrorIs(t, err, ErrPeerFailed, "rank %d", rank)
		}
		require.Equal(t, StateFailed, runners[rank].State())
	}

	t.Run("RunLocal surfaces the root cause", func(t *testing.T) {
		cfg := localConfig(2, 16, 2, 5, 4)
		_, err := RunLocal(context.Background(), &cfg, src)
		require.ErrorIs(t, err, ErrIO)
	})
}

func TestRunLocal_InvalidConfigReadsNothing(t *testing.T) {
	static, err := source.FromRows(integerPoints(16, 2, 3))
	require.NoError(t, err)
	src := &failingSource{Static: static, failStart: -1}

	cfg := localConfig(2, 16, 2, 5, 3)
	_, err = RunLocal(context.Background(), &cfg, src)
	require.ErrorIs(t, err, ErrConfiguration)
	require.Zero(t, src.reads.Load())
}

func TestRunLocal_ColumnMismatch(t *testing.T) {
	src, err := source.FromRows(integerPoints(8, 3, 1))
	require.NoError(t, err)

	cfg := localConfig(2, 8, 2, 1, 2)
	_, err = RunLocal(context.Background(), &cfg, src)
	require.ErrorIs(t, err, ErrIO)
}

func TestRunLocal_Hooks(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
		iterations  []int
		hookErrs    int
	)

	hooks := &Hooks{
		OnStateChanged: func(_ context.Context, from, to State) error {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from.String()+"->"+to.String())

			return nil
		},
		OnIterationComplete: func(_ context.Context, iter int, centroids *mat.Dense) error {
			r, c := centroids.Dims()
			require.Equal(t, 2, r)
			require.Equal(t, 1, c)
			iterations = append(iterations, iter)

			return fmt.Errorf("hook failure %d", iter)
		},
		OnError: func(_ context.Context, _ error) error {
			hookErrs++
			return nil
		},
	}

	cfg := localConfig(1, 4, 2, 3, 1)
	src := newSeededSource(t, column(1, 2, 3, 4), column(1, 4))

	_, err := RunLocal(context.Background(), &cfg, src, WithHooks(hooks), WithLogger(logging.NewTest(t, "hooks")))
	require.NoError(t, err, "hook errors do not stop the run")
	require.Equal(t, []int{0, 1, 2}, iterations)
	require.Zero(t, hookErrs)
	require.Equal(t, []string{
		"Init->Partitioning",
		"Partitioning->Loading",
		"Loading->Seeding",
		"Seeding->Iterating",
		"Iterating->Reporting",
		"Reporting->Done",
	}, transitions)
}

func TestRunner_WaitState(t *testing.T) {
	group, err := collective.NewLocalGroup(2)
	require.NoError(t, err)
	defer group.Close()

	cfg := localConfig(1, 4, 2, 1, 2)
	src := newSeededSource(t, column(1, 2, 3, 4), column(1, 4))

	r0, err := NewRunner(&cfg, group.Comm(0), src)
	require.NoError(t, err)
	r1, err := NewRunner(&cfg, group.Comm(1), src)
	require.NoError(t, err)

	// Rank 1 alone blocks in the startup status exchange.
	done := make(chan error, 1)
	go func() {
		_, err := r1.Run(context.Background())
		done <- err
	}()
	require.NoError(t, <-r1.WaitState(StateLoading, 2*time.Second))
	require.ErrorIs(t, <-r0.WaitState(StateDone, 50*time.Millisecond), context.DeadlineExceeded)

	_, err = r0.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.NoError(t, <-r1.WaitState(StateDone, time.Second))
}

func TestRunNATS_MatchesLocal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded NATS test in short mode")
	}

	const workers = 4
	points := integerPoints(32, 2, 21)

	newConfig := func() Config {
		cfg := localConfig(2, 32, 3, 4, workers)
		cfg.Seed = 99
		cfg.Collective.Transport = TransportNATS
		cfg.Collective.SubjectPrefix = fmt.Sprintf("dkmeans.test.%d", time.Now().UnixNano())

		return cfg
	}

	src, err := source.FromRows(points)
	require.NoError(t, err)

	localCfg := newConfig()
	want, err := RunLocal(context.Background(), &localCfg, src)
	require.NoError(t, err)

	ns, _ := dktest.StartEmbeddedNATS(t)
	cfg := newConfig()

	results := make([]*Result, workers)
	g, ctx := errgroup.WithContext(context.Background())
	for rank := range workers {
		nc := dktest.Connect(t, ns)
		g.Go(func() error {
			comm, err := collective.NewNATS(ctx, nc, collective.NATSConfig{
				Rank:        rank,
				Size:        workers,
				Subject:     cfg.Collective.SubjectPrefix,
				Timeout:     cfg.Collective.Timeout,
				JoinTimeout: cfg.Collective.JoinTimeout,
			})
			if err != nil {
				return err
			}
			defer comm.Close()

			rankCfg := cfg
			r, err := NewRunner(&rankCfg, comm, src)
			if err != nil {
				return err
			}
			results[rank], err = r.Run(ctx)

			return err
		})
	}
	require.NoError(t, g.Wait())

	got := results[0]
	require.True(t, mat.Equal(want.Centroids, got.Centroids))
	require.Equal(t, want.Counts, got.Counts)
	for rank := 1; rank < workers; rank++ {
		require.Nil(t, results[rank].Centroids)
		require.Equal(t, 4, results[rank].Iterations)
	}
}

func TestRootCause(t *testing.T) {
	peer := fmt.Errorf("%w: 1 of 3 workers failed during startup", ErrPeerFailed)
	io := fmt.Errorf("read partition: %w", ErrIO)

	require.NoError(t, RootCause(nil))
	require.NoError(t, RootCause([]error{nil, nil}))
	require.Equal(t, io, RootCause([]error{peer, io, peer}))
	require.Equal(t, peer, RootCause([]error{nil, peer, peer}))
}
