package dkmeans

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/dkmeans/collective"
	"github.com/arloliu/dkmeans/internal/hooks"
	"github.com/arloliu/dkmeans/internal/kmeans"
	"github.com/arloliu/dkmeans/internal/logging"
	"github.com/arloliu/dkmeans/internal/metrics"
	"github.com/arloliu/dkmeans/internal/partition"
)

// Result is what one worker reports at the end of a run.
type Result struct {
	// Rank of the reporting worker.
	Rank int

	// Iterations actually run (always Config.Iterations on success).
	Iterations int

	// Elapsed is the barrier-to-barrier duration of the iteration loop.
	Elapsed time.Duration

	// Centroids is the final C×d matrix. Set on the coordinator only.
	Centroids *mat.Dense

	// Counts holds the global cluster sizes of the last iteration. Set on the
	// coordinator only, and nil when Iterations is 0.
	Counts []int64
}

// Runner drives one worker through a complete k-means run.
//
// A run moves through these states:
//
//	INIT → PARTITIONING → LOADING → SEEDING → ITERATING → REPORTING → DONE
//
// and ends in FAILED on any error. Each worker of the group runs its own Runner
// with its own Communicator; they stay in lockstep through the collective calls.
type Runner struct {
	cfg    Config
	comm   Communicator
	src    PointSource
	hooks  Hooks
	logger Logger

	metrics MetricsCollector

	state        atomic.Int32
	stateEntered time.Time
	mu           sync.Mutex
	started      bool
}

// NewRunner creates a runner for the worker behind comm.
//
// Parameters:
//   - cfg: Run configuration (defaults applied to missing values)
//   - comm: Communicator for this worker; comm.Size() must equal cfg.Workers
//   - src: Global point source
//   - opts: Optional configuration (hooks, metrics, logger)
//
// Returns:
//   - *Runner: Initialized runner
//   - error: ErrConfiguration if the configuration is invalid, or a missing dependency
//
// Example:
//
//	cfg := dkmeans.DefaultConfig()
//	cfg.Dimension, cfg.Points, cfg.Clusters, cfg.Iterations, cfg.Workers = 2, 1000, 8, 20, 4
//	runner, err := dkmeans.NewRunner(&cfg, comm, source.NewFile("points.csv", 2, 1000))
//	if err != nil { /* handle */ }
//	res, err := runner.Run(ctx)
func NewRunner(cfg *Config, comm Communicator, src PointSource, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrConfiguration)
	}
	if comm == nil {
		return nil, ErrCommunicatorRequired
	}
	if src == nil {
		return nil, ErrPointSourceRequired
	}

	SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if comm.Size() != cfg.Workers {
		return nil, fmt.Errorf("%w: communicator has %d ranks, config expects %d workers",
			ErrConfiguration, comm.Size(), cfg.Workers)
	}

	options := &runnerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	} else {
		comm = collective.WithMetrics(comm, metricsCollector)
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}

	cfg.ValidateWithWarnings(loggerInstance)

	r := &Runner{
		cfg:          *cfg,
		comm:         comm,
		src:          src,
		hooks:        hooks.Fill(options.hooks),
		logger:       loggerInstance,
		metrics:      metricsCollector,
		stateEntered: time.Now(),
	}
	r.state.Store(int32(StateInit))

	return r, nil
}

// State returns the current worker state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// WaitState waits for the runner to reach the expected state within the timeout period.
//
// The returned channel receives exactly one value: nil once the state is
// reached, or context.DeadlineExceeded on timeout. It is closed afterwards.
//
// Parameters:
//   - expectedState: The state to wait for
//   - timeout: Maximum duration to wait for the state
//
// Returns:
//   - <-chan error: A channel that receives the result
func (r *Runner) WaitState(expectedState State, timeout time.Duration) <-chan error {
	ch := make(chan error, 1)

	go func() {
		defer close(ch)

		if r.State() == expectedState {
			ch <- nil
			return
		}

		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()

		timeoutTimer := time.NewTimer(timeout)
		defer timeoutTimer.Stop()

		for {
			select {
			case <-ticker.C:
				if r.State() == expectedState {
					ch <- nil
					return
				}
			case <-timeoutTimer.C:
				ch <- context.DeadlineExceeded
				return
			}
		}
	}()

	return ch
}

// Run executes the whole k-means run for this worker.
//
// Startup sequence:
//  1. Compute the partition and read the local points
//  2. On the coordinator, sample the initial centroids
//  3. Exchange startup status so a failed read aborts every worker
//  4. Broadcast the centroids
//  5. Barrier, start the clock, run exactly Iterations rounds, barrier, stop the clock
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - *Result: This worker's result (centroids only on the coordinator)
//   - error: ErrIO on the worker whose read failed and ErrPeerFailed on the others,
//     or a collective failure, which every worker sees
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	res, err := r.run(ctx)
	if err != nil {
		r.transitionState(ctx, StateFailed)
		r.logger.Error("run failed", "rank", r.comm.Rank(), "state", r.State().String(), "error", err)
		if hookErr := r.hooks.OnError(ctx, err); hookErr != nil {
			r.logger.Warn("error hook failed", "error", hookErr)
		}

		return nil, err
	}

	r.transitionState(ctx, StateDone)

	return res, nil
}

func (r *Runner) run(ctx context.Context) (*Result, error) {
	cfg := &r.cfg
	rank := r.comm.Rank()

	r.transitionState(ctx, StatePartitioning)
	part, err := partition.New(cfg.Points, cfg.Workers, rank)
	if err != nil {
		return nil, err
	}

	wc := WorkerContext{Rank: rank, Size: cfg.Workers, Coordinator: cfg.Coordinator, Partition: part}
	r.metrics.SetWorkerInfo(rank, cfg.Workers)
	r.metrics.SetLocalPoints(part.Len())

	if wc.IsCoordinator() {
		r.logger.Info("starting run",
			"dimension", cfg.Dimension,
			"points", cfg.Points,
			"clusters", cfg.Clusters,
			"workers", cfg.Workers,
			"pointsPerWorker", part.Len(),
			"data", cfg.DataPath,
		)
	}

	seeder := kmeans.NewSeeder(r.comm, r.src, r.seed(wc), r.logger)
	points, centroids, localErr := r.load(ctx, wc, seeder)

	if err := r.exchangeStatus(ctx, localErr); err != nil {
		return nil, err
	}

	if err := seeder.Distribute(ctx, wc, centroids); err != nil {
		return nil, err
	}

	if err := r.comm.Barrier(ctx); err != nil {
		return nil, fmt.Errorf("start barrier: %w", err)
	}
	start := time.Now()

	r.transitionState(ctx, StateIterating)
	counts, err := r.iterate(ctx, points, centroids)
	if err != nil {
		return nil, err
	}

	if err := r.comm.Barrier(ctx); err != nil {
		return nil, fmt.Errorf("end barrier: %w", err)
	}
	elapsed := time.Since(start)

	r.transitionState(ctx, StateReporting)
	r.metrics.RecordRunDuration(elapsed.Seconds())

	res := &Result{Rank: rank, Iterations: cfg.Iterations, Elapsed: elapsed}
	if wc.IsCoordinator() {
		res.Centroids = centroids
		res.Counts = counts
		r.logger.Info("run complete", "iterations", cfg.Iterations, "elapsed", elapsed)
	}

	return res, nil
}

// load reads the local partition and, on the coordinator, samples the seeds.
//
// Errors are returned rather than acted on so the caller can share them with
// the group before anyone proceeds.
func (r *Runner) load(ctx context.Context, wc WorkerContext, seeder *kmeans.Seeder) (*mat.Dense, *mat.Dense, error) {
	cfg := &r.cfg

	r.transitionState(ctx, StateLoading)
	points, err := r.src.ReadRange(ctx, wc.Partition.Start, wc.Partition.End)
	if err != nil {
		return nil, nil, fmt.Errorf("read partition %s: %w", wc.Partition, err)
	}
	if _, d := points.Dims(); d != cfg.Dimension {
		return nil, nil, fmt.Errorf("%w: source rows have %d values, want %d", ErrIO, d, cfg.Dimension)
	}
	r.logger.Debug("partition loaded", "partition", wc.Partition.String())

	if !wc.IsCoordinator() {
		return points, mat.NewDense(cfg.Clusters, cfg.Dimension, nil), nil
	}

	r.transitionState(ctx, StateSeeding)
	centroids, err := seeder.Sample(ctx, cfg.Points, cfg.Clusters)
	if err != nil {
		return nil, nil, err
	}
	if _, d := centroids.Dims(); d != cfg.Dimension {
		return nil, nil, fmt.Errorf("%w: seed rows have %d values, want %d", ErrIO, d, cfg.Dimension)
	}

	return points, centroids, nil
}

// seed returns the sampling seed. Zero in the config picks a time-based seed on
// the coordinator; other workers never sample.
func (r *Runner) seed(wc WorkerContext) uint64 {
	if !wc.IsCoordinator() {
		return 0
	}

	seed := r.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		r.logger.Info("using time-based seed", "seed", seed)
	}

	return uint64(seed) //nolint:gosec // seed bits, sign irrelevant
}

// exchangeStatus sums a failure flag over the group.
//
// Every worker calls it exactly once, whether or not its own startup
// succeeded, so a failure on one rank aborts all ranks instead of leaving the
// healthy ones blocked in the broadcast.
func (r *Runner) exchangeStatus(ctx context.Context, localErr error) error {
	failed := []int64{0}
	if localErr != nil {
		failed[0] = 1
	}

	if err := r.comm.AllReduceInt64(ctx, failed); err != nil {
		if localErr != nil {
			return errors.Join(localErr, err)
		}

		return fmt.Errorf("startup status exchange: %w", err)
	}

	if localErr != nil {
		return localErr
	}
	if failed[0] > 0 {
		return fmt.Errorf("%w: %d of %d workers failed during startup", ErrPeerFailed, failed[0], r.cfg.Workers)
	}

	return nil
}

// iterate runs exactly Iterations rounds of assign, reduce, update.
//
// Returns the global counts of the last round.
func (r *Runner) iterate(ctx context.Context, points, centroids *mat.Dense) ([]int64, error) {
	cfg := &r.cfg

	assigner := kmeans.NewAssigner(cfg.Dimension)
	reducer := kmeans.NewReducer(r.comm)
	acc := kmeans.NewAccumulator(cfg.Clusters, cfg.Dimension)

	var counts []int64
	for i := range cfg.Iterations {
		iterStart := time.Now()

		if err := assigner.Assign(points, centroids, acc); err != nil {
			return nil, fmt.Errorf("iteration %d: assign: %w", i, err)
		}
		if err := reducer.Reduce(ctx, acc); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}

		empty, err := kmeans.Update(centroids, acc)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: update: %w", i, err)
		}
		for _, k := range empty {
			r.metrics.IncrementEmptyCluster()
			r.logger.Debug("cluster received no points, keeping previous centroid", "iteration", i, "cluster", k)
		}

		if cfg.VerifyReplicas {
			if err := kmeans.VerifyReplicas(ctx, r.comm, centroids); err != nil {
				return nil, fmt.Errorf("iteration %d: %w", i, err)
			}
		}

		r.metrics.RecordIteration(i, time.Since(iterStart).Seconds())
		if err := r.hooks.OnIterationComplete(ctx, i, centroids); err != nil {
			r.logger.Warn("iteration hook failed", "iteration", i, "error", err)
		}

		counts = acc.Counts
	}

	if counts != nil {
		counts = append([]int64(nil), counts...)
	}

	return counts, nil
}

// transitionState moves to the given state, recording metrics and notifying hooks.
func (r *Runner) transitionState(ctx context.Context, to State) {
	from := State(r.state.Swap(int32(to))) //nolint:gosec // State values are controlled enum
	if from == to {
		return
	}

	now := time.Now()
	r.metrics.RecordStateTransition(from, to, now.Sub(r.stateEntered).Seconds())
	r.stateEntered = now

	r.logger.Debug("state transition", "rank", r.comm.Rank(), "from", from.String(), "to", to.String())

	if err := r.hooks.OnStateChanged(ctx, from, to); err != nil {
		r.logger.Warn("state change hook error", "from", from.String(), "to", to.String(), "error", err)
	}
}
