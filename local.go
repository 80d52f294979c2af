package dkmeans

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/dkmeans/collective"
)

// RunLocal runs a complete k-means job with cfg.Workers goroutine workers in
// this process, connected by an in-process collective group.
//
// Every worker is constructed (and the configuration validated) before any
// data is read. The workers share opts, so a metrics collector or hook set
// sees events from all ranks.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Run configuration; cfg.Collective.Transport is ignored
//   - src: Global point source shared by all workers
//   - opts: Optional configuration (hooks, metrics, logger)
//
// Returns:
//   - *Result: The coordinator's result, carrying the final centroids
//   - error: The root cause when any worker fails. A worker's own failure is
//     preferred over the ErrPeerFailed the other workers report for it.
//
// Example:
//
//	cfg := dkmeans.DefaultConfig()
//	cfg.Dimension, cfg.Points, cfg.Clusters, cfg.Iterations, cfg.Workers = 2, 1000, 8, 20, 4
//	res, err := dkmeans.RunLocal(ctx, &cfg, source.NewFile("points.csv", 2, 1000))
//	if err != nil { /* handle */ }
//	_ = dkmeans.WriteReport(os.Stdout, res)
func RunLocal(ctx context.Context, cfg *Config, src PointSource, opts ...Option) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrConfiguration)
	}
	SetDefaults(cfg)

	group, err := collective.NewLocalGroup(cfg.Workers)
	if err != nil {
		return nil, err
	}
	defer group.Close()

	runners := make([]*Runner, cfg.Workers)
	for rank := range cfg.Workers {
		runners[rank], err = NewRunner(cfg, group.Comm(rank), src, opts...)
		if err != nil {
			return nil, err
		}
	}

	results := make([]*Result, cfg.Workers)
	errs := make([]error, cfg.Workers)

	// No shared cancellation: a failing rank must not turn its peers' clean
	// ErrPeerFailed into a context error.
	var g errgroup.Group
	for rank, runner := range runners {
		g.Go(func() error {
			results[rank], errs[rank] = runner.Run(ctx)
			return errs[rank]
		})
	}

	if g.Wait() != nil {
		return nil, RootCause(errs)
	}

	return results[cfg.Coordinator], nil
}

// RootCause picks the error to surface from per-rank errors of one group: the
// lowest-rank error that is not ErrPeerFailed, else the lowest-rank error.
// Returns nil when every entry is nil.
func RootCause(errs []error) error {
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrPeerFailed) {
			return err
		}
		if first == nil {
			first = err
		}
	}

	return first
}
