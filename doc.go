// Package dkmeans provides distributed k-means clustering over a fixed group of
// workers that advance in lockstep.
//
// Each of the P workers owns an equal, contiguous slice of the N input points.
// Every iteration a worker assigns its local points to the nearest of C shared
// centroids, the group sums the per-cluster statistics with an all-reduce, and
// every worker computes the same new centroids. The run performs exactly the
// configured number of iterations; there is no convergence test.
//
// # Quick Start
//
// Run four goroutine workers in one process:
//
//	import (
//	    "github.com/arloliu/dkmeans"
//	    "github.com/arloliu/dkmeans/source"
//	)
//
//	cfg := dkmeans.DefaultConfig()
//	cfg.Dimension = 2
//	cfg.Points = 1000
//	cfg.Clusters = 8
//	cfg.Iterations = 20
//	cfg.Workers = 4
//
//	res, err := dkmeans.RunLocal(ctx, &cfg, source.NewFile("points.csv", 2, 1000))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = dkmeans.WriteReport(os.Stdout, res)
//
// # Multi-process Runs
//
// Each process builds a collective.NATSComm for its rank and drives a Runner:
//
//	comm, err := collective.NewNATS(ctx, nc, collective.NATSConfig{
//	    Rank: rank, Size: 4, Subject: "dkmeans.job1",
//	})
//	runner, err := dkmeans.NewRunner(&cfg, comm, src)
//	res, err := runner.Run(ctx)
//
// The dkmeans command wraps this, including rank claiming over JetStream KV and
// a launch subcommand that starts a whole group on one host.
//
// # Architecture
//
// Workers progress through a state machine:
//
//	INIT → PARTITIONING → LOADING → SEEDING → ITERATING → REPORTING → DONE
//
// Only the coordinator (rank 0 by default) passes through SEEDING. Any error
// moves the worker to FAILED. A failure while loading is shared with the whole
// group before the first broadcast, so every worker fails instead of hanging.
//
// All collectives combine contributions in rank order on one rank and return
// the same result to everyone, so centroid replicas stay bitwise identical.
// With VerifyReplicas set, each iteration also checks this at runtime.
//
// See the examples/ directory for complete working examples.
package dkmeans
