package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/dkmeans"
	"github.com/arloliu/dkmeans/collective"
	"github.com/arloliu/dkmeans/internal/logging"
	"github.com/arloliu/dkmeans/internal/metrics"
	"github.com/arloliu/dkmeans/internal/natsutil"
	"github.com/arloliu/dkmeans/internal/rankclaim"
	"github.com/arloliu/dkmeans/source"
)

// runOptions holds the command-line flags shared by run and launch.
type runOptions struct {
	configPath   string
	workers      int
	rank         int
	transport    string
	natsURL      string
	subject      string
	timeout      time.Duration
	seed         int64
	metricsAddr  string
	logLevel     string
	logFormat    string
	embeddedNATS bool
}

func newRunCmd() *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run d N C data n_iter",
		Short: "Run k-means as one worker or as a whole in-process group",
		Long: `Cluster N points of dimension d read from data into C clusters, iterating
exactly n_iter times.

With --transport local (the default) all --workers run as goroutines in this
process. With --transport nats this process is a single worker; its rank comes
from --rank or is claimed from a JetStream KV bucket.

data is a local file (optionally .zst or .gz compressed) or an s3://bucket/key URI.

Examples:
  dkmeans run 2 1000 8 points.csv 20 --workers 4
  dkmeans run 2 1000 8 points.csv.zst 20 --workers 4 --transport nats --nats-url nats://broker:4222
  dkmeans run 2 1000 8 points.csv 20 --workers 4 --embedded-nats`,
		Args: exactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args)
		},
	}

	o.addFlags(cmd.Flags())
	cmd.Flags().IntVar(&o.rank, "rank", -1, "rank of this worker with --transport nats (-1 claims a free rank)")
	cmd.Flags().BoolVar(&o.embeddedNATS, "embedded-nats", false, "run all workers in this process over an embedded NATS server")

	return cmd
}

// addFlags registers the flags common to run and launch.
func (o *runOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.IntVar(&o.workers, "workers", 1, "number of workers (P); N must be divisible by P")
	fs.StringVar(&o.transport, "transport", dkmeans.TransportLocal, "collective transport: local or nats")
	fs.StringVar(&o.natsURL, "nats-url", "", "NATS server URL for --transport nats")
	fs.StringVar(&o.subject, "subject", "", "subject prefix that isolates this group on the NATS server")
	fs.DurationVar(&o.timeout, "timeout", 0, "per-collective timeout (0 waits forever)")
	fs.Int64Var(&o.seed, "seed", 0, "centroid sampling seed (0 picks a time-based seed)")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", "text", "log format: text or json")
}

// exactArgs rejects anything but n positional arguments as a configuration error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: expected %d arguments (d N C data n_iter), got %d",
				dkmeans.ErrConfiguration, n, len(args))
		}

		return nil
	}
}

// parseProblem reads the positional arguments d N C data n_iter into cfg.
func parseProblem(cfg *dkmeans.Config, args []string) error {
	ints := []struct {
		name string
		arg  string
		dst  *int
	}{
		{"d", args[0], &cfg.Dimension},
		{"N", args[1], &cfg.Points},
		{"C", args[2], &cfg.Clusters},
		{"n_iter", args[4], &cfg.Iterations},
	}

	for _, a := range ints {
		v, err := strconv.Atoi(a.arg)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer, got %q", dkmeans.ErrConfiguration, a.name, a.arg)
		}
		*a.dst = v
	}
	cfg.DataPath = args[3]

	return nil
}

// config builds the run configuration: file (or defaults), then positional
// arguments, then explicitly set flags.
func (o *runOptions) config(fs *pflag.FlagSet, args []string) (*dkmeans.Config, error) {
	var cfg *dkmeans.Config
	if o.configPath != "" {
		loaded, err := dkmeans.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		defaults := dkmeans.DefaultConfig()
		cfg = &defaults
	}

	if err := parseProblem(cfg, args); err != nil {
		return nil, err
	}

	if fs.Changed("workers") || o.configPath == "" {
		cfg.Workers = o.workers
	}
	if fs.Changed("transport") {
		cfg.Collective.Transport = o.transport
	}
	if fs.Changed("nats-url") {
		cfg.Collective.NATSURL = o.natsURL
	}
	if fs.Changed("subject") {
		cfg.Collective.SubjectPrefix = o.subject
	}
	if fs.Changed("timeout") {
		cfg.Collective.Timeout = o.timeout
	}
	if fs.Changed("seed") {
		cfg.Seed = o.seed
	}
	if fs.Changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if o.embeddedNATS {
		cfg.Collective.Transport = dkmeans.TransportNATS
	}

	dkmeans.SetDefaults(cfg)

	return cfg, nil
}

func (o *runOptions) logger(w io.Writer) (*logging.SlogLogger, error) {
	logger, err := logging.New(w, o.logLevel, o.logFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dkmeans.ErrConfiguration, err)
	}

	return logger, nil
}

func (o *runOptions) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := o.config(cmd.Flags(), args)
	if err != nil {
		return err
	}
	logger, err := o.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	// Configuration errors are reported before any data or network access.
	if err := cfg.Validate(); err != nil {
		return err
	}
	if o.rank >= cfg.Workers {
		return fmt.Errorf("%w: --rank %d is outside [0,%d)", dkmeans.ErrConfiguration, o.rank, cfg.Workers)
	}

	src, err := source.Open(cfg.DataPath, cfg.Dimension, cfg.Points, cfg.S3.ObjectConfig())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer stop()
	}

	var res *dkmeans.Result
	switch {
	case o.embeddedNATS:
		res, err = runEmbedded(ctx, cfg, src, reg, logger)
	case cfg.Collective.Transport == dkmeans.TransportNATS:
		res, err = o.runNATSWorker(ctx, cfg, src, reg, logger)
	default:
		opts := []dkmeans.Option{dkmeans.WithLogger(logger)}
		if cfg.Metrics.Addr != "" {
			opts = append(opts, dkmeans.WithMetrics(metrics.NewPrometheus(reg, cfg.Metrics.Namespace)))
		}
		res, err = dkmeans.RunLocal(ctx, cfg, src, opts...)
	}
	if err != nil {
		return err
	}

	if res.Centroids == nil {
		return nil
	}

	return dkmeans.WriteReport(cmd.OutOrStdout(), res)
}

// runNATSWorker runs this process as one rank of a multi-process group.
func (o *runOptions) runNATSWorker(
	ctx context.Context,
	cfg *dkmeans.Config,
	src dkmeans.PointSource,
	reg *prometheus.Registry,
	logger *logging.SlogLogger,
) (*dkmeans.Result, error) {
	nc, err := nats.Connect(cfg.Collective.NATSURL, nats.Name("dkmeans"))
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %w", dkmeans.ErrCollectiveFailed, cfg.Collective.NATSURL, err)
	}
	defer nc.Close()

	rank := o.rank
	if rank < 0 {
		claimer, err := claimRank(ctx, nc, cfg, logger)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := claimer.Release(context.Background()); err != nil {
				logger.Warn("failed to release rank", "error", err)
			}
		}()
		rank = claimer.Rank()
	}

	return runRank(ctx, nc, rank, cfg, src, reg, logger.With("rank", rank))
}

// claimRank takes the lowest free rank from the group's KV bucket.
func claimRank(ctx context.Context, nc *nats.Conn, cfg *dkmeans.Config, logger *logging.SlogLogger) (*rankclaim.Claimer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	kv, err := rankclaim.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.RankClaim.Bucket,
		Description: "dkmeans rank claims",
		TTL:         cfg.RankClaim.TTL,
	}, 5)
	if err != nil {
		return nil, err
	}

	claimer := rankclaim.NewClaimer(kv, cfg.Workers, logger)
	if _, err := claimer.Claim(ctx); err != nil {
		if errors.Is(err, dkmeans.ErrNoAvailableRank) {
			if held, herr := claimer.Held(ctx); herr == nil {
				logger.Error("every rank is held", "bucket", cfg.RankClaim.Bucket, "held", held)
			}
		}

		return nil, err
	}

	return claimer, nil
}

// runRank joins the NATS group as rank and drives one Runner.
func runRank(
	ctx context.Context,
	nc *nats.Conn,
	rank int,
	cfg *dkmeans.Config,
	src dkmeans.PointSource,
	reg *prometheus.Registry,
	logger *logging.SlogLogger,
) (*dkmeans.Result, error) {
	comm, err := collective.NewNATS(ctx, nc, collective.NATSConfig{
		Rank:        rank,
		Size:        cfg.Workers,
		Subject:     cfg.Collective.SubjectPrefix,
		Timeout:     cfg.Collective.Timeout,
		JoinTimeout: cfg.Collective.JoinTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = comm.Close() }()

	opts := []dkmeans.Option{dkmeans.WithLogger(logger)}
	if cfg.Metrics.Addr != "" {
		opts = append(opts, dkmeans.WithMetrics(metrics.NewPrometheusForRank(reg, cfg.Metrics.Namespace, rank)))
	}

	rankCfg := *cfg
	runner, err := dkmeans.NewRunner(&rankCfg, comm, src, opts...)
	if err != nil {
		return nil, err
	}

	return runner.Run(ctx)
}

// runEmbedded runs every rank in this process, each over its own connection
// to an embedded NATS server.
func runEmbedded(
	ctx context.Context,
	cfg *dkmeans.Config,
	src dkmeans.PointSource,
	reg *prometheus.Registry,
	logger *logging.SlogLogger,
) (*dkmeans.Result, error) {
	ns, nc, err := natsutil.StartEmbedded(natsutil.EmbeddedOptions{Port: -1})
	if err != nil {
		return nil, err
	}
	defer func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}()
	logger.Info("embedded NATS server started", "url", ns.ClientURL())

	conns := make([]*nats.Conn, cfg.Workers)
	for rank := range cfg.Workers {
		conn, err := nats.Connect(ns.ClientURL(), nats.Name(fmt.Sprintf("dkmeans-rank-%d", rank)))
		if err != nil {
			return nil, fmt.Errorf("%w: connect rank %d: %w", dkmeans.ErrCollectiveFailed, rank, err)
		}
		defer conn.Close()
		conns[rank] = conn
	}

	results := make([]*dkmeans.Result, cfg.Workers)
	errs := make([]error, cfg.Workers)
	var g errgroup.Group
	for rank, conn := range conns {
		g.Go(func() error {
			results[rank], errs[rank] = runRank(ctx, conn, rank, cfg, src, reg, logger.With("rank", rank))
			return errs[rank]
		})
	}
	if g.Wait() != nil {
		return nil, dkmeans.RootCause(errs)
	}

	return results[cfg.Coordinator], nil
}

// serveMetrics exposes reg on addr/metrics until the returned stop func is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *logging.SlogLogger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
