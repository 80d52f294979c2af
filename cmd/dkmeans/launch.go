package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/dkmeans"
	"github.com/arloliu/dkmeans/internal/logging"
	"github.com/arloliu/dkmeans/internal/natsutil"
)

// stopGrace is how long surviving workers get to exit after a peer fails
// before they are killed.
const stopGrace = 5 * time.Second

func newLaunchCmd() *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "launch d N C data n_iter",
		Short: "Start an embedded NATS server and one worker process per rank",
		Long: `Start an embedded NATS server with JetStream and spawn --workers copies of
"dkmeans run ... --transport nats". The workers claim their ranks from a KV
bucket. Rank 0 prints the result on this command's stdout.

If any worker fails the others are stopped.

Example:
  dkmeans launch 2 1000 8 points.csv 20 --workers 4`,
		Args: exactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.launch(cmd, args)
		},
	}

	o.addFlags(cmd.Flags())

	return cmd
}

func (o *runOptions) launch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := o.config(cmd.Flags(), args)
	if err != nil {
		return err
	}
	logger, err := o.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate dkmeans binary: %w", err)
	}

	storeDir, err := os.MkdirTemp("", "dkmeans-nats-")
	if err != nil {
		return fmt.Errorf("create JetStream store: %w", err)
	}
	defer func() { _ = os.RemoveAll(storeDir) }()

	ns, nc, err := natsutil.StartEmbedded(natsutil.EmbeddedOptions{
		Port:      -1,
		JetStream: true,
		StoreDir:  storeDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}()
	logger.Info("embedded NATS server started", "url", ns.ClientURL(), "workers", cfg.Workers)

	pg := newProcessGroup(exe, workerArgs(o, cfg, args, ns.ClientURL()), logger)

	return pg.run(ctx, cfg.Workers, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// workerArgs builds the command line of one worker process.
func workerArgs(o *runOptions, cfg *dkmeans.Config, args []string, url string) []string {
	out := append([]string{"run"}, args...)
	out = append(out,
		"--transport", dkmeans.TransportNATS,
		"--nats-url", url,
		"--workers", strconv.Itoa(cfg.Workers),
		"--subject", cfg.Collective.SubjectPrefix,
		"--timeout", cfg.Collective.Timeout.String(),
		"--log-level", o.logLevel,
		"--log-format", o.logFormat,
	)
	if o.configPath != "" {
		out = append(out, "--config", o.configPath)
	}
	// Only the coordinator samples, so a time-based seed needs no agreement.
	if cfg.Seed != 0 {
		out = append(out, "--seed", strconv.FormatInt(cfg.Seed, 10))
	}

	return out
}

// processGroup runs worker processes and stops the survivors when one fails.
type processGroup struct {
	binary string
	args   []string
	logger *logging.SlogLogger

	// codes holds the exit code of every finished worker.
	codes *xsync.Map[int, int]
}

func newProcessGroup(binary string, args []string, logger *logging.SlogLogger) *processGroup {
	return &processGroup{
		binary: binary,
		args:   args,
		logger: logger,
		codes:  xsync.NewMap[int, int](),
	}
}

// run starts n workers and waits for all of them.
//
// Returns:
//   - error: nil if every worker exited cleanly, otherwise an error carrying
//     the most specific failure class reported by any worker
func (pg *processGroup) run(ctx context.Context, n int, stdout, stderr io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	stdout, stderr = &lockedWriter{w: stdout}, &lockedWriter{w: stderr}

	for i := range n {
		//nolint:gosec // arguments are built from validated configuration
		cmd := exec.CommandContext(gctx, pg.binary, pg.args...)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
		cmd.WaitDelay = stopGrace

		if err := cmd.Start(); err != nil {
			cancel()
			_ = g.Wait()

			return fmt.Errorf("failed to start worker %d: %w", i, err)
		}
		pg.logger.Debug("started worker process", "worker", i, "pid", cmd.Process.Pid)

		g.Go(func() error {
			err := cmd.Wait()
			pg.record(i, err)
			if err != nil {
				return fmt.Errorf("worker process %d (pid %d): %w", i, cmd.Process.Pid, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return pg.classify(err)
	}

	return nil
}

func (pg *processGroup) record(worker int, err error) {
	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	} else if err != nil {
		code = -1
	}

	pg.codes.Store(worker, code)

	if code != 0 {
		pg.logger.Warn("worker process exited", "worker", worker, "code", code)
	}
}

// classify wraps err with the sentinel matching the most specific worker exit code.
func (pg *processGroup) classify(err error) error {
	seen := make(map[int]bool)
	pg.codes.Range(func(_ int, code int) bool {
		seen[code] = true
		return true
	})

	switch {
	case seen[exitCode(dkmeans.ErrConfiguration)]:
		return fmt.Errorf("%w: %w", dkmeans.ErrConfiguration, err)
	case seen[exitCode(dkmeans.ErrIO)]:
		return fmt.Errorf("%w: %w", dkmeans.ErrIO, err)
	default:
		return err
	}
}

// lockedWriter serializes writes from several worker output pipes.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	return lw.w.Write(p)
}
