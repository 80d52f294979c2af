// Command dkmeans runs distributed k-means clustering.
//
// Usage:
//
//	dkmeans run d N C data n_iter [flags]     one worker, or a whole local group
//	dkmeans launch d N C data n_iter [flags]  embedded NATS plus one process per rank
//
// Results go to stdout and logs go to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arloliu/dkmeans"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dkmeans",
		Short:         "Distributed k-means clustering",
		Long:          `dkmeans clusters N points of dimension d into C clusters with P workers that iterate in lockstep.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newLaunchCmd())

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "dkmeans: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case errors.Is(err, dkmeans.ErrConfiguration):
		return 2
	case errors.Is(err, dkmeans.ErrIO):
		return 3
	default:
		return 1
	}
}
