package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/dkmeans"
)

func writePoints(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := root.ExecuteContext(ctx)
	t.Logf("stderr:\n%s", stderr.String())

	return stdout.String(), err
}

func TestRun_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"too few arguments", []string{"run", "1", "4", "2", "points.csv"}},
		{"too many arguments", []string{"run", "1", "4", "2", "points.csv", "1", "extra"}},
		{"non-integer dimension", []string{"run", "x", "4", "2", "points.csv", "1"}},
		{"non-integer iterations", []string{"run", "1", "4", "2", "points.csv", "1.5"}},
		{"N not divisible by P", []string{"run", "1", "10", "2", "points.csv", "1", "--workers", "3"}},
		{"more clusters than points", []string{"run", "1", "4", "5", "points.csv", "1"}},
		{"rank outside group", []string{"run", "1", "4", "2", "points.csv", "1", "--workers", "2", "--rank", "2"}},
		{"unknown log level", []string{"run", "1", "4", "2", "points.csv", "1", "--log-level", "loud"}},
		{"launch with bad arguments", []string{"launch", "1", "4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.ErrorIs(t, err, dkmeans.ErrConfiguration)
			require.Equal(t, 2, exitCode(err))
		})
	}
}

func TestRun_LocalGroup(t *testing.T) {
	path := writePoints(t, "1,2", "3,4", "", "5,6", "7,8")

	out, err := execute(t, "run", "2", "4", "1", path, "3", "--workers", "2", "--seed", "3")
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "centers:", lines[0])
	require.Equal(t, "4.000000 5.000000 ", lines[1])
	require.True(t, strings.HasPrefix(lines[2], "Time elapsed is "), lines[2])
	require.True(t, strings.HasSuffix(lines[2], " seconds."), lines[2])
	require.Empty(t, lines[3])
}

func TestRun_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.csv")

	out, err := execute(t, "run", "1", "4", "2", missing, "1", "--workers", "2")
	require.ErrorIs(t, err, dkmeans.ErrIO)
	require.Equal(t, 3, exitCode(err))
	require.Empty(t, out)
}

func TestRun_EmbeddedNATS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded NATS test in short mode")
	}

	path := writePoints(t, "0", "0", "10", "10")

	out, err := execute(t, "run", "1", "4", "2", path, "2",
		"--workers", "2", "--embedded-nats", "--timeout", "10s", "--subject", fmt.Sprintf("dkmeans.cli.%d", time.Now().UnixNano()))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "centers:\n"), out)
}

func TestRunOptions_ConfigPrecedence(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "dkmeans.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
workers: 4
seed: 11
collective:
  subjectPrefix: from-file
  timeout: 1m
`), 0o600))

	o := &runOptions{}
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	o.addFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", cfgPath, "--subject", "from-flag"}))

	cfg, err := o.config(fs, []string{"2", "8", "3", "s3://bucket/points.csv", "7"})
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Dimension)
	require.Equal(t, 8, cfg.Points)
	require.Equal(t, 3, cfg.Clusters)
	require.Equal(t, "s3://bucket/points.csv", cfg.DataPath)
	require.Equal(t, 7, cfg.Iterations)
	require.Equal(t, 4, cfg.Workers, "file value wins over an unset flag")
	require.Equal(t, int64(11), cfg.Seed)
	require.Equal(t, time.Minute, cfg.Collective.Timeout)
	require.Equal(t, "from-flag", cfg.Collective.SubjectPrefix, "explicit flag wins over the file")
}

func TestWorkerArgs(t *testing.T) {
	o := &runOptions{logLevel: "debug", logFormat: "json"}
	cfg := dkmeans.DefaultConfig()
	cfg.Workers = 3
	cfg.Seed = 5
	cfg.Collective.Timeout = 30 * time.Second

	args := workerArgs(o, &cfg, []string{"2", "9", "3", "p.csv", "4"}, "nats://127.0.0.1:4321")
	require.Equal(t, []string{
		"run", "2", "9", "3", "p.csv", "4",
		"--transport", "nats",
		"--nats-url", "nats://127.0.0.1:4321",
		"--workers", "3",
		"--subject", "dkmeans",
		"--timeout", "30s",
		"--log-level", "debug",
		"--log-format", "json",
		"--seed", "5",
	}, args)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 2, exitCode(fmt.Errorf("wrapped: %w", dkmeans.ErrConfiguration)))
	require.Equal(t, 3, exitCode(dkmeans.ErrIO))
	require.Equal(t, 1, exitCode(dkmeans.ErrPeerFailed))
}
