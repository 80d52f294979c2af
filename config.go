package dkmeans

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/dkmeans/internal/partition"
	"github.com/arloliu/dkmeans/source"
)

// Transport names accepted by CollectiveConfig.Transport.
const (
	TransportLocal = "local"
	TransportNATS  = "nats"
)

// CollectiveConfig selects and tunes the collective transport.
type CollectiveConfig struct {
	// Transport is "local" (goroutines in one process) or "nats" (one process per rank).
	Transport string `yaml:"transport"`

	// NATSURL is the server URL for the nats transport.
	NATSURL string `yaml:"natsUrl"`

	// SubjectPrefix namespaces the group's subjects. Concurrent runs on one
	// server need distinct prefixes.
	SubjectPrefix string `yaml:"subjectPrefix"`

	// Timeout bounds each collective call. Zero blocks forever, which is the
	// classic MPI behavior: a crashed peer hangs the group.
	Timeout time.Duration `yaml:"timeout"`

	// JoinTimeout bounds the startup handshake of the nats transport.
	JoinTimeout time.Duration `yaml:"joinTimeout"`
}

// RankClaimConfig configures rank claiming for processes started without an explicit rank.
type RankClaimConfig struct {
	// Bucket is the JetStream KV bucket holding rank claims.
	Bucket string `yaml:"bucket"`

	// TTL is how long a claim survives a crashed holder.
	TTL time.Duration `yaml:"ttl"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty disables the endpoint).
	Addr string `yaml:"addr"`

	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace"`
}

// S3Config holds credentials for s3:// data paths.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSsl"`
}

// ObjectConfig converts the settings for source.Open.
func (c S3Config) ObjectConfig() source.ObjectConfig {
	return source.ObjectConfig{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Region:    c.Region,
		UseSSL:    c.UseSSL,
	}
}

// Config is the configuration for a k-means run.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// Dimension is the number of coordinates per point (d).
	Dimension int `yaml:"dimension"`

	// Points is the total number of points in the data set (N).
	Points int `yaml:"points"`

	// Clusters is the number of centroids (C). Must not exceed Points.
	Clusters int `yaml:"clusters"`

	// DataPath is a local file path or s3://bucket/key URI.
	DataPath string `yaml:"dataPath"`

	// Iterations is the exact number of Lloyd iterations to run (N_ITER).
	// There is no convergence test.
	Iterations int `yaml:"iterations"`

	// Workers is the group size (P). Points must be divisible by Workers.
	Workers int `yaml:"workers"`

	// Seed drives centroid sampling. Zero picks a time-based seed.
	Seed int64 `yaml:"seed"`

	// Coordinator is the rank that seeds centroids and reports results.
	Coordinator int `yaml:"coordinator"`

	// VerifyReplicas checks after every iteration that all workers hold
	// bitwise-identical centroids. Costs one extra all-reduce of P integers.
	VerifyReplicas bool `yaml:"verifyReplicas"`

	// Collective configures the transport.
	Collective CollectiveConfig `yaml:"collective"`

	// RankClaim configures KV-based rank claiming.
	RankClaim RankClaimConfig `yaml:"rankClaim"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// S3 holds object storage settings for s3:// data paths.
	S3 S3Config `yaml:"s3"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Problem dimensions (Dimension, Points, Clusters, Iterations, DataPath) have
// no defaults and must be set by the caller.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		Workers:        1,
		Coordinator:    0,
		VerifyReplicas: true,
		Collective: CollectiveConfig{
			Transport:     TransportLocal,
			NATSURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "dkmeans",
			Timeout:       0,
			JoinTimeout:   30 * time.Second,
		},
		RankClaim: RankClaimConfig{
			Bucket: "dkmeans-ranks",
			TTL:    10 * time.Minute,
		},
		Metrics: MetricsConfig{
			Namespace: "dkmeans",
		},
	}
}

// SetDefaults fills in missing configuration values with defaults.
//
// Boolean fields are left alone since false is a valid explicit choice; start
// from DefaultConfig to get VerifyReplicas enabled.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Workers == 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.Collective.Transport == "" {
		cfg.Collective.Transport = defaults.Collective.Transport
	}
	if cfg.Collective.NATSURL == "" {
		cfg.Collective.NATSURL = defaults.Collective.NATSURL
	}
	if cfg.Collective.SubjectPrefix == "" {
		cfg.Collective.SubjectPrefix = defaults.Collective.SubjectPrefix
	}
	if cfg.Collective.JoinTimeout == 0 {
		cfg.Collective.JoinTimeout = defaults.Collective.JoinTimeout
	}
	if cfg.RankClaim.Bucket == "" {
		cfg.RankClaim.Bucket = defaults.RankClaim.Bucket
	}
	if cfg.RankClaim.TTL == 0 {
		cfg.RankClaim.TTL = defaults.RankClaim.TTL
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaults.Metrics.Namespace
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - Dimension, Points, Clusters and Workers are positive
//   - Iterations is not negative
//   - Clusters <= Points (seeding draws distinct rows)
//   - Points is divisible by Workers (equal partitions)
//   - Coordinator is a valid rank
//   - Transport is "local" or "nats"; nats needs a subject prefix
//   - Timeouts are not negative
//
// Returns:
//   - error: ErrConfiguration with a clear explanation, nil if valid
func (cfg *Config) Validate() error {
	switch {
	case cfg.Dimension <= 0:
		return fmt.Errorf("%w: Dimension must be > 0, got %d", ErrConfiguration, cfg.Dimension)
	case cfg.Points <= 0:
		return fmt.Errorf("%w: Points must be > 0, got %d", ErrConfiguration, cfg.Points)
	case cfg.Clusters <= 0:
		return fmt.Errorf("%w: Clusters must be > 0, got %d", ErrConfiguration, cfg.Clusters)
	case cfg.Clusters > cfg.Points:
		return fmt.Errorf("%w: Clusters (%d) must not exceed Points (%d)", ErrConfiguration, cfg.Clusters, cfg.Points)
	case cfg.Iterations < 0:
		return fmt.Errorf("%w: Iterations must be >= 0, got %d", ErrConfiguration, cfg.Iterations)
	}

	if err := partition.Validate(cfg.Points, cfg.Workers); err != nil {
		return err
	}

	if cfg.Coordinator < 0 || cfg.Coordinator >= cfg.Workers {
		return fmt.Errorf("%w: Coordinator (%d) must be a rank in [0,%d)", ErrConfiguration, cfg.Coordinator, cfg.Workers)
	}

	switch cfg.Collective.Transport {
	case TransportLocal:
	case TransportNATS:
		if cfg.Collective.SubjectPrefix == "" {
			return fmt.Errorf("%w: nats transport needs a SubjectPrefix", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q (want %q or %q)",
			ErrConfiguration, cfg.Collective.Transport, TransportLocal, TransportNATS)
	}

	if cfg.Collective.Timeout < 0 || cfg.Collective.JoinTimeout < 0 {
		return fmt.Errorf("%w: collective timeouts must be >= 0", ErrConfiguration)
	}

	return nil
}

// ValidateWithWarnings logs warnings for valid but risky values.
//
// This is called after Validate() by the Runner to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.Collective.Transport == TransportNATS && cfg.Collective.Timeout == 0 {
		logger.Warn(
			"collective timeout is disabled, a crashed peer will hang the group",
			"transport", cfg.Collective.Transport,
			"recommended", "a timeout longer than one iteration",
		)
	}

	if cfg.Iterations == 0 {
		logger.Warn("Iterations is 0, the seeded centroids are reported unchanged")
	}

	if cfg.Clusters > cfg.Points/cfg.Workers {
		logger.Warn(
			"more clusters than points per worker",
			"clusters", cfg.Clusters,
			"pointsPerWorker", cfg.Points/cfg.Workers,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Collective calls time out quickly so a broken test fails instead of hanging.
//
// Returns:
//   - Config: Configuration with short timeouts for tests
//
// Example:
//
//	cfg := dkmeans.TestConfig()
//	cfg.Dimension, cfg.Points, cfg.Clusters, cfg.Iterations = 1, 4, 2, 1
//	res, err := dkmeans.RunLocal(ctx, &cfg, src)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.Seed = 1
	cfg.Collective.Timeout = 10 * time.Second
	cfg.Collective.JoinTimeout = 5 * time.Second
	cfg.RankClaim.TTL = 5 * time.Second

	return cfg
}

// LoadConfig reads a YAML configuration file.
//
// Values in the file override DefaultConfig; missing fields keep their defaults.
//
// Parameters:
//   - path: YAML file path
//
// Returns:
//   - *Config: Loaded configuration (not yet validated)
//   - error: ErrConfiguration if the file cannot be read or parsed
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %w", ErrConfiguration, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config %s: %w", ErrConfiguration, path, err)
	}
	SetDefaults(&cfg)

	return &cfg, nil
}
