package config

import (
	"time"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/ajitpratap0/nebula-hub/pkg/logger"
	"github.com/ajitpratap0/nebula-hub/pkg/observability"
)

// Config is the complete service configuration
type Config struct {
	Log          logger.Config               `mapstructure:"log" yaml:"log"`
	Sync         SyncConfig                  `mapstructure:"sync" yaml:"sync"`
	Pool         core.PoolSettings           `mapstructure:"pool" yaml:"pool"`
	Queue        QueueConfig                 `mapstructure:"queue" yaml:"queue"`
	Metrics      MetricsConfig               `mapstructure:"metrics" yaml:"metrics"`
	Tracing      observability.TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Systems      []SystemConfig              `mapstructure:"systems" yaml:"systems"`
	MappingsFile string                      `mapstructure:"mappings_file" yaml:"mappings_file"`
}

// SyncConfig controls the sync orchestrator
type SyncConfig struct {
	// BatchSize is the per-table row ceiling of one sync
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// QueueConfig controls the job queue layer and its broker connection
type QueueConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`

	// Job policy
	Attempts           int           `mapstructure:"attempts" yaml:"attempts"`
	BackoffBase        time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	CompletedRetention time.Duration `mapstructure:"completed_retention" yaml:"completed_retention"`
	SyncTimeout        time.Duration `mapstructure:"sync_timeout" yaml:"sync_timeout"`

	// Workers
	SyncConcurrency        int `mapstructure:"sync_concurrency" yaml:"sync_concurrency"`
	IndexConcurrency       int `mapstructure:"index_concurrency" yaml:"index_concurrency"`
	EmbeddingConcurrency   int `mapstructure:"embedding_concurrency" yaml:"embedding_concurrency"`
	SyncRatePerMinute      int `mapstructure:"sync_rate_per_minute" yaml:"sync_rate_per_minute"`
	EmbeddingRatePerMinute int `mapstructure:"embedding_rate_per_minute" yaml:"embedding_rate_per_minute"`
	IndexChunkSize         int `mapstructure:"index_chunk_size" yaml:"index_chunk_size"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// SystemConfig declares a source registered at start-up
type SystemConfig struct {
	ID         string                `mapstructure:"id" yaml:"id"`
	Connection core.ConnectionConfig `mapstructure:"connection" yaml:"connection"`
}

// Default returns the configuration with every default applied
func Default() *Config {
	return &Config{
		Log: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Sync: SyncConfig{
			BatchSize: 1000,
		},
		Pool: core.PoolSettings{
			MaxConns:        10,
			ConnectTimeout:  10 * time.Second,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Queue: QueueConfig{
			Enabled:                true,
			RedisAddr:              "localhost:6379",
			ProbeTimeout:           2 * time.Second,
			Attempts:               3,
			BackoffBase:            2 * time.Second,
			CompletedRetention:     24 * time.Hour,
			SyncTimeout:            30 * time.Minute,
			SyncConcurrency:        3,
			IndexConcurrency:       5,
			EmbeddingConcurrency:   10,
			SyncRatePerMinute:      10,
			EmbeddingRatePerMinute: 100,
			IndexChunkSize:         100,
			ShutdownTimeout:        10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
		},
		Tracing: observability.TracingConfig{
			ServiceName:  "nebula-hub",
			SamplingRate: 0.1,
		},
	}
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.Sync.BatchSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "sync.batch_size must be positive")
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Systems))
	for i, s := range c.Systems {
		if s.ID == "" {
			return errors.Newf(errors.ErrorTypeConfig, "systems[%d].id is required", i)
		}
		if seen[s.ID] {
			return errors.Newf(errors.ErrorTypeConfig, "duplicate system id %q", s.ID)
		}
		seen[s.ID] = true
		if !s.Connection.Kind.IsKnown() {
			return errors.Newf(errors.ErrorTypeConfig, "system %q has unknown connector kind %q", s.ID, s.Connection.Kind)
		}
	}
	return nil
}

// Validate checks the queue section. A disabled queue is always valid.
func (q *QueueConfig) Validate() error {
	if !q.Enabled {
		return nil
	}
	if q.RedisAddr == "" {
		return errors.New(errors.ErrorTypeConfig, "queue.redis_addr is required when the queue is enabled")
	}
	if q.Attempts <= 0 {
		return errors.New(errors.ErrorTypeConfig, "queue.attempts must be positive")
	}
	if q.SyncConcurrency <= 0 || q.IndexConcurrency <= 0 || q.EmbeddingConcurrency <= 0 {
		return errors.New(errors.ErrorTypeConfig, "queue concurrency must be positive")
	}
	if q.SyncRatePerMinute < 0 || q.EmbeddingRatePerMinute < 0 {
		return errors.New(errors.ErrorTypeConfig, "queue rate limits cannot be negative")
	}
	if q.IndexChunkSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "queue.index_chunk_size must be positive")
	}
	return nil
}

// ConnectionFor returns the system's connection with pool defaults filled in
func (c *Config) ConnectionFor(s SystemConfig) core.ConnectionConfig {
	conn := s.Connection.Clone()
	if conn.Pool.MaxConns == 0 {
		conn.Pool.MaxConns = c.Pool.MaxConns
	}
	if conn.Pool.MinConns == 0 {
		conn.Pool.MinConns = c.Pool.MinConns
	}
	if conn.Pool.ConnectTimeout == 0 {
		conn.Pool.ConnectTimeout = c.Pool.ConnectTimeout
	}
	if conn.Pool.MaxConnLifetime == 0 {
		conn.Pool.MaxConnLifetime = c.Pool.MaxConnLifetime
	}
	if conn.Pool.MaxConnIdleTime == 0 {
		conn.Pool.MaxConnIdleTime = c.Pool.MaxConnIdleTime
	}
	return conn
}
