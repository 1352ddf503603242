package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/nebula-hub/pkg/errors"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "NEBULA_HUB"

// Load reads the configuration from path (optional) and the environment
// on top of Default(), then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
		}
		v.SetConfigType(configType(path))
		if err := v.ReadConfig(bytes.NewReader([]byte(substituteEnvVars(string(data))))); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

// setDefaults registers every scalar key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("log.output_paths", d.Log.OutputPaths)

	v.SetDefault("sync.batch_size", d.Sync.BatchSize)

	v.SetDefault("pool.max_conns", d.Pool.MaxConns)
	v.SetDefault("pool.min_conns", d.Pool.MinConns)
	v.SetDefault("pool.connect_timeout", d.Pool.ConnectTimeout)
	v.SetDefault("pool.max_conn_lifetime", d.Pool.MaxConnLifetime)
	v.SetDefault("pool.max_conn_idle_time", d.Pool.MaxConnIdleTime)

	v.SetDefault("queue.enabled", d.Queue.Enabled)
	v.SetDefault("queue.redis_addr", d.Queue.RedisAddr)
	v.SetDefault("queue.redis_password", d.Queue.RedisPassword)
	v.SetDefault("queue.redis_db", d.Queue.RedisDB)
	v.SetDefault("queue.probe_timeout", d.Queue.ProbeTimeout)
	v.SetDefault("queue.attempts", d.Queue.Attempts)
	v.SetDefault("queue.backoff_base", d.Queue.BackoffBase)
	v.SetDefault("queue.completed_retention", d.Queue.CompletedRetention)
	v.SetDefault("queue.sync_timeout", d.Queue.SyncTimeout)
	v.SetDefault("queue.sync_concurrency", d.Queue.SyncConcurrency)
	v.SetDefault("queue.index_concurrency", d.Queue.IndexConcurrency)
	v.SetDefault("queue.embedding_concurrency", d.Queue.EmbeddingConcurrency)
	v.SetDefault("queue.sync_rate_per_minute", d.Queue.SyncRatePerMinute)
	v.SetDefault("queue.embedding_rate_per_minute", d.Queue.EmbeddingRatePerMinute)
	v.SetDefault("queue.index_chunk_size", d.Queue.IndexChunkSize)
	v.SetDefault("queue.shutdown_timeout", d.Queue.ShutdownTimeout)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.service_version", d.Tracing.ServiceVersion)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	v.SetDefault("tracing.pretty_print", d.Tracing.PrettyPrint)

	v.SetDefault("mappings_file", d.MappingsFile)
}
