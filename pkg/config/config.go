package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full Vantage configuration tree
type Config struct {
	Port     int            `yaml:"port"`
	Database DatabaseConfig `yaml:"database"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	ETL      ETLConfig      `yaml:"etl"`
	Search   SearchConfig   `yaml:"search"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds store connection settings
type DatabaseConfig struct {
	URL  string     `yaml:"url"`
	SSL  bool       `yaml:"ssl"`
	Pool PoolConfig `yaml:"pool"`
}

// PoolConfig bounds the serving-plane connection pool
type PoolConfig struct {
	Min int32 `yaml:"min"`
	Max int32 `yaml:"max"`
}

// ClusterConfig controls the serving process topology
type ClusterConfig struct {
	// Workers is the serving worker count; 0 means one per CPU core
	Workers int `yaml:"workers"`
}

// ETLConfig tunes the ingestion pipeline
type ETLConfig struct {
	BatchSize         int   `yaml:"batchSize"`
	RetryAttempts     int   `yaml:"retryAttempts"`
	RetryDelayMs      int   `yaml:"retryDelayMs"`
	FlushDelayMs      int   `yaml:"flushDelayMs"`
	PoolIdleTimeoutMs int64 `yaml:"poolIdleTimeoutMs"`
}

// SearchConfig tunes the search paths
type SearchConfig struct {
	MaxCandidates       int `yaml:"maxCandidates"`
	ShortQueryMaxLength int `yaml:"shortQueryMaxLength"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration defaults
func Default() *Config {
	return &Config{
		Port: 3000,
		Database: DatabaseConfig{
			Pool: PoolConfig{Min: 2, Max: 10},
		},
		Cluster: ClusterConfig{Workers: 0},
		ETL: ETLConfig{
			BatchSize:         5000,
			RetryAttempts:     3,
			RetryDelayMs:      1000,
			FlushDelayMs:      200,
			PoolIdleTimeoutMs: 240000,
		},
		Search: SearchConfig{
			MaxCandidates:       5000,
			ShortQueryMaxLength: 3,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from an optional YAML file, applies VANTAGE_*
// environment overrides, and validates the result. An empty path skips the
// file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VANTAGE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("VANTAGE_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("VANTAGE_DATABASE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.SSL = b
		}
	}
	if v := os.Getenv("VANTAGE_CLUSTER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cluster.Workers = n
		}
	}
	if v := os.Getenv("VANTAGE_ETL_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ETL.BatchSize = n
		}
	}
	if v := os.Getenv("VANTAGE_SEARCH_MAX_CANDIDATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxCandidates = n
		}
	}
	if v := os.Getenv("VANTAGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks the configuration and returns a diagnostic error for the
// first violation found. Process start must fail on error.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid config: port %d out of range [1, 65535]", c.Port)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("invalid config: database.url is required")
	}
	if c.Database.Pool.Min < 1 {
		return fmt.Errorf("invalid config: database.pool.min must be >= 1")
	}
	if c.Database.Pool.Max < c.Database.Pool.Min {
		return fmt.Errorf("invalid config: database.pool.max %d below pool.min %d",
			c.Database.Pool.Max, c.Database.Pool.Min)
	}
	if c.Cluster.Workers < 0 {
		return fmt.Errorf("invalid config: cluster.workers must be >= 0")
	}
	if c.ETL.BatchSize < 1 {
		return fmt.Errorf("invalid config: etl.batchSize must be >= 1")
	}
	if c.ETL.RetryAttempts < 0 {
		return fmt.Errorf("invalid config: etl.retryAttempts must be >= 0")
	}
	if c.ETL.RetryDelayMs < 0 {
		return fmt.Errorf("invalid config: etl.retryDelayMs must be >= 0")
	}
	if c.ETL.FlushDelayMs < 0 {
		return fmt.Errorf("invalid config: etl.flushDelayMs must be >= 0")
	}
	if c.ETL.PoolIdleTimeoutMs < 0 {
		return fmt.Errorf("invalid config: etl.poolIdleTimeoutMs must be >= 0")
	}
	if c.Search.MaxCandidates < 100 || c.Search.MaxCandidates > 50000 {
		return fmt.Errorf("invalid config: search.maxCandidates %d out of range [100, 50000]",
			c.Search.MaxCandidates)
	}
	if c.Search.ShortQueryMaxLength < 0 {
		return fmt.Errorf("invalid config: search.shortQueryMaxLength must be >= 0")
	}
	return nil
}
