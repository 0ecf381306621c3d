// Package config loads connection settings from an optional config file
// and N1QL_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/n1qlorm/internal/store"
)

// EnvPrefix prefixes every environment variable: N1QL_BUCKET sets bucket.
const EnvPrefix = "N1QL"

// Backends.
const (
	BackendCouchbase = "couchbase"
	BackendLocal     = "local"
)

// Config holds every setting of a connection.
type Config struct {
	Backend          string        `mapstructure:"backend"`
	ConnectionString string        `mapstructure:"connection_string"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	Bucket           string        `mapstructure:"bucket"`
	TypeField        string        `mapstructure:"type_field"`
	Consistency      string        `mapstructure:"consistency"`
	InlineParameters bool          `mapstructure:"inline_parameters"`
	QueryTimeout     time.Duration `mapstructure:"query_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	KVConcurrency    int           `mapstructure:"kv_concurrency"`

	// LocalPath is the badger directory of the local backend; empty means
	// in-memory.
	LocalPath string `mapstructure:"local_path"`

	// JournalPath is the SQLite statement journal; empty disables it.
	JournalPath string `mapstructure:"journal_path"`

	// MetricsAddr, when set, serves Prometheus metrics from the shell.
	MetricsAddr string `mapstructure:"metrics_addr"`

	LogLevel string `mapstructure:"log_level"`
}

var defaults = map[string]any{
	"backend":           BackendCouchbase,
	"connection_string": "couchbase://localhost",
	"username":          "",
	"password":          "",
	"bucket":            "default",
	"type_field":        "eloquent_type",
	"consistency":       "request_plus",
	"inline_parameters": false,
	"query_timeout":     75 * time.Second,
	"connect_timeout":   10 * time.Second,
	"kv_concurrency":    8,
	"local_path":        "",
	"journal_path":      "",
	"metrics_addr":      "",
	"log_level":         "info",
}

// Load reads path (yaml, json or toml by extension; empty for none),
// then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendCouchbase:
		if c.ConnectionString == "" {
			errs = append(errs, errors.New("connection_string is required for the couchbase backend"))
		}
	case BackendLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if _, err := store.ParseConsistency(c.Consistency); err != nil {
		errs = append(errs, err)
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if c.TypeField == "" {
		errs = append(errs, errors.New("type_field is required"))
	}
	if c.KVConcurrency < 1 {
		errs = append(errs, fmt.Errorf("kv_concurrency must be positive, got %d", c.KVConcurrency))
	}
	if c.QueryTimeout < 0 {
		errs = append(errs, fmt.Errorf("query_timeout must not be negative, got %s", c.QueryTimeout))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ScanConsistency returns the parsed consistency setting.
func (c *Config) ScanConsistency() store.Consistency {
	cons, err := store.ParseConsistency(c.Consistency)
	if err != nil {
		return store.RequestPlus
	}
	return cons
}

// Level returns the slog level of log_level, Info when unset.
func (c *Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log_level %q", s)
	}
	return l, nil
}
