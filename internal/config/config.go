// Package config loads the procurecore server configuration from YAML with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"procurecore/internal/blob"
	"procurecore/internal/core"
	"procurecore/internal/milestone"
	"procurecore/internal/precheck"
	"procurecore/pkg/domain"
)

// Environment overrides applied after the file is read. Storage and blob
// variables are owned by their packages.
const (
	EnvConfigPath = "PROCURECORE_CONFIG"
	EnvHTTPAddr   = "PROCURECORE_HTTP_ADDR"
	EnvLogLevel   = "PROCURECORE_LOG_LEVEL"
	EnvLogFormat  = "PROCURECORE_LOG_FORMAT"
	// EnvDiscountRate overrides timing.discount_rate.
	EnvDiscountRate = "PROCURECORE_DISCOUNT_RATE"
)

// Config is the server configuration.
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Log        LogConfig                  `yaml:"log"`
	Storage    StorageConfig              `yaml:"storage"`
	Blob       blob.Config                `yaml:"blob"`
	Archive    ArchiveConfig              `yaml:"archive"`
	Metrics    MetricsConfig              `yaml:"metrics"`
	Weights    domain.ScoringWeights      `yaml:"weights"`
	Milestones []domain.MilestoneTemplate `yaml:"milestones"`
	PreCheck   precheck.Config            `yaml:"precheck"`
	// Timing is the default cash-flow profile for new projects.
	Timing domain.Timing `yaml:"timing"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

// StorageConfig names the persistence driver. Target is the sqlite path or
// the postgres DSN.
type StorageConfig struct {
	Driver core.StorageDriver `yaml:"driver"`
	Target string             `yaml:"target"`
}

// ArchiveConfig controls workbook archiving of comparisons and syncs.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:     ServerConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:        LogConfig{Level: "info", Format: "text"},
		Storage:    StorageConfig{Driver: core.StorageSQLite, Target: "procurecore.db"},
		Blob:       blob.Config{Driver: blob.DriverFilesystem, Root: "artifacts"},
		Archive:    ArchiveConfig{Enabled: true},
		Metrics:    MetricsConfig{Enabled: true, Path: "/metrics"},
		Weights:    core.DefaultWeights,
		Milestones: slices.Clone(core.DefaultMilestoneTemplates),
		PreCheck:   precheck.DefaultConfig(),
		Timing:     core.DefaultTiming.Clone(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path falls back to PROCURECORE_CONFIG and
// then to the defaults alone.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(raw); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg = cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables that are set.
func (c Config) ApplyEnv() Config {
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv(core.EnvStorageDriver); v != "" {
		c.Storage.Driver = core.StorageDriver(v)
	}
	switch c.Storage.Driver {
	case core.StorageSQLite:
		if v := os.Getenv(core.EnvSQLitePath); v != "" {
			c.Storage.Target = v
		}
	case core.StoragePostgres:
		if v := os.Getenv(core.EnvPostgresDSN); v != "" {
			c.Storage.Target = v
		}
	}
	if v := os.Getenv(EnvDiscountRate); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			// Validate reports the unusable rate.
			rate = math.NaN()
		}
		c.Timing.DiscountRate = rate
	}
	c.Blob = c.Blob.ApplyEnv()
	return c
}

// Validate reports every problem found rather than the first.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.Target == "" {
			errs = append(errs, errors.New("storage.target must hold the postgres DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if err := c.Weights.Validate(domain.MetadataSchema{}); err != nil {
		errs = append(errs, fmt.Errorf("weights: %w", err))
	}
	if err := milestone.ValidateTemplates(c.Milestones); err != nil {
		errs = append(errs, fmt.Errorf("milestones: %w", err))
	}
	if err := c.Timing.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses the configured level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// ServiceOptions translates the domain settings into service options.
func (c Config) ServiceOptions() []core.Option {
	return []core.Option{
		core.WithDefaultWeights(c.Weights),
		core.WithMilestoneTemplates(c.Milestones),
		core.WithPreCheckConfig(c.PreCheck),
		core.WithDefaultTiming(c.Timing),
	}
}
