// Package config loads and validates the BOA server's TOML configuration,
// using the same Duration/Clone/RWMutexManager pattern and BurntSushi/toml
// loader throughout the store/lock/job worker configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/antigravity-dev/boa/internal/boaerr"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full BOA server configuration.
type Config struct {
	Server      Server      `toml:"server"`
	Lock        Lock        `toml:"lock"`
	Jobs        Jobs        `toml:"jobs"`
	Maintenance Maintenance `toml:"maintenance"`
	Logging     Logging     `toml:"logging"`
	Plugins     Plugins     `toml:"plugins"`
}

// Server holds persistence and artifact paths.
type Server struct {
	DBPath        string `toml:"db_path"`
	CheckpointDir string `toml:"checkpoint_dir"`
	BundleDir     string `toml:"bundle_dir"`
}

// Lock configures the campaign write lock's lease duration.
type Lock struct {
	TTL Duration `toml:"ttl"`
}

// Jobs configures the durable job queue's worker loop.
type Jobs struct {
	PollInterval   Duration `toml:"poll_interval"`
	Concurrency    int      `toml:"concurrency"`
	StaleMaxAge    Duration `toml:"stale_max_age"`
	KeepCompleted  int      `toml:"keep_completed"`
	CheckpointKeep int      `toml:"checkpoint_keep"`
}

// Maintenance configures the periodic sweep of expired locks and stale jobs,
// driven by robfig/cron in cmd/boa.
type Maintenance struct {
	SweepCron string `toml:"sweep_cron"`
}

// Logging configures the process-wide slog handler.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// Plugins configures which plugin names are used as defaults when a
// ProcessSpec's strategy omits one.
type Plugins struct {
	DefaultSampler     string `toml:"default_sampler"`
	DefaultModel       string `toml:"default_model"`
	DefaultAcquisition string `toml:"default_acquisition"`
}

// Clone returns a shallow copy; every field of Config is itself a plain
// value struct (no shared backing arrays/maps), so a struct copy is a full
// deep copy: a reader can never observe a concurrent Set through its
// snapshot.
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}
	clone := *cfg
	return &clone
}

// Default returns a Config with every field at its documented default.
func Default() *Config {
	return &Config{
		Server: Server{
			DBPath:        "boa.db",
			CheckpointDir: "checkpoints",
			BundleDir:     "bundles",
		},
		Lock: Lock{TTL: Duration{5 * time.Minute}},
		Jobs: Jobs{
			PollInterval:   Duration{2 * time.Second},
			Concurrency:    4,
			StaleMaxAge:    Duration{24 * time.Hour},
			KeepCompleted:  1000,
			CheckpointKeep: 3,
		},
		Maintenance: Maintenance{SweepCron: "*/5 * * * *"},
		Logging:     Logging{Level: "info", Format: "text"},
		Plugins: Plugins{
			DefaultSampler:     "lhs_optimized",
			DefaultModel:       "gp_matern",
			DefaultAcquisition: "qlogNEHVI",
		},
	}
}

// Load reads and parses a TOML config file, applying defaults for any
// unset field and validating the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	normalizePaths(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadManager loads config from path and wraps it in an RWMutexManager.
func LoadManager(path string) (ConfigManager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewManager(cfg), nil
}

func normalizePaths(cfg *Config) {
	cfg.Server.DBPath = ExpandHome(cfg.Server.DBPath)
	cfg.Server.CheckpointDir = ExpandHome(cfg.Server.CheckpointDir)
	cfg.Server.BundleDir = ExpandHome(cfg.Server.BundleDir)
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// validate aggregates every configuration issue into a single
// boaerr.ValidationIssues rather than stopping at the first one.
func validate(cfg *Config) error {
	var issues []string

	if cfg.Server.DBPath == "" {
		issues = append(issues, "server.db_path must not be empty")
	}
	if cfg.Server.CheckpointDir == "" {
		issues = append(issues, "server.checkpoint_dir must not be empty")
	}
	if cfg.Lock.TTL.Duration <= 0 {
		issues = append(issues, "lock.ttl must be positive")
	}
	if cfg.Jobs.Concurrency <= 0 {
		issues = append(issues, "jobs.concurrency must be positive")
	}
	if cfg.Jobs.PollInterval.Duration <= 0 {
		issues = append(issues, "jobs.poll_interval must be positive")
	}
	if cfg.Jobs.StaleMaxAge.Duration <= 0 {
		issues = append(issues, "jobs.stale_max_age must be positive")
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("logging.format must be \"text\" or \"json\", got %q", cfg.Logging.Format))
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level must be one of debug/info/warn/error, got %q", cfg.Logging.Level))
	}

	return boaerr.NewValidationIssues(issues)
}
