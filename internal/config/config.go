// Package config loads worldsim settings and the discovery catalog from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/crossroads/internal/world"
)

// Config holds everything a worldsim session needs.
type Config struct {
	// Seed drives world generation and, without a random.org key, the
	// discovery trials. 0 = random.
	Seed int64 `yaml:"seed"`

	DBPath       string `yaml:"db_path"`
	APIPort      int    `yaml:"api_port"`
	AdminKey     string `yaml:"admin_key"`      // Bearer token for POST endpoints. Empty = POST disabled.
	RandomOrgKey string `yaml:"random_org_key"` // Empty = local randomness
	LogLevel     string `yaml:"log_level"`      // debug, info, warn, error

	World      WorldConfig      `yaml:"world"`
	Settlement SettlementConfig `yaml:"settlement"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
}

// WorldConfig tunes map generation.
type WorldConfig struct {
	Radius        int     `yaml:"radius"`
	SeaLevel      float64 `yaml:"sea_level"`
	MountainLevel float64 `yaml:"mountain_level"`
}

// SettlementConfig places the settlement and sizes its workforce.
type SettlementConfig struct {
	// Anchor is the settlement hex. Nil = pick the most varied land hex.
	Anchor    *world.HexCoord `yaml:"anchor"`
	Workforce int             `yaml:"workforce"`
	// WorkRadius bounds how far settlers walk to work.
	WorkRadius int `yaml:"work_radius"`
}

// DiscoveryConfig tunes the discovery engine.
type DiscoveryConfig struct {
	CheckIntervalSeconds float64 `yaml:"check_interval_seconds"`
	ScanRadius           int     `yaml:"scan_radius"`
	ScanStride           int     `yaml:"scan_stride"`
	// SecondsPerTick is how much simulated time one host tick represents.
	SecondsPerTick float64 `yaml:"seconds_per_tick"`
	// Catalog is a path to a YAML catalog. Empty = built-in catalog.
	Catalog string `yaml:"catalog"`
}

// Default returns the default configuration.
func Default() Config {
	gen := world.DefaultGenConfig()
	return Config{
		Seed:     42,
		DBPath:   "data/crossroads.db",
		APIPort:  8080,
		LogLevel: "info",
		World: WorldConfig{
			Radius:        gen.Radius,
			SeaLevel:      gen.SeaLevel,
			MountainLevel: gen.MountainLvl,
		},
		Settlement: SettlementConfig{
			Workforce:  12,
			WorkRadius: 4,
		},
		Discovery: DiscoveryConfig{
			CheckIntervalSeconds: 60,
			ScanRadius:           6,
			ScanStride:           2,
			SecondsPerTick:       60,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from WORLDSIM_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("WORLDSIM_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("WORLDSIM_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WORLDSIM_PORT %q: %w", v, err)
		}
		c.APIPort = port
	}
	if v := os.Getenv("WORLDSIM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid WORLDSIM_SEED %q: %w", v, err)
		}
		c.Seed = seed
	}
	if v := os.Getenv("WORLDSIM_ADMIN_KEY"); v != "" {
		c.AdminKey = v
	}
	if v := os.Getenv("RANDOM_ORG_API_KEY"); v != "" {
		c.RandomOrgKey = v
	}
	if v := os.Getenv("WORLDSIM_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks ranges and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.APIPort < 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("api_port %d out of range", c.APIPort))
	}
	if c.World.Radius < 1 {
		errs = append(errs, fmt.Errorf("world.radius must be positive, got %d", c.World.Radius))
	}
	if c.World.SeaLevel >= c.World.MountainLevel {
		errs = append(errs, fmt.Errorf("world.sea_level %.2f must be below mountain_level %.2f", c.World.SeaLevel, c.World.MountainLevel))
	}
	if c.Settlement.Workforce < 0 {
		errs = append(errs, fmt.Errorf("settlement.workforce must not be negative"))
	}
	if c.Settlement.WorkRadius < 0 {
		errs = append(errs, fmt.Errorf("settlement.work_radius must not be negative"))
	}
	if c.Discovery.CheckIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("discovery.check_interval_seconds must be positive"))
	}
	if c.Discovery.SecondsPerTick <= 0 {
		errs = append(errs, fmt.Errorf("discovery.seconds_per_tick must be positive"))
	}
	if c.Discovery.ScanRadius < 0 {
		errs = append(errs, fmt.Errorf("discovery.scan_radius must not be negative"))
	}
	if c.Discovery.ScanStride < 1 {
		errs = append(errs, fmt.Errorf("discovery.scan_stride must be at least 1"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

// GenConfig converts the world section for world.Generate.
func (c Config) GenConfig() world.GenConfig {
	return world.GenConfig{
		Radius:      c.World.Radius,
		Seed:        c.Seed,
		SeaLevel:    c.World.SeaLevel,
		MountainLvl: c.World.MountainLevel,
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
}
