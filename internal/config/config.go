// Package config loads and validates the telemetryd static configuration,
// read from a TOML file at CONFIG_FILE (default config.toml). On first run
// a fully populated default file is written out so operators always have a
// concrete file to edit.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const DefaultConfigFilename = "config.toml"

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Publishing PublishingConfig `toml:"publishing"`
	Monitoring MonitoringConfig `toml:"monitoring"`
}

type ServerConfig struct {
	Port uint16 `toml:"port"`
	Host string `toml:"host"`
}

type DatabaseConfig struct {
	Path                    string `toml:"path"`
	MaxPoolSize             uint32 `toml:"max_pool_size"`
	FlushRate               uint64 `toml:"flush_rate"`
	FlushIntervalSecs       uint64 `toml:"flush_interval_secs"`
	RetentionDays           uint32 `toml:"retention_days"`
	PruneIntervalSecs       uint64 `toml:"prune_interval_secs"`
	EnableAggregation       bool   `toml:"enable_aggregation"`
	AggregationIntervalSecs uint64 `toml:"aggregation_interval_secs"`
	RawRetentionHours       uint32 `toml:"raw_retention_hours"`
	MinuteRetentionHours    uint32 `toml:"minute_retention_hours"`
	VacuumSchedule          string `toml:"vacuum_schedule"` // optional cron expr, local time
	VacuumIntervalSecs      uint64 `toml:"vacuum_interval_secs"`
}

type PublishingConfig struct {
	CPUStatsFrequencyMs uint64 `toml:"cpu_stats_frequency_ms"`
	RAMStatsFrequencyMs uint64 `toml:"ram_stats_frequency_ms"`
	BroadcastCapacity   uint64 `toml:"broadcast_capacity"`
}

type MonitoringConfig struct {
	SampleIntervalMs    uint64 `toml:"sample_interval_ms"`
	StatsLogIntervalSecs uint64 `toml:"stats_log_interval_secs"`
}

// Defaults is the fully populated config written out verbatim on first
// run.
func Defaults() Config {
	return Config{
		Server: ServerConfig{Port: 8787, Host: "0.0.0.0"},
		Database: DatabaseConfig{
			Path:                    "telemetry.db",
			MaxPoolSize:             8,
			FlushRate:               100,
			FlushIntervalSecs:       30,
			RetentionDays:           3,
			PruneIntervalSecs:       3600,
			EnableAggregation:       true,
			AggregationIntervalSecs: 3600,
			RawRetentionHours:       1,
			MinuteRetentionHours:    24,
			VacuumSchedule:          "",
			VacuumIntervalSecs:      86400,
		},
		Publishing: PublishingConfig{
			CPUStatsFrequencyMs: 1000,
			RAMStatsFrequencyMs: 1000,
			BroadcastCapacity:   256,
		},
		Monitoring: MonitoringConfig{
			SampleIntervalMs:     1000,
			StatsLogIntervalSecs: 60,
		},
	}
}

// ConfigPath resolves the config file location: CONFIG_FILE env override,
// else DefaultConfigFilename in the working directory.
func ConfigPath() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	return DefaultConfigFilename
}

// Load reads and validates the config at ConfigPath(). If the file doesn't
// exist, it writes out Defaults() and loads that.
func Load() (Config, error) {
	path := ConfigPath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		def := Defaults()
		out, marshalErr := toml.Marshal(def)
		if marshalErr != nil {
			return Config{}, fmt.Errorf("marshal default config: %w", marshalErr)
		}
		if writeErr := os.WriteFile(path, out, 0o644); writeErr != nil {
			return Config{}, fmt.Errorf("write default config to %s: %w", path, writeErr)
		}
		return def, def.Validate()
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate enforces every config precondition. Any failure aborts startup;
// a bad configuration is never worked around at runtime.
func (c Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server.host must be non-empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must be non-empty")
	}
	if c.Database.MaxPoolSize == 0 {
		return fmt.Errorf("database.max_pool_size must be > 0")
	}
	if c.Database.FlushRate == 0 {
		return fmt.Errorf("database.flush_rate must be > 0")
	}
	if c.Database.FlushIntervalSecs == 0 {
		return fmt.Errorf("database.flush_interval_secs must be > 0")
	}
	if c.Database.RetentionDays == 0 {
		return fmt.Errorf("database.retention_days must be > 0")
	}
	if c.Database.PruneIntervalSecs == 0 {
		return fmt.Errorf("database.prune_interval_secs must be > 0")
	}
	if c.Database.AggregationIntervalSecs == 0 {
		return fmt.Errorf("database.aggregation_interval_secs must be > 0")
	}
	if c.Database.RawRetentionHours == 0 {
		return fmt.Errorf("database.raw_retention_hours must be > 0")
	}
	if c.Database.MinuteRetentionHours == 0 {
		return fmt.Errorf("database.minute_retention_hours must be > 0")
	}
	if c.Database.VacuumIntervalSecs == 0 {
		return fmt.Errorf("database.vacuum_interval_secs must be > 0")
	}
	if c.Database.VacuumSchedule != "" {
		if _, err := ParseCron(c.Database.VacuumSchedule); err != nil {
			return fmt.Errorf("database.vacuum_schedule: %w", err)
		}
	}
	if c.Publishing.CPUStatsFrequencyMs == 0 {
		return fmt.Errorf("publishing.cpu_stats_frequency_ms must be > 0")
	}
	if c.Publishing.RAMStatsFrequencyMs == 0 {
		return fmt.Errorf("publishing.ram_stats_frequency_ms must be > 0")
	}
	if c.Publishing.BroadcastCapacity == 0 {
		return fmt.Errorf("publishing.broadcast_capacity must be > 0")
	}
	if c.Monitoring.SampleIntervalMs == 0 {
		return fmt.Errorf("monitoring.sample_interval_ms must be > 0")
	}
	if c.Monitoring.StatsLogIntervalSecs == 0 {
		return fmt.Errorf("monitoring.stats_log_interval_secs must be > 0")
	}
	return nil
}

// RunningInContainer detects the CONTAINER=1 / /.dockerenv markers that
// switch the main loop to no-signal-handler mode, leaving lifecycle to the
// container runtime.
func RunningInContainer() bool {
	if os.Getenv("CONTAINER") == "1" {
		return true
	}
	_, err := os.Stat("/.dockerenv")
	return err == nil
}
