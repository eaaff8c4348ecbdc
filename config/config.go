// Package config loads run, scenario and service settings.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/warp/water-finance/finance"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Run struct {
		StartYear    int    `yaml:"start_year"`
		EndYear      int    `yaml:"end_year"`
		Realizations int    `yaml:"realizations"`
		BaseSeed     int64  `yaml:"base_seed"`
		Workers      int    `yaml:"workers"`
		Label        string `yaml:"label"`
	} `yaml:"run"`
	Scenario finance.ScenarioParameters `yaml:"scenario"`
	Data     struct {
		DatasetPath string `yaml:"dataset_path"`
		SQLitePath  string `yaml:"sqlite_path"`
		OutputDir   string `yaml:"output_dir"`
	} `yaml:"data"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Schedule struct {
		BatchCron string `yaml:"batch_cron"`
	} `yaml:"schedule"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides. A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{Scenario: finance.DefaultScenarioParameters()}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// Environment variable overrides
	if v := os.Getenv("FINSIM_DATASET"); v != "" {
		cfg.Data.DatasetPath = v
	}
	if v := os.Getenv("FINSIM_SQLITE_PATH"); v != "" {
		cfg.Data.SQLitePath = v
	}
	if v := os.Getenv("FINSIM_OUTPUT_DIR"); v != "" {
		cfg.Data.OutputDir = v
	}
	if v := os.Getenv("FINSIM_BATCH_CRON"); v != "" {
		cfg.Schedule.BatchCron = v
	}
	if v := os.Getenv("FINSIM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FINSIM_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	envInt("FINSIM_PORT", &cfg.Server.Port)
	envInt("FINSIM_START_YEAR", &cfg.Run.StartYear)
	envInt("FINSIM_END_YEAR", &cfg.Run.EndYear)
	envInt("FINSIM_REALIZATIONS", &cfg.Run.Realizations)
	envInt("FINSIM_WORKERS", &cfg.Run.Workers)
	if v := os.Getenv("FINSIM_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Run.BaseSeed = seed
		}
	}
	envBool("FINSIM_KEEP_RATE_STABLE", &cfg.Scenario.KeepUniformRateStable)
	envBool("FINSIM_FOLLOW_CIP_SCHEDULE", &cfg.Scenario.Exogenous.FollowCIPSchedule)
	envBool("FINSIM_FLEXIBLE_CIP_SPENDING", &cfg.Scenario.Exogenous.FlexibleCIPSpending)

	// Defaults
	if cfg.Run.StartYear == 0 {
		cfg.Run.StartYear = 2021
	}
	if cfg.Run.EndYear == 0 {
		cfg.Run.EndYear = cfg.Run.StartYear + 1
	}
	if cfg.Run.Realizations == 0 {
		cfg.Run.Realizations = 1
	}
	if cfg.Data.DatasetPath == "" {
		cfg.Data.DatasetPath = "data/dataset.yaml"
	}
	if cfg.Data.SQLitePath == "" {
		cfg.Data.SQLitePath = "data/finsim.db"
	}
	if cfg.Data.OutputDir == "" {
		cfg.Data.OutputDir = "output"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	return cfg, nil
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks that all settings are usable.
func (c *Config) Validate() error {
	if c.Run.EndYear < c.Run.StartYear {
		return fmt.Errorf("run.end_year %d before run.start_year %d", c.Run.EndYear, c.Run.StartYear)
	}
	if c.Run.Realizations < 1 {
		return fmt.Errorf("run.realizations must be positive")
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("run.workers must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "human" {
		return fmt.Errorf("log.format must be json or human, got %q", c.Log.Format)
	}
	if err := c.Scenario.Validate(); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	return nil
}

// StartYear returns the first simulated fiscal year.
func (c *Config) StartYear() finance.FiscalYear { return finance.FiscalYear(c.Run.StartYear) }

// EndYear returns the last simulated fiscal year.
func (c *Config) EndYear() finance.FiscalYear { return finance.FiscalYear(c.Run.EndYear) }

// ScenarioParameters returns the configured scenario.
func (c *Config) ScenarioParameters() finance.ScenarioParameters { return c.Scenario }

// ConfigureLogging sets the global logger's level and output format.
func (c *Config) ConfigureLogging(out io.Writer) {
	output := out
	if strings.EqualFold(c.Log.Format, "human") {
		output = zerolog.ConsoleWriter{Out: out}
	}

	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(output).With().Timestamp().Logger()
}
