package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/water-finance/config"
	"github.com/warp/water-finance/finance"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// GIVEN: No config file
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	// THEN: Defaults fill every setting
	assert.Equal(t, finance.FiscalYear(2021), cfg.StartYear())
	assert.Equal(t, finance.FiscalYear(2022), cfg.EndYear())
	assert.Equal(t, 1, cfg.Run.Realizations)
	assert.Equal(t, "data/dataset.yaml", cfg.Data.DatasetPath)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Schedule.BatchCron)
	assert.True(t, cfg.ScenarioParameters().Decisions.RRFloorFraction.Equal(finance.MustParseDecimal("0.05")))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	// GIVEN: A file that overrides part of the scenario
	path := writeConfig(t, `
run:
  start_year: 2021
  end_year: 2025
  realizations: 50
  base_seed: 7
  workers: 4
scenario:
  keep_uniform_rate_stable: true
  decisions:
    rate_increase_high_bound: "0.03"
  exogenous:
    fixed_opex_inflation: "0.04"
schedule:
  batch_cron: "0 0 2 * * *"
log:
  level: debug
  format: human
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	// THEN: File values win, untouched scenario fields keep their defaults
	assert.Equal(t, finance.FiscalYear(2025), cfg.EndYear())
	assert.Equal(t, 50, cfg.Run.Realizations)
	assert.Equal(t, int64(7), cfg.Run.BaseSeed)
	assert.Equal(t, "0 0 2 * * *", cfg.Schedule.BatchCron)
	p := cfg.ScenarioParameters()
	assert.True(t, p.KeepUniformRateStable)
	assert.True(t, p.Decisions.RateIncreaseHighBound.Equal(finance.MustParseDecimal("0.03")))
	assert.True(t, p.Exogenous.FixedOpExInflation.Equal(finance.MustParseDecimal("0.04")))
	assert.True(t, p.Exogenous.VariableOpExInflation.Equal(finance.MustParseDecimal("0.033")))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "run:\n  realizations: 5\n")
	t.Setenv("FINSIM_REALIZATIONS", "12")
	t.Setenv("FINSIM_PORT", "9090")
	t.Setenv("FINSIM_SEED", "123")
	t.Setenv("FINSIM_DATASET", "/tmp/other.yaml")
	t.Setenv("FINSIM_FOLLOW_CIP_SCHEDULE", "true")
	t.Setenv("FINSIM_WORKERS", "not-a-number")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Run.Realizations)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(123), cfg.Run.BaseSeed)
	assert.Equal(t, "/tmp/other.yaml", cfg.Data.DatasetPath)
	assert.True(t, cfg.Scenario.Exogenous.FollowCIPSchedule)
	assert.Zero(t, cfg.Run.Workers)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "run: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"end before start", func(c *config.Config) { c.Run.EndYear = 2020 }},
		{"no realizations", func(c *config.Config) { c.Run.Realizations = 0 }},
		{"negative workers", func(c *config.Config) { c.Run.Workers = -1 }},
		{"port out of range", func(c *config.Config) { c.Server.Port = 70000 }},
		{"unknown log level", func(c *config.Config) { c.Log.Level = "loud" }},
		{"unknown log format", func(c *config.Config) { c.Log.Format = "xml" }},
		{"bad scenario", func(c *config.Config) { c.Scenario.Exogenous.NewDebtTermYears = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigureLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	defer func(l zerolog.Logger) { log.Logger = l }(log.Logger)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	cfg.ConfigureLogging(&buf)
	log.Info().Msg("hidden")
	log.Warn().Str("fund", "utility_reserve").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"fund":"utility_reserve"`)
}
