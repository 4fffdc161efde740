package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"Terminal/internal/model"
	"Terminal/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "threshold", cfg.Engine.Strategy)
	assert.Equal(t, 3, cfg.Engine.MinUpdates)
	assert.Equal(t, 0.5, cfg.Engine.MaxSigma)
	assert.Equal(t, 24*time.Hour, cfg.CooldownSpacing())
	assert.Equal(t, "05:00", cfg.Learner.Cutoff)
	assert.Equal(t, 14.0, cfg.Learner.HalfLifeDays)
	assert.False(t, cfg.TelegramEnabled())

	levels, err := cfg.Levels()
	require.NoError(t, err)
	assert.Equal(t, []model.Level{model.LevelAdset}, levels)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  strategy: ucb
  min_updates: 5
cooldown_hours: 12
learner:
  timezone: UTC
lanes:
  default:
    roas_up: 1.5
  lanes:
    prospecting:
      step_up: 0.1
schedule:
  levels: [adset, campaign]
`)
	t.Setenv("TERMINAL_STRATEGY", "kelly_lite")
	t.Setenv("TERMINAL_MAX_SIGMA", "0.25")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "kelly_lite", cfg.Engine.Strategy)
	assert.Equal(t, 5, cfg.Engine.MinUpdates)
	assert.Equal(t, 0.25, cfg.Engine.MaxSigma)
	assert.Equal(t, 12*time.Hour, cfg.CooldownSpacing())

	table, err := policy.Merge(cfg.Lanes)
	require.NoError(t, err)
	assert.Equal(t, 1.5, table.Resolve("prospecting").ROASUp)
	assert.Equal(t, 0.1, table.Resolve("prospecting").StepUp)

	levels, err := cfg.Levels()
	require.NoError(t, err)
	assert.Len(t, levels, 2)
}

func TestLoad_ZeroMinUpdatesIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "engine:\n  strategy: ucb\n  min_updates: 0\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0, cfg.Engine.MinUpdates)
	assert.Equal(t, "ucb", cfg.Engine.Strategy)

	t.Setenv("TERMINAL_MIN_UPDATES", "0")
	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Engine.MinUpdates)
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("TERMINAL_MIN_UPDATES", "three")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown strategy", "engine:\n  strategy: martingale\n"},
		{"negative min_updates", "engine:\n  min_updates: -1\n"},
		{"bad cutoff", "learner:\n  cutoff: \"25:99\"\n"},
		{"bad timezone", "learner:\n  timezone: Mars/Olympus\n"},
		{"bad level", "schedule:\n  levels: [keyword]\n"},
		{"half telegram", "telegram:\n  bot_token: abc\n"},
		{"inconsistent lane", "lanes:\n  default:\n    roas_down: 2.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.body))
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}
