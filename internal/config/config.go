package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"Terminal/internal/learner"
	"Terminal/internal/model"
	"Terminal/internal/policy"
	"Terminal/internal/strategy"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Engine struct {
		Strategy       string  `yaml:"strategy"`
		MinUpdates     int     `yaml:"min_updates"`
		MaxSigma       float64 `yaml:"max_sigma"`
		UCBExploration float64 `yaml:"ucb_exploration"`
		PolicyVersion  string  `yaml:"policy_version"`
	} `yaml:"engine"`
	CooldownHours float64 `yaml:"cooldown_hours"`
	Learner       struct {
		HalfLifeDays float64 `yaml:"half_life_days"`
		Cutoff       string  `yaml:"cutoff"`
		Timezone     string  `yaml:"timezone"`
	} `yaml:"learner"`
	// Lanes is the inline lane table. LanesFile, when set, takes precedence
	// and is watched for changes.
	Lanes     policy.File `yaml:"lanes"`
	LanesFile string      `yaml:"lanes_file"`
	State     struct {
		PolicyFile   string `yaml:"policy_file"`
		CooldownFile string `yaml:"cooldown_file"`
	} `yaml:"state"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Source struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"source"`
	Schedule struct {
		SuggestCron string   `yaml:"suggest_cron"`
		LearnCron   string   `yaml:"learn_cron"`
		PruneCron   string   `yaml:"prune_cron"`
		Levels      []string `yaml:"levels"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error; defaults cover everything.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// Seeded before parsing: an explicit min_updates of 0 disables the check.
	cfg.Engine.MinUpdates = strategy.DefaultMinUpdates

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"TELEGRAM_BOT_TOKEN":      &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":        &c.Telegram.ChatID,
		"TERMINAL_SOURCE_URL":     &c.Source.BaseURL,
		"TERMINAL_SOURCE_API_KEY": &c.Source.APIKey,
		"TERMINAL_STRATEGY":       &c.Engine.Strategy,
		"TERMINAL_LANES_FILE":     &c.LanesFile,
		"TERMINAL_POLICY_FILE":    &c.State.PolicyFile,
		"TERMINAL_COOLDOWN_FILE":  &c.State.CooldownFile,
		"TERMINAL_SUGGEST_CRON":   &c.Schedule.SuggestCron,
		"TERMINAL_LEARN_CRON":     &c.Schedule.LearnCron,
		"TERMINAL_LEARNER_TZ":     &c.Learner.Timezone,
		"TERMINAL_LEARNER_CUTOFF": &c.Learner.Cutoff,
		"TERMINAL_ADDR":           &c.Server.Addr,
		"TERMINAL_LOG_LEVEL":      &c.Log.Level,
		"SQLITE_PATH":             &c.Database.SQLitePath,
		"HTTPS_PROXY":             &c.Proxy,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"TERMINAL_COOLDOWN_HOURS":  &c.CooldownHours,
		"TERMINAL_MAX_SIGMA":       &c.Engine.MaxSigma,
		"TERMINAL_UCB_EXPLORATION": &c.Engine.UCBExploration,
		"TERMINAL_HALF_LIFE_DAYS":  &c.Learner.HalfLifeDays,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	if v := os.Getenv("TERMINAL_MIN_UPDATES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TERMINAL_MIN_UPDATES: %w", err)
		}
		c.Engine.MinUpdates = n
	}
	if v := os.Getenv("TERMINAL_LEVELS"); v != "" {
		c.Schedule.Levels = strings.Split(v, ",")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Engine.Strategy == "" {
		c.Engine.Strategy = "threshold"
	}
	if c.Engine.MaxSigma == 0 {
		c.Engine.MaxSigma = strategy.DefaultMaxSigma
	}
	if c.Engine.UCBExploration == 0 {
		c.Engine.UCBExploration = strategy.DefaultExploration
	}
	if c.Engine.PolicyVersion == "" {
		c.Engine.PolicyVersion = "terminal-v1"
	}
	if c.CooldownHours == 0 {
		c.CooldownHours = 24
	}
	if c.Learner.HalfLifeDays == 0 {
		c.Learner.HalfLifeDays = learner.DefaultHalfLifeDays
	}
	if c.Learner.Cutoff == "" {
		c.Learner.Cutoff = "05:00"
	}
	if c.Learner.Timezone == "" {
		c.Learner.Timezone = "Local"
	}
	if c.State.PolicyFile == "" {
		c.State.PolicyFile = "data/policy_state.json"
	}
	if c.State.CooldownFile == "" {
		c.State.CooldownFile = "data/cooldowns.json"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/terminal.db"
	}
	if c.Schedule.SuggestCron == "" {
		c.Schedule.SuggestCron = "0 30 6 * * *"
	}
	if c.Schedule.LearnCron == "" {
		c.Schedule.LearnCron = "0 15 5 * * *"
	}
	if c.Schedule.PruneCron == "" {
		c.Schedule.PruneCron = "0 0 4 * * 1"
	}
	if len(c.Schedule.Levels) == 0 {
		c.Schedule.Levels = []string{string(model.LevelAdset)}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all settings are usable. Telegram and the snapshot
// source are optional; without a source the service only answers previews.
func (c *Config) Validate() error {
	if _, err := strategy.Parse(c.Engine.Strategy, c.Engine.UCBExploration); err != nil {
		return fmt.Errorf("engine.strategy: %w", err)
	}
	if c.Engine.MinUpdates < 0 {
		return fmt.Errorf("engine.min_updates must not be negative")
	}
	if c.Engine.MaxSigma <= 0 {
		return fmt.Errorf("engine.max_sigma must be positive")
	}
	if c.CooldownHours < 0 {
		return fmt.Errorf("cooldown_hours must not be negative")
	}
	if c.Learner.HalfLifeDays <= 0 {
		return fmt.Errorf("learner.half_life_days must be positive")
	}
	if _, err := learner.ParseCutoff(c.Learner.Cutoff); err != nil {
		return fmt.Errorf("learner.cutoff: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("learner.timezone: %w", err)
	}
	if c.LanesFile == "" {
		if _, err := policy.Merge(c.Lanes); err != nil {
			return fmt.Errorf("lanes: %w", err)
		}
	}
	if _, err := c.Levels(); err != nil {
		return fmt.Errorf("schedule.levels: %w", err)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// CooldownSpacing is the configured cooldown as a duration.
func (c *Config) CooldownSpacing() time.Duration {
	return time.Duration(c.CooldownHours * float64(time.Hour))
}

// Location resolves learner.timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Learner.Timezone)
}

// Levels parses schedule.levels.
func (c *Config) Levels() ([]model.Level, error) {
	out := make([]model.Level, 0, len(c.Schedule.Levels))
	for _, s := range c.Schedule.Levels {
		lv, ok := model.ParseLevel(strings.TrimSpace(s))
		if !ok {
			return nil, fmt.Errorf("unknown level %q", s)
		}
		out = append(out, lv)
	}
	return out, nil
}

// TelegramEnabled reports whether notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
