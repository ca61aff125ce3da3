// Package config provides YAML-based configuration loading for switchboard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level switchboard configuration, loaded from switchboard.yaml.
type Config struct {
	ChatID      string            `yaml:"chat_id"`
	Database    DatabaseConfig    `yaml:"database"`
	Agent       AgentConfig       `yaml:"agent"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Queue       QueueConfig       `yaml:"queue"`
	Web         WebConfig         `yaml:"web"`
	Bot         BotConfig         `yaml:"bot"`
	Redis       RedisConfig       `yaml:"redis"`
	Notify      NotifyConfig      `yaml:"notify"`
	Log         LogConfig         `yaml:"log"`
	CrashReview CrashReviewConfig `yaml:"crash_review"`
}

// DatabaseConfig selects the storage engine. Path is used by sqlite; the
// host/port/user fields by mysql and postgres.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// AgentConfig describes how the external agent CLI is invoked.
type AgentConfig struct {
	Command             string            `yaml:"command"`
	Args                []string          `yaml:"args"`
	ReasoningEffortArgs []string          `yaml:"reasoning_effort_args"`
	TimeoutSec          int               `yaml:"timeout_sec"`
	WorkDir             string            `yaml:"workdir"`
	Env                 map[string]string `yaml:"env"`
	SessionsDir         string            `yaml:"sessions_dir"`
	PlanPrefix          string            `yaml:"plan_prefix"`
}

// SchedulerConfig controls the cron poller.
type SchedulerConfig struct {
	Enabled         *bool  `yaml:"enabled"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
	DefaultTimezone string `yaml:"default_timezone"`
}

// QueueConfig controls the async prompt queue.
type QueueConfig struct {
	Concurrency     int `yaml:"concurrency"`
	MaxRows         int `yaml:"max_rows"`
	PollIntervalSec int `yaml:"poll_interval_sec"`
}

// WebConfig controls the HTTP front-end.
type WebConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// BotConfig selects and configures the chat bot front-end.
type BotConfig struct {
	Platform string        `yaml:"platform"` // "slack", "discord", or empty to disable
	Channel  string        `yaml:"channel"`
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack app credentials for Socket Mode.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// RedisConfig enables cross-process fan-out of queued job events.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// NotifyConfig controls scheduled-job outcome notifications.
type NotifyConfig struct {
	Command string `yaml:"command"` // shell template, e.g. "notify-send sb '{{.Message}}'"
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Mode string `yaml:"mode"` // "dev" or "prod"
}

// CrashReviewConfig enables the startup crash-log review hook.
type CrashReviewConfig struct {
	LogPath  string `yaml:"log_path"`
	ChatID   string `yaml:"chat_id"`
	Target   string `yaml:"target"`
	MaxBytes int    `yaml:"max_bytes"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets a few deployment-specific values be overridden without
// editing the file.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("SB_DB_PATH")); v != "" {
		c.Database.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("SB_LOG_MODE")); v != "" {
		c.Log.Mode = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.ChatID == "" {
		c.ChatID = "local"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = defaultDataPath("switchboard.db")
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "mysql":
			c.Database.Port = 3306
		case "postgres":
			c.Database.Port = 5432
		}
	}
	if c.Database.Name == "" {
		c.Database.Name = "switchboard"
	}

	if c.Agent.Command == "" {
		c.Agent.Command = "codex"
	}
	if len(c.Agent.Args) == 0 {
		c.Agent.Args = []string{"exec", "--skip-git-repo-check", "{prompt}"}
	}
	if c.Agent.ReasoningEffortArgs == nil {
		c.Agent.ReasoningEffortArgs = []string{"-c", "model_reasoning_effort={reasoning_effort}"}
	}
	if c.Agent.TimeoutSec == 0 {
		c.Agent.TimeoutSec = 600
	}
	if c.Agent.PlanPrefix == "" {
		c.Agent.PlanPrefix = "Plan mode: describe the steps you would take and do not modify any files.\n\n"
	}

	if c.Scheduler.Enabled == nil {
		enabled := true
		c.Scheduler.Enabled = &enabled
	}
	if c.Scheduler.PollIntervalSec == 0 {
		c.Scheduler.PollIntervalSec = 30
	}

	if c.Queue.Concurrency == 0 {
		c.Queue.Concurrency = 2
	}
	if c.Queue.MaxRows == 0 {
		c.Queue.MaxRows = 500
	}
	if c.Queue.PollIntervalSec == 0 {
		c.Queue.PollIntervalSec = 5
	}

	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		c.Redis.Channel = "switchboard:jobs"
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "dev"
	}
	if c.CrashReview.LogPath != "" {
		if c.CrashReview.ChatID == "" {
			c.CrashReview.ChatID = c.ChatID
		}
		if c.CrashReview.Target == "" {
			c.CrashReview.Target = "Z"
		}
		if c.CrashReview.MaxBytes == 0 {
			c.CrashReview.MaxBytes = 16 * 1024
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Database.Driver {
	case "sqlite":
	case "mysql", "postgres":
		if c.Database.User == "" {
			errs = append(errs, "database.user is required for "+c.Database.Driver)
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql, postgres)", c.Database.Driver))
	}

	if c.Agent.TimeoutSec < 0 {
		errs = append(errs, "agent.timeout_sec must not be negative")
	}
	if c.Scheduler.PollIntervalSec < 0 {
		errs = append(errs, "scheduler.poll_interval_sec must not be negative")
	}
	if c.Queue.Concurrency < 0 {
		errs = append(errs, "queue.concurrency must not be negative")
	}
	if c.Queue.MaxRows < 0 {
		errs = append(errs, "queue.max_rows must not be negative")
	}

	switch c.Bot.Platform {
	case "":
	case "slack":
		if c.Bot.Slack.AppToken == "" {
			errs = append(errs, "bot.slack.app_token is required")
		}
		if c.Bot.Slack.BotToken == "" {
			errs = append(errs, "bot.slack.bot_token is required")
		}
	case "discord":
		if c.Bot.Discord.BotToken == "" {
			errs = append(errs, "bot.discord.bot_token is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("bot.platform %q is not supported (slack, discord)", c.Bot.Platform))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SchedulerEnabled reports whether the cron poller should run.
func (c *Config) SchedulerEnabled() bool {
	return c.Scheduler.Enabled == nil || *c.Scheduler.Enabled
}

// defaultDataPath returns ~/.switchboard/<name>, falling back to the
// working directory when the home directory is unknown.
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".switchboard", name)
}
