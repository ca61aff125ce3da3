package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullYAML = `
chat_id: ops
database:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  user: sb
  password: secret
  name: switchboard_ops

agent:
  command: /usr/local/bin/codex
  args: ["exec", "--json", "{prompt}"]
  timeout_sec: 120
  workdir: /srv/work
  env:
    CODEX_HOME: /srv/codex
  sessions_dir: /srv/codex/sessions

scheduler:
  enabled: false
  poll_interval_sec: 10
  default_timezone: Europe/Berlin

queue:
  concurrency: 4
  max_rows: 50

web:
  enabled: true
  port: 9090
  allowed_origins: ["https://sb.example.com"]

bot:
  platform: slack
  channel: C123
  slack:
    app_token: xapp-1
    bot_token: xoxb-1

redis:
  addr: 127.0.0.1:6379

log:
  mode: prod
`

const minimalYAML = `
chat_id: bob
`

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SB_DB_PATH", "")
	t.Setenv("SB_LOG_MODE", "")
}

func TestParse_FullConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ChatID != "ops" {
		t.Errorf("ChatID = %q, want %q", cfg.ChatID, "ops")
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "mysql")
	}
	if cfg.Database.Port != 3307 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 3307)
	}
	if cfg.Database.Name != "switchboard_ops" {
		t.Errorf("Database.Name = %q, want %q", cfg.Database.Name, "switchboard_ops")
	}
	if cfg.Agent.Command != "/usr/local/bin/codex" {
		t.Errorf("Agent.Command = %q", cfg.Agent.Command)
	}
	if len(cfg.Agent.Args) != 3 || cfg.Agent.Args[1] != "--json" {
		t.Errorf("Agent.Args = %v", cfg.Agent.Args)
	}
	if cfg.Agent.TimeoutSec != 120 {
		t.Errorf("Agent.TimeoutSec = %d, want 120", cfg.Agent.TimeoutSec)
	}
	if cfg.Agent.Env["CODEX_HOME"] != "/srv/codex" {
		t.Errorf("Agent.Env = %v", cfg.Agent.Env)
	}
	if cfg.SchedulerEnabled() {
		t.Error("SchedulerEnabled() = true, want false")
	}
	if cfg.Scheduler.DefaultTimezone != "Europe/Berlin" {
		t.Errorf("Scheduler.DefaultTimezone = %q", cfg.Scheduler.DefaultTimezone)
	}
	if cfg.Queue.Concurrency != 4 {
		t.Errorf("Queue.Concurrency = %d, want 4", cfg.Queue.Concurrency)
	}
	if cfg.Queue.MaxRows != 50 {
		t.Errorf("Queue.MaxRows = %d, want 50", cfg.Queue.MaxRows)
	}
	if cfg.Web.Port != 9090 || !cfg.Web.Enabled {
		t.Errorf("Web = %+v", cfg.Web)
	}
	if cfg.Bot.Platform != "slack" || cfg.Bot.Slack.BotToken != "xoxb-1" {
		t.Errorf("Bot = %+v", cfg.Bot)
	}
	if cfg.Redis.Channel != "switchboard:jobs" {
		t.Errorf("Redis.Channel = %q, want default", cfg.Redis.Channel)
	}
	if cfg.Log.Mode != "prod" {
		t.Errorf("Log.Mode = %q, want prod", cfg.Log.Mode)
	}
}

func TestParse_MinimalConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if !strings.HasSuffix(cfg.Database.Path, "switchboard.db") {
		t.Errorf("Database.Path = %q, want default *.db", cfg.Database.Path)
	}
	if cfg.Agent.Command != "codex" {
		t.Errorf("Agent.Command = %q, want codex", cfg.Agent.Command)
	}
	if len(cfg.Agent.Args) == 0 || cfg.Agent.Args[0] != "exec" {
		t.Errorf("Agent.Args = %v, want default exec template", cfg.Agent.Args)
	}
	if cfg.Agent.TimeoutSec != 600 {
		t.Errorf("Agent.TimeoutSec = %d, want 600", cfg.Agent.TimeoutSec)
	}
	if !cfg.SchedulerEnabled() {
		t.Error("SchedulerEnabled() = false, want true by default")
	}
	if cfg.Scheduler.PollIntervalSec != 30 {
		t.Errorf("Scheduler.PollIntervalSec = %d, want 30", cfg.Scheduler.PollIntervalSec)
	}
	if cfg.Queue.Concurrency != 2 {
		t.Errorf("Queue.Concurrency = %d, want 2", cfg.Queue.Concurrency)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %d, want 8080", cfg.Web.Port)
	}
	if cfg.Redis.Channel != "" {
		t.Errorf("Redis.Channel = %q, want empty when redis is not configured", cfg.Redis.Channel)
	}
}

func TestParse_EmptyChatIDDefaultsToLocal(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChatID != "local" {
		t.Errorf("ChatID = %q, want local", cfg.ChatID)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("SB_DB_PATH", "/tmp/override.db")
	t.Setenv("SB_LOG_MODE", "prod")

	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Log.Mode != "prod" {
		t.Errorf("Log.Mode = %q, want prod", cfg.Log.Mode)
	}
}

func TestParse_CrashReviewDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("chat_id: me\ncrash_review:\n  log_path: /tmp/crash.log\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CrashReview.ChatID != "me" {
		t.Errorf("CrashReview.ChatID = %q, want me", cfg.CrashReview.ChatID)
	}
	if cfg.CrashReview.Target != "Z" {
		t.Errorf("CrashReview.Target = %q, want Z", cfg.CrashReview.Target)
	}
	if cfg.CrashReview.MaxBytes == 0 {
		t.Error("CrashReview.MaxBytes should default to a positive value")
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad driver", "database:\n  driver: oracle\n", "database.driver"},
		{"mysql without user", "database:\n  driver: mysql\n", "database.user is required"},
		{"slack tokens", "bot:\n  platform: slack\n", "bot.slack.app_token is required"},
		{"discord token", "bot:\n  platform: discord\n", "bot.discord.bot_token is required"},
		{"unknown platform", "bot:\n  platform: irc\n", "bot.platform"},
		{"negative concurrency", "queue:\n  concurrency: -1\n", "queue.concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("chat_id: [unterminated"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want config: parse prefix", err.Error())
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "switchboard.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChatID != "bob" {
		t.Errorf("ChatID = %q, want bob", cfg.ChatID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want config: read prefix", err.Error())
	}
}
