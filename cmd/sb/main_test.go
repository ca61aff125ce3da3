package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/app"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
)

type echoInvoker struct{}

func (echoInvoker) Invoke(_ context.Context, req agent.Request) agent.Result {
	if req.OnStderr != nil {
		req.OnStderr([]byte("thinking\n"))
	}
	return agent.Result{Output: "echo: " + req.Prompt, ContinuationToken: "tok-" + req.SessionID}
}

// useTestApp points every command at one in-memory app.
func useTestApp(t *testing.T) *app.App {
	t.Helper()
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	cfg, err := config.Parse([]byte("chat_id: cli\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, err := app.New(app.Opts{Config: cfg, DB: gdb, Invoker: echoInvoker{}})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	orig := openApp
	openApp = func(string, bool) (*app.App, error) { return a, nil }
	t.Cleanup(func() { openApp = orig })
	return a
}

func runCmd(t *testing.T, in io.Reader, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	if in != nil {
		cmd.SetIn(in)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, nil, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "sb dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestRootCmd_Help(t *testing.T) {
	out, err := runCmd(t, nil, "--help")
	if err != nil {
		t.Fatalf("--help failed: %v", err)
	}
	for _, sub := range []string{"serve", "session", "job", "ask", "terminal", "db", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help to list %q, got: %s", sub, out)
		}
	}
}

func TestSessionCmd_Help(t *testing.T) {
	out, err := runCmd(t, nil, "session", "--help")
	if err != nil {
		t.Fatalf("session --help failed: %v", err)
	}
	for _, sub := range []string{"list", "new", "use", "history", "bind", "export", "import"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected session help to list %q, got: %s", sub, out)
		}
	}
}

func TestExecute_ReturnsExitCode(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"no-such-command"})
	if code := execute(cmd); code != 1 {
		t.Errorf("execute = %d, want 1", code)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("missing default config should load defaults: %v", err)
	}
	if cfg.ChatID != "local" {
		t.Errorf("ChatID = %q, want %q", cfg.ChatID, "local")
	}

	if _, err := loadConfig("elsewhere.yaml"); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}
