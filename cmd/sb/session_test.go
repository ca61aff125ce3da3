package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/models"
)

func TestSessionCmds_NewUseList(t *testing.T) {
	a := useTestApp(t)

	for i := 0; i < 2; i++ {
		out, err := runCmd(t, nil, "session", "new")
		if err != nil {
			t.Fatalf("session new: %v", err)
		}
		if !strings.Contains(out, "Created slot") {
			t.Errorf("session new output = %q", out)
		}
	}

	out, err := runCmd(t, nil, "session", "use", "a")
	if err != nil {
		t.Fatalf("session use: %v", err)
	}
	if !strings.Contains(out, "Active: slot A") {
		t.Errorf("session use output = %q", out)
	}

	active, err := a.Sessions.Active(context.Background(), "cli", models.ChannelTerminal)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Slot != "A" {
		t.Errorf("active slot = %q, want A", active.Slot)
	}

	out, err = runCmd(t, nil, "session", "list")
	if err != nil {
		t.Fatalf("session list: %v", err)
	}
	if !strings.Contains(out, "Sessions** (2)") || !strings.Contains(out, "* A") {
		t.Errorf("session list output = %q", out)
	}
}

func TestSessionCmds_UseUnknownTarget(t *testing.T) {
	useTestApp(t)
	if _, err := runCmd(t, nil, "session", "new"); err != nil {
		t.Fatalf("session new: %v", err)
	}
	if _, err := runCmd(t, nil, "session", "use", "no-such-session"); err == nil {
		t.Error("expected error for an unknown id prefix")
	}
}

func TestSessionCmds_History(t *testing.T) {
	useTestApp(t)
	if _, err := runCmd(t, nil, "ask", "first prompt"); err != nil {
		t.Fatalf("ask: %v", err)
	}

	out, err := runCmd(t, nil, "session", "history")
	if err != nil {
		t.Fatalf("session history: %v", err)
	}
	if !strings.Contains(out, "History") || !strings.Contains(out, "first prompt") {
		t.Errorf("history output = %q", out)
	}

	out, err = runCmd(t, nil, "session", "history", "A", "-n", "1")
	if err != nil {
		t.Fatalf("session history A: %v", err)
	}
	if !strings.Contains(out, "(1)") {
		t.Errorf("history output = %q", out)
	}
}

func TestSessionCmds_BindExportImport(t *testing.T) {
	a := useTestApp(t)

	out, err := runCmd(t, nil, "session", "bind", "c", "conv-123")
	if err != nil {
		t.Fatalf("session bind: %v", err)
	}
	if !strings.Contains(out, "Bound slot C") {
		t.Errorf("bind output = %q", out)
	}

	out, err = runCmd(t, nil, "session", "export")
	if err != nil {
		t.Fatalf("session export: %v", err)
	}
	if !strings.Contains(out, "conv-123") || !strings.Contains(out, "cli:") {
		t.Errorf("export output = %q", out)
	}

	file := filepath.Join(t.TempDir(), "bindings.yaml")
	doc := "other:\n  - slot: b\n    continuation_token: conv-456\n  - slot: \"?\"\n    continuation_token: bad\n"
	if err := os.WriteFile(file, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err = runCmd(t, nil, "session", "import", file)
	if err != nil {
		t.Fatalf("session import: %v", err)
	}
	if !strings.Contains(out, "Applied 1 binding(s), skipped 1 (chats: other)") {
		t.Errorf("import output = %q", out)
	}

	list, err := a.Sessions.List(context.Background(), "other")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Slot != "B" || list[0].Token() != "conv-456" {
		t.Errorf("imported sessions = %+v", list)
	}
}

func TestSessionCmds_ExportToFile(t *testing.T) {
	useTestApp(t)
	if _, err := runCmd(t, nil, "session", "bind", "a", "conv-1"); err != nil {
		t.Fatalf("session bind: %v", err)
	}
	file := filepath.Join(t.TempDir(), "out.yaml")
	out, err := runCmd(t, nil, "session", "export", "--all", "-o", file)
	if err != nil {
		t.Fatalf("session export: %v", err)
	}
	if !strings.Contains(out, "Exported 1 chat(s)") {
		t.Errorf("export output = %q", out)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "conv-1") {
		t.Errorf("export file = %q", data)
	}
}
