package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/models"
)

func TestAskCmd_RunsActiveSession(t *testing.T) {
	useTestApp(t)
	out, err := runCmd(t, nil, "ask", "hello", "there")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out, "echo: hello there") {
		t.Errorf("ask output = %q", out)
	}
	if !strings.Contains(out, "thinking") {
		t.Errorf("expected stderr progress in output, got %q", out)
	}
}

func TestAskCmd_Target(t *testing.T) {
	a := useTestApp(t)
	if _, err := runCmd(t, nil, "ask", "-t", "D", "on d"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	list, err := a.Sessions.List(context.Background(), "cli")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Slot != "D" {
		t.Errorf("sessions = %+v", list)
	}
}

func TestAskCmd_Async(t *testing.T) {
	a := useTestApp(t)
	out, err := runCmd(t, nil, "ask", "--async", "later")
	if err != nil {
		t.Fatalf("ask --async: %v", err)
	}
	if !strings.Contains(out, "Queued job") {
		t.Errorf("ask --async output = %q", out)
	}
	jobs, err := a.Queue.List(context.Background(), "cli", 10)
	if err != nil {
		t.Fatalf("Queue.List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Prompt != "later" || jobs[0].SessionSlot != "A" {
		t.Errorf("queued = %+v", jobs)
	}
}

func TestAskCmd_AsyncDrainRunsQueuedJob(t *testing.T) {
	a := useTestApp(t)
	out, err := runCmd(t, nil, "ask", "--async", "--drain", "now please")
	if err != nil {
		t.Fatalf("ask --async --drain: %v", err)
	}
	if !strings.Contains(out, "Ran 1 job(s)") || !strings.Contains(out, "completed") {
		t.Errorf("drain summary missing: %q", out)
	}
	if !strings.Contains(out, "echo: now please") {
		t.Errorf("job output missing: %q", out)
	}
	jobs, err := a.Queue.List(context.Background(), "cli", 10)
	if err != nil {
		t.Fatalf("Queue.List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != models.QueueStatusCompleted {
		t.Errorf("queued = %+v", jobs)
	}
}

func TestAskCmd_DrainRequiresAsync(t *testing.T) {
	useTestApp(t)
	if _, err := runCmd(t, nil, "ask", "--drain", "x"); err == nil {
		t.Fatal("expected --drain without --async to fail")
	}
}

func TestTerminalCmd(t *testing.T) {
	useTestApp(t)
	in := strings.NewReader("hi\n/sessions\nexit\n")
	out, err := runCmd(t, in, "terminal", "--history", filepath.Join(t.TempDir(), "history"))
	if err != nil {
		t.Fatalf("terminal: %v", err)
	}
	if !strings.Contains(out, "echo: hi") {
		t.Errorf("terminal output = %q", out)
	}
	if !strings.Contains(out, "Sessions** (1)") {
		t.Errorf("expected /sessions reply, got %q", out)
	}
}

func TestDBMigrateCmd(t *testing.T) {
	useTestApp(t)
	out, err := runCmd(t, nil, "db", "migrate")
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "Migrated") {
		t.Errorf("db migrate output = %q", out)
	}
}
