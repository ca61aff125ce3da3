package main

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestJobCmds_Lifecycle(t *testing.T) {
	a := useTestApp(t)

	out, err := runCmd(t, nil, "job", "add", "-t", "B", "--cron", "0 9 * * *", "daily", "report")
	if err != nil {
		t.Fatalf("job add: %v", err)
	}
	if !strings.Contains(out, "Added job") {
		t.Errorf("job add output = %q", out)
	}

	jobs, err := a.Schedules.List(context.Background(), "cli")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Prompt != "daily report" || jobs[0].SessionTarget != "B" {
		t.Fatalf("jobs = %+v", jobs)
	}
	id := jobs[0].ID

	out, err = runCmd(t, nil, "job", "list")
	if err != nil {
		t.Fatalf("job list: %v", err)
	}
	if !strings.Contains(out, id[:8]) || !strings.Contains(out, "daily report") {
		t.Errorf("job list output = %q", out)
	}

	if out, err = runCmd(t, nil, "job", "disable", id[:8]); err != nil {
		t.Fatalf("job disable: %v", err)
	}
	if !strings.Contains(out, "disabled") {
		t.Errorf("job disable output = %q", out)
	}
	if out, err = runCmd(t, nil, "job", "enable", id); err != nil {
		t.Fatalf("job enable: %v", err)
	}
	if !strings.Contains(out, "enabled") {
		t.Errorf("job enable output = %q", out)
	}

	if _, err = runCmd(t, nil, "job", "rm", id); err != nil {
		t.Fatalf("job rm: %v", err)
	}
	out, err = runCmd(t, nil, "job", "list")
	if err != nil {
		t.Fatalf("job list: %v", err)
	}
	if !strings.Contains(out, "No scheduled jobs.") {
		t.Errorf("job list after rm = %q", out)
	}
}

func TestJobCmds_AddRequiresFlags(t *testing.T) {
	useTestApp(t)
	if _, err := runCmd(t, nil, "job", "add", "--cron", "* * * * *", "x"); err == nil {
		t.Error("expected error without --target")
	}
	if _, err := runCmd(t, nil, "job", "add", "-t", "A", "--cron", "not cron", "x"); err == nil {
		t.Error("expected error for invalid cron")
	}
}

func TestJobCmds_Once(t *testing.T) {
	a := useTestApp(t)
	out, err := runCmd(t, nil, "job", "once", "-t", "A", "--in", "1h", "remind", "me")
	if err != nil {
		t.Fatalf("job once: %v", err)
	}
	if !strings.Contains(out, "Added one-shot job") {
		t.Errorf("job once output = %q", out)
	}
	jobs, err := a.Schedules.List(context.Background(), "cli")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || !jobs[0].RunOnce {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestOnceTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		at      string
		in      time.Duration
		want    time.Time
		wantErr bool
	}{
		{name: "at", at: "2026-03-02T08:00:00Z", want: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
		{name: "in", in: 90 * time.Minute, want: now.Add(90 * time.Minute)},
		{name: "neither", wantErr: true},
		{name: "both", at: "2026-03-02T08:00:00Z", in: time.Hour, wantErr: true},
		{name: "bad at", at: "tomorrow", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := onceTime(tt.at, tt.in, now)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("onceTime = %v, want %v", got, tt.want)
			}
		})
	}
}
