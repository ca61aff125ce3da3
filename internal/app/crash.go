package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zulandar/switchboard/internal/queue"
)

const crashReviewPrompt = "The previous switchboard process exited abnormally. " +
	"Review the end of its log below, identify the most likely cause and suggest a fix.\n\n"

// reviewCrashLog queues a review prompt when the configured crash log has
// content, then rotates the log so the same crash is reviewed once.
func (a *App) reviewCrashLog(ctx context.Context, pool *queue.Pool) error {
	cr := a.Config.CrashReview
	if cr.LogPath == "" {
		return nil
	}
	tail, err := readTail(cr.LogPath, cr.MaxBytes)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("crash review: %w", err)
	}
	if strings.TrimSpace(tail) == "" {
		return nil
	}

	s, err := a.Sessions.EnsureForTarget(ctx, cr.ChatID, cr.Target)
	if err != nil {
		return fmt.Errorf("crash review: %w", err)
	}
	job, err := pool.Submit(ctx, s, crashReviewPrompt+"```\n"+tail+"\n```")
	if err != nil {
		return fmt.Errorf("crash review: %w", err)
	}
	if err := os.Rename(cr.LogPath, cr.LogPath+".1"); err != nil {
		return fmt.Errorf("crash review: rotate: %w", err)
	}
	a.Log.Info("crash log queued for review", "job_id", job.ID, "session_id", s.ID, "log", cr.LogPath)
	return nil
}

// readTail returns at most max bytes from the end of path, starting at a
// line boundary when the file was cut.
func readTail(path string, max int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()
	offset := int64(0)
	if max > 0 && size > int64(max) {
		offset = size - int64(max)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	text := string(data)
	if offset > 0 {
		if i := strings.IndexByte(text, '\n'); i >= 0 && i < len(text)-1 {
			text = text[i+1:]
		}
	}
	return strings.TrimRight(text, "\n"), nil
}
