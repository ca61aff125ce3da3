package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zulandar/switchboard/internal/logger"
)

// SessionFiles deletes the agent's on-disk transcripts for a continuation
// token. The agent names its session files after the token.
type SessionFiles struct {
	Dir    string
	Logger *logger.Logger
}

// Clean removes every regular file under Dir whose name contains token.
// A missing directory is not an error.
func (s *SessionFiles) Clean(ctx context.Context, token string) error {
	if s.Dir == "" {
		return nil
	}
	token = strings.TrimSpace(token)
	if len(token) < 8 || strings.ContainsAny(token, `/\`) {
		return fmt.Errorf("agent: refusing to clean artifacts for token %q", token)
	}

	removed := 0
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.Type().IsRegular() && strings.Contains(d.Name(), token) {
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("agent: clean artifacts for %s: %w", token, err)
	}
	if removed > 0 {
		logger.OrNop(s.Logger).Info("agent artifacts removed", "component", "agent", "token", token, "files", removed)
	}
	return nil
}
