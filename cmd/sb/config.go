package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/app"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/logger"
)

const defaultConfigPath = "switchboard.yaml"

// loadConfig reads path. A missing file at the default path yields the
// built-in defaults so sb works without any setup.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
		return config.Parse(nil)
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// openApp builds the application for one command. verbose selects the
// configured logger; short-lived commands stay quiet. Tests override it.
var openApp = func(configPath string, verbose bool) (*app.App, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.Nop()
	if verbose {
		if log, err = logger.New(cfg.Log.Mode); err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
	}
	return app.New(app.Opts{Config: cfg, Logger: log})
}

// chatFlags holds the flags shared by commands that act on one chat.
type chatFlags struct {
	configPath string
	chatID     string
}

func (f *chatFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "path to switchboard config file")
	cmd.Flags().StringVar(&f.chatID, "chat", "", "chat id (default: chat_id from config)")
}

// chat returns the chat id to act on.
func (f *chatFlags) chat(a *app.App) string {
	if f.chatID != "" {
		return f.chatID
	}
	return a.Config.ChatID
}
