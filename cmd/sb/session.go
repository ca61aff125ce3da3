package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"s"},
		Short:   "Session management commands",
		Long:    "List, create, switch and bind the lettered sessions of a chat. The CLI acts on the terminal channel.",
	}

	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionNewCmd())
	cmd.AddCommand(newSessionUseCmd())
	cmd.AddCommand(newSessionHistoryCmd())
	cmd.AddCommand(newSessionBindCmd())
	cmd.AddCommand(newSessionExportCmd())
	cmd.AddCommand(newSessionImportCmd())
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the sessions of a chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(f.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			chatID := f.chat(a)
			list, err := a.Sessions.List(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			activeID := ""
			if s, err := a.Sessions.Active(cmd.Context(), chatID, models.ChannelTerminal); err == nil {
				activeID = s.ID
			}
			fmt.Fprintln(cmd.OutOrStdout(), command.FormatSessionTable(list, activeID))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newSessionNewCmd() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a session and make it active",
		Long:  "Allocates the next slot letter, evicting the slot's previous occupant when all 26 are in use.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(f.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Sessions.CreateAndActivate(cmd.Context(), f.chat(a), models.ChannelTerminal)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", command.FormatSession(s))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newSessionUseCmd() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "use <slot|id|prefix>",
		Short: "Switch the active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(f.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Sessions.SetActive(cmd.Context(), f.chat(a), args[0], models.ChannelTerminal)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active: %s\n", command.FormatSession(s))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newSessionHistoryCmd() *cobra.Command {
	var (
		f     chatFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history [slot|id|prefix]",
		Short: "Show recent runs of a session",
		Long:  "Shows the most recent runs of the given session, or of the active terminal session.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(f.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			chatID := f.chat(a)
			var s *models.Session
			if len(args) == 1 {
				id, err := a.Sessions.ResolveID(ctx, args[0], chatID)
				if err != nil {
					return err
				}
				if s, err = a.Sessions.Get(ctx, id); err != nil {
					return err
				}
			} else if s, err = a.Sessions.Active(ctx, chatID, models.ChannelTerminal); err != nil {
				return err
			}
			runs, err := a.Sessions.ListHistory(ctx, s.ID, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), command.FormatHistory(s, runs))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}

func newSessionBindCmd() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "bind <slot> <continuation-token>",
		Short: "Attach an existing agent conversation to a slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(f.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Sessions.BindContinuation(cmd.Context(), f.chat(a), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bound %s\n", command.FormatSession(s))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newSessionExportCmd() *cobra.Command {
	var (
		f      chatFlags
		all    bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export slot bindings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(f.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			chatID := f.chat(a)
			if all {
				chatID = ""
			}
			b, err := a.Sessions.ExportBindings(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			data, err := session.MarshalBindings(b)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d chat(s) to %s\n", len(b), output)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "export every chat")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newSessionImportCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Apply slot bindings from a YAML export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			b, err := session.ParseBindings(data)
			if err != nil {
				return err
			}

			a, err := openApp(configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Sessions.ImportBindings(cmd.Context(), b)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d binding(s), skipped %d (chats: %s)\n",
				res.Applied, res.Skipped, strings.Join(chatIDs(b), ", "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to switchboard config file")
	return cmd
}
