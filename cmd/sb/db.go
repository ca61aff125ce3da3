package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the switchboard tables",
		Long:  "Migrates every table and repairs session slots, counters and active pointers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to switchboard config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	a, err := openApp(configPath, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := db.AutoMigrate(a.DB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	rep, err := a.Sessions.Init(cmd.Context())
	if err != nil {
		return err
	}
	if rep.Changed() {
		fmt.Fprintf(out, "Repaired sessions: %d evicted, %d slots reassigned, %d pointers repaired, %d pointers deleted\n",
			rep.Evicted, rep.Reassigned, rep.PointersRepaired, rep.PointersDeleted)
	}
	return nil
}
