package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bher20/powerdash/internal/config"
	"github.com/bher20/powerdash/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQL schema",
	}
	run := func(use, short string, fn func(cmd *cobra.Command, cfg config.Config) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				return fn(cmd, cfg)
			},
		}
	}
	cmd.AddCommand(
		run("up", "Apply all pending migrations", func(cmd *cobra.Command, cfg config.Config) error {
			return migrate.Up(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
		}),
		run("down", "Roll back the latest migration", func(cmd *cobra.Command, cfg config.Config) error {
			return migrate.Down(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
		}),
		run("status", "Print the state of every migration", func(cmd *cobra.Command, cfg config.Config) error {
			return migrate.Status(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
		}),
		run("version", "Print the current schema version", func(cmd *cobra.Command, cfg config.Config) error {
			v, err := migrate.Version(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		}),
	)
	return cmd
}
