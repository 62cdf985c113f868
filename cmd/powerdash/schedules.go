package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bher20/powerdash/internal/tariff"
)

func newSchedulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Inspect and import tariff schedules",
	}
	cmd.AddCommand(newSchedulesListCmd(), newSchedulesExportCmd(), newImportYAMLCmd(), newImportPDFCmd(), newSchedulesDeleteCmd())
	return cmd
}

func newSchedulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tCURRENCY\tSLABS")
			for _, s := range a.catalog.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Key, s.Name, s.Currency, s.Describe())
			}
			return tw.Flush()
		},
	}
}

func newSchedulesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print every schedule in the schedules file layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := tariff.MarshalSchedulesYAML(a.catalog.List())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newImportYAMLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-yaml <file>",
		Short: "Store the schedules listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := tariff.LoadSchedulesYAML(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, s := range list {
				if err := a.catalog.Put(cmd.Context(), s); err != nil {
					return fmt.Errorf("schedule %q: %w", s.Key, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s: %s\n", s.Key, s.Describe())
			}
			return nil
		},
	}
}

func newImportPDFCmd() *cobra.Command {
	var key, name string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import-pdf <file>",
		Short: "Extract a slab table from a tariff PDF and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := tariff.ParseSchedulePDF(args[0], key, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", sched.Key, sched.Describe())
			if dryRun {
				return nil
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.catalog.Put(cmd.Context(), *sched)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "schedule key")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the parsed schedule without storing it")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newSchedulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			found, err := a.catalog.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s", tariff.ErrUnknownSchedule, args[0])
			}
			return nil
		},
	}
}
