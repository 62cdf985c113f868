package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bher20/powerdash/internal/tariff"
)

func newCostCmd() *cobra.Command {
	var scheduleKey string
	cmd := &cobra.Command{
		Use:   "cost <kwh>",
		Short: "Price a consumption against a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kwh, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("%w: kwh %q is not a number", tariff.ErrInvalidInput, args[0])
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := a.catalog.Get(keyOrDefault(scheduleKey, a.cfg.DefaultSchedule))
			if err != nil {
				return err
			}
			cost, err := tariff.CalculateCost(sched, kwh)
			if err != nil {
				return err
			}
			breakdown, err := tariff.Breakdown(sched, kwh)
			if err != nil {
				return err
			}
			return printCost(cmd.OutOrStdout(), sched, kwh, cost, breakdown)
		},
	}
	cmd.Flags().StringVarP(&scheduleKey, "schedule", "s", "", "schedule key (default from config)")
	return cmd
}

func newEstimateCmd() *cobra.Command {
	var (
		scheduleKey string
		watts       float64
		hours       float64
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate a daily cost from a power reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("hours") {
				hours = a.cfg.TodayEstimateHours
			}
			sched, err := a.catalog.Get(keyOrDefault(scheduleKey, a.cfg.DefaultSchedule))
			if err != nil {
				return err
			}
			cost, err := tariff.EstimateDailyCostFromPower(watts, hours, sched)
			if err != nil {
				return err
			}
			kwh, _ := tariff.EstimateKWh(watts, hours)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %gW over %gh = %s kWh, estimated cost %s %s\n",
				sched.Key, watts, hours, strconv.FormatFloat(kwh, 'f', 2, 64), tariff.FormatCost(cost), sched.Currency)
			return nil
		},
	}
	cmd.Flags().StringVarP(&scheduleKey, "schedule", "s", "", "schedule key (default from config)")
	cmd.Flags().Float64VarP(&watts, "watts", "w", 0, "instantaneous power in watts")
	cmd.Flags().Float64Var(&hours, "hours", 0, "assumed hours of use (default today_estimate_hours)")
	_ = cmd.MarkFlagRequired("watts")
	return cmd
}

func newTodayCmd() *cobra.Command {
	var scheduleKey string
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Fetch the latest telemetry and print today's cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.billing.TodayCost(cmd.Context(), scheduleKey)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s kWh (%s via %s), cost %s\n",
				res.Schedule, strconv.FormatFloat(res.KWh, 'f', 2, 64), res.Method, res.Source, res.Display)
			if res.Estimated {
				fmt.Fprintf(out, "estimated from instantaneous power over %gh\n", res.AssumedHours)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&scheduleKey, "schedule", "s", "", "schedule key (default from config)")
	return cmd
}

func keyOrDefault(key, def string) string {
	if key == "" {
		return def
	}
	return key
}

func printCost(w io.Writer, sched tariff.Schedule, kwh, cost float64, breakdown []tariff.SlabCharge) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLAB\tFROM\tTO\tUNITS\tRATE\tCHARGE")
	for _, c := range breakdown {
		to := "-"
		if !math.IsInf(c.To, 1) {
			to = strconv.FormatFloat(c.To, 'f', -1, 64)
		}
		fmt.Fprintf(tw, "%d\t%g\t%s\t%g\t%g\t%s\n", c.Index+1, c.From, to, c.Units, c.Rate, tariff.FormatCost(c.Charge))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s: %g kWh = %s %s\n", sched.Key, kwh, tariff.FormatCost(cost), sched.Currency)
	return err
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the meters the telemetry backend knows about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			devices, err := a.client.Devices(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tONLINE")
			for _, d := range devices {
				fmt.Fprintf(tw, "%s\t%s\t%t\n", d.ID, d.Name, d.Online)
			}
			return tw.Flush()
		},
	}
}
