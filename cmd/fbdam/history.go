package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foodbank-alloc/fbdam/internal/runstore"
)

func (a *app) historyCommand() *cobra.Command {
	var opts runstore.ListOptions
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long:  "Lists runs recorded in the run store, newest first. Requires run_store to be set.",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(true)
			if err != nil {
				return err
			}
			records, err := store.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSCENARIO\tSOLVER\tSTATUS\tFEASIBLE\tOBJECTIVE\tELAPSED\tSTARTED")
			for _, r := range records {
				objective := "-"
				if r.Objective != nil {
					objective = fmt.Sprintf("%.5g", *r.Objective)
				}
				status := r.Status
				if status == "" {
					status = "not solved"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%.3fs\t%s\n",
					r.Name, r.Scenario, r.Solver, status, r.Feasible, objective,
					r.ElapsedSeconds, r.StartedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "only runs of this scenario")
	cmd.Flags().IntVar(&opts.Limit, "limit", runstore.DefaultListLimit, "maximum number of runs")
	cmd.AddCommand(a.historyShowCommand())
	return cmd
}

func (a *app) historyShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN",
		Short: "Print a recorded run report as JSON",
		Long:  "RUN is a run name (scenario_YYYYMMDDTHHMMSSZ) or run UID.",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(true)
			if err != nil {
				return err
			}
			r, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		},
	}
}
