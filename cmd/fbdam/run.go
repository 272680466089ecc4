package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/foodbank-alloc/fbdam/api/v1alpha1"
	"github.com/foodbank-alloc/fbdam/internal/optimizer"
	"github.com/foodbank-alloc/fbdam/internal/scenario"
)

func (a *app) runCommand() *cobra.Command {
	var noReport bool
	cmd := &cobra.Command{
		Use:   "run SCENARIO",
		Short: "Compile and solve one scenario",
		Long: `Loads the scenario file and its dataset, compiles the allocation model, solves
it and writes a RunReport to the output directory. An infeasible scenario
is reported, not treated as a failure.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			report, runErr := p.Run(cmd.Context(), l)
			path := ""
			if !noReport {
				if path, err = optimizer.WriteReport(a.settings.OutputDir, report); err != nil {
					return err
				}
			}
			printSummary(a.out, report, path)
			return runErr
		},
	}
	cmd.Flags().BoolVar(&noReport, "no-report", false, "do not write the run report file")
	return cmd
}

func printSummary(w io.Writer, r *v1alpha1.RunReport, path string) {
	status, objective := "not solved", "-"
	if res := r.Status.Result; res != nil {
		status = res.Status
		if res.ObjectiveValue != nil {
			objective = fmt.Sprintf("%.5g", *res.ObjectiveValue)
		}
	}
	fmt.Fprintf(w, "%s\tstatus=%s\tfeasible=%t\tobjective=%s", r.Name, status, r.Feasible(), objective)
	if path != "" {
		fmt.Fprintf(w, "\treport=%s", path)
	}
	fmt.Fprintln(w)
}
