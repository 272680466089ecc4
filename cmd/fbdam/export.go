package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foodbank-alloc/fbdam/internal/scenario"
)

func (a *app) exportCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export SCENARIO",
		Short: "Write the compiled model in MPS format",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			l, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			p, err := a.pipeline()
			if err != nil {
				return err
			}

			w := a.out
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}

			stats, err := p.Export(cmd.Context(), l, w)
			if err != nil {
				return err
			}
			if w != a.out {
				fmt.Fprintf(a.out, "wrote %s: %d variables (%d integer, %d binary), %d constraints, %d nonzeros\n",
					output, stats.Variables, stats.Integers, stats.Binaries, stats.Constraints, stats.Nonzeros)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
