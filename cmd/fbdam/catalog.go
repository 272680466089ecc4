package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foodbank-alloc/fbdam/internal/scenario"
	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/model"
)

func (a *app) catalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the packaged constraints and objectives",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(*cobra.Command, []string) error {
			cat, err := scenario.Catalog()
			if err != nil {
				return err
			}
			reg := model.DefaultRegistry()

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CONSTRAINT\tFAMILY\tDEFAULTS\tDESCRIPTION")
			for _, id := range cat.ConstraintIDs() {
				c := cat.Constraints[id]
				desc := c.Description
				if h, ok := reg.Constraint(id); ok && desc == "" {
					desc = h.Description
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, c.Family, formatParams(config.DeepMerge(c.Params, c.DialDefaults)), desc)
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "OBJECTIVE\tSENSE\tDEFAULTS\tDESCRIPTION")
			for _, id := range cat.ObjectiveIDs() {
				o := cat.Objectives[id]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, o.Sense, formatParams(o.Params), o.Name)
			}
			return tw.Flush()
		},
		Annotations: map[string]string{skipSetup: "true"},
	}
}

func formatParams(p config.Params) string {
	if len(p) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, ",")
}
