package model

import (
	"fmt"

	"github.com/foodbank-alloc/fbdam/pkg/config"
)

// applySumUtility sets weight·Σ Utility − λ·Slack. The penalty is present only
// when the slack column exists and lambda is declared.
func applySumUtility(bc *BuildContext, obj config.MaterializedObjective) error {
	weight, ok, err := obj.Params.Float(ParamWeight)
	if err != nil {
		return fmt.Errorf("objective %q: %w", obj.ID, err)
	}
	if !ok {
		weight = 1
	}
	expr := bc.Exprs.TotalUtility.Scale(weight)
	if bc.Vars.HasSlack() && bc.Scenario.Lambda != nil {
		expr = expr.AddTerm(bc.Vars.Slack, -*bc.Scenario.Lambda)
	}
	sense, err := config.ParseSense(string(obj.Sense))
	if err != nil {
		return err
	}
	return bc.Model.SetObjective(expr, sense == config.Maximize)
}
