package solver

import (
	"math"

	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// Result is the normalized outcome of one solve. It is not modified after
// the Adapter returns it; WithVariables returns a copy.
type Result struct {
	Solver         string              `json:"solver"`
	ElapsedSeconds float64             `json:"elapsed_seconds"`
	Termination    string              `json:"termination"`
	Status         string              `json:"status"`
	State          State               `json:"state"`
	IsFeasible     bool                `json:"is_feasible"`
	ObjectiveValue *float64            `json:"objective_value"`
	BestBound      *float64            `json:"best_bound"`
	Gap            *float64            `json:"gap"`
	Variables      map[string]*float64 `json:"variables"`
	ErrorMessage   string              `json:"error_message,omitempty"`
}

// WithVariables returns a copy of r holding vars.
func (r *Result) WithVariables(vars map[string]*float64) *Result {
	out := *r
	out.Variables = vars
	return &out
}

// Value returns the value of the named variable, or nil.
func (r *Result) Value(name string) *float64 {
	return r.Variables[name]
}

// ValueOrNone evaluates expr against values keyed by variable name. It returns
// nil when any referenced variable is missing, nil or not finite, or when the
// result is not finite.
func ValueOrNone(m *lp.Model, expr lp.Expr, values map[string]*float64) *float64 {
	s := expr.Constant
	for _, t := range expr.Terms {
		if t.Var < 0 || t.Var >= len(m.Vars) {
			return nil
		}
		v := values[m.Vars[t.Var].Name]
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			return nil
		}
		s += t.Coef * *v
	}
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return nil
	}
	return &s
}

func finitePtr(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}
