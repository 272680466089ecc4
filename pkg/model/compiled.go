package model

import (
	"math"

	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/core"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// Compiled is the output of Builder.Build. It is not modified after Build returns.
type Compiled struct {
	LP       *lp.Model
	Domain   *core.Domain
	Scenario *config.Scenario
	Vars     *Variables
	Exprs    *Expressions
	// Active lists constraint ids in application order, implicit ones included.
	Active    []string
	Objective config.MaterializedObjective
}

// Stats reports the model size.
func (c *Compiled) Stats() lp.Stats {
	return c.LP.Stats()
}

// Canonicalize returns a copy of values in which every deviation pair has at
// most one positive member: D+ and D- become max(0, D+ - D-) and max(0, D- - D+).
// The identity and every cap still hold for the result.
func (c *Compiled) Canonicalize(values map[string]*float64) map[string]*float64 {
	out := make(map[string]*float64, len(values))
	for k, v := range values {
		out[k] = v
	}
	if !c.Vars.Equity() {
		return out
	}
	for i := range c.Vars.DevPlus {
		for h := range c.Vars.DevPlus[i] {
			pName := c.LP.Vars[c.Vars.DevPlus[i][h]].Name
			mName := c.LP.Vars[c.Vars.DevMinus[i][h]].Name
			plus, minus := out[pName], out[mName]
			if plus == nil || minus == nil {
				continue
			}
			net := *plus - *minus
			p, m := math.Max(0, net), math.Max(0, -net)
			out[pName], out[mName] = &p, &m
		}
	}
	return out
}
