// Package kpi summarizes a solved allocation model.
package kpi

import (
	"math"

	"github.com/foodbank-alloc/fbdam/pkg/lp"
	"github.com/foodbank-alloc/fbdam/pkg/model"
	"github.com/foodbank-alloc/fbdam/pkg/solver"
)

// Feasibility labels.
const (
	Infeasible = "INFEASIBLE"
	Optimal    = "OPTIMAL"
	Feasible   = "FEASIBLE"
)

// Report groups the KPIs of one run. Only Basic is set for runs without a
// feasible solution.
type Report struct {
	Basic    Basic     `json:"basic"`
	Supply   *Supply   `json:"supply,omitempty"`
	Utility  *Utility  `json:"utility,omitempty"`
	Fairness *Fairness `json:"fairness,omitempty"`
	// Slack is nil when no adequacy floor is softened.
	Slack    *float64  `json:"slack,omitempty"`
}

type Basic struct {
	Items             int      `json:"items"`
	Households        int      `json:"households"`
	Nutrients         int      `json:"nutrients"`
	Objective         *float64 `json:"objective_value"`
	FeasibilityStatus string   `json:"feasibility_status"`
	Status            string   `json:"status"`
}

type Supply struct {
	TotalAllocation        *float64 `json:"total_allocation"`
	MeanAllocationPerHouse *float64 `json:"mean_allocation_per_household"`
	Undistributed          *float64 `json:"undistributed"`
	TotalPurchased         *float64 `json:"total_purchased"`
	TotalCost              *float64 `json:"total_cost"`
	// Utilization is allocated over available supply.
	Utilization            *float64 `json:"supply_utilization"`
}

type Utility struct {
	Total            *float64 `json:"total_nutritional_utility"`
	GlobalMean       *float64 `json:"global_mean_utility"`
	MinHouseholdMean *float64 `json:"min_mean_utility_per_household"`
	MaxHouseholdMean *float64 `json:"max_mean_utility_per_household"`
	MinNutrientMean  *float64 `json:"min_mean_utility_per_nutrient"`
	MaxNutrientMean  *float64 `json:"max_mean_utility_per_nutrient"`
	MinOverall       *float64 `json:"min_overall_utility"`
	MaxOverall       *float64 `json:"max_overall_utility"`
}

// Fairness reports absolute fair-share gaps |Allocation(i,h) - w_h·Avail(i)|.
type Fairness struct {
	GlobalMeanGap    *float64 `json:"global_mean_deviation_from_fair_share"`
	MinHouseholdMean *float64 `json:"min_mean_deviation_from_fair_share_per_household"`
	MaxHouseholdMean *float64 `json:"max_mean_deviation_from_fair_share_per_household"`
	MinItemMean      *float64 `json:"min_mean_deviation_from_fair_share_per_item"`
	MaxItemMean      *float64 `json:"max_mean_deviation_from_fair_share_per_item"`
	MinOverall       *float64 `json:"min_overall_deviation_from_fair_share"`
	MaxOverall       *float64 `json:"max_overall_deviation_from_fair_share"`
}

// Extract computes the report for res, which must come from solving c.LP.
func Extract(c *model.Compiled, res *solver.Result) Report {
	card := c.Domain.Cardinality()
	r := Report{Basic: Basic{
		Items:      card.Items,
		Households: card.Households,
		Nutrients:  card.Nutrients,
		Status:     res.Status,
	}}
	if !res.IsFeasible {
		r.Basic.FeasibilityStatus = Infeasible
		return r
	}
	r.Basic.FeasibilityStatus = Feasible
	if res.State == solver.StateOptimal {
		r.Basic.FeasibilityStatus = Optimal
	}
	r.Basic.Objective = round(res.ObjectiveValue)

	ev := evaluator{m: c.LP, values: res.Variables}
	e := c.Exprs

	allocated := ev.value(e.TotalAllocated)
	supply := ev.value(e.TotalSupply)
	r.Supply = &Supply{
		TotalAllocation:        round(allocated),
		MeanAllocationPerHouse: round(ratio(allocated, float64(card.Households))),
		Undistributed:          round(ev.value(e.Undistributed)),
		TotalPurchased:         round(ev.value(e.TotalPurchased)),
		TotalCost:              round(ev.value(e.TotalCost)),
	}
	if supply != nil {
		r.Supply.Utilization = round(ratio(allocated, *supply))
	}

	householdMeans := ev.valuesOf(e.MeanUtilityByHousehold)
	nutrientMeans := ev.valuesOf(e.MeanUtilityByNutrient)
	var utils []*float64
	for n := range c.Vars.Util {
		for h := range c.Vars.Util[n] {
			utils = append(utils, ev.value(lp.Variable(c.Vars.Util[n][h])))
		}
	}
	r.Utility = &Utility{
		Total:            round(ev.value(e.TotalUtility)),
		GlobalMean:       round(ev.value(e.GlobalMeanUtility)),
		MinHouseholdMean: round(minOf(householdMeans)),
		MaxHouseholdMean: round(maxOf(householdMeans)),
		MinNutrientMean:  round(minOf(nutrientMeans)),
		MaxNutrientMean:  round(maxOf(nutrientMeans)),
		MinOverall:       round(minOf(utils)),
		MaxOverall:       round(maxOf(utils)),
	}

	r.Fairness = fairness(ev, e.FairShareGap)

	if c.Vars.HasSlack() {
		r.Slack = round(ev.value(lp.Variable(c.Vars.Slack)))
	}
	return r
}

func fairness(ev evaluator, gaps [][]lp.Expr) *Fairness {
	if len(gaps) == 0 {
		return &Fairness{}
	}
	nItems, nHouseholds := len(gaps), len(gaps[0])
	abs := make([][]*float64, nItems)
	var all []*float64
	for i := range gaps {
		abs[i] = make([]*float64, nHouseholds)
		for h := range gaps[i] {
			if v := ev.value(gaps[i][h]); v != nil {
				a := math.Abs(*v)
				abs[i][h] = &a
			}
			all = append(all, abs[i][h])
		}
	}
	byItem := make([]*float64, nItems)
	for i := range abs {
		byItem[i] = mean(abs[i])
	}
	byHousehold := make([]*float64, nHouseholds)
	for h := 0; h < nHouseholds; h++ {
		col := make([]*float64, nItems)
		for i := range abs {
			col[i] = abs[i][h]
		}
		byHousehold[h] = mean(col)
	}
	return &Fairness{
		GlobalMeanGap:    round(mean(all)),
		MinHouseholdMean: round(minOf(byHousehold)),
		MaxHouseholdMean: round(maxOf(byHousehold)),
		MinItemMean:      round(minOf(byItem)),
		MaxItemMean:      round(maxOf(byItem)),
		MinOverall:       round(minOf(all)),
		MaxOverall:       round(maxOf(all)),
	}
}

type evaluator struct {
	m      *lp.Model
	values map[string]*float64
}

func (ev evaluator) value(e lp.Expr) *float64 {
	return solver.ValueOrNone(ev.m, e, ev.values)
}

func (ev evaluator) valuesOf(es []lp.Expr) []*float64 {
	out := make([]*float64, len(es))
	for i, e := range es {
		out[i] = ev.value(e)
	}
	return out
}

// mean is nil when any value is nil.
func mean(vs []*float64) *float64 {
	if len(vs) == 0 {
		return nil
	}
	var s float64
	for _, v := range vs {
		if v == nil {
			return nil
		}
		s += *v
	}
	s /= float64(len(vs))
	return &s
}

func minOf(vs []*float64) *float64 {
	var out *float64
	for _, v := range vs {
		if v != nil && (out == nil || *v < *out) {
			out = v
		}
	}
	return out
}

func maxOf(vs []*float64) *float64 {
	var out *float64
	for _, v := range vs {
		if v != nil && (out == nil || *v > *out) {
			out = v
		}
	}
	return out
}

func ratio(num *float64, den float64) *float64 {
	if num == nil || den == 0 {
		return nil
	}
	v := *num / den
	return &v
}

func round(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	r := math.Round(*v*1e5) / 1e5
	return &r
}
