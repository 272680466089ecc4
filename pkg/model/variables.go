package model

import (
	"fmt"
	"math"

	"github.com/foodbank-alloc/fbdam/pkg/core"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// CostEpsilon keeps the big-M constant finite for zero-cost items.
const CostEpsilon = 1e-9

// Variables holds the column index of every decision variable.
type Variables struct {
	// Alloc is indexed [item][household].
	Alloc [][]int
	// Util is indexed [nutrient][household].
	Util [][]int
	// Purchase and PurchaseActive are indexed by item; nil when purchasing is disabled.
	Purchase       []int
	PurchaseActive []int
	// BigM is the activation constant M_i; nil when purchasing is disabled.
	BigM []float64
	// DevPlus and DevMinus are indexed [item][household]; nil when no equity constraint is active.
	DevPlus  [][]int
	DevMinus [][]int
	// Slack is -1 when no adequacy floor is softened.
	Slack int
}

// Purchasing reports whether purchase columns exist.
func (v *Variables) Purchasing() bool { return v.Purchase != nil }

// Equity reports whether deviation columns exist.
func (v *Variables) Equity() bool { return v.DevPlus != nil }

// HasSlack reports whether the shared slack column exists.
func (v *Variables) HasSlack() bool { return v.Slack >= 0 }

// BigM returns Budget/(cost+CostEpsilon), or zero for a non-positive budget.
func BigM(budget, cost float64) float64 {
	if budget <= 0 {
		return 0
	}
	return budget / (cost + CostEpsilon)
}

func buildVariables(m *lp.Model, d *core.Domain, p *plan) (*Variables, error) {
	items, nutrients, households := d.Items(), d.Nutrients(), d.Households()
	v := &Variables{Slack: -1}

	if p.purchasing {
		v.BigM = make([]float64, len(items))
		v.Purchase = make([]int, len(items))
		v.PurchaseActive = make([]int, len(items))
		for i, it := range items {
			v.BigM[i] = BigM(p.budget, it.Cost)
			idx, err := m.AddVar(Name(VarPurchase, it.ID), 0, v.BigM[i], lp.Continuous)
			if err != nil {
				return nil, err
			}
			v.Purchase[i] = idx
			if idx, err = m.AddVar(Name(VarPurchaseActive, it.ID), 0, 1, lp.Binary); err != nil {
				return nil, err
			}
			v.PurchaseActive[i] = idx
		}
	}

	allocKind := lp.Continuous
	if p.integerAllocation {
		allocKind = lp.Integer
	}
	v.Alloc = make([][]int, len(items))
	for i, it := range items {
		v.Alloc[i] = make([]int, len(households))
		for h, hh := range households {
			lower, upper := 0.0, it.Stock
			if v.Purchasing() {
				upper += v.BigM[i]
			}
			if b, ok := d.Bound(it.ID, hh.ID); ok {
				lower = b.Lower
				if b.Upper != nil && !math.IsInf(*b.Upper, 1) {
					upper = *b.Upper
				}
			}
			idx, err := m.AddVar(Name(VarAlloc, it.ID, hh.ID), lower, upper, allocKind)
			if err != nil {
				return nil, err
			}
			v.Alloc[i][h] = idx
		}
	}

	v.Util = make([][]int, len(nutrients))
	for n, nu := range nutrients {
		v.Util[n] = make([]int, len(households))
		for h, hh := range households {
			idx, err := m.AddVar(Name(VarUtil, nu.ID, hh.ID), 0, 1, lp.Continuous)
			if err != nil {
				return nil, err
			}
			v.Util[n][h] = idx
		}
	}

	if p.equity {
		v.DevPlus = make([][]int, len(items))
		v.DevMinus = make([][]int, len(items))
		for i, it := range items {
			v.DevPlus[i] = make([]int, len(households))
			v.DevMinus[i] = make([]int, len(households))
			for h, hh := range households {
				plus, err := m.AddVar(Name(VarDevPlus, it.ID, hh.ID), 0, math.Inf(1), lp.Continuous)
				if err != nil {
					return nil, err
				}
				minus, err := m.AddVar(Name(VarDevMinus, it.ID, hh.ID), 0, math.Inf(1), lp.Continuous)
				if err != nil {
					return nil, err
				}
				v.DevPlus[i][h], v.DevMinus[i][h] = plus, minus
			}
		}
	}

	if p.slack {
		idx, err := m.AddVar(VarSlack, 0, math.Inf(1), lp.Continuous)
		if err != nil {
			return nil, fmt.Errorf("adding slack: %w", err)
		}
		v.Slack = idx
	}
	return v, nil
}
