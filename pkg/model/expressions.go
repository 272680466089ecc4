package model

import (
	"github.com/foodbank-alloc/fbdam/pkg/core"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// Expressions are the shared aggregates over the decision variables. They are
// built once per compile; constraint families and KPI extraction reference
// these definitions instead of recomputing them.
type Expressions struct {
	// Avail(i) = Stock(i) + Purchase(i).
	Avail []lp.Expr
	// TotalSupply = Σ_i Avail(i).
	TotalSupply lp.Expr
	// Delivered(n,h) = Σ_i Content(i,n)·Allocation(i,h), indexed [nutrient][household].
	Delivered [][]lp.Expr
	// MeanUtilityByHousehold(h) = (1/|N|) Σ_n Utility(n,h).
	MeanUtilityByHousehold []lp.Expr
	// MeanUtilityByNutrient(n) = (1/|H|) Σ_h Utility(n,h).
	MeanUtilityByNutrient []lp.Expr
	// GlobalMeanUtility = (1/(|N|·|H|)) Σ_{n,h} Utility(n,h).
	GlobalMeanUtility lp.Expr
	// TotalUtility = Σ_{n,h} Utility(n,h).
	TotalUtility lp.Expr

	// ItemAllocated(i) = Σ_h Allocation(i,h).
	ItemAllocated []lp.Expr
	// HouseholdAllocated(h) = Σ_i Allocation(i,h).
	HouseholdAllocated []lp.Expr
	TotalAllocated     lp.Expr
	// Undistributed = TotalSupply - TotalAllocated.
	Undistributed  lp.Expr
	TotalPurchased lp.Expr
	TotalCost      lp.Expr
	// FairShareGap(i,h) = Allocation(i,h) - w_h·Avail(i), indexed [item][household].
	FairShareGap [][]lp.Expr
}

func buildExpressions(d *core.Domain, v *Variables) *Expressions {
	items, nutrients, households := d.Items(), d.Nutrients(), d.Households()
	e := &Expressions{}

	e.Avail = make([]lp.Expr, len(items))
	for i, it := range items {
		avail := lp.Const(it.Stock)
		if v.Purchasing() {
			avail = avail.AddTerm(v.Purchase[i], 1)
		}
		e.Avail[i] = avail
	}
	e.TotalSupply = lp.Sum(e.Avail...)

	e.Delivered = make([][]lp.Expr, len(nutrients))
	for n, nu := range nutrients {
		e.Delivered[n] = make([]lp.Expr, len(households))
		for h := range households {
			var delivered lp.Expr
			for i, it := range items {
				if c := d.Content(it.ID, nu.ID); c != 0 {
					delivered = delivered.AddTerm(v.Alloc[i][h], c)
				}
			}
			e.Delivered[n][h] = delivered
		}
	}

	nN, nH := float64(len(nutrients)), float64(len(households))
	e.MeanUtilityByHousehold = make([]lp.Expr, len(households))
	for h := range households {
		var sum lp.Expr
		for n := range nutrients {
			sum = sum.AddTerm(v.Util[n][h], 1)
		}
		e.MeanUtilityByHousehold[h] = sum.Scale(1 / nN)
	}
	e.MeanUtilityByNutrient = make([]lp.Expr, len(nutrients))
	var total lp.Expr
	for n := range nutrients {
		var sum lp.Expr
		for h := range households {
			sum = sum.AddTerm(v.Util[n][h], 1)
		}
		e.MeanUtilityByNutrient[n] = sum.Scale(1 / nH)
		total = total.Add(sum)
	}
	e.TotalUtility = total
	e.GlobalMeanUtility = total.Scale(1 / (nN * nH))

	e.ItemAllocated = make([]lp.Expr, len(items))
	e.HouseholdAllocated = make([]lp.Expr, len(households))
	e.FairShareGap = make([][]lp.Expr, len(items))
	for i := range items {
		e.FairShareGap[i] = make([]lp.Expr, len(households))
		for h, hh := range households {
			alloc := lp.Variable(v.Alloc[i][h])
			e.ItemAllocated[i] = e.ItemAllocated[i].Add(alloc)
			e.HouseholdAllocated[h] = e.HouseholdAllocated[h].Add(alloc)
			e.FairShareGap[i][h] = alloc.Sub(e.Avail[i].Scale(hh.Weight))
		}
	}
	e.TotalAllocated = lp.Sum(e.ItemAllocated...)
	e.Undistributed = e.TotalSupply.Sub(e.TotalAllocated)

	if v.Purchasing() {
		for i, it := range items {
			e.TotalPurchased = e.TotalPurchased.AddTerm(v.Purchase[i], 1)
			e.TotalCost = e.TotalCost.AddTerm(v.Purchase[i], it.Cost)
		}
	}
	return e
}
