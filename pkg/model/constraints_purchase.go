package model

import (
	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// applyPurchaseBudget adds the three purchase rows:
//
//	Σ_i Cost(i)·Purchase(i) <= Budget
//	Purchase(i) <= M_i·PurchaseActive(i)
//	Avail(i) - Σ_h Allocation(i,h) <= Stock(i)·(1 - PurchaseActive(i))
func applyPurchaseBudget(bc *BuildContext, _ config.Params) error {
	v := bc.Vars
	if !v.Purchasing() {
		return nil
	}
	if err := bc.AddRow("purchase_budget", bc.Exprs.TotalCost, lp.LE, lp.Const(bc.Budget())); err != nil {
		return err
	}
	for i, it := range bc.Domain.Items() {
		active := lp.Variable(v.PurchaseActive[i])
		if err := bc.AddRow(Name("purchase_activation", it.ID),
			lp.Variable(v.Purchase[i]), lp.LE, active.Scale(v.BigM[i])); err != nil {
			return err
		}
		unused := bc.Exprs.Avail[i].Sub(bc.Exprs.ItemAllocated[i])
		allowance := lp.Const(it.Stock).Sub(active.Scale(it.Stock))
		if err := bc.AddRow(Name("purchase_no_waste", it.ID), unused, lp.LE, allowance); err != nil {
			return err
		}
	}
	return nil
}
