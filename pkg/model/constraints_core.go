package model

import (
	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// applyUtilityMapping caps each utility at the delivered-to-required ratio.
// Utility is only bounded from above here; the objective pushes it to the cap.
func applyUtilityMapping(bc *BuildContext, _ config.Params) error {
	d := bc.Domain
	households := d.Households()
	for n, nu := range d.Nutrients() {
		for h, hh := range households {
			req := d.Requirement(hh.ID, nu.ID)
			lhs := lp.Variable(bc.Vars.Util[n][h])
			rhs := bc.Exprs.Delivered[n][h].Scale(1 / req)
			if err := bc.AddRow(Name("utility_mapping", nu.ID, hh.ID), lhs, lp.LE, rhs); err != nil {
				return err
			}
		}
	}
	return nil
}

// applySupplyLimit keeps total allocation of each item within its available supply.
func applySupplyLimit(bc *BuildContext, _ config.Params) error {
	for i, it := range bc.Domain.Items() {
		if err := bc.AddRow(Name("supply", it.ID), bc.Exprs.ItemAllocated[i], lp.LE, bc.Exprs.Avail[i]); err != nil {
			return err
		}
	}
	return nil
}
