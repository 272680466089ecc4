package model

import (
	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

func (bc *BuildContext) absDeviation(i, h int) lp.Expr {
	return lp.Variable(bc.Vars.DevPlus[i][h]).AddTerm(bc.Vars.DevMinus[i][h], 1)
}

// applyDeviationIdentity splits the fair-share gap into a nonnegative pair:
// Allocation(i,h) - w_h·Avail(i) = D+(i,h) - D-(i,h).
func applyDeviationIdentity(bc *BuildContext, _ config.Params) error {
	households := bc.Domain.Households()
	for i, it := range bc.Domain.Items() {
		for h, hh := range households {
			split := lp.Variable(bc.Vars.DevPlus[i][h]).AddTerm(bc.Vars.DevMinus[i][h], -1)
			if err := bc.AddRow(Name("deviation_identity", it.ID, hh.ID),
				bc.Exprs.FairShareGap[i][h], lp.EQ, split); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyItemEquityCap(bc *BuildContext, params config.Params) error {
	alpha, err := bc.Dial(params, DialAlpha)
	if err != nil {
		return err
	}
	households := bc.Domain.Households()
	for i, it := range bc.Domain.Items() {
		a, err := bc.resolve(alpha, DialAlpha, it.ID)
		if err != nil {
			return err
		}
		var total lp.Expr
		for h := range households {
			total = total.Add(bc.absDeviation(i, h))
		}
		if err := bc.AddRow(Name("item_equity_cap", it.ID), total, lp.LE, bc.Exprs.Avail[i].Scale(a)); err != nil {
			return err
		}
	}
	return nil
}

func applyHouseholdEquityCap(bc *BuildContext, params config.Params) error {
	beta, err := bc.Dial(params, DialBeta)
	if err != nil {
		return err
	}
	items := bc.Domain.Items()
	for h, hh := range bc.Domain.Households() {
		b, err := bc.resolve(beta, DialBeta, hh.ID)
		if err != nil {
			return err
		}
		var total lp.Expr
		for i := range items {
			total = total.Add(bc.absDeviation(i, h))
		}
		if err := bc.AddRow(Name("household_equity_cap", hh.ID), total, lp.LE, bc.Exprs.TotalSupply.Scale(b)); err != nil {
			return err
		}
	}
	return nil
}

func applyPairwiseEquityCap(bc *BuildContext, params config.Params) error {
	rho, err := bc.Dial(params, DialRho)
	if err != nil {
		return err
	}
	households := bc.Domain.Households()
	for i, it := range bc.Domain.Items() {
		for h, hh := range households {
			r, err := bc.resolve2(rho, DialRho, it.ID, hh.ID)
			if err != nil {
				return err
			}
			if err := bc.AddRow(Name("pair_equity_cap", it.ID, hh.ID),
				bc.absDeviation(i, h), lp.LE, bc.Exprs.Avail[i].Scale(r)); err != nil {
				return err
			}
		}
	}
	return nil
}
