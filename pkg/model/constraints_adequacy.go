package model

import (
	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// Adequacy floors compare a mean utility with a dial fraction of the global
// mean. With dial value 1 on more than one group the floors can only hold if
// every group sits exactly at the mean; the shared slack absorbs the rest.

func applyHouseholdFloor(bc *BuildContext, params config.Params) error {
	omega, err := bc.Dial(params, DialOmega)
	if err != nil {
		return err
	}
	slack, err := bc.SlackTerm(params)
	if err != nil {
		return err
	}
	for h, hh := range bc.Domain.Households() {
		w, err := bc.resolve(omega, DialOmega, hh.ID)
		if err != nil {
			return err
		}
		lhs := bc.Exprs.MeanUtilityByHousehold[h].Sub(bc.Exprs.GlobalMeanUtility.Scale(w))
		if err := bc.AddRow(Name("household_floor", hh.ID), lhs, lp.GE, slack.Scale(-1)); err != nil {
			return err
		}
	}
	return nil
}

func applyNutrientFloor(bc *BuildContext, params config.Params) error {
	gamma, err := bc.Dial(params, DialGamma)
	if err != nil {
		return err
	}
	slack, err := bc.SlackTerm(params)
	if err != nil {
		return err
	}
	for n, nu := range bc.Domain.Nutrients() {
		g, err := bc.resolve(gamma, DialGamma, nu.ID)
		if err != nil {
			return err
		}
		lhs := bc.Exprs.MeanUtilityByNutrient[n].Sub(bc.Exprs.GlobalMeanUtility.Scale(g))
		if err := bc.AddRow(Name("nutrient_floor", nu.ID), lhs, lp.GE, slack.Scale(-1)); err != nil {
			return err
		}
	}
	return nil
}

func applyPairwiseFloor(bc *BuildContext, params config.Params) error {
	kappa, err := bc.Dial(params, DialKappa)
	if err != nil {
		return err
	}
	slack, err := bc.SlackTerm(params)
	if err != nil {
		return err
	}
	households := bc.Domain.Households()
	for n, nu := range bc.Domain.Nutrients() {
		for h, hh := range households {
			k, err := bc.resolve2(kappa, DialKappa, nu.ID, hh.ID)
			if err != nil {
				return err
			}
			lhs := lp.Variable(bc.Vars.Util[n][h]).Sub(bc.Exprs.GlobalMeanUtility.Scale(k))
			if err := bc.AddRow(Name("pair_floor", nu.ID, hh.ID), lhs, lp.GE, slack.Scale(-1)); err != nil {
				return err
			}
		}
	}
	return nil
}
