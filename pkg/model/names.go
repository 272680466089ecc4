package model

import "strings"

// Registered constraint identifiers.
const (
	NutritionUtilityMapping     = "nutrition_utility_mapping"
	ItemSupplyLimit             = "item_supply_limit"
	PurchaseBudgetLimit         = "purchase_budget_limit"
	FairshareDeviationIdentity  = "fairshare_deviation_identity"
	ItemEquityAggregateCap      = "item_equity_aggregate_cap"
	HouseholdEquityAggregateCap = "household_equity_aggregate_cap"
	PairwiseEquityCap           = "pairwise_equity_cap"
	HouseholdAdequacyFloor      = "household_adequacy_floor"
	NutrientAdequacyFloor       = "nutrient_adequacy_floor"
	PairwiseAdequacyFloor       = "pairwise_adequacy_floor"
)

// Registered objective identifiers.
const (
	SumUtility = "sum_utility"
)

// Dial names looked up in constraint params and scenario dials.
const (
	DialAlpha = "alpha" // item equity cap, per item
	DialBeta  = "beta"  // household equity cap, per household
	DialRho   = "rho"   // pairwise equity cap, per (item, household)
	DialOmega = "omega" // household adequacy floor, per household
	DialGamma = "gamma" // nutrient adequacy floor, per nutrient
	DialKappa = "kappa" // pairwise adequacy floor, per (nutrient, household)
)

// Constraint and objective params.
const (
	ParamBudget   = "budget"
	ParamUseSlack = "use_slack"
	ParamWeight   = "weight"
)

// Variable name prefixes.
const (
	VarAlloc          = "alloc"
	VarUtil           = "util"
	VarPurchase       = "purchase"
	VarPurchaseActive = "purchase_active"
	VarDevPlus        = "dev_plus"
	VarDevMinus       = "dev_minus"
	VarSlack          = "slack"
)

// Name renders an indexed name such as alloc[apples,h1].
func Name(prefix string, keys ...string) string {
	if len(keys) == 0 {
		return prefix
	}
	return prefix + "[" + strings.Join(keys, ",") + "]"
}
