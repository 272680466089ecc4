// Package fixtures holds a small food bank instance shared by package tests.
package fixtures

import (
	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/core"
)

// ToyData is four items, three nutrients and three equally weighted
// households. Stock covers every requirement, so an unconstrained
// allocation reaches utility 1 on all nine (nutrient, household) pairs.
func ToyData() core.Data {
	w := 1.0 / 3
	return core.Data{
		Items: []core.Item{
			{ID: "apples", Name: "Apples", Unit: "kg", Stock: 8, Cost: 0.5},
			{ID: "beans", Name: "Beans", Unit: "kg", Stock: 12, Cost: 1.2},
			{ID: "milk", Name: "Milk", Unit: "l", Stock: 10, Cost: 0.9},
			{ID: "rice", Name: "Rice", Unit: "kg", Stock: 20, Cost: 0.4},
		},
		Nutrients: []core.Nutrient{
			{ID: "energy", Name: "Energy", Unit: "kcal"},
			{ID: "protein", Name: "Protein", Unit: "g"},
			{ID: "calcium", Name: "Calcium", Unit: "mg"},
		},
		Households: []core.Household{
			{ID: "h1", Name: "North", Weight: w},
			{ID: "h2", Name: "East", Weight: w},
			{ID: "h3", Name: "South", Weight: w},
		},
		Contents: []core.NutrientContent{
			{ItemID: "apples", NutrientID: "energy", Quantity: 50},
			{ItemID: "apples", NutrientID: "calcium", Quantity: 5},
			{ItemID: "beans", NutrientID: "energy", Quantity: 100},
			{ItemID: "beans", NutrientID: "protein", Quantity: 8},
			{ItemID: "beans", NutrientID: "calcium", Quantity: 40},
			{ItemID: "milk", NutrientID: "energy", Quantity: 60},
			{ItemID: "milk", NutrientID: "protein", Quantity: 3},
			{ItemID: "milk", NutrientID: "calcium", Quantity: 120},
			{ItemID: "rice", NutrientID: "energy", Quantity: 130},
			{ItemID: "rice", NutrientID: "protein", Quantity: 2.5},
		},
		Requirements: []core.Requirement{
			{HouseholdID: "h1", NutrientID: "energy", Amount: 600},
			{HouseholdID: "h1", NutrientID: "protein", Amount: 20},
			{HouseholdID: "h1", NutrientID: "calcium", Amount: 300},
			{HouseholdID: "h2", NutrientID: "energy", Amount: 800},
			{HouseholdID: "h2", NutrientID: "protein", Amount: 25},
			{HouseholdID: "h2", NutrientID: "calcium", Amount: 400},
			{HouseholdID: "h3", NutrientID: "energy", Amount: 500},
			{HouseholdID: "h3", NutrientID: "protein", Amount: 15},
			{HouseholdID: "h3", NutrientID: "calcium", Amount: 250},
		},
	}
}

// ScarceData is ToyData with a quarter of the stock, so requirements can
// no longer all be met from donations alone.
func ScarceData() core.Data {
	d := ToyData()
	for i := range d.Items {
		d.Items[i].Stock /= 4
	}
	return d
}

// Domain validates data and panics on error.
func Domain(data core.Data) *core.Domain {
	d, err := core.NewDomain(data)
	if err != nil {
		panic(err)
	}
	return d
}

// ToyDomain is Domain(ToyData()).
func ToyDomain() *core.Domain {
	return Domain(ToyData())
}

// Scenario returns a maximize-utility scenario activating constraints in order.
func Scenario(name string, constraints ...config.MaterializedConstraint) *config.Scenario {
	return &config.Scenario{
		Name:        name,
		Constraints: constraints,
		Objective: config.MaterializedObjective{
			ID:    "sum_utility",
			Name:  "Total utility",
			Sense: config.Maximize,
		},
	}
}

// Constraint is a MaterializedConstraint with optional key/value params.
func Constraint(id string, kv ...any) config.MaterializedConstraint {
	c := config.MaterializedConstraint{ID: id}
	if len(kv) > 0 {
		c.Params = config.Params{}
		for i := 0; i+1 < len(kv); i += 2 {
			c.Params[kv[i].(string)] = kv[i+1]
		}
	}
	return c
}

// Core is the utility mapping plus the supply limit.
func Core() []config.MaterializedConstraint {
	return []config.MaterializedConstraint{
		{ID: "nutrition_utility_mapping"},
		{ID: "item_supply_limit"},
	}
}
