// Package core holds the validated, immutable domain of an allocation scenario.
//
// A Domain indexes the entities the optimization model is built over:
//
//   - Item: a food item with donated stock and an optional unit purchase cost
//   - Nutrient: a tracked nutrient
//   - Household: a recipient with a fair-share weight
//   - NutrientContent: per-(item, nutrient) content per unit, missing pairs read as zero
//   - Requirement: per-(household, nutrient) need, floored at RequirementFloor
//   - Bound: optional per-(item, household) allocation bounds
//
// Example usage:
//
//	d, err := core.NewDomain(core.Data{
//	    Items:        items,
//	    Nutrients:    nutrients,
//	    Households:   households,
//	    Contents:     contents,
//	    Requirements: requirements,
//	})
//	if err != nil {
//	    return err
//	}
//	r := d.Requirement("h1", "protein")
//
// The ordered ID slices preserve load order so that the models built on top
// of a Domain are deterministic.
package core
