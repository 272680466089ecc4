package model

import (
	"fmt"
	"sort"

	"github.com/foodbank-alloc/fbdam/pkg/config"
)

var (
	// ErrUnknownConstraint is returned for a constraint id with no registered handler.
	ErrUnknownConstraint = fmt.Errorf("%w: unknown constraint", config.ErrConfig)
	// ErrUnknownObjective is returned for an objective id with no registered handler.
	ErrUnknownObjective = fmt.Errorf("%w: unknown objective", config.ErrConfig)
	// ErrDuplicateHandler is returned when a name is registered twice.
	ErrDuplicateHandler = fmt.Errorf("duplicate handler")
)

// Family groups constraints that share variables and activation rules.
type Family string

const (
	FamilyCore     Family = "core"
	FamilyPurchase Family = "purchase"
	FamilyEquity   Family = "equity"
	FamilyAdequacy Family = "adequacy"
)

// ConstraintFunc renders one constraint family into bc.Model.
type ConstraintFunc func(bc *BuildContext, params config.Params) error

// ObjectiveFunc sets the model objective.
type ObjectiveFunc func(bc *BuildContext, obj config.MaterializedObjective) error

// ConstraintHandler is a registered constraint.
type ConstraintHandler struct {
	Name        string
	Family      Family
	Description string
	Apply       ConstraintFunc
}

// ObjectiveHandler is a registered objective.
type ObjectiveHandler struct {
	Name        string
	Description string
	Apply       ObjectiveFunc
}

// Registry maps identifiers to constraint and objective handlers.
type Registry struct {
	constraints map[string]ConstraintHandler
	objectives  map[string]ObjectiveHandler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constraints: map[string]ConstraintHandler{},
		objectives:  map[string]ObjectiveHandler{},
	}
}

// RegisterConstraint adds h. Registering a name twice is an error.
func (r *Registry) RegisterConstraint(h ConstraintHandler) error {
	if h.Name == "" || h.Apply == nil {
		return fmt.Errorf("constraint handler requires a name and an apply function")
	}
	if _, dup := r.constraints[h.Name]; dup {
		return fmt.Errorf("%w: constraint %q", ErrDuplicateHandler, h.Name)
	}
	r.constraints[h.Name] = h
	return nil
}

// RegisterObjective adds h. Registering a name twice is an error.
func (r *Registry) RegisterObjective(h ObjectiveHandler) error {
	if h.Name == "" || h.Apply == nil {
		return fmt.Errorf("objective handler requires a name and an apply function")
	}
	if _, dup := r.objectives[h.Name]; dup {
		return fmt.Errorf("%w: objective %q", ErrDuplicateHandler, h.Name)
	}
	r.objectives[h.Name] = h
	return nil
}

// Constraint looks up a constraint handler.
func (r *Registry) Constraint(name string) (ConstraintHandler, bool) {
	h, ok := r.constraints[name]
	return h, ok
}

// Objective looks up an objective handler.
func (r *Registry) Objective(name string) (ObjectiveHandler, bool) {
	h, ok := r.objectives[name]
	return h, ok
}

// Constraints returns registered constraint handlers sorted by name.
func (r *Registry) Constraints() []ConstraintHandler {
	out := make([]ConstraintHandler, 0, len(r.constraints))
	for _, h := range r.constraints {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Objectives returns registered objective handlers sorted by name.
func (r *Registry) Objectives() []ObjectiveHandler {
	out := make([]ObjectiveHandler, 0, len(r.objectives))
	for _, h := range r.objectives {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultRegistry returns a new registry holding the built-in constraints and objectives.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, h := range builtinConstraints() {
		if err := r.RegisterConstraint(h); err != nil {
			panic(err)
		}
	}
	for _, h := range builtinObjectives() {
		if err := r.RegisterObjective(h); err != nil {
			panic(err)
		}
	}
	return r
}

func builtinConstraints() []ConstraintHandler {
	return []ConstraintHandler{
		{Name: NutritionUtilityMapping, Family: FamilyCore,
			Description: "Utility(n,h) <= Delivered(n,h) / Requirement(h,n)", Apply: applyUtilityMapping},
		{Name: ItemSupplyLimit, Family: FamilyCore,
			Description: "sum_h Allocation(i,h) <= Avail(i)", Apply: applySupplyLimit},
		{Name: PurchaseBudgetLimit, Family: FamilyPurchase,
			Description: "purchase budget, big-M activation and no-waste rows", Apply: applyPurchaseBudget},
		{Name: FairshareDeviationIdentity, Family: FamilyEquity,
			Description: "Allocation(i,h) - w_h*Avail(i) = D+(i,h) - D-(i,h)", Apply: applyDeviationIdentity},
		{Name: ItemEquityAggregateCap, Family: FamilyEquity,
			Description: "sum_h |dev(i,h)| <= alpha_i * Avail(i)", Apply: applyItemEquityCap},
		{Name: HouseholdEquityAggregateCap, Family: FamilyEquity,
			Description: "sum_i |dev(i,h)| <= beta_h * TotalSupply", Apply: applyHouseholdEquityCap},
		{Name: PairwiseEquityCap, Family: FamilyEquity,
			Description: "|dev(i,h)| <= rho_{i,h} * Avail(i)", Apply: applyPairwiseEquityCap},
		{Name: HouseholdAdequacyFloor, Family: FamilyAdequacy,
			Description: "MeanU_h(h) - omega_h * GlobalMeanU >= -Slack", Apply: applyHouseholdFloor},
		{Name: NutrientAdequacyFloor, Family: FamilyAdequacy,
			Description: "MeanU_n(n) - gamma_n * GlobalMeanU >= -Slack", Apply: applyNutrientFloor},
		{Name: PairwiseAdequacyFloor, Family: FamilyAdequacy,
			Description: "Utility(n,h) - kappa_{n,h} * GlobalMeanU >= -Slack", Apply: applyPairwiseFloor},
	}
}

func builtinObjectives() []ObjectiveHandler {
	return []ObjectiveHandler{
		{Name: SumUtility, Description: "weight * sum Utility - lambda * Slack", Apply: applySumUtility},
	}
}
