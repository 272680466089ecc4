/*
Copyright 2025 The FBDAM Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"context"
	"fmt"

	"github.com/foodbank-alloc/fbdam/internal/logging"
	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/core"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// Builder compiles scenarios against a Registry.
type Builder struct {
	registry *Registry
}

// NewBuilder returns a Builder over r, or over DefaultRegistry when r is nil.
func NewBuilder(r *Registry) *Builder {
	if r == nil {
		r = DefaultRegistry()
	}
	return &Builder{registry: r}
}

// Registry returns the registry the builder dispatches to.
func (b *Builder) Registry() *Registry { return b.registry }

// plan carries the activation decisions made before any column is created.
type plan struct {
	steps             []step
	purchasing        bool
	budget            float64
	equity            bool
	slack             bool
	integerAllocation bool
}

type step struct {
	constraint config.MaterializedConstraint
	handler    ConstraintHandler
	implicit   bool
}

// Build compiles scenario s over domain d. Configuration problems are
// reported before any row is rendered and wrap config.ErrConfig.
func (b *Builder) Build(ctx context.Context, d *core.Domain, s *config.Scenario) (*Compiled, error) {
	logger := logging.FromContext(ctx).WithValues("scenario", s.Name)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	objective, ok := b.registry.Objective(s.Objective.ID)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownObjective, s.Objective.ID)
	}
	p, err := b.plan(s)
	if err != nil {
		return nil, err
	}
	logger.V(logging.DEBUG).Info("Planned model",
		"constraints", len(p.steps),
		"purchasing", p.purchasing,
		"budget", p.budget,
		"equity", p.equity,
		"slack", p.slack)

	m := lp.NewModel(s.Name)
	vars, err := buildVariables(m, d, p)
	if err != nil {
		return nil, fmt.Errorf("building variables: %w", err)
	}
	exprs := buildExpressions(d, vars)

	bc := &BuildContext{
		Model:    m,
		Domain:   d,
		Scenario: s,
		Vars:     vars,
		Exprs:    exprs,
		Logger:   logger,
		budget:   p.budget,
	}

	active := make([]string, 0, len(p.steps))
	for _, st := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bc.current, bc.rows = st.constraint.ID, 0
		bc.dialDefaults = st.constraint.DialDefaults
		params := st.constraint.Params
		if params == nil {
			params = config.Params{}
		}
		if err := st.handler.Apply(bc, params); err != nil {
			return nil, err
		}
		active = append(active, st.constraint.ID)
		logger.V(logging.DEBUG).Info("Applied constraint",
			"constraint", st.constraint.ID,
			"family", st.handler.Family,
			"implicit", st.implicit,
			"rows", bc.rows)
	}

	bc.current, bc.dialDefaults = s.Objective.ID, nil
	if err := objective.Apply(bc, s.Objective); err != nil {
		return nil, err
	}

	c := &Compiled{
		LP:        m,
		Domain:    d,
		Scenario:  s,
		Vars:      vars,
		Exprs:     exprs,
		Active:    active,
		Objective: s.Objective,
	}
	stats := c.Stats()
	logger.Info("Compiled model",
		"variables", stats.Variables,
		"binaries", stats.Binaries,
		"integers", stats.Integers,
		"constraints", stats.Constraints,
		"nonzeros", stats.Nonzeros)
	return c, nil
}

func (b *Builder) plan(s *config.Scenario) (*plan, error) {
	p := &plan{integerAllocation: s.IntegerAllocation}

	var purchaseParams config.Params
	hasPurchase := false
	for _, c := range s.Constraints {
		h, ok := b.registry.Constraint(c.ID)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownConstraint, c.ID)
		}
		switch h.Family {
		case FamilyPurchase:
			hasPurchase = true
			purchaseParams = c.Params
		case FamilyEquity:
			p.equity = true
		case FamilyAdequacy:
			use, err := useSlack(c.Params, s.Lambda != nil)
			if err != nil {
				return nil, fmt.Errorf("constraint %q: %w", c.ID, err)
			}
			p.slack = p.slack || use
		}
	}

	switch {
	case s.AllowPurchases == nil:
		p.purchasing = hasPurchase
	case *s.AllowPurchases:
		p.purchasing = true
	case hasPurchase:
		return nil, fmt.Errorf("%w: constraint %q is active but allow_purchases is false",
			config.ErrConfig, PurchaseBudgetLimit)
	}

	if p.purchasing {
		budget, ok, err := purchaseParams.Float(ParamBudget)
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", PurchaseBudgetLimit, err)
		}
		switch {
		case ok:
			p.budget = budget
		case s.Budget != nil:
			p.budget = *s.Budget
		default:
			return nil, fmt.Errorf("%w: purchasing is enabled but no budget is set in %q params or the scenario",
				config.ErrConfig, PurchaseBudgetLimit)
		}
		if p.budget < 0 {
			return nil, fmt.Errorf("%w: budget must be >= 0, got %v", config.ErrConfig, p.budget)
		}
	}

	identityListed := s.HasConstraint(FairshareDeviationIdentity)
	for _, c := range s.Constraints {
		h, _ := b.registry.Constraint(c.ID)
		if h.Family == FamilyEquity && !identityListed {
			id, ok := b.registry.Constraint(FairshareDeviationIdentity)
			if !ok {
				return nil, fmt.Errorf("%w %q", ErrUnknownConstraint, FairshareDeviationIdentity)
			}
			p.steps = append(p.steps, step{
				constraint: config.MaterializedConstraint{ID: FairshareDeviationIdentity},
				handler:    id,
				implicit:   true,
			})
			identityListed = true
		}
		p.steps = append(p.steps, step{constraint: c, handler: h})
	}
	if p.purchasing && !hasPurchase {
		h, ok := b.registry.Constraint(PurchaseBudgetLimit)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownConstraint, PurchaseBudgetLimit)
		}
		p.steps = append(p.steps, step{
			constraint: config.MaterializedConstraint{ID: PurchaseBudgetLimit},
			handler:    h,
			implicit:   true,
		})
	}
	return p, nil
}
