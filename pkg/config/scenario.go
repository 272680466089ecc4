package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/foodbank-alloc/fbdam/pkg/dial"
)

// ErrConfig is wrapped by every scenario configuration error.
var ErrConfig = errors.New("configuration error")

// Sense is the optimization direction of an objective.
type Sense string

const (
	Maximize Sense = "maximize"
	Minimize Sense = "minimize"
)

// ParseSense normalizes a sense string. Empty means Maximize.
func ParseSense(s string) (Sense, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "max", "maximize":
		return Maximize, nil
	case "min", "minimize":
		return Minimize, nil
	default:
		return "", fmt.Errorf("%w: invalid sense %q, use maximize or minimize", ErrConfig, s)
	}
}

// Params is a resolved parameter dictionary.
type Params map[string]any

// Has reports whether key is set.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Float returns the numeric value of key.
func (p Params) Float(key string) (float64, bool, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	s, err := dial.Parse(raw)
	if err != nil || s.Kind != dial.Scalar {
		return 0, true, fmt.Errorf("%w: param %q must be a number, got %v", ErrConfig, key, raw)
	}
	return s.Value, true, nil
}

// MaterializedConstraint is a constraint id, its merged params and the
// catalog dial defaults. Dials resolve from Params, then the scenario dials,
// then DialDefaults.
type MaterializedConstraint struct {
	ID           string `json:"id" yaml:"id"`
	Params       Params `json:"params,omitempty" yaml:"params,omitempty"`
	DialDefaults Params `json:"dial_defaults,omitempty" yaml:"dial_defaults,omitempty"`
}

// MaterializedObjective is an objective id, its display name and sense, and its merged params.
type MaterializedObjective struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Sense  Sense  `json:"sense" yaml:"sense"`
	Params Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// SolverOptions selects and tunes the solver backend.
type SolverOptions struct {
	Name string `json:"name" yaml:"name"`
	// TimeLimit is in seconds; zero means no limit.
	TimeLimit float64 `json:"time_limit,omitempty" yaml:"time_limit,omitempty"`
	// MIPRelGap is the relative optimality gap at which branch-and-bound stops.
	MIPRelGap *float64 `json:"mip_rel_gap,omitempty" yaml:"mip_rel_gap,omitempty"`
	Threads   int      `json:"threads,omitempty" yaml:"threads,omitempty"`
	// Options are passed through to the backend verbatim.
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Validate checks solver option ranges.
func (o SolverOptions) Validate() error {
	if o.TimeLimit < 0 || math.IsNaN(o.TimeLimit) {
		return fmt.Errorf("%w: solver.time_limit must be >= 0, got %v", ErrConfig, o.TimeLimit)
	}
	if o.MIPRelGap != nil && (*o.MIPRelGap < 0 || math.IsNaN(*o.MIPRelGap)) {
		return fmt.Errorf("%w: solver.mip_rel_gap must be >= 0, got %v", ErrConfig, *o.MIPRelGap)
	}
	if o.Threads < 0 {
		return fmt.Errorf("%w: solver.threads must be >= 0, got %d", ErrConfig, o.Threads)
	}
	return nil
}

// Merge overlays non-zero fields of override onto o. Options merge key by key.
func (o SolverOptions) Merge(override SolverOptions) SolverOptions {
	out := o
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.TimeLimit != 0 {
		out.TimeLimit = override.TimeLimit
	}
	if override.MIPRelGap != nil {
		g := *override.MIPRelGap
		out.MIPRelGap = &g
	}
	if override.Threads != 0 {
		out.Threads = override.Threads
	}
	if len(o.Options)+len(override.Options) > 0 {
		out.Options = make(map[string]string, len(o.Options)+len(override.Options))
		for k, v := range o.Options {
			out.Options[k] = v
		}
		for k, v := range override.Options {
			out.Options[k] = v
		}
	}
	return out
}

// Scenario is everything the model builder consumes besides the Domain.
type Scenario struct {
	Name  string               `json:"name"`
	Dials map[string]dial.Spec `json:"dials,omitempty"`
	// Budget caps total purchase spend. Required when purchasing is enabled
	// and the purchase constraint does not carry its own budget.
	Budget *float64 `json:"budget,omitempty"`
	// Lambda is the slack penalty. Declaring it enables the shared slack for
	// adequacy floors whose use_slack is auto.
	Lambda *float64 `json:"lambda,omitempty"`
	// AllowPurchases forces purchasing on or off. Nil derives it from the
	// activated constraints.
	AllowPurchases    *bool                    `json:"allow_purchases,omitempty"`
	IntegerAllocation bool                     `json:"integer_allocation,omitempty"`
	Constraints       []MaterializedConstraint `json:"constraints"`
	Objective         MaterializedObjective    `json:"objective"`
	Solver            SolverOptions            `json:"solver"`
}

// HasConstraint reports whether id is activated.
func (s *Scenario) HasConstraint(id string) bool {
	for _, c := range s.Constraints {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Validate checks the scenario for structural errors that do not depend on
// the constraint registry.
func (s *Scenario) Validate() error {
	if s.Objective.ID == "" {
		return fmt.Errorf("%w: scenario %q: objective is required", ErrConfig, s.Name)
	}
	if _, err := ParseSense(string(s.Objective.Sense)); err != nil {
		return fmt.Errorf("scenario %q: objective %q: %w", s.Name, s.Objective.ID, err)
	}
	seen := make(map[string]bool, len(s.Constraints))
	for i, c := range s.Constraints {
		if c.ID == "" {
			return fmt.Errorf("%w: scenario %q: constraints[%d]: missing id", ErrConfig, s.Name, i)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: scenario %q: constraints[%d]: duplicate constraint %q", ErrConfig, s.Name, i, c.ID)
		}
		seen[c.ID] = true
	}
	if s.Budget != nil && (*s.Budget < 0 || math.IsNaN(*s.Budget) || math.IsInf(*s.Budget, 0)) {
		return fmt.Errorf("%w: scenario %q: budget must be a finite value >= 0, got %v", ErrConfig, s.Name, *s.Budget)
	}
	if s.Lambda != nil && (math.IsNaN(*s.Lambda) || math.IsInf(*s.Lambda, 0)) {
		return fmt.Errorf("%w: scenario %q: lambda must be finite, got %v", ErrConfig, s.Name, *s.Lambda)
	}
	if err := s.Solver.Validate(); err != nil {
		return fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	return nil
}
