package model

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/core"
	"github.com/foodbank-alloc/fbdam/pkg/dial"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// BuildContext is what a handler sees while rendering its rows.
type BuildContext struct {
	Model    *lp.Model
	Domain   *core.Domain
	Scenario *config.Scenario
	Vars     *Variables
	Exprs    *Expressions
	Logger   logr.Logger

	budget       float64
	current      string
	dialDefaults config.Params
	rows         int
}

// Budget is the resolved purchase budget. Zero when purchasing is disabled.
func (bc *BuildContext) Budget() float64 { return bc.budget }

// AddRow adds a row to the model and counts it against the current handler.
func (bc *BuildContext) AddRow(name string, lhs lp.Expr, sense lp.Sense, rhs lp.Expr) error {
	if err := bc.Model.AddConstraint(name, lhs, sense, rhs); err != nil {
		return fmt.Errorf("constraint %q: %w", bc.current, err)
	}
	bc.rows++
	return nil
}

// Dial returns the named dial from the handler params, then the scenario
// dials, then the catalog default of the current constraint. A dial found in
// none of them is a configuration error.
func (bc *BuildContext) Dial(params config.Params, name string) (dial.Spec, error) {
	if raw, ok := params[name]; ok && raw != nil {
		return bc.parseDial(name, raw)
	}
	if s, ok := bc.Scenario.Dials[name]; ok {
		return s, nil
	}
	if raw, ok := bc.dialDefaults[name]; ok && raw != nil {
		return bc.parseDial(name, raw)
	}
	return dial.Spec{}, fmt.Errorf("%w: constraint %q: dial %q is not set in params or scenario dials",
		config.ErrConfig, bc.current, name)
}

func (bc *BuildContext) parseDial(name string, raw any) (dial.Spec, error) {
	s, err := dial.Parse(raw)
	if err != nil {
		return dial.Spec{}, fmt.Errorf("%w: constraint %q: dial %q: %w", config.ErrConfig, bc.current, name, err)
	}
	return s, nil
}

func (bc *BuildContext) resolve(s dial.Spec, name, key string) (float64, error) {
	v, err := dial.Resolve(s, key)
	if err != nil {
		return 0, fmt.Errorf("%w: constraint %q: dial %q: %w", config.ErrConfig, bc.current, name, err)
	}
	return v, nil
}

func (bc *BuildContext) resolve2(s dial.Spec, name, key1, key2 string) (float64, error) {
	v, err := dial.Resolve2(s, key1, key2)
	if err != nil {
		return 0, fmt.Errorf("%w: constraint %q: dial %q: %w", config.ErrConfig, bc.current, name, err)
	}
	return v, nil
}

// SlackTerm returns the shared slack when the handler params request
// softening, and the zero expression otherwise.
func (bc *BuildContext) SlackTerm(params config.Params) (lp.Expr, error) {
	use, err := useSlack(params, bc.Scenario.Lambda != nil)
	if err != nil {
		return lp.Expr{}, fmt.Errorf("constraint %q: %w", bc.current, err)
	}
	if !use {
		return lp.Expr{}, nil
	}
	if !bc.Vars.HasSlack() {
		return lp.Expr{}, fmt.Errorf("constraint %q: slack requested but not instantiated", bc.current)
	}
	return lp.Variable(bc.Vars.Slack), nil
}

// useSlack reads use_slack: a boolean, or "auto" to follow whether lambda is declared.
func useSlack(params config.Params, lambdaDeclared bool) (bool, error) {
	raw, ok := params[ParamUseSlack]
	if !ok || raw == nil {
		return lambdaDeclared, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "auto", "default", "":
			return lambdaDeclared, nil
		case "true", "yes", "y", "1", "on":
			return true, nil
		case "false", "no", "n", "0", "off":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s must be a boolean or \"auto\", got %v", config.ErrConfig, ParamUseSlack, raw)
}
