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

// Package lp is a small algebra for mixed-integer linear programs: bounded
// variables, affine expressions, linear rows and an objective. Models are
// built by pkg/model and consumed by the solver backends.
package lp

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrDuplicateName = errors.New("duplicate name")
	ErrInvalidBounds = errors.New("invalid bounds")
	ErrUnknownVar    = errors.New("unknown variable")
)

// VarKind is the domain of a variable.
type VarKind int

const (
	Continuous VarKind = iota
	Integer
	Binary
)

func (k VarKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Var is a decision variable. Upper may be +Inf.
type Var struct {
	Name  string
	Lower float64
	Upper float64
	Kind  VarKind
}

// Sense is the relation of a row to its right-hand side.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	case EQ:
		return "=="
	default:
		return "?"
	}
}

// Constraint is the row Expr (Sense) RHS. Expr carries no constant.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

// Satisfied reports whether the row holds at x within tol, scaled by the row magnitude.
func (c Constraint) Satisfied(x []float64, tol float64) bool {
	lhs := c.Expr.Eval(x)
	if math.IsNaN(lhs) {
		return false
	}
	scale := tol * (1 + math.Abs(c.RHS))
	switch c.Sense {
	case LE:
		return lhs <= c.RHS+scale
	case GE:
		return lhs >= c.RHS-scale
	default:
		return math.Abs(lhs-c.RHS) <= scale
	}
}

// Model is a mixed-integer linear program.
type Model struct {
	Name        string
	Vars        []Var
	Constraints []Constraint
	Objective   Expr
	Maximize    bool

	varIdx map[string]int
	rowIdx map[string]int
}

// NewModel returns an empty model.
func NewModel(name string) *Model {
	return &Model{Name: name, varIdx: map[string]int{}, rowIdx: map[string]int{}}
}

// AddVar declares a variable and returns its index. Binary variables get [0,1] bounds.
func (m *Model) AddVar(name string, lower, upper float64, kind VarKind) (int, error) {
	if name == "" {
		return -1, fmt.Errorf("%w: empty variable name", ErrDuplicateName)
	}
	if _, dup := m.varIdx[name]; dup {
		return -1, fmt.Errorf("%w: variable %q", ErrDuplicateName, name)
	}
	if kind == Binary {
		lower, upper = math.Max(lower, 0), math.Min(upper, 1)
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || math.IsInf(lower, 1) || math.IsInf(upper, -1) {
		return -1, fmt.Errorf("%w: variable %q: [%v, %v]", ErrInvalidBounds, name, lower, upper)
	}
	m.varIdx[name] = len(m.Vars)
	m.Vars = append(m.Vars, Var{Name: name, Lower: lower, Upper: upper, Kind: kind})
	return len(m.Vars) - 1, nil
}

// VarIndex returns the index of the named variable.
func (m *Model) VarIndex(name string) (int, bool) {
	i, ok := m.varIdx[name]
	return i, ok
}

// AddConstraint adds the row lhs (sense) rhs. Constants on either side are
// moved to the right-hand side and repeated variables are merged.
func (m *Model) AddConstraint(name string, lhs Expr, sense Sense, rhs Expr) error {
	if _, dup := m.rowIdx[name]; dup || name == "" {
		return fmt.Errorf("%w: constraint %q", ErrDuplicateName, name)
	}
	row := lhs.Sub(rhs).Simplify()
	for _, t := range row.Terms {
		if t.Var < 0 || t.Var >= len(m.Vars) {
			return fmt.Errorf("%w: constraint %q references index %d", ErrUnknownVar, name, t.Var)
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			return fmt.Errorf("constraint %q: non-finite coefficient %v on %q", name, t.Coef, m.Vars[t.Var].Name)
		}
	}
	m.rowIdx[name] = len(m.Constraints)
	m.Constraints = append(m.Constraints, Constraint{
		Name:  name,
		Expr:  Expr{Terms: row.Terms},
		Sense: sense,
		RHS:   -row.Constant,
	})
	return nil
}

// SetObjective sets the objective expression and direction.
func (m *Model) SetObjective(e Expr, maximize bool) error {
	e = e.Simplify()
	for _, t := range e.Terms {
		if t.Var < 0 || t.Var >= len(m.Vars) {
			return fmt.Errorf("%w: objective references index %d", ErrUnknownVar, t.Var)
		}
	}
	m.Objective = e
	m.Maximize = maximize
	return nil
}

// Feasible reports whether x satisfies every bound, integrality and row within tol.
func (m *Model) Feasible(x []float64, tol float64) bool {
	if len(x) != len(m.Vars) {
		return false
	}
	for j, v := range m.Vars {
		if x[j] < v.Lower-tol || x[j] > v.Upper+tol {
			return false
		}
		if v.Kind != Continuous && math.Abs(x[j]-math.Round(x[j])) > tol {
			return false
		}
	}
	for _, c := range m.Constraints {
		if !c.Satisfied(x, tol) {
			return false
		}
	}
	return true
}

// Stats summarizes model size.
type Stats struct {
	Variables   int `json:"variables"`
	Integers    int `json:"integers"`
	Binaries    int `json:"binaries"`
	Constraints int `json:"constraints"`
	Nonzeros    int `json:"nonzeros"`
}

// Stats counts variables by kind, rows and row nonzeros.
func (m *Model) Stats() Stats {
	s := Stats{Variables: len(m.Vars), Constraints: len(m.Constraints)}
	for _, v := range m.Vars {
		switch v.Kind {
		case Integer:
			s.Integers++
		case Binary:
			s.Binaries++
		}
	}
	for _, c := range m.Constraints {
		s.Nonzeros += len(c.Expr.Terms)
	}
	return s
}

// HasIntegers reports whether any variable is integer or binary.
func (m *Model) HasIntegers() bool {
	for _, v := range m.Vars {
		if v.Kind != Continuous {
			return true
		}
	}
	return false
}
