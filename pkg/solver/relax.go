package solver

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	golp "gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

const (
	feasTol    = 1e-7
	verifyTol  = 1e-6
	simplexTol = 1e-10
	perturbEps = 1e-9
)

type relaxStatus int

const (
	relaxOptimal relaxStatus = iota
	relaxInfeasible
	relaxUnbounded
)

// relaxation is the LP relaxation of a model restricted to [lo, hi].
type relaxation struct {
	status relaxStatus
	x      []float64
	// f is the minimization objective: sign * (objective - constant).
	f float64
}

type stdRow struct {
	terms []lp.Term // Var indexes a column
	sense lp.Sense
	rhs   float64
}

// solveRelaxation converts the model to gonum's standard form
// (min c·y, A·y = b, y ≥ 0) and solves it. Lower bounds are shifted out, fixed
// variables are substituted and every finite upper bound becomes a row.
func solveRelaxation(m *lp.Model, lo, hi []float64) (relaxation, error) {
	n := len(m.Vars)
	sign := 1.0
	if m.Maximize {
		sign = -1
	}
	cost := make([]float64, n)
	for _, t := range m.Objective.Terms {
		cost[t.Var] += sign * t.Coef
	}

	x := make([]float64, n)
	col := make([]int, n)
	var cols []int
	for j, v := range m.Vars {
		col[j] = -1
		if math.IsInf(lo[j], -1) {
			return relaxation{}, fmt.Errorf("variable %q has no finite lower bound", v.Name)
		}
		if lo[j] > hi[j]+feasTol {
			return relaxation{status: relaxInfeasible}, nil
		}
		x[j] = lo[j]
		if hi[j]-lo[j] <= feasTol {
			continue
		}
		col[j] = len(cols)
		cols = append(cols, j)
	}

	used := make([]bool, len(cols))
	var rows []stdRow
	for _, c := range m.Constraints {
		rhs := c.RHS
		var terms []lp.Term
		var minAct, maxAct float64
		for _, t := range c.Expr.Terms {
			rhs -= t.Coef * x[t.Var]
			k := col[t.Var]
			if k < 0 {
				continue
			}
			terms = append(terms, lp.Term{Var: k, Coef: t.Coef})
			r := hi[t.Var] - lo[t.Var]
			if t.Coef > 0 {
				maxAct += t.Coef * r
			} else {
				minAct += t.Coef * r
			}
		}
		tol := feasTol * (1 + math.Abs(rhs))
		switch c.Sense {
		case lp.LE:
			if minAct > rhs+tol {
				return relaxation{status: relaxInfeasible}, nil
			}
			if maxAct <= rhs {
				continue
			}
		case lp.GE:
			if maxAct < rhs-tol {
				return relaxation{status: relaxInfeasible}, nil
			}
			if minAct >= rhs {
				continue
			}
		case lp.EQ:
			if minAct > rhs+tol || maxAct < rhs-tol {
				return relaxation{status: relaxInfeasible}, nil
			}
		}
		if len(terms) == 0 {
			continue
		}
		for _, t := range terms {
			used[t.Var] = true
		}
		rows = append(rows, stdRow{terms: terms, sense: c.Sense, rhs: rhs})
	}

	// Columns that appear in no remaining row sit at whichever bound is cheaper.
	remap := make([]int, len(cols))
	var active []int
	for k, j := range cols {
		remap[k] = -1
		if used[k] {
			remap[k] = len(active)
			active = append(active, j)
			continue
		}
		if cost[j] < 0 {
			if math.IsInf(hi[j], 1) {
				return relaxation{status: relaxUnbounded}, nil
			}
			x[j] = hi[j]
		}
	}

	if len(rows) > 0 {
		y, status, err := solveStandard(rows, remap, active, lo, hi, cost)
		if err != nil || status != relaxOptimal {
			return relaxation{status: status}, err
		}
		for k, j := range active {
			x[j] = lo[j] + y[k]
		}
	}

	for j := range x {
		x[j] = math.Max(lo[j], math.Min(hi[j], x[j]))
	}
	for _, c := range m.Constraints {
		if !c.Satisfied(x, verifyTol) {
			return relaxation{}, fmt.Errorf("relaxation solution violates row %q", c.Name)
		}
	}
	f := 0.0
	for j, v := range x {
		f += cost[j] * v
	}
	return relaxation{status: relaxOptimal, x: x, f: f}, nil
}

func solveStandard(rows []stdRow, remap, active []int, lo, hi, cost []float64) ([]float64, relaxStatus, error) {
	ny := len(active)
	nRows := len(rows)
	nSlack := 0
	for _, r := range rows {
		if r.sense != lp.EQ {
			nSlack++
		}
	}
	var bounded []int
	for k, j := range active {
		if !math.IsInf(hi[j], 1) {
			bounded = append(bounded, k)
		}
	}
	mRows := nRows + len(bounded)
	nCols := ny + nSlack + len(bounded)
	if mRows > nCols {
		return nil, relaxOptimal, fmt.Errorf("standard form has %d rows and only %d columns", mRows, nCols)
	}

	a := mat.NewDense(mRows, nCols, nil)
	b := make([]float64, mRows)
	c := make([]float64, nCols)
	for k, j := range active {
		c[k] = cost[j]
	}
	s := ny
	for i, r := range rows {
		for _, t := range r.terms {
			k := remap[t.Var]
			a.Set(i, k, a.At(i, k)+t.Coef)
		}
		switch r.sense {
		case lp.LE:
			a.Set(i, s, 1)
			s++
		case lp.GE:
			a.Set(i, s, -1)
			s++
		}
		b[i] = r.rhs
	}
	for q, k := range bounded {
		i := nRows + q
		j := active[k]
		a.Set(i, k, 1)
		a.Set(i, s, 1)
		s++
		b[i] = hi[j] - lo[j]
	}

	basis := crashBasis(a, b)
	y, err := simplex(c, a, b, basis)
	if err != nil && !isTerminal(err) {
		perturbed := make([]float64, len(b))
		for i, v := range b {
			perturbed[i] = v + perturbEps*(1+math.Abs(v))*(1+float64(i%7)/7)
		}
		y, err = simplex(c, a, perturbed, crashBasis(a, perturbed))
	}
	switch {
	case err == nil:
		return y[:ny], relaxOptimal, nil
	case isInfeasible(err):
		return nil, relaxInfeasible, nil
	case errors.Is(err, golp.ErrUnbounded):
		return nil, relaxUnbounded, nil
	default:
		return nil, relaxOptimal, err
	}
}

// crashBasis picks, for every row, a column that is nonzero only in that row
// and whose value b/a is nonnegative. Rows whose pick is negative are negated
// in place. It returns nil when some row has no such column.
func crashBasis(a *mat.Dense, b []float64) []int {
	m, n := a.Dims()
	nnz := make([]int, n)
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			if a.At(i, j) != 0 {
				nnz[j]++
			}
		}
	}
	basis := make([]int, m)
	taken := make([]bool, n)
	for i := 0; i < m; i++ {
		basis[i] = -1
		for j := n - 1; j >= 0; j-- {
			v := a.At(i, j)
			if nnz[j] != 1 || v == 0 || taken[j] || v*b[i] < 0 {
				continue
			}
			basis[i] = j
			taken[j] = true
			if v < 0 {
				for q := 0; q < n; q++ {
					a.Set(i, q, -a.At(i, q))
				}
				b[i] = -b[i]
			}
			break
		}
		if basis[i] < 0 {
			return nil
		}
	}
	return basis
}

func simplex(c []float64, a *mat.Dense, b []float64, basis []int) (x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simplex: %v", r)
		}
	}()
	_, x, err = golp.Simplex(c, a, b, simplexTol, basis)
	return x, err
}

func isInfeasible(err error) bool {
	return errors.Is(err, golp.ErrInfeasible) || strings.Contains(err.Error(), "infeasible")
}

func isTerminal(err error) bool {
	return isInfeasible(err) || errors.Is(err, golp.ErrUnbounded)
}
