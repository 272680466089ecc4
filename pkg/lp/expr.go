package lp

import (
	"math"
	"sort"
)

// Term is a coefficient applied to a variable index.
type Term struct {
	Var  int
	Coef float64
}

// Expr is an affine expression over model variables. Methods return new
// expressions and never modify the receiver, so a single Expr can be shared
// by every constraint that references it.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Variable returns the expression 1*x_v.
func Variable(v int) Expr {
	return Expr{Terms: []Term{{Var: v, Coef: 1}}}
}

// Const returns a constant expression.
func Const(c float64) Expr {
	return Expr{Constant: c}
}

// Sum adds expressions.
func Sum(exprs ...Expr) Expr {
	n := 0
	for _, e := range exprs {
		n += len(e.Terms)
	}
	out := Expr{Terms: make([]Term, 0, n)}
	for _, e := range exprs {
		out.Terms = append(out.Terms, e.Terms...)
		out.Constant += e.Constant
	}
	return out
}

// Add returns e + o.
func (e Expr) Add(o Expr) Expr {
	return Sum(e, o)
}

// Sub returns e - o.
func (e Expr) Sub(o Expr) Expr {
	return Sum(e, o.Scale(-1))
}

// Scale returns k*e.
func (e Expr) Scale(k float64) Expr {
	out := Expr{Terms: make([]Term, len(e.Terms)), Constant: e.Constant * k}
	for i, t := range e.Terms {
		out.Terms[i] = Term{Var: t.Var, Coef: t.Coef * k}
	}
	return out
}

// AddTerm returns e + coef*x_v.
func (e Expr) AddTerm(v int, coef float64) Expr {
	out := Expr{Terms: make([]Term, len(e.Terms), len(e.Terms)+1), Constant: e.Constant}
	copy(out.Terms, e.Terms)
	out.Terms = append(out.Terms, Term{Var: v, Coef: coef})
	return out
}

// Simplify merges repeated variables, drops zero coefficients and sorts terms by variable.
func (e Expr) Simplify() Expr {
	acc := make(map[int]float64, len(e.Terms))
	for _, t := range e.Terms {
		acc[t.Var] += t.Coef
	}
	out := Expr{Terms: make([]Term, 0, len(acc)), Constant: e.Constant}
	for v, c := range acc {
		if c != 0 {
			out.Terms = append(out.Terms, Term{Var: v, Coef: c})
		}
	}
	sort.Slice(out.Terms, func(i, j int) bool { return out.Terms[i].Var < out.Terms[j].Var })
	return out
}

// Eval evaluates e at x. Indices outside x evaluate to NaN.
func (e Expr) Eval(x []float64) float64 {
	s := e.Constant
	for _, t := range e.Terms {
		if t.Var < 0 || t.Var >= len(x) {
			return math.NaN()
		}
		s += t.Coef * x[t.Var]
	}
	return s
}

// IsConstant reports whether e has no variable terms after simplification.
func (e Expr) IsConstant() bool {
	return len(e.Simplify().Terms) == 0
}
