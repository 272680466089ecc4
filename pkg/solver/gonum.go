package solver

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/foodbank-alloc/fbdam/internal/logging"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// GonumName is the registered name of the in-process backend.
const GonumName = "gonum"

const (
	intTol           = 1e-6
	defaultNodeLimit = 100000
)

// Terminations reported by the gonum backend.
const (
	TerminationOptimal    = "optimal"
	TerminationInfeasible = "infeasible"
	TerminationUnbounded  = "unbounded"
	TerminationTimeLimit  = "time limit reached"
	TerminationNodeLimit  = "node limit reached"
)

// GonumBackend solves LP relaxations with the gonum simplex and closes
// integrality with depth-first branch-and-bound on the most fractional
// variable.
type GonumBackend struct {
	now func() time.Time
}

// NewGonumBackend returns the in-process backend.
func NewGonumBackend() *GonumBackend {
	return &GonumBackend{now: time.Now}
}

func (g *GonumBackend) Name() string { return GonumName }

type bbNode struct {
	lo, hi []float64
	bound  float64
}

// Solve runs the search. The "node_limit" extra option caps explored nodes.
func (g *GonumBackend) Solve(ctx context.Context, m *lp.Model, opts Options) (*Outcome, error) {
	logger := logging.FromContext(ctx)
	if opts.Threads > 1 {
		logger.V(logging.DEBUG).Info("Ignoring threads option for single-threaded backend", "threads", opts.Threads)
	}
	nodeLimit := defaultNodeLimit
	if v, ok := opts.Extra["node_limit"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid node_limit %q", v)
		}
		nodeLimit = n
	}
	var deadline time.Time
	if opts.TimeLimit > 0 {
		deadline = g.now().Add(opts.TimeLimit)
	}

	n := len(m.Vars)
	lo, hi := make([]float64, n), make([]float64, n)
	for j, v := range m.Vars {
		lo[j], hi[j] = v.Lower, v.Upper
		if v.Kind != lp.Continuous {
			lo[j], hi[j] = math.Ceil(lo[j]-intTol), math.Floor(hi[j]+intTol)
		}
	}

	var (
		incumbent []float64
		best      = math.Inf(1)
		openBound = math.Inf(1)
		nodes     int
		failures  int
		lastErr   error
		stack     = []bbNode{{lo: lo, hi: hi, bound: math.Inf(-1)}}
		stopped   string
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !deadline.IsZero() && g.now().After(deadline) {
			stopped = TerminationTimeLimit
			break
		}
		if nodes >= nodeLimit {
			stopped = TerminationNodeLimit
			break
		}
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if prune(node.bound, best, opts.RelGap) {
			if node.bound < best {
				openBound = math.Min(openBound, node.bound)
			}
			continue
		}
		nodes++

		rel, err := solveRelaxation(m, node.lo, node.hi)
		if err != nil {
			if nodes == 1 {
				return nil, err
			}
			logger.V(logging.TRACE).Info("Skipping node after relaxation failure", "node", nodes, "error", err.Error())
			failures++
			lastErr = err
			openBound = math.Min(openBound, node.bound)
			continue
		}
		switch rel.status {
		case relaxInfeasible:
			continue
		case relaxUnbounded:
			if nodes == 1 {
				return &Outcome{Termination: TerminationUnbounded, Nodes: nodes}, nil
			}
			continue
		}
		if prune(rel.f, best, opts.RelGap) {
			if rel.f < best {
				openBound = math.Min(openBound, rel.f)
			}
			continue
		}

		j := branchVariable(m, rel.x)
		if j < 0 {
			x := roundIntegers(m, rel.x)
			if !m.Feasible(x, verifyTol) {
				x = rel.x
			}
			best = minObjective(m, x)
			incumbent = x
			logger.V(logging.TRACE).Info("New incumbent", "node", nodes, "objective", m.Objective.Eval(x))
			continue
		}

		v := rel.x[j]
		down := bbNode{lo: clone(node.lo), hi: clone(node.hi), bound: rel.f}
		down.hi[j] = math.Floor(v)
		up := bbNode{lo: clone(node.lo), hi: clone(node.hi), bound: rel.f}
		up.lo[j] = math.Ceil(v)
		// The child nearer the relaxed value is explored first.
		if v-math.Floor(v) < 0.5 {
			stack = append(stack, up, down)
		} else {
			stack = append(stack, down, up)
		}
	}

	for _, node := range stack {
		openBound = math.Min(openBound, node.bound)
	}
	out := &Outcome{Nodes: nodes}
	switch {
	case stopped != "":
		out.Termination = stopped
	case incumbent == nil && failures > 0:
		return nil, fmt.Errorf("relaxation failed on %d nodes: %w", failures, lastErr)
	case incumbent == nil:
		out.Termination = TerminationInfeasible
		return out, nil
	default:
		out.Termination = TerminationOptimal
	}
	if incumbent != nil {
		obj := m.Objective.Eval(incumbent)
		out.Objective = &obj
		out.Values = incumbent
	}
	bound := math.Min(openBound, best)
	if !math.IsInf(bound, 0) {
		b := fromMinObjective(m, bound)
		out.BestBound = &b
	}
	logger.V(logging.DEBUG).Info("Branch-and-bound finished", "termination", out.Termination, "nodes", nodes)
	return out, nil
}

// prune reports whether a node with relaxation bound cannot improve the
// incumbent by more than the relative gap.
func prune(bound, best, relGap float64) bool {
	if math.IsInf(best, 1) {
		return false
	}
	return best-bound <= relGap*math.Max(math.Abs(best), 1e-10)+1e-9
}

func branchVariable(m *lp.Model, x []float64) int {
	j, worst := -1, intTol
	for i, v := range m.Vars {
		if v.Kind == lp.Continuous {
			continue
		}
		frac := math.Abs(x[i] - math.Round(x[i]))
		if frac > worst {
			j, worst = i, frac
		}
	}
	return j
}

func roundIntegers(m *lp.Model, x []float64) []float64 {
	out := clone(x)
	for i, v := range m.Vars {
		if v.Kind != lp.Continuous {
			out[i] = math.Round(out[i])
		}
	}
	return out
}

func minObjective(m *lp.Model, x []float64) float64 {
	v := m.Objective.Eval(x) - m.Objective.Constant
	if m.Maximize {
		return -v
	}
	return v
}

func fromMinObjective(m *lp.Model, f float64) float64 {
	if m.Maximize {
		f = -f
	}
	return f + m.Objective.Constant
}

func clone(s []float64) []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
