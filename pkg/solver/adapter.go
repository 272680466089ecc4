package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/foodbank-alloc/fbdam/internal/logging"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// Adapter runs solves on a Backend and normalizes what comes back.
type Adapter struct {
	backend Backend
	now     func() time.Time
}

// NewAdapter returns an Adapter for b.
func NewAdapter(b Backend) *Adapter {
	return &Adapter{backend: b, now: time.Now}
}

// Backend returns the wrapped backend.
func (a *Adapter) Backend() Backend {
	return a.backend
}

// Solve never returns an error: backend failures, panics and cancellation
// all come back as a Result in StateSolverError.
func (a *Adapter) Solve(ctx context.Context, m *lp.Model, opts Options) (res *Result) {
	logger := logging.FromContext(ctx).WithValues("solver", a.backend.Name(), "model", m.Name)
	state := StateNotStarted
	start := a.now()

	defer func() {
		if r := recover(); r != nil {
			res = a.errorResult(start, fmt.Sprintf("solver panicked: %v", r))
			logger.Error(fmt.Errorf("%v", r), "Solver panicked")
		}
	}()

	if !state.CanTransition(StateSubmitted) {
		return a.errorResult(start, "invalid solver state")
	}
	state = StateSubmitted
	logger.V(logging.DEBUG).Info("Submitting model", "timeLimit", opts.TimeLimit, "relGap", opts.RelGap)

	out, err := a.backend.Solve(ctx, m, opts)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		logger.Error(err, "Solver failed")
		return a.errorResult(start, err.Error())
	}
	if out == nil {
		return a.errorResult(start, "solver returned no outcome")
	}

	res = a.normalize(m, out, start)
	if !state.CanTransition(res.State) {
		return a.errorResult(start, fmt.Sprintf("invalid transition %s -> %s", state, res.State))
	}
	logger.V(logging.DEBUG).Info("Solve finished", "termination", res.Termination, "status", res.Status,
		"state", res.State, "elapsedSeconds", res.ElapsedSeconds)
	return res
}

func (a *Adapter) normalize(m *lp.Model, out *Outcome, start time.Time) *Result {
	hasSolution := out.Values != nil && len(out.Values) == len(m.Vars)
	status := NormalizeStatus(out.Termination)
	feasible := IsFeasible(status, out.Termination, hasSolution)

	res := &Result{
		Solver:         a.backend.Name(),
		ElapsedSeconds: a.now().Sub(start).Seconds(),
		Termination:    out.Termination,
		Status:         status,
		IsFeasible:     feasible,
		BestBound:      finitePtr(out.BestBound),
		Variables:      make(map[string]*float64, len(m.Vars)),
	}
	res.State = stateFor(status, feasible, hasSolution)
	if res.State == StateSolverError {
		res.IsFeasible = false
		res.ErrorMessage = errorMessageFor(status, out.Termination)
	}

	for j, v := range m.Vars {
		if !hasSolution {
			res.Variables[v.Name] = nil
			continue
		}
		x := out.Values[j]
		if math.IsNaN(x) || math.IsInf(x, 0) {
			res.Variables[v.Name] = nil
			continue
		}
		res.Variables[v.Name] = &x
	}

	res.ObjectiveValue = finitePtr(out.Objective)
	if res.ObjectiveValue == nil && hasSolution {
		res.ObjectiveValue = ValueOrNone(m, m.Objective, res.Variables)
	}
	if res.ObjectiveValue != nil && res.BestBound != nil {
		gap := math.Abs(*res.BestBound-*res.ObjectiveValue) / math.Max(math.Abs(*res.ObjectiveValue), 1e-10)
		res.Gap = &gap
	}
	return res
}

func (a *Adapter) errorResult(start time.Time, msg string) *Result {
	return &Result{
		Solver:         a.backend.Name(),
		ElapsedSeconds: a.now().Sub(start).Seconds(),
		Termination:    "error",
		Status:         StatusError,
		State:          StateSolverError,
		Variables:      map[string]*float64{},
		ErrorMessage:   msg,
	}
}

func errorMessageFor(status, termination string) string {
	if status == StatusTimeLimit {
		return "no feasible solution found before the time limit"
	}
	return fmt.Sprintf("unrecognized solver termination %q", termination)
}
