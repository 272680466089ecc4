package solver

import "strings"

// Normalized statuses.
const (
	StatusOK         = "ok"
	StatusInfeasible = "infeasible"
	StatusUnbounded  = "unbounded"
	StatusTimeLimit  = "time_limit"
	StatusError      = "error"
)

// State is the lifecycle position of a solve.
type State string

const (
	StateNotStarted  State = "not_started"
	StateSubmitted   State = "submitted"
	StateOptimal     State = "optimal"
	StateFeasible    State = "feasible"
	StateInfeasible  State = "infeasible"
	StateUnbounded   State = "unbounded"
	StateSolverError State = "solver_error"
)

// Terminal reports whether s ends a solve.
func (s State) Terminal() bool {
	switch s {
	case StateOptimal, StateFeasible, StateInfeasible, StateUnbounded, StateSolverError:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a solve may move from s to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateNotStarted:
		return next == StateSubmitted || next == StateSolverError
	case StateSubmitted:
		return next.Terminal()
	default:
		return false
	}
}

// NormalizeStatus maps a raw termination string to a coarse status.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "optimal"):
		return StatusOK
	case strings.Contains(s, "infeasible"):
		return StatusInfeasible
	case strings.Contains(s, "unbounded"):
		return StatusUnbounded
	case strings.Contains(s, "limit"), strings.Contains(s, "timeout"):
		return StatusTimeLimit
	default:
		return raw
	}
}

// IsFeasible decides the feasibility flag from the normalized status and the
// raw termination. Unrecognized outcomes are not feasible.
func IsFeasible(status, termination string, hasSolution bool) bool {
	st, term := strings.ToLower(status), strings.ToLower(termination)
	switch {
	case strings.Contains(st, "infeasible"), strings.Contains(term, "infeasible"),
		strings.Contains(st, "unbounded"), strings.Contains(term, "unbounded"):
		return false
	case st == StatusOK, strings.Contains(st, "optimal"), strings.Contains(term, "optimal"),
		strings.Contains(st, "feasible"), strings.Contains(term, "feasible"):
		return true
	case st == StatusTimeLimit:
		return hasSolution
	default:
		return false
	}
}

func stateFor(status string, feasible, hasSolution bool) State {
	switch {
	case status == StatusOK:
		return StateOptimal
	case status == StatusInfeasible:
		return StateInfeasible
	case status == StatusUnbounded:
		return StateUnbounded
	case feasible && hasSolution:
		return StateFeasible
	default:
		return StateSolverError
	}
}
