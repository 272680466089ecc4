// Package solver submits compiled models to a MILP backend and normalizes the
// outcome into a Result.
//
// Key Components:
//
//   - Backend: a solver engine. "gonum" solves in process with the gonum
//     simplex and a depth-first branch-and-bound; "highs" runs the HiGHS
//     executable on an MPS export.
//   - Adapter: drives one solve through NotStarted → Submitted → a terminal
//     state, and converts every backend error or panic into a SolverError result.
//   - ValueOrNone: the single evaluation helper for solved values, shared with
//     KPI extraction.
//
// Status Normalization:
//
// Raw termination strings are mapped case-insensitively: "optimal" → ok,
// "infeasible" → infeasible, "unbounded" → unbounded, "limit"/"timeout" →
// time_limit; anything else passes through. A time-limited solve counts as
// feasible only when the backend returned a primal solution.
//
// Example usage:
//
//	backend, err := solver.NewBackend("gonum")
//	if err != nil {
//	    return err
//	}
//	res := solver.NewAdapter(backend).Solve(ctx, compiled.LP, solver.OptionsFrom(scenario.Solver))
//	if !res.IsFeasible {
//	    log.Info("no feasible allocation", "status", res.Status, "termination", res.Termination)
//	}
package solver
