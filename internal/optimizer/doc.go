// Package optimizer runs scenarios end to end.
//
// A run follows a fixed pipeline:
//
//	Scenario → Dataset → Builder → Adapter → KPI Extractor → Report
//	(scenario)  (loader)  (model)   (solver)      (kpi)       (v1alpha1)
//
// Every run produces a RunReport, including runs that fail to compile; the
// report's Compiled, Solved and Feasible conditions say how far it got.
// Compilation and dataset problems are also returned as errors so callers can
// tell configuration failures from infeasible models. Solver failures are
// never errors: they are recorded in the report's result.
//
// Example usage:
//
//	p := optimizer.NewPipeline(settings,
//	    optimizer.WithRecorder(rec),
//	    optimizer.WithSink(store),
//	)
//	report, err := p.Run(ctx, loaded)
//	if err != nil {
//	    return err
//	}
//	logger.Info("run complete", "run", report.Name, "feasible", report.Feasible())
//
// RunBatch runs independent scenarios concurrently, bounded by the
// configured parallelism. Runs share loaded datasets but nothing else.
package optimizer
