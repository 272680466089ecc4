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

// Package metrics records compile and solve outcomes as Prometheus metrics.
//
// A command runs once and exits, so metrics are not scraped. They are
// written to a node_exporter textfile after the command finishes:
//
//	reg := prometheus.NewRegistry()
//	rec, err := metrics.NewRecorder(reg)
//	...
//	rec.ObserveSolve("gonum", "ok", 1.2)
//	err = metrics.WriteTextfile(path, reg)
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

const namespace = "fbdam"

// Compile results.
const (
	CompileSuccess = "success"
	CompileError   = "error"
)

// Model size kinds.
const (
	SizeVariables   = "variables"
	SizeIntegers    = "integers"
	SizeBinaries    = "binaries"
	SizeConstraints = "constraints"
	SizeNonzeros    = "nonzeros"
)

// Recorder holds the collectors. All methods are safe for concurrent use.
type Recorder struct {
	compileTotal  *prometheus.CounterVec
	solveTotal    *prometheus.CounterVec
	solveDuration *prometheus.HistogramVec
	modelSize     *prometheus.GaugeVec
	objective     *prometheus.GaugeVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		compileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compile_total",
			Help:      "Scenario compilations by result.",
		}, []string{"result"}),
		solveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solve_total",
			Help:      "Solver submissions by backend and normalized status.",
		}, []string{"solver", "status"}),
		solveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Wall time spent in the solver.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"solver"}),
		modelSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_size",
			Help:      "Size of the most recently compiled model.",
		}, []string{"kind"}),
		objective: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "objective_value",
			Help:      "Objective value of the last feasible solve per scenario.",
		}, []string{"scenario"}),
	}
	for _, c := range []prometheus.Collector{r.compileTotal, r.solveTotal, r.solveDuration, r.modelSize, r.objective} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return r, nil
}

// ObserveCompile counts one compilation.
func (r *Recorder) ObserveCompile(err error) {
	if r == nil {
		return
	}
	result := CompileSuccess
	if err != nil {
		result = CompileError
	}
	r.compileTotal.WithLabelValues(result).Inc()
}

// ObserveModel records the size of a compiled model.
func (r *Recorder) ObserveModel(s lp.Stats) {
	if r == nil {
		return
	}
	r.modelSize.WithLabelValues(SizeVariables).Set(float64(s.Variables))
	r.modelSize.WithLabelValues(SizeIntegers).Set(float64(s.Integers))
	r.modelSize.WithLabelValues(SizeBinaries).Set(float64(s.Binaries))
	r.modelSize.WithLabelValues(SizeConstraints).Set(float64(s.Constraints))
	r.modelSize.WithLabelValues(SizeNonzeros).Set(float64(s.Nonzeros))
}

// ObserveSolve counts one solver submission and its duration.
func (r *Recorder) ObserveSolve(solver, status string, seconds float64) {
	if r == nil {
		return
	}
	r.solveTotal.WithLabelValues(solver, status).Inc()
	r.solveDuration.WithLabelValues(solver).Observe(seconds)
}

// ObserveObjective records the objective of a feasible solve. Nil is ignored.
func (r *Recorder) ObserveObjective(scenario string, value *float64) {
	if r == nil || value == nil {
		return
	}
	r.objective.WithLabelValues(scenario).Set(*value)
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format. The file is replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
