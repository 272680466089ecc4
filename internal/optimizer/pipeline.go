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

package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/foodbank-alloc/fbdam/api/v1alpha1"
	"github.com/foodbank-alloc/fbdam/internal/config"
	"github.com/foodbank-alloc/fbdam/internal/loader"
	"github.com/foodbank-alloc/fbdam/internal/logging"
	"github.com/foodbank-alloc/fbdam/internal/metrics"
	"github.com/foodbank-alloc/fbdam/internal/scenario"
	scenarioconfig "github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/core"
	"github.com/foodbank-alloc/fbdam/pkg/kpi"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
	"github.com/foodbank-alloc/fbdam/pkg/model"
	"github.com/foodbank-alloc/fbdam/pkg/solver"
)

// ReportSink persists finished reports.
type ReportSink interface {
	Save(ctx context.Context, r *v1alpha1.RunReport) error
}

// BackendFactory creates the backend for a run's effective solver options.
type BackendFactory func(opts scenarioconfig.SolverOptions) (solver.Backend, error)

// Pipeline compiles, solves and reports scenarios.
type Pipeline struct {
	settings   *config.Settings
	builder    *model.Builder
	recorder   *metrics.Recorder
	sink       ReportSink
	newBackend BackendFactory
	now        func() time.Time
	newUID     func() types.UID

	mu       sync.Mutex
	datasets map[string]*dataset
}

type dataset struct {
	once   sync.Once
	domain *core.Domain
	err    error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder records metrics for every run.
func WithRecorder(r *metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithSink saves every finished report.
func WithSink(s ReportSink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithBuilder replaces the default model builder.
func WithBuilder(b *model.Builder) Option {
	return func(p *Pipeline) { p.builder = b }
}

// WithBackendFactory replaces backend creation.
func WithBackendFactory(f BackendFactory) Option {
	return func(p *Pipeline) { p.newBackend = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline returns a pipeline over settings.
func NewPipeline(settings *config.Settings, opts ...Option) *Pipeline {
	p := &Pipeline{
		settings: settings,
		builder:  model.NewBuilder(nil),
		now:      time.Now,
		newUID:   func() types.UID { return types.UID(uuid.NewString()) },
		datasets: map[string]*dataset{},
	}
	p.newBackend = p.defaultBackend
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) defaultBackend(opts scenarioconfig.SolverOptions) (solver.Backend, error) {
	if strings.EqualFold(opts.Name, solver.HighsName) {
		return solver.NewHighsBackend(p.settings.Solver.HighsPath), nil
	}
	return solver.NewBackend(opts.Name)
}

// Compiled is a compiled scenario together with its effective solver options.
type Compiled struct {
	*model.Compiled
	Solver scenarioconfig.SolverOptions
}

// Compile loads the dataset of l and compiles its scenario without solving.
func (p *Pipeline) Compile(ctx context.Context, l *scenario.Loaded) (*Compiled, error) {
	s, err := p.effectiveScenario(l)
	if err != nil {
		return nil, err
	}
	d, err := p.domain(l.DatasetPath)
	if err != nil {
		return nil, err
	}
	c, err := p.builder.Build(ctx, d, s)
	p.recorder.ObserveCompile(err)
	if err != nil {
		return nil, err
	}
	p.recorder.ObserveModel(c.Stats())
	return &Compiled{Compiled: c, Solver: s.Solver}, nil
}

// Export compiles l and writes the model to w in MPS format.
func (p *Pipeline) Export(ctx context.Context, l *scenario.Loaded, w io.Writer) (lp.Stats, error) {
	c, err := p.Compile(ctx, l)
	if err != nil {
		return lp.Stats{}, err
	}
	if err := lp.WriteMPS(w, c.LP); err != nil {
		return lp.Stats{}, fmt.Errorf("writing MPS for %q: %w", l.Scenario.Name, err)
	}
	return c.Stats(), nil
}

// Run executes one scenario. The returned report is never nil. The error is
// set when the scenario could not be compiled or the report could not be saved.
func (p *Pipeline) Run(ctx context.Context, l *scenario.Loaded) (*v1alpha1.RunReport, error) {
	start := p.now()
	report := v1alpha1.NewRunReport(p.newUID(), l.Scenario.Name, start)
	report.Spec.ScenarioPath = l.Path
	report.Spec.DatasetPath = l.DatasetPath
	report.Spec.Solver = l.Scenario.Solver
	report.Spec.Objective = l.Scenario.Objective.ID
	report.Spec.Dials = l.Scenario.Dials

	logger := logging.FromContext(ctx).WithValues("scenario", l.Scenario.Name, "run", report.Name)
	ctx = logging.IntoContext(ctx, logger)

	c, err := p.Compile(ctx, l)
	if err != nil {
		reason := v1alpha1.ReasonBuildFailed
		if errors.Is(err, scenarioconfig.ErrConfig) || errors.Is(err, loader.ErrDataset) {
			reason = v1alpha1.ReasonInvalidConfig
		}
		report.Status.Error = err.Error()
		report.SetCondition(v1alpha1.ConditionCompiled, metav1.ConditionFalse, reason, err.Error())
		report.SetCondition(v1alpha1.ConditionSolved, metav1.ConditionFalse, v1alpha1.ReasonNotSolved, "scenario did not compile")
		report.SetCondition(v1alpha1.ConditionFeasible, metav1.ConditionUnknown, v1alpha1.ReasonNotSolved, "scenario did not compile")
		logger.Error(err, "Scenario did not compile")
		return p.finish(ctx, report, err)
	}

	stats := c.Stats()
	report.Spec.Solver = c.Solver
	report.Spec.Constraints = c.Active
	report.Status.Model = &stats
	report.SetCondition(v1alpha1.ConditionCompiled, metav1.ConditionTrue, v1alpha1.ReasonBuildSucceeded,
		fmt.Sprintf("%d variables, %d constraints", stats.Variables, stats.Constraints))
	logger.V(logging.DEBUG).Info("Scenario compiled",
		"variables", stats.Variables,
		"integers", stats.Integers,
		"constraints", stats.Constraints,
		"nonzeros", stats.Nonzeros)

	res := p.solve(ctx, c)
	res = res.WithVariables(c.Canonicalize(res.Variables))
	report.RecordResult(res)
	p.recorder.ObserveSolve(res.Solver, res.Status, res.ElapsedSeconds)
	if res.IsFeasible {
		p.recorder.ObserveObjective(l.Scenario.Name, res.ObjectiveValue)
	}

	kpis := kpi.Extract(c.Compiled, res)
	report.Status.KPIs = &kpis

	logger.Info("Scenario solved",
		"solver", res.Solver,
		"status", res.Status,
		"feasible", res.IsFeasible,
		"elapsedSeconds", res.ElapsedSeconds)
	return p.finish(ctx, report, nil)
}

func (p *Pipeline) solve(ctx context.Context, c *Compiled) *solver.Result {
	backend, err := p.newBackend(c.Solver)
	if err != nil {
		backend = failingBackend{name: c.Solver.Name, err: err}
	}
	return solver.NewAdapter(backend).Solve(ctx, c.LP, solver.OptionsFrom(c.Solver))
}

func (p *Pipeline) finish(ctx context.Context, report *v1alpha1.RunReport, runErr error) (*v1alpha1.RunReport, error) {
	report.Complete(p.now())
	if p.sink == nil {
		return report, runErr
	}
	if err := p.sink.Save(ctx, report); err != nil {
		return report, errors.Join(runErr, fmt.Errorf("saving run %s: %w", report.Name, err))
	}
	return report, runErr
}

// effectiveScenario returns a copy of the scenario carrying the layered
// solver options. The loaded scenario is not modified.
func (p *Pipeline) effectiveScenario(l *scenario.Loaded) (*scenarioconfig.Scenario, error) {
	s := *l.Scenario
	if p.settings != nil {
		opts, err := p.settings.EffectiveSolver(l.Profile, l.Scenario.Solver)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		s.Solver = opts
	}
	return &s, nil
}

// domain loads each dataset directory once. Domains are immutable, so runs
// share them.
func (p *Pipeline) domain(path string) (*core.Domain, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: dataset.path is required", scenarioconfig.ErrConfig)
	}
	p.mu.Lock()
	ds, ok := p.datasets[path]
	if !ok {
		ds = &dataset{}
		p.datasets[path] = ds
	}
	p.mu.Unlock()

	ds.once.Do(func() {
		ds.domain, ds.err = loader.Load(path)
	})
	return ds.domain, ds.err
}

// failingBackend reports a backend construction error through the Adapter,
// so it surfaces as a solver error result.
type failingBackend struct {
	name string
	err  error
}

func (f failingBackend) Name() string { return f.name }

func (f failingBackend) Solve(context.Context, *lp.Model, solver.Options) (*solver.Outcome, error) {
	return nil, f.err
}
