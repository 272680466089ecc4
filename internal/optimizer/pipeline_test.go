package optimizer_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/foodbank-alloc/fbdam/api/v1alpha1"
	"github.com/foodbank-alloc/fbdam/internal/config"
	"github.com/foodbank-alloc/fbdam/internal/metrics"
	"github.com/foodbank-alloc/fbdam/internal/optimizer"
	"github.com/foodbank-alloc/fbdam/internal/scenario"
	scenarioconfig "github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/kpi"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
	"github.com/foodbank-alloc/fbdam/pkg/solver"
)

const baselineDoc = `
name: baseline
dataset:
  path: toy
model:
  constraints:
    - ref: nutrition_utility_mapping
    - ref: item_supply_limit
  objective:
    ref: sum_utility
`

func parse(doc string) *scenario.Loaded {
	base, err := filepath.Abs("../loader/testdata")
	Expect(err).NotTo(HaveOccurred())
	l, err := scenario.Parse(strings.NewReader(doc), base, "test")
	Expect(err).NotTo(HaveOccurred())
	return l
}

func settings() *config.Settings {
	return &config.Settings{
		Solver:      config.SolverSettings{Name: solver.GonumName, MIPRelGap: solver.DefaultRelGap},
		Parallelism: 2,
		Log:         config.LogSettings{Level: "info"},
		Profiles: map[string]config.SolverProfile{
			"quick": {TimeLimit: 5},
		},
	}
}

type memorySink struct {
	mu      sync.Mutex
	reports []*v1alpha1.RunReport
	err     error
}

func (m *memorySink) Save(_ context.Context, r *v1alpha1.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return m.err
}

type fixedBackend struct {
	out *solver.Outcome
}

func (f fixedBackend) Name() string { return "fixed" }

func (f fixedBackend) Solve(context.Context, *lp.Model, solver.Options) (*solver.Outcome, error) {
	return f.out, nil
}

var _ = Describe("Pipeline", func() {
	var (
		ctx  context.Context
		sink *memorySink
		reg  *prometheus.Registry
		rec  *metrics.Recorder
		now  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		sink = &memorySink{}
		reg = prometheus.NewRegistry()
		var err error
		rec, err = metrics.NewRecorder(reg)
		Expect(err).NotTo(HaveOccurred())
		now = time.Date(2025, 5, 4, 10, 30, 0, 0, time.UTC)
	})

	newPipeline := func(opts ...optimizer.Option) *optimizer.Pipeline {
		opts = append([]optimizer.Option{
			optimizer.WithSink(sink),
			optimizer.WithRecorder(rec),
			optimizer.WithClock(func() time.Time { return now }),
		}, opts...)
		return optimizer.NewPipeline(settings(), opts...)
	}

	Context("Run", func() {
		It("should record the scenario dials the model was compiled with", func() {
			report, err := newPipeline().Run(ctx, parse(`
name: capped
dataset:
  path: toy
model:
  dials:
    alpha: 0.4
    omega: {default: 0.8, h2: 0.9}
  constraints:
    - ref: nutrition_utility_mapping
    - ref: item_supply_limit
    - ref: item_equity_aggregate_cap
  objective:
    ref: sum_utility
`))
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Spec.Dials).To(HaveKey("alpha"))

			raw, err := json.Marshal(report.Spec)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring(`"dials":{"alpha":0.4,"omega":{"default":0.8,"h2":0.9}}`))
		})

		It("should solve the baseline scenario to optimality", func() {
			report, err := newPipeline().Run(ctx, parse(baselineDoc))
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Name).To(Equal("baseline_20250504T103000Z"))
			Expect(report.UID).NotTo(BeEmpty())
			Expect(report.Spec.Constraints).To(Equal([]string{"nutrition_utility_mapping", "item_supply_limit"}))
			Expect(report.Spec.Solver.Name).To(Equal(solver.GonumName))
			Expect(report.Spec.DatasetPath).To(HaveSuffix("toy"))
			Expect(report.Status.Model).NotTo(BeNil())
			Expect(report.Status.CompletionTime).NotTo(BeNil())

			Expect(report.GetCondition(v1alpha1.ConditionCompiled).Status).To(Equal(metav1.ConditionTrue))
			Expect(report.GetCondition(v1alpha1.ConditionSolved).Status).To(Equal(metav1.ConditionTrue))
			Expect(report.Feasible()).To(BeTrue())

			res := report.Status.Result
			Expect(res.Status).To(Equal(solver.StatusOK))
			Expect(*res.ObjectiveValue).To(BeNumerically("~", 9.0, 1e-6))

			Expect(report.Status.KPIs).NotTo(BeNil())
			Expect(report.Status.KPIs.Basic.FeasibilityStatus).To(Equal(kpi.Optimal))
			Expect(report.Status.KPIs.Supply).NotTo(BeNil())

			Expect(sink.reports).To(ConsistOf(report))

			n, err := testutil.GatherAndCount(reg, "fbdam_compile_total", "fbdam_solve_total", "fbdam_objective_value")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
		})

		It("should apply the selected solver profile under the scenario's own options", func() {
			l := parse(baselineDoc + "solver:\n  profile: quick\n  threads: 1\n")
			report, err := newPipeline().Run(ctx, l)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Spec.Solver.TimeLimit).To(Equal(5.0))
			Expect(report.Spec.Solver.Threads).To(Equal(1))
			Expect(*report.Spec.Solver.MIPRelGap).To(Equal(solver.DefaultRelGap))
		})

		It("should report an unknown profile as a configuration error", func() {
			l := parse(baselineDoc + "solver:\n  profile: turbo\n")
			report, err := newPipeline().Run(ctx, l)
			Expect(err).To(MatchError(scenarioconfig.ErrConfig))
			Expect(report.GetCondition(v1alpha1.ConditionCompiled).Reason).To(Equal(v1alpha1.ReasonInvalidConfig))
		})

		It("should record a missing dataset as a failed compile", func() {
			l := parse(strings.Replace(baselineDoc, "path: toy", "path: nowhere", 1))
			report, err := newPipeline().Run(ctx, l)
			Expect(err).To(HaveOccurred())

			Expect(report.Status.Error).To(ContainSubstring("nowhere"))
			cond := report.GetCondition(v1alpha1.ConditionCompiled)
			Expect(cond.Status).To(Equal(metav1.ConditionFalse))
			Expect(cond.Reason).To(Equal(v1alpha1.ReasonInvalidConfig))
			Expect(report.GetCondition(v1alpha1.ConditionFeasible).Status).To(Equal(metav1.ConditionUnknown))
			Expect(report.Status.Result).To(BeNil())
			Expect(sink.reports).To(HaveLen(1), "failed runs are still recorded")
		})

		It("should turn a backend construction error into a solver error result", func() {
			p := newPipeline(optimizer.WithBackendFactory(func(scenarioconfig.SolverOptions) (solver.Backend, error) {
				return nil, errors.New("license expired")
			}))
			report, err := p.Run(ctx, parse(baselineDoc))
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Status.Result.State).To(Equal(solver.StateSolverError))
			Expect(report.Status.Result.ErrorMessage).To(ContainSubstring("license expired"))
			Expect(report.GetCondition(v1alpha1.ConditionSolved).Status).To(Equal(metav1.ConditionFalse))
			Expect(report.Status.KPIs.Basic.FeasibilityStatus).To(Equal(kpi.Infeasible))
			Expect(report.Status.KPIs.Supply).To(BeNil())
		})

		It("should mark infeasible outcomes without failing the run", func() {
			p := newPipeline(optimizer.WithBackendFactory(func(scenarioconfig.SolverOptions) (solver.Backend, error) {
				return fixedBackend{out: &solver.Outcome{Termination: "infeasible"}}, nil
			}))
			report, err := p.Run(ctx, parse(baselineDoc))
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Feasible()).To(BeFalse())
			Expect(report.GetCondition(v1alpha1.ConditionFeasible).Reason).To(Equal(v1alpha1.ReasonInfeasible))
			Expect(report.Status.Result.ObjectiveValue).To(BeNil())
		})

		It("should surface sink failures", func() {
			sink.err = errors.New("disk full")
			report, err := newPipeline().Run(ctx, parse(baselineDoc))
			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(report.Feasible()).To(BeTrue())
		})
	})

	Context("Export", func() {
		It("should write the compiled model as MPS", func() {
			var buf bytes.Buffer
			stats, err := newPipeline().Export(ctx, parse(baselineDoc), &buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Variables).To(Equal(4*3 + 3*3))
			Expect(buf.String()).To(ContainSubstring("ROWS"))
			Expect(buf.String()).To(ContainSubstring("alloc[apples,h1]"))
		})
	})

	Context("WriteReport", func() {
		It("should write the report as JSON named after the run", func() {
			report, err := newPipeline().Run(ctx, parse(baselineDoc))
			Expect(err).NotTo(HaveOccurred())

			dir := GinkgoT().TempDir()
			path, err := optimizer.WriteReport(dir, report)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(filepath.Join(dir, "baseline_20250504T103000Z.json")))

			raw, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring(`"apiVersion": "fbdam.foodbank.org/v1alpha1"`))
			Expect(string(raw)).To(ContainSubstring(`"kind": "RunReport"`))
		})
	})

	Context("RunBatch", func() {
		It("should run every scenario and join the errors", func() {
			good := parse(baselineDoc)
			bad := parse(strings.Replace(strings.Replace(baselineDoc, "path: toy", "path: missing", 1), "baseline", "broken", 1))
			reports, err := newPipeline().RunBatch(ctx, []*scenario.Loaded{good, bad, good}, 2)

			Expect(reports).To(HaveLen(3))
			Expect(reports[0].Spec.Scenario).To(Equal("baseline"))
			Expect(reports[1].Spec.Scenario).To(Equal("broken"))
			Expect(reports[0].UID).NotTo(Equal(reports[2].UID))
			Expect(reports[0].Feasible()).To(BeTrue())
			Expect(reports[2].Feasible()).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("missing")))
		})

		It("should skip scenarios once the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			reports, err := newPipeline().RunBatch(cctx, []*scenario.Loaded{parse(baselineDoc)}, 1)
			Expect(reports).To(BeEmpty())
			Expect(err).To(MatchError(context.Canceled))
		})
	})
})
