package solver

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/utils/ptr"

	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

type stubBackend struct {
	outcome *Outcome
	err     error
	panics  bool
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Solve(context.Context, *lp.Model, Options) (*Outcome, error) {
	if s.panics {
		panic("boom")
	}
	return s.outcome, s.err
}

func twoVarModel() *lp.Model {
	m := lp.NewModel("two")
	x, _ := m.AddVar("x", 0, 10, lp.Continuous)
	y, _ := m.AddVar("y", 0, 10, lp.Continuous)
	Expect(m.AddConstraint("cap", lp.Variable(x).Add(lp.Variable(y)), lp.LE, lp.Const(4))).To(Succeed())
	Expect(m.SetObjective(lp.Variable(x).Scale(2).Add(lp.Variable(y)).Add(lp.Const(1)), true)).To(Succeed())
	return m
}

var _ = Describe("Adapter", func() {
	var (
		ctx context.Context
		m   *lp.Model
	)

	BeforeEach(func() {
		ctx = context.Background()
		m = twoVarModel()
	})

	It("should report an optimal solve with values and gap", func() {
		a := NewAdapter(&stubBackend{outcome: &Outcome{
			Termination: "Optimal",
			BestBound:   ptr.To(9.0),
			Values:      []float64{4, 0},
		}})
		res := a.Solve(ctx, m, Options{})

		Expect(res.State).To(Equal(StateOptimal))
		Expect(res.Status).To(Equal(StatusOK))
		Expect(res.IsFeasible).To(BeTrue())
		Expect(res.Solver).To(Equal("stub"))
		Expect(*res.ObjectiveValue).To(Equal(9.0))
		Expect(*res.Gap).To(BeZero())
		Expect(*res.Value("x")).To(Equal(4.0))
		Expect(res.ErrorMessage).To(BeEmpty())
	})

	It("should keep variables but no values for an infeasible solve", func() {
		a := NewAdapter(&stubBackend{outcome: &Outcome{Termination: "infeasible"}})
		res := a.Solve(ctx, m, Options{})

		Expect(res.State).To(Equal(StateInfeasible))
		Expect(res.IsFeasible).To(BeFalse())
		Expect(res.Variables).To(HaveLen(2))
		Expect(res.Value("x")).To(BeNil())
		Expect(res.ObjectiveValue).To(BeNil())
	})

	It("should treat a time-limited solve with a solution as feasible", func() {
		a := NewAdapter(&stubBackend{outcome: &Outcome{Termination: "Time limit reached", Values: []float64{1, 1}}})
		res := a.Solve(ctx, m, Options{TimeLimit: time.Second})

		Expect(res.State).To(Equal(StateFeasible))
		Expect(res.IsFeasible).To(BeTrue())
		Expect(*res.ObjectiveValue).To(Equal(4.0))
	})

	It("should report a time-limited solve without a solution as an error", func() {
		a := NewAdapter(&stubBackend{outcome: &Outcome{Termination: "Time limit reached"}})
		res := a.Solve(ctx, m, Options{})

		Expect(res.State).To(Equal(StateSolverError))
		Expect(res.IsFeasible).To(BeFalse())
		Expect(res.ErrorMessage).To(ContainSubstring("time limit"))
	})

	It("should not trust an unrecognized termination", func() {
		a := NewAdapter(&stubBackend{outcome: &Outcome{Termination: "Interrupted", Values: []float64{1, 1}}})
		res := a.Solve(ctx, m, Options{})

		Expect(res.State).To(Equal(StateSolverError))
		Expect(res.IsFeasible).To(BeFalse())
	})

	It("should convert backend errors", func() {
		a := NewAdapter(&stubBackend{err: errors.New("license expired")})
		res := a.Solve(ctx, m, Options{})

		Expect(res.State).To(Equal(StateSolverError))
		Expect(res.Status).To(Equal(StatusError))
		Expect(res.Termination).To(Equal("error"))
		Expect(res.ErrorMessage).To(Equal("license expired"))
		Expect(res.Variables).To(BeEmpty())
	})

	It("should convert backend panics", func() {
		a := NewAdapter(&stubBackend{panics: true})
		var res *Result
		Expect(func() { res = a.Solve(ctx, m, Options{}) }).NotTo(Panic())
		Expect(res.State).To(Equal(StateSolverError))
		Expect(res.ErrorMessage).To(ContainSubstring("boom"))
	})

	It("should report cancellation as an error", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		a := NewAdapter(&stubBackend{outcome: &Outcome{Termination: "Optimal", Values: []float64{4, 0}}})
		res := a.Solve(cctx, m, Options{})

		Expect(res.State).To(Equal(StateSolverError))
		Expect(res.ErrorMessage).To(ContainSubstring("canceled"))
	})

	Describe("ValueOrNone", func() {
		It("should evaluate expressions over named values", func() {
			x, _ := m.VarIndex("x")
			y, _ := m.VarIndex("y")
			expr := lp.Variable(x).Scale(3).AddTerm(y, -1).Add(lp.Const(2))
			v := ValueOrNone(m, expr, map[string]*float64{"x": ptr.To(1.0), "y": ptr.To(4.0)})
			Expect(v).NotTo(BeNil())
			Expect(*v).To(Equal(1.0))
		})

		It("should return nil when a variable has no value", func() {
			x, _ := m.VarIndex("x")
			y, _ := m.VarIndex("y")
			expr := lp.Variable(x).Add(lp.Variable(y))
			Expect(ValueOrNone(m, expr, map[string]*float64{"x": ptr.To(1.0), "y": nil})).To(BeNil())
			Expect(ValueOrNone(m, expr, map[string]*float64{"x": ptr.To(1.0)})).To(BeNil())
		})

		It("should evaluate constants without values", func() {
			Expect(*ValueOrNone(m, lp.Const(7), nil)).To(Equal(7.0))
		})
	})
})
