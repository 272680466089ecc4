package solver

import (
	"context"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/utils/ptr"

	"github.com/foodbank-alloc/fbdam/internal/fixtures"
	"github.com/foodbank-alloc/fbdam/pkg/core"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
	"github.com/foodbank-alloc/fbdam/pkg/model"
)

func mustVar(m *lp.Model, name string, lo, hi float64, kind lp.VarKind) lp.Expr {
	j, err := m.AddVar(name, lo, hi, kind)
	Expect(err).NotTo(HaveOccurred())
	return lp.Variable(j)
}

func boundOf(item, household string, lower float64) core.Bound {
	return core.Bound{ItemID: item, HouseholdID: household, Lower: lower}
}

func values(m *lp.Model, res *Result) []float64 {
	x := make([]float64, len(m.Vars))
	for j, v := range m.Vars {
		x[j] = value(res, v.Name)
	}
	return x
}

func value(res *Result, name string) float64 {
	v := res.Value(name)
	Expect(v).NotTo(BeNil(), name)
	return *v
}

var _ = Describe("GonumBackend", func() {
	var (
		ctx     context.Context
		adapter *Adapter
		opts    Options
	)

	BeforeEach(func() {
		ctx = context.Background()
		adapter = NewAdapter(NewGonumBackend())
		opts = Options{RelGap: DefaultRelGap}
	})

	Context("on small programs", func() {
		It("should solve a linear program", func() {
			m := lp.NewModel("lp")
			x := mustVar(m, "x", 0, 10, lp.Continuous)
			y := mustVar(m, "y", 0, 10, lp.Continuous)
			Expect(m.AddConstraint("a", x.Scale(6).Add(y.Scale(4)), lp.LE, lp.Const(24))).To(Succeed())
			Expect(m.AddConstraint("b", x.Add(y.Scale(2)), lp.LE, lp.Const(6))).To(Succeed())
			Expect(m.SetObjective(x.Scale(5).Add(y.Scale(4)), true)).To(Succeed())

			res := adapter.Solve(ctx, m, opts)
			Expect(res.State).To(Equal(StateOptimal), res.ErrorMessage)
			Expect(*res.ObjectiveValue).To(BeNumerically("~", 21, 1e-6))
			Expect(value(res, "x")).To(BeNumerically("~", 3, 1e-6))
			Expect(value(res, "y")).To(BeNumerically("~", 1.5, 1e-6))
		})

		It("should branch to the integer optimum", func() {
			m := lp.NewModel("milp")
			x := mustVar(m, "x", 0, 10, lp.Integer)
			y := mustVar(m, "y", 0, 10, lp.Integer)
			Expect(m.AddConstraint("a", x.Scale(6).Add(y.Scale(4)), lp.LE, lp.Const(24))).To(Succeed())
			Expect(m.AddConstraint("b", x.Add(y.Scale(2)), lp.LE, lp.Const(6))).To(Succeed())
			Expect(m.SetObjective(x.Scale(5).Add(y.Scale(4)), true)).To(Succeed())

			res := adapter.Solve(ctx, m, opts)
			Expect(res.State).To(Equal(StateOptimal), res.ErrorMessage)
			Expect(*res.ObjectiveValue).To(BeNumerically("~", 20, 1e-6))
			Expect(value(res, "x")).To(Equal(4.0))
			Expect(value(res, "y")).To(Equal(0.0))
			Expect(m.Feasible([]float64{value(res, "x"), value(res, "y")}, 1e-9)).To(BeTrue())
		})

		It("should pick the best binary knapsack", func() {
			m := lp.NewModel("knapsack")
			a := mustVar(m, "a", 0, 1, lp.Binary)
			b := mustVar(m, "b", 0, 1, lp.Binary)
			c := mustVar(m, "c", 0, 1, lp.Binary)
			Expect(m.AddConstraint("weight", lp.Sum(a.Scale(4), b.Scale(6), c.Scale(3)), lp.LE, lp.Const(9))).To(Succeed())
			Expect(m.SetObjective(lp.Sum(a.Scale(10), b.Scale(13), c.Scale(7)), true)).To(Succeed())

			res := adapter.Solve(ctx, m, opts)
			Expect(res.State).To(Equal(StateOptimal), res.ErrorMessage)
			Expect(*res.ObjectiveValue).To(BeNumerically("~", 20, 1e-6))
			Expect(value(res, "a")).To(Equal(0.0))
			Expect(value(res, "b")).To(Equal(1.0))
			Expect(value(res, "c")).To(Equal(1.0))
		})

		It("should minimize with lower bounds and equality rows", func() {
			m := lp.NewModel("min")
			x := mustVar(m, "x", 1, 8, lp.Continuous)
			y := mustVar(m, "y", 0, 8, lp.Continuous)
			Expect(m.AddConstraint("total", x.Add(y), lp.EQ, lp.Const(5))).To(Succeed())
			Expect(m.AddConstraint("ratio", x.Sub(y), lp.GE, lp.Const(-1))).To(Succeed())
			Expect(m.SetObjective(x.Scale(3).Add(y).Add(lp.Const(2)), false)).To(Succeed())

			res := adapter.Solve(ctx, m, opts)
			Expect(res.State).To(Equal(StateOptimal), res.ErrorMessage)
			Expect(value(res, "x")).To(BeNumerically("~", 2, 1e-6))
			Expect(value(res, "y")).To(BeNumerically("~", 3, 1e-6))
			Expect(*res.ObjectiveValue).To(BeNumerically("~", 11, 1e-6))
		})

		It("should detect infeasibility from row activity", func() {
			m := lp.NewModel("infeasible")
			x := mustVar(m, "x", 0, 2, lp.Continuous)
			y := mustVar(m, "y", 0, 2, lp.Continuous)
			Expect(m.AddConstraint("need", x.Add(y), lp.GE, lp.Const(5))).To(Succeed())
			Expect(m.SetObjective(x, true)).To(Succeed())

			res := adapter.Solve(ctx, m, opts)
			Expect(res.State).To(Equal(StateInfeasible))
			Expect(res.IsFeasible).To(BeFalse())
		})

		It("should detect infeasibility through the simplex", func() {
			m := lp.NewModel("infeasible")
			x := mustVar(m, "x", 0, 10, lp.Continuous)
			y := mustVar(m, "y", 0, 10, lp.Continuous)
			Expect(m.AddConstraint("low", x.Add(y), lp.GE, lp.Const(3))).To(Succeed())
			Expect(m.AddConstraint("high", x.Add(y), lp.LE, lp.Const(2))).To(Succeed())
			Expect(m.SetObjective(x, true)).To(Succeed())

			res := adapter.Solve(ctx, m, opts)
			Expect(res.State).To(Equal(StateInfeasible), res.ErrorMessage)
		})

		It("should detect an unbounded objective", func() {
			m := lp.NewModel("unbounded")
			x := mustVar(m, "x", 0, math.Inf(1), lp.Continuous)
			y := mustVar(m, "y", 0, math.Inf(1), lp.Continuous)
			Expect(m.AddConstraint("spread", x.Sub(y), lp.LE, lp.Const(1))).To(Succeed())
			Expect(m.SetObjective(x.Add(y), true)).To(Succeed())

			res := adapter.Solve(ctx, m, opts)
			Expect(res.State).To(Equal(StateUnbounded), res.ErrorMessage)
		})

		It("should stop at the deadline", func() {
			m := lp.NewModel("slow")
			x := mustVar(m, "x", 0, 10, lp.Integer)
			Expect(m.SetObjective(x, true)).To(Succeed())

			backend := NewGonumBackend()
			clock := time.Unix(0, 0)
			backend.now = func() time.Time {
				clock = clock.Add(time.Hour)
				return clock
			}
			res := NewAdapter(backend).Solve(ctx, m, Options{TimeLimit: time.Minute})
			Expect(res.State).To(Equal(StateSolverError))
			Expect(res.ErrorMessage).To(Equal("no feasible solution found before the time limit"))
		})

		It("should reject an invalid node limit", func() {
			m := lp.NewModel("opts")
			mustVar(m, "x", 0, 1, lp.Continuous)
			res := adapter.Solve(ctx, m, Options{Extra: map[string]string{"node_limit": "many"}})
			Expect(res.State).To(Equal(StateSolverError))
		})
	})

	Context("on compiled allocation models", func() {
		It("should meet every requirement when stock suffices", func() {
			compiled, err := model.NewBuilder(nil).Build(ctx, fixtures.ToyDomain(), fixtures.Scenario("core", fixtures.Core()...))
			Expect(err).NotTo(HaveOccurred())

			res := adapter.Solve(ctx, compiled.LP, opts)
			Expect(res.State).To(Equal(StateOptimal), res.ErrorMessage)
			Expect(*res.ObjectiveValue).To(BeNumerically("~", 9, 1e-6))
		})

		// Toy stock covers every requirement at fair share, so even the
		// strictest dials are met without slack.
		It("should satisfy strict equity and adequacy at fair share when stock suffices", func() {
			s := fixtures.Scenario("strict", append(fixtures.Core(),
				fixtures.Constraint(model.ItemEquityAggregateCap, "alpha", 0.0),
				fixtures.Constraint(model.HouseholdEquityAggregateCap, "beta", 0.0),
				fixtures.Constraint(model.HouseholdAdequacyFloor, "omega", 1.0),
				fixtures.Constraint(model.NutrientAdequacyFloor, "gamma", 1.0))...)
			s.Lambda = ptr.To(0.0)
			compiled, err := model.NewBuilder(nil).Build(ctx, fixtures.ToyDomain(), s)
			Expect(err).NotTo(HaveOccurred())

			res := adapter.Solve(ctx, compiled.LP, opts)
			Expect(res.State).To(Equal(StateOptimal), res.ErrorMessage)
			Expect(*res.ObjectiveValue).To(BeNumerically("~", 9, 1e-6))
			Expect(value(res, "slack")).To(BeNumerically(">=", -1e-9))
			Expect(value(res, "alloc[rice,h2]")).To(BeNumerically("~", 20.0/3, 1e-6))
		})

		It("should force positive slack when strict floors bind on scarce stock", func() {
			s := fixtures.Scenario("strict", append(fixtures.Core(),
				fixtures.Constraint(model.ItemEquityAggregateCap, "alpha", 0.0),
				fixtures.Constraint(model.HouseholdEquityAggregateCap, "beta", 0.0),
				fixtures.Constraint(model.HouseholdAdequacyFloor, "omega", 1.0, "use_slack", true),
				fixtures.Constraint(model.NutrientAdequacyFloor, "gamma", 1.0, "use_slack", true))...)
			s.Lambda = ptr.To(0.0)
			compiled, err := model.NewBuilder(nil).Build(ctx, fixtures.Domain(fixtures.ScarceData()), s)
			Expect(err).NotTo(HaveOccurred())

			res := adapter.Solve(ctx, compiled.LP, opts)
			Expect(res.State).To(Equal(StateOptimal), res.ErrorMessage)
			Expect(value(res, "slack")).To(BeNumerically(">", 1e-6))
			Expect(compiled.LP.Feasible(values(compiled.LP, res), 1e-6)).To(BeTrue())
		})

		It("should be infeasible or slack-softened with integer allocation on scarce stock", func() {
			s := fixtures.Scenario("strict-integer", append(fixtures.Core(),
				fixtures.Constraint(model.ItemEquityAggregateCap, "alpha", 0.0),
				fixtures.Constraint(model.HouseholdEquityAggregateCap, "beta", 0.0),
				fixtures.Constraint(model.HouseholdAdequacyFloor, "omega", 1.0, "use_slack", true),
				fixtures.Constraint(model.NutrientAdequacyFloor, "gamma", 1.0, "use_slack", true))...)
			s.Lambda = ptr.To(0.0)
			s.IntegerAllocation = true
			compiled, err := model.NewBuilder(nil).Build(ctx, fixtures.Domain(fixtures.ScarceData()), s)
			Expect(err).NotTo(HaveOccurred())

			res := adapter.Solve(ctx, compiled.LP, opts)
			if res.State == StateInfeasible {
				Expect(res.IsFeasible).To(BeFalse())
				return
			}
			Expect(res.IsFeasible).To(BeTrue(), res.ErrorMessage)
			Expect(value(res, "slack")).To(BeNumerically(">", 1e-6))
		})

		It("should hold the deviation identity, complementarity and utility caps at the optimum", func() {
			s := fixtures.Scenario("equity", append(fixtures.Core(),
				fixtures.Constraint(model.ItemEquityAggregateCap, "alpha", 0.3),
				fixtures.Constraint(model.PairwiseEquityCap, "rho", 0.2))...)
			compiled, err := model.NewBuilder(nil).Build(ctx, fixtures.Domain(fixtures.ScarceData()), s)
			Expect(err).NotTo(HaveOccurred())

			res := adapter.Solve(ctx, compiled.LP, opts)
			Expect(res.State).To(Equal(StateOptimal), res.ErrorMessage)
			vals := compiled.Canonicalize(res.Variables)

			items, households := compiled.Domain.Items(), compiled.Domain.Households()
			for i, it := range items {
				for h, hh := range households {
					gap := ValueOrNone(compiled.LP, compiled.Exprs.FairShareGap[i][h], vals)
					plus := ValueOrNone(compiled.LP, lp.Variable(compiled.Vars.DevPlus[i][h]), vals)
					minus := ValueOrNone(compiled.LP, lp.Variable(compiled.Vars.DevMinus[i][h]), vals)
					Expect(gap).NotTo(BeNil())
					Expect(plus).NotTo(BeNil())
					Expect(minus).NotTo(BeNil())
					pair := it.ID + "," + hh.ID
					Expect(*plus - *minus).To(BeNumerically("~", *gap, 1e-6), pair)
					Expect(*plus * *minus).To(BeNumerically("~", 0, 1e-9), pair)
				}
			}

			for n, nu := range compiled.Domain.Nutrients() {
				for h, hh := range households {
					delivered := ValueOrNone(compiled.LP, compiled.Exprs.Delivered[n][h], vals)
					util := ValueOrNone(compiled.LP, lp.Variable(compiled.Vars.Util[n][h]), vals)
					Expect(delivered).NotTo(BeNil())
					Expect(util).NotTo(BeNil())
					ratio := *delivered / compiled.Domain.Requirement(hh.ID, nu.ID)
					pair := nu.ID + "," + hh.ID
					Expect(*util).To(BeNumerically("<=", ratio+1e-6), pair)
					// Utility only appears in its cap, so the optimum sits on it.
					Expect(*util).To(BeNumerically("~", math.Min(1, ratio), 1e-6), pair)
				}
			}
		})

		It("should report an infeasible lower bound", func() {
			data := fixtures.ToyData()
			data.Bounds = append(data.Bounds, boundOf("apples", "h1", 10))
			compiled, err := model.NewBuilder(nil).Build(ctx, fixtures.Domain(data), fixtures.Scenario("bounded", fixtures.Core()...))
			Expect(err).NotTo(HaveOccurred())

			res := adapter.Solve(ctx, compiled.LP, opts)
			Expect(res.State).To(Equal(StateInfeasible))
		})

		It("should buy within budget and never waste bought stock", func() {
			s := fixtures.Scenario("buy", append(fixtures.Core(),
				fixtures.Constraint(model.PurchaseBudgetLimit, "budget", 5.0))...)
			compiled, err := model.NewBuilder(nil).Build(ctx, fixtures.Domain(fixtures.ScarceData()), s)
			Expect(err).NotTo(HaveOccurred())

			res := adapter.Solve(ctx, compiled.LP, opts)
			Expect(res.IsFeasible).To(BeTrue(), res.ErrorMessage)

			cost := ValueOrNone(compiled.LP, compiled.Exprs.TotalCost, res.Variables)
			Expect(cost).NotTo(BeNil())
			Expect(*cost).To(BeNumerically("<=", 5+1e-6))

			for i, it := range compiled.Domain.Items() {
				bought := value(res, model.Name(model.VarPurchase, it.ID))
				active := value(res, model.Name(model.VarPurchaseActive, it.ID))
				Expect(bought).To(BeNumerically("<=", compiled.Vars.BigM[i]*active+1e-6))
				if active > 0.5 {
					left := ValueOrNone(compiled.LP, compiled.Exprs.Avail[i].Sub(compiled.Exprs.ItemAllocated[i]), res.Variables)
					Expect(*left).To(BeNumerically("<=", 1e-6), it.ID)
				}
			}

			base, err := model.NewBuilder(nil).Build(ctx, fixtures.Domain(fixtures.ScarceData()), fixtures.Scenario("base", fixtures.Core()...))
			Expect(err).NotTo(HaveOccurred())
			baseRes := adapter.Solve(ctx, base.LP, opts)
			Expect(baseRes.IsFeasible).To(BeTrue(), baseRes.ErrorMessage)
			Expect(*res.ObjectiveValue).To(BeNumerically(">=", *baseRes.ObjectiveValue-1e-6))
		})
	})
})
