package model_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/utils/ptr"

	"github.com/foodbank-alloc/fbdam/internal/fixtures"
	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/core"
	"github.com/foodbank-alloc/fbdam/pkg/dial"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
	"github.com/foodbank-alloc/fbdam/pkg/model"
)

func rowNames(m *lp.Model) []string {
	out := make([]string, 0, len(m.Constraints))
	for _, c := range m.Constraints {
		out = append(out, c.Name)
	}
	return out
}

func row(m *lp.Model, name string) lp.Constraint {
	for _, c := range m.Constraints {
		if c.Name == name {
			return c
		}
	}
	Fail("no row " + name)
	return lp.Constraint{}
}

func objectiveCoef(m *lp.Model, v int) float64 {
	for _, t := range m.Objective.Terms {
		if t.Var == v {
			return t.Coef
		}
	}
	return 0
}

var _ = Describe("Builder", func() {
	var (
		ctx     context.Context
		domain  *core.Domain
		builder *model.Builder
	)

	BeforeEach(func() {
		ctx = context.Background()
		domain = fixtures.ToyDomain()
		builder = model.NewBuilder(nil)
	})

	Context("with the core constraints only", func() {
		It("should declare allocation and utility columns and one row per pair and item", func() {
			compiled, err := builder.Build(ctx, domain, fixtures.Scenario("core", fixtures.Core()...))
			Expect(err).NotTo(HaveOccurred())

			stats := compiled.Stats()
			Expect(stats.Variables).To(Equal(4*3 + 3*3))
			Expect(stats.Constraints).To(Equal(3*3 + 4))
			Expect(stats.Binaries).To(BeZero())
			Expect(compiled.Active).To(Equal([]string{model.NutritionUtilityMapping, model.ItemSupplyLimit}))
			Expect(compiled.Vars.Purchasing()).To(BeFalse())
			Expect(compiled.Vars.Equity()).To(BeFalse())
			Expect(compiled.Vars.HasSlack()).To(BeFalse())
			Expect(compiled.LP.Maximize).To(BeTrue())
		})

		It("should bound allocation by stock and utility by one", func() {
			compiled, err := builder.Build(ctx, domain, fixtures.Scenario("core", fixtures.Core()...))
			Expect(err).NotTo(HaveOccurred())

			j, ok := compiled.LP.VarIndex("alloc[milk,h2]")
			Expect(ok).To(BeTrue())
			Expect(compiled.LP.Vars[j].Lower).To(Equal(0.0))
			Expect(compiled.LP.Vars[j].Upper).To(Equal(10.0))

			j, ok = compiled.LP.VarIndex("util[calcium,h3]")
			Expect(ok).To(BeTrue())
			Expect(compiled.LP.Vars[j].Upper).To(Equal(1.0))
		})

		It("should honour declared allocation bounds", func() {
			data := fixtures.ToyData()
			data.Bounds = []core.Bound{{ItemID: "rice", HouseholdID: "h1", Lower: 2, Upper: ptr.To(5.0)}}
			compiled, err := builder.Build(ctx, fixtures.Domain(data), fixtures.Scenario("bounds", fixtures.Core()...))
			Expect(err).NotTo(HaveOccurred())

			j, _ := compiled.LP.VarIndex("alloc[rice,h1]")
			Expect(compiled.LP.Vars[j].Lower).To(Equal(2.0))
			Expect(compiled.LP.Vars[j].Upper).To(Equal(5.0))
		})

		It("should declare integer allocations when requested", func() {
			s := fixtures.Scenario("integer", fixtures.Core()...)
			s.IntegerAllocation = true
			compiled, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())
			Expect(compiled.Stats().Integers).To(Equal(12))
		})
	})

	Context("with equity constraints", func() {
		It("should insert the deviation identity before the first equity constraint", func() {
			s := fixtures.Scenario("equity", append(fixtures.Core(),
				fixtures.Constraint(model.ItemEquityAggregateCap, "alpha", 0.2),
				fixtures.Constraint(model.HouseholdEquityAggregateCap, "beta", 0.1))...)
			compiled, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())

			Expect(compiled.Active).To(Equal([]string{
				model.NutritionUtilityMapping,
				model.ItemSupplyLimit,
				model.FairshareDeviationIdentity,
				model.ItemEquityAggregateCap,
				model.HouseholdEquityAggregateCap,
			}))
			Expect(compiled.Vars.Equity()).To(BeTrue())
			Expect(rowNames(compiled.LP)).To(ContainElements("deviation_identity[beans,h2]", "item_equity_cap[beans]", "household_equity_cap[h3]"))
		})

		It("should not insert the identity twice when it is listed", func() {
			s := fixtures.Scenario("equity", append(fixtures.Core(),
				fixtures.Constraint(model.FairshareDeviationIdentity),
				fixtures.Constraint(model.PairwiseEquityCap, "rho", 0.5))...)
			compiled, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())
			Expect(compiled.Active).To(HaveLen(4))
		})

		It("should fall back to scenario dials", func() {
			s := fixtures.Scenario("dials", append(fixtures.Core(),
				fixtures.Constraint(model.ItemEquityAggregateCap))...)
			s.Dials = map[string]dial.Spec{model.DialAlpha: dial.NewScalar(0.3)}
			_, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should prefer scenario dials over catalog dial defaults", func() {
			capped := fixtures.Constraint(model.ItemEquityAggregateCap)
			capped.DialDefaults = config.Params{model.DialAlpha: 0.5}
			s := fixtures.Scenario("dials", append(fixtures.Core(), capped)...)

			compiled, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())
			Expect(row(compiled.LP, "item_equity_cap[apples]").RHS).To(BeNumerically("~", 0.5*8, 1e-9))

			s.Dials = map[string]dial.Spec{model.DialAlpha: dial.NewScalar(0.4)}
			compiled, err = builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())
			Expect(row(compiled.LP, "item_equity_cap[apples]").RHS).To(BeNumerically("~", 0.4*8, 1e-9))
		})

		It("should reject a missing dial as a configuration error", func() {
			s := fixtures.Scenario("dials", append(fixtures.Core(),
				fixtures.Constraint(model.ItemEquityAggregateCap))...)
			_, err := builder.Build(ctx, domain, s)
			Expect(err).To(MatchError(config.ErrConfig))
			Expect(err.Error()).To(ContainSubstring(`"alpha"`))
		})

		It("should reject a per-key dial without a value or default for an item", func() {
			s := fixtures.Scenario("dials", append(fixtures.Core(),
				fixtures.Constraint(model.ItemEquityAggregateCap, "alpha", map[string]any{"apples": 0.1}))...)
			_, err := builder.Build(ctx, domain, s)
			Expect(err).To(MatchError(config.ErrConfig))
			Expect(errors.Is(err, dial.ErrUnresolved)).To(BeTrue())
		})
	})

	Context("with purchasing", func() {
		It("should append the purchase constraint when allow_purchases is forced on", func() {
			s := fixtures.Scenario("buy", fixtures.Core()...)
			s.AllowPurchases = ptr.To(true)
			s.Budget = ptr.To(10.0)
			compiled, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())

			Expect(compiled.Active[len(compiled.Active)-1]).To(Equal(model.PurchaseBudgetLimit))
			Expect(compiled.Vars.Purchasing()).To(BeTrue())
			Expect(compiled.Stats().Binaries).To(Equal(4))
			Expect(compiled.Vars.BigM[0]).To(BeNumerically("~", 10/(0.5+model.CostEpsilon), 1e-9))

			j, _ := compiled.LP.VarIndex("alloc[apples,h1]")
			Expect(compiled.LP.Vars[j].Upper).To(BeNumerically("~", 8+compiled.Vars.BigM[0], 1e-9))
			Expect(rowNames(compiled.LP)).To(ContainElements("purchase_budget", "purchase_activation[rice]", "purchase_no_waste[milk]"))
		})

		It("should prefer the constraint budget over the scenario budget", func() {
			s := fixtures.Scenario("buy", append(fixtures.Core(),
				fixtures.Constraint(model.PurchaseBudgetLimit, "budget", 4.0))...)
			s.Budget = ptr.To(100.0)
			compiled, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())
			Expect(compiled.Vars.BigM[3]).To(BeNumerically("~", model.BigM(4, 0.4), 1e-9))
		})

		It("should use a zero big-M for a zero budget", func() {
			s := fixtures.Scenario("buy", append(fixtures.Core(),
				fixtures.Constraint(model.PurchaseBudgetLimit, "budget", 0.0))...)
			compiled, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())
			for _, m := range compiled.Vars.BigM {
				Expect(m).To(BeZero())
			}
		})

		It("should reject the purchase constraint when purchases are disallowed", func() {
			s := fixtures.Scenario("buy", append(fixtures.Core(),
				fixtures.Constraint(model.PurchaseBudgetLimit, "budget", 4.0))...)
			s.AllowPurchases = ptr.To(false)
			_, err := builder.Build(ctx, domain, s)
			Expect(err).To(MatchError(config.ErrConfig))
		})

		It("should require a budget", func() {
			s := fixtures.Scenario("buy", append(fixtures.Core(),
				fixtures.Constraint(model.PurchaseBudgetLimit))...)
			_, err := builder.Build(ctx, domain, s)
			Expect(err).To(MatchError(config.ErrConfig))
		})
	})

	Context("with adequacy floors", func() {
		floors := func() []config.MaterializedConstraint {
			return append(fixtures.Core(),
				fixtures.Constraint(model.HouseholdAdequacyFloor, "omega", 0.9),
				fixtures.Constraint(model.NutrientAdequacyFloor, "gamma", 0.9))
		}

		It("should create the slack and its penalty when lambda is declared", func() {
			s := fixtures.Scenario("floors", floors()...)
			s.Lambda = ptr.To(2.5)
			compiled, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())
			Expect(compiled.Vars.HasSlack()).To(BeTrue())
			Expect(objectiveCoef(compiled.LP, compiled.Vars.Slack)).To(Equal(-2.5))
		})

		It("should leave floors hard without lambda", func() {
			compiled, err := builder.Build(ctx, domain, fixtures.Scenario("floors", floors()...))
			Expect(err).NotTo(HaveOccurred())
			Expect(compiled.Vars.HasSlack()).To(BeFalse())
			Expect(rowNames(compiled.LP)).To(ContainElements("household_floor[h1]", "nutrient_floor[calcium]"))
		})

		It("should create an unpenalized slack when use_slack is forced", func() {
			s := fixtures.Scenario("floors", append(fixtures.Core(),
				fixtures.Constraint(model.HouseholdAdequacyFloor, "omega", 0.9, "use_slack", true))...)
			compiled, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())
			Expect(compiled.Vars.HasSlack()).To(BeTrue())
			Expect(objectiveCoef(compiled.LP, compiled.Vars.Slack)).To(BeZero())
		})

		It("should reject an invalid use_slack value", func() {
			s := fixtures.Scenario("floors", append(fixtures.Core(),
				fixtures.Constraint(model.HouseholdAdequacyFloor, "omega", 0.9, "use_slack", "sometimes"))...)
			_, err := builder.Build(ctx, domain, s)
			Expect(err).To(MatchError(config.ErrConfig))
		})

		It("should resolve per-pair kappa with a nested default", func() {
			kappa := map[string]any{
				"energy":  map[string]any{"h1": 0.5, "default": 0.8},
				"default": 0.6,
			}
			s := fixtures.Scenario("pairs", append(fixtures.Core(),
				fixtures.Constraint(model.PairwiseAdequacyFloor, "kappa", kappa))...)
			compiled, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())
			Expect(rowNames(compiled.LP)).To(ContainElement("pair_floor[protein,h3]"))
		})
	})

	Context("with invalid scenarios", func() {
		It("should reject an unknown constraint", func() {
			s := fixtures.Scenario("bad", fixtures.Constraint("magic_cap"))
			_, err := builder.Build(ctx, domain, s)
			Expect(err).To(MatchError(model.ErrUnknownConstraint))
			Expect(err).To(MatchError(config.ErrConfig))
		})

		It("should reject an unknown objective", func() {
			s := fixtures.Scenario("bad", fixtures.Core()...)
			s.Objective.ID = "max_happiness"
			_, err := builder.Build(ctx, domain, s)
			Expect(err).To(MatchError(model.ErrUnknownObjective))
		})

		It("should reject duplicate constraints", func() {
			s := fixtures.Scenario("bad", append(fixtures.Core(), fixtures.Constraint(model.ItemSupplyLimit))...)
			_, err := builder.Build(ctx, domain, s)
			Expect(err).To(MatchError(config.ErrConfig))
		})

		It("should stop on a cancelled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := builder.Build(cctx, domain, fixtures.Scenario("core", fixtures.Core()...))
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("Canonicalize", func() {
		It("should net out deviation pairs", func() {
			s := fixtures.Scenario("equity", append(fixtures.Core(),
				fixtures.Constraint(model.PairwiseEquityCap, "rho", 1.0))...)
			compiled, err := builder.Build(ctx, domain, s)
			Expect(err).NotTo(HaveOccurred())

			values := map[string]*float64{
				"dev_plus[apples,h1]":  ptr.To(3.0),
				"dev_minus[apples,h1]": ptr.To(1.0),
				"dev_plus[beans,h2]":   ptr.To(0.5),
				"dev_minus[beans,h2]":  ptr.To(2.0),
			}
			out := compiled.Canonicalize(values)
			Expect(*out["dev_plus[apples,h1]"]).To(Equal(2.0))
			Expect(*out["dev_minus[apples,h1]"]).To(Equal(0.0))
			Expect(*out["dev_plus[beans,h2]"]).To(Equal(0.0))
			Expect(*out["dev_minus[beans,h2]"]).To(Equal(1.5))
			Expect(*values["dev_plus[apples,h1]"]).To(Equal(3.0))
			Expect(math.Min(*out["dev_plus[beans,h2]"], *out["dev_minus[beans,h2]"])).To(BeZero())
		})
	})
})
