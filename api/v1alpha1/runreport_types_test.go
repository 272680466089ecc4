package v1alpha1

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/dial"
	"github.com/foodbank-alloc/fbdam/pkg/kpi"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
	"github.com/foodbank-alloc/fbdam/pkg/solver"
)

// helper: build a complete report
func makeReport() *RunReport {
	start := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	r := NewRunReport("4f9d6c1e-8a7b-4c2d-9e3f-0a1b2c3d4e5f", "Winter Baseline", start)
	r.Spec.ScenarioPath = "scenarios/winter.yaml"
	r.Spec.DatasetPath = "data/winter"
	r.Spec.Solver = config.SolverOptions{Name: "gonum", TimeLimit: 30, MIPRelGap: ptr.To(1e-4)}
	r.Spec.Constraints = []string{"nutrition_utility_mapping", "item_supply_limit"}
	r.Spec.Objective = "sum_utility"
	r.Spec.Dials = map[string]dial.Spec{
		"alpha": dial.NewScalar(0.4),
		"omega": dial.NewPerKey(map[string]float64{"default": 0.8, "h2": 0.9}),
	}
	r.Status.Model = &lp.Stats{Variables: 21, Constraints: 13, Nonzeros: 60}
	r.Status.Result = &solver.Result{
		Solver:         "gonum",
		ElapsedSeconds: 0.25,
		Termination:    "optimal",
		Status:         solver.StatusOK,
		State:          solver.StateOptimal,
		IsFeasible:     true,
		ObjectiveValue: ptr.To(9.0),
		Variables:      map[string]*float64{"alloc[rice,h1]": ptr.To(4.5), "slack": nil},
	}
	r.Status.KPIs = &kpi.Report{Basic: kpi.Basic{Items: 4, Households: 3, Nutrients: 3,
		Objective: ptr.To(9.0), FeasibilityStatus: kpi.Optimal, Status: solver.StatusOK}}
	r.Complete(start.Add(2 * time.Second))
	return r
}

func TestNewRunReport(t *testing.T) {
	r := makeReport()
	if r.APIVersion != "fbdam.foodbank.org/v1alpha1" || r.Kind != KindRunReport {
		t.Fatalf("unexpected type meta: %+v", r.TypeMeta)
	}
	if r.Name != "winter-baseline_20250314T092653Z" {
		t.Errorf("unexpected run name %q", r.Name)
	}
	if !r.Status.StartTime.Equal(&r.CreationTimestamp) {
		t.Errorf("start time %v does not match creation timestamp %v", r.Status.StartTime, r.CreationTimestamp)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Winter Baseline", want: "winter-baseline"},
		{in: "  equity/strict  v2 ", want: "equity-strict-v2"},
		{in: "ALREADY-slugged", want: "already-slugged"},
		{in: "***", want: "scenario"},
		{in: "", want: "scenario"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Slug(tt.in); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := makeReport()
	orig.RecordResult(orig.Status.Result)

	b, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	var back RunReport
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("json.Unmarshal failed: %v", err)
	}

	if !orig.Status.StartTime.Time.Equal(back.Status.StartTime.Time) {
		t.Fatalf("StartTime mismatch by instant: orig=%v back=%v", orig.Status.StartTime, back.Status.StartTime)
	}
	// metav1.Time round-trips at second precision in the local zone.
	back.Status.StartTime = orig.Status.StartTime
	back.CreationTimestamp = orig.CreationTimestamp
	back.Status.CompletionTime = orig.Status.CompletionTime
	for i := range back.Status.Conditions {
		back.Status.Conditions[i].LastTransitionTime = orig.Status.Conditions[i].LastTransitionTime
	}

	if !reflect.DeepEqual(orig, &back) {
		t.Errorf("round-trip mismatch:\norig=%#v\nback=%#v", orig, &back)
	}
}

func TestRecordResultConditions(t *testing.T) {
	tests := []struct {
		name         string
		result       *solver.Result
		wantSolved   metav1.ConditionStatus
		wantFeasible metav1.ConditionStatus
		wantReason   string
	}{
		{
			name:         "optimal",
			result:       &solver.Result{State: solver.StateOptimal, IsFeasible: true, Termination: "optimal"},
			wantSolved:   metav1.ConditionTrue,
			wantFeasible: metav1.ConditionTrue,
			wantReason:   ReasonOptimal,
		},
		{
			name:         "time limited",
			result:       &solver.Result{State: solver.StateFeasible, IsFeasible: true, Termination: "time limit reached"},
			wantSolved:   metav1.ConditionTrue,
			wantFeasible: metav1.ConditionTrue,
			wantReason:   ReasonFeasible,
		},
		{
			name:         "infeasible",
			result:       &solver.Result{State: solver.StateInfeasible, Termination: "infeasible"},
			wantSolved:   metav1.ConditionTrue,
			wantFeasible: metav1.ConditionFalse,
			wantReason:   ReasonInfeasible,
		},
		{
			name:         "unbounded",
			result:       &solver.Result{State: solver.StateUnbounded, Termination: "unbounded"},
			wantSolved:   metav1.ConditionTrue,
			wantFeasible: metav1.ConditionFalse,
			wantReason:   ReasonUnbounded,
		},
		{
			name:         "solver error",
			result:       &solver.Result{State: solver.StateSolverError, ErrorMessage: "boom"},
			wantSolved:   metav1.ConditionFalse,
			wantFeasible: metav1.ConditionUnknown,
			wantReason:   ReasonNotSolved,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunReport("id", "s", time.Now())
			r.RecordResult(tt.result)

			solved := r.GetCondition(ConditionSolved)
			if solved == nil || solved.Status != tt.wantSolved {
				t.Fatalf("Solved condition = %+v, want status %s", solved, tt.wantSolved)
			}
			feasible := r.GetCondition(ConditionFeasible)
			if feasible == nil || feasible.Status != tt.wantFeasible || feasible.Reason != tt.wantReason {
				t.Fatalf("Feasible condition = %+v, want %s/%s", feasible, tt.wantFeasible, tt.wantReason)
			}
			if r.Feasible() != (tt.wantFeasible == metav1.ConditionTrue) {
				t.Errorf("Feasible() = %v", r.Feasible())
			}
		})
	}
}

func TestSetConditionKeepsTransitionTime(t *testing.T) {
	r := NewRunReport("id", "s", time.Now())
	r.SetCondition(ConditionCompiled, metav1.ConditionTrue, ReasonBuildSucceeded, "first")
	first := r.GetCondition(ConditionCompiled).LastTransitionTime

	r.SetCondition(ConditionCompiled, metav1.ConditionTrue, ReasonBuildSucceeded, "second")
	c := r.GetCondition(ConditionCompiled)
	if c.Message != "second" {
		t.Errorf("message not updated: %q", c.Message)
	}
	if !c.LastTransitionTime.Equal(&first) {
		t.Errorf("transition time changed without a status change")
	}
	if len(r.Status.Conditions) != 1 {
		t.Errorf("expected one condition, got %d", len(r.Status.Conditions))
	}
}
