package v1alpha1

import (
	"strings"
	"time"

	apimeta "k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/dial"
	"github.com/foodbank-alloc/fbdam/pkg/kpi"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
	"github.com/foodbank-alloc/fbdam/pkg/solver"
)

// KindRunReport is the kind of RunReport documents.
const KindRunReport = "RunReport"

// Condition types set on a RunReport.
const (
	// ConditionCompiled indicates whether the scenario compiled into a model.
	ConditionCompiled = "Compiled"
	// ConditionSolved indicates whether the solver returned without error.
	ConditionSolved = "Solved"
	// ConditionFeasible indicates whether a feasible allocation was found.
	ConditionFeasible = "Feasible"
)

// Condition reasons.
const (
	ReasonBuildSucceeded = "BuildSucceeded"
	ReasonInvalidConfig  = "InvalidConfig"
	ReasonBuildFailed    = "BuildFailed"
	ReasonSolverFinished = "SolverFinished"
	ReasonSolverError    = "SolverError"
	ReasonOptimal        = "Optimal"
	ReasonFeasible       = "Feasible"
	ReasonInfeasible     = "Infeasible"
	ReasonUnbounded      = "Unbounded"
	ReasonNotSolved      = "NotSolved"
)

// RunSpec records what was asked for.
type RunSpec struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// ScenarioPath is the scenario file the run was loaded from.
	// +optional
	ScenarioPath string `json:"scenarioPath,omitempty"`

	// DatasetPath is the dataset directory.
	// +optional
	DatasetPath string `json:"datasetPath,omitempty"`

	// Solver holds the effective solver options.
	Solver config.SolverOptions `json:"solver"`

	// Constraints lists the applied constraint ids in order, implicit ones included.
	// +optional
	Constraints []string `json:"constraints,omitempty"`

	// Objective is the objective id.
	Objective string `json:"objective"`

	// Dials are the scenario dials the model was compiled with.
	// +optional
	Dials map[string]dial.Spec `json:"dials,omitempty"`
}

// RunStatus records what happened.
type RunStatus struct {
	StartTime metav1.Time `json:"startTime,omitempty"`

	// +optional
	CompletionTime *metav1.Time `json:"completionTime,omitempty"`

	// Model holds size statistics of the compiled model.
	// +optional
	Model *lp.Stats `json:"model,omitempty"`

	// Result is the normalized solver outcome.
	// +optional
	Result *solver.Result `json:"result,omitempty"`

	// KPIs are extracted from Result.
	// +optional
	KPIs *kpi.Report `json:"kpis,omitempty"`

	// Error is set when the run stopped before a solver result existed.
	// +optional
	Error string `json:"error,omitempty"`

	// Conditions represent the latest available observations of the run.
	// +listType=map
	// +listMapKey=type
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// RunReport is the document written for one scenario run.
type RunReport struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   RunSpec   `json:"spec"`
	Status RunStatus `json:"status,omitempty"`
}

// NewRunReport starts a report for the named scenario. The run name is
// derived from the scenario and the start time.
func NewRunReport(id types.UID, scenario string, start time.Time) *RunReport {
	start = start.UTC()
	return &RunReport{
		TypeMeta: metav1.TypeMeta{APIVersion: APIVersion, Kind: KindRunReport},
		ObjectMeta: metav1.ObjectMeta{
			Name:              RunName(scenario, start),
			UID:               id,
			CreationTimestamp: metav1.NewTime(start),
		},
		Spec:   RunSpec{Scenario: scenario},
		Status: RunStatus{StartTime: metav1.NewTime(start)},
	}
}

// RunName is <slug>_<YYYYMMDDTHHMMSSZ>.
func RunName(scenario string, t time.Time) string {
	return Slug(scenario) + "_" + t.UTC().Format("20060102T150405Z")
}

// Slug lower-cases s and replaces every run of non-alphanumerics with a
// single hyphen. An empty result becomes "scenario".
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "scenario"
	}
	return out
}

// SetCondition sets or updates a condition, keeping LastTransitionTime when
// the status does not change.
func (r *RunReport) SetCondition(conditionType string, status metav1.ConditionStatus, reason, message string) {
	apimeta.SetStatusCondition(&r.Status.Conditions, metav1.Condition{
		Type:               conditionType,
		Status:             status,
		ObservedGeneration: r.Generation,
		Reason:             reason,
		Message:            message,
	})
}

// GetCondition returns the condition of the given type, or nil.
func (r *RunReport) GetCondition(conditionType string) *metav1.Condition {
	return apimeta.FindStatusCondition(r.Status.Conditions, conditionType)
}

// Feasible reports whether the Feasible condition is true.
func (r *RunReport) Feasible() bool {
	return apimeta.IsStatusConditionTrue(r.Status.Conditions, ConditionFeasible)
}

// Complete stamps the completion time.
func (r *RunReport) Complete(t time.Time) {
	ct := metav1.NewTime(t.UTC())
	r.Status.CompletionTime = &ct
}

// RecordResult stores res and derives the Solved and Feasible conditions.
func (r *RunReport) RecordResult(res *solver.Result) {
	r.Status.Result = res
	if res.State == solver.StateSolverError {
		r.SetCondition(ConditionSolved, metav1.ConditionFalse, ReasonSolverError, res.ErrorMessage)
		r.SetCondition(ConditionFeasible, metav1.ConditionUnknown, ReasonNotSolved, "solver did not finish")
		return
	}
	r.SetCondition(ConditionSolved, metav1.ConditionTrue, ReasonSolverFinished, res.Termination)
	switch {
	case res.IsFeasible && res.State == solver.StateOptimal:
		r.SetCondition(ConditionFeasible, metav1.ConditionTrue, ReasonOptimal, "optimal allocation found")
	case res.IsFeasible:
		r.SetCondition(ConditionFeasible, metav1.ConditionTrue, ReasonFeasible, "feasible allocation found")
	case res.State == solver.StateUnbounded:
		r.SetCondition(ConditionFeasible, metav1.ConditionFalse, ReasonUnbounded, "model is unbounded")
	default:
		r.SetCondition(ConditionFeasible, metav1.ConditionFalse, ReasonInfeasible, "no feasible allocation exists")
	}
}
