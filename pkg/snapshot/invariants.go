package snapshot

import (
	"fmt"

	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// InvariantResult is one invariant's verdict (§4.9).
type InvariantResult struct {
	Type        string
	Description string
	Expected    any
	Actual      any
	Status      string // "passed" | "failed" | "error"
	Message     string
}

// ValidationReport is validate_invariants' return shape; AllPassed is the
// AND over every result.
type ValidationReport struct {
	AllPassed bool
	Results   []InvariantResult
}

// ValidateInvariants checks each declarative invariant against a Run's
// observed outcome (§4.9 invariant table). referenceMetrics is accepted
// for parity with the batch-test caller; the supported invariant types
// read the Run itself.
func (e *Engine) ValidateInvariants(runID string, invariants []models.Invariant, referenceMetrics *models.ReferenceMetrics) (ValidationReport, error) {
	run, err := e.store.GetRun(runID)
	if err != nil {
		return ValidationReport{}, err
	}
	candidates := e.store.ListCandidates(store.CandidateFilter{RunID: runID})

	report := ValidationReport{AllPassed: true}
	for _, inv := range invariants {
		result := e.checkInvariant(run, candidates, inv)
		if result.Status != "passed" {
			report.AllPassed = false
		}
		report.Results = append(report.Results, result)
	}
	return report, nil
}

func (e *Engine) checkInvariant(run models.Run, candidates []models.Candidate, inv models.Invariant) InvariantResult {
	result := InvariantResult{Type: inv.Type, Description: inv.Description, Expected: inv.Value}

	switch inv.Type {
	case "min_candidates":
		return checkThreshold(result, float64(run.CandidateCount), inv.Value, atLeast)
	case "max_candidates":
		return checkThreshold(result, float64(run.CandidateCount), inv.Value, atMost)
	case "min_scenarios":
		return checkThreshold(result, float64(run.ScenarioCount), inv.Value, atLeast)
	case "max_scenarios":
		return checkThreshold(result, float64(run.ScenarioCount), inv.Value, atMost)

	case "run_status":
		expected, ok := inv.Value.(string)
		if !ok {
			return errored(result, "run_status expects a string value")
		}
		result.Actual = string(run.Status)
		if string(run.Status) == expected {
			return passed(result)
		}
		return failed(result, fmt.Sprintf("run status is %s, expected %s", run.Status, expected))

	case "min_top_i_score", "max_top_i_score":
		top := topIScore(candidates)
		if top == nil {
			result.Actual = nil
			return failed(result, "no candidate carries an I score")
		}
		result.Actual = *top
		if inv.Type == "min_top_i_score" {
			return checkThreshold(result, *top, inv.Value, atLeast)
		}
		return checkThreshold(result, *top, inv.Value, atMost)

	case "no_hard_constraint_violations":
		violators := hardViolators(e.store, run, candidates)
		result.Actual = violators
		if len(violators) == 0 {
			return passed(result)
		}
		return failed(result, fmt.Sprintf("%d candidate(s) violate a hard constraint", len(violators)))

	case "max_duration_seconds":
		if run.DurationSeconds == nil {
			result.Actual = nil
			return failed(result, "run has no recorded duration")
		}
		result.Actual = *run.DurationSeconds
		return checkThreshold(result, *run.DurationSeconds, inv.Value, atMost)

	case "min_evaluation_coverage":
		coverage := 1.0
		denominator := run.CandidateCount * run.ScenarioCount
		if denominator > 0 {
			coverage = float64(run.EvaluationCount) / float64(denominator)
		}
		result.Actual = coverage
		return checkThreshold(result, coverage, inv.Value, atLeast)

	default:
		return errored(result, "unknown invariant type "+inv.Type)
	}
}

// hardViolators returns candidate ids whose aggregated
// constraint_satisfaction reports a hard (weight >= 100) constraint as
// unsatisfied, the same rule that forces rejected status in the ranker.
func hardViolators(s *store.Store, run models.Run, candidates []models.Candidate) []string {
	spec, err := s.GetProblemSpecByProject(run.ProjectID)
	if err != nil {
		return nil
	}
	var out []string
	for _, c := range candidates {
		for _, cons := range spec.Constraints {
			if !cons.IsHard() {
				continue
			}
			if sat, ok := c.Scores.ConstraintSatisfaction[cons.Name]; ok && !sat.Satisfied {
				out = append(out, c.ID)
				break
			}
		}
	}
	return out
}

type comparison int

const (
	atLeast comparison = iota
	atMost
)

// checkThreshold compares an observed numeric value against the
// invariant's declared bound.
func checkThreshold(result InvariantResult, actual float64, expected any, cmp comparison) InvariantResult {
	bound, ok := asFloat(expected)
	if !ok {
		return errored(result, fmt.Sprintf("invariant %s expects a numeric value, got %T", result.Type, expected))
	}
	result.Actual = actual
	pass := actual >= bound
	verb := "below"
	if cmp == atMost {
		pass = actual <= bound
		verb = "above"
	}
	if pass {
		return passed(result)
	}
	return failed(result, fmt.Sprintf("%s: actual %.3f is %s bound %.3f", result.Type, actual, verb, bound))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func passed(r InvariantResult) InvariantResult {
	r.Status = "passed"
	return r
}

func failed(r InvariantResult, message string) InvariantResult {
	r.Status = "failed"
	r.Message = message
	return r
}

func errored(r InvariantResult, message string) InvariantResult {
	r.Status = "error"
	r.Message = message
	return r
}
