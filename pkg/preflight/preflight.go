// Package preflight implements C4, the Preflight Validator: a
// non-mutating readiness check for a prospective Run. Grounded on
// pkg/config/validator.go's classify-into-buckets style (ValidateAll
// dispatching to per-concern checks that accumulate failures rather than
// stopping at the first one).
package preflight

import "github.com/copperdogma/crucible-pipeline/pkg/models"

// Blocker is a reason a Run is not ready to execute.
type Blocker string

const (
	BlockerMissingProblemSpec     Blocker = "missing_problem_spec"
	BlockerMissingWorldModel      Blocker = "missing_world_model"
	BlockerInsufficientCandidates Blocker = "insufficient_candidates"
	BlockerValidationError        Blocker = "validation_error"
)

// Warning is a non-fatal concern surfaced alongside a ready result.
type Warning string

const (
	WarningHighBudget          Warning = "high_budget"
	WarningLargeCandidateCount Warning = "large_candidate_count"
	WarningDeprecatedMode      Warning = "deprecated_mode"
)

const (
	minCandidates = 1
	maxCandidates = 50
	minScenarios  = 1
	maxScenarios  = 50
	// largeCandidateCountThreshold and largeScenarioCountThreshold trigger
	// WarningLargeCandidateCount when either config value exceeds them
	// (§4.4: "num_candidates>20 or num_scenarios>20").
	largeCandidateCountThreshold = 20
	largeScenarioCountThreshold  = 20
)

// Prerequisites reports which per-project artifacts were found.
type Prerequisites struct {
	ProblemSpec bool
	WorldModel  bool
}

// Result is the §4.4 Preflight Validator output.
type Result struct {
	Ready            bool
	Blockers         []Blocker
	Warnings         []Warning
	NormalizedConfig models.RunConfig
	Prerequisites    Prerequisites
}

// Input bundles what Check needs to evaluate readiness (C1-backed
// prerequisite lookups are resolved by the caller so this package stays
// pure and store-agnostic, matching pkg/config/validator.go's
// already-loaded-Config-in style).
type Input struct {
	HasProblemSpec     bool
	HasWorldModel      bool
	ExistingCandidates int
	Mode               models.RunMode
	Config             models.RunConfig
}

// Check evaluates readiness for a prospective Run, clamping its config
// and classifying blockers/warnings. Non-mutating: callers apply
// NormalizedConfig themselves.
func Check(in Input) Result {
	result := Result{
		Prerequisites: Prerequisites{
			ProblemSpec: in.HasProblemSpec,
			WorldModel:  in.HasWorldModel,
		},
	}

	if !in.HasProblemSpec {
		result.Blockers = append(result.Blockers, BlockerMissingProblemSpec)
	}
	if !in.HasWorldModel {
		result.Blockers = append(result.Blockers, BlockerMissingWorldModel)
	}

	result.NormalizedConfig = normalize(in.Config)

	if result.NormalizedConfig.NumCandidates > largeCandidateCountThreshold ||
		result.NormalizedConfig.NumScenarios > largeScenarioCountThreshold {
		result.Warnings = append(result.Warnings, WarningLargeCandidateCount)
	}
	if result.NormalizedConfig.BudgetUSD != nil && *result.NormalizedConfig.BudgetUSD > highBudgetThresholdUSD {
		result.Warnings = append(result.Warnings, WarningHighBudget)
	}

	result.Ready = len(result.Blockers) == 0
	return result
}

// highBudgetThresholdUSD is the threshold above which WarningHighBudget
// fires; spec §4.4 names the warning but not a number, so this package
// picks a concrete, documented value (SPEC_FULL.md Open Question
// decision, recorded in DESIGN.md).
const highBudgetThresholdUSD = 50.0

// normalize clamps numeric fields to their documented ranges (§3:
// num_candidates∈[1,50], num_scenarios∈[1,50]); other numeric fields are
// echoed unchanged.
func normalize(cfg models.RunConfig) models.RunConfig {
	out := cfg
	out.NumCandidates = clamp(cfg.NumCandidates, minCandidates, maxCandidates, 5)
	out.NumScenarios = clamp(cfg.NumScenarios, minScenarios, maxScenarios, 8)
	return out
}

func clamp(v, lo, hi, defaultIfZero int) int {
	if v == 0 {
		v = defaultIfZero
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
