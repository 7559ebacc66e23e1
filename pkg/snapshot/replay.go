package snapshot

import (
	"context"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/orchestrator"
)

// ReplayPhases selects which pipeline subset a replay drives.
type ReplayPhases string

const (
	ReplayPhasesFull     ReplayPhases = "full"
	ReplayPhasesDesign   ReplayPhases = "design"
	ReplayPhasesEvaluate ReplayPhases = "evaluate"
)

// ReplayOptions configures replay_snapshot (§4.9).
type ReplayOptions struct {
	ReuseProject  bool         `json:"reuse_project,omitempty"`
	Phases        ReplayPhases `json:"phases,omitempty"`
	NumCandidates *int         `json:"num_candidates,omitempty"`
	NumScenarios  *int         `json:"num_scenarios,omitempty"`
}

// ReplayResult is replay_snapshot's return shape.
type ReplayResult struct {
	ReplayRunID string                       `json:"replay_run_id"`
	ProjectID   string                       `json:"project_id"`
	Status      models.RunStatus             `json:"status"`
	Results     *orchestrator.PipelineResult `json:"results,omitempty"`
}

// ReplaySnapshot restores a snapshot's frozen inputs into a fresh
// ephemeral project (or the snapshot's own project when reuse_project is
// set), creates a Run from the frozen run config, and drives the
// requested phases (§4.9). On failure the error is returned with the Run's
// current status. Only the full-pipeline path marks the Run failed (inside
// the orchestrator); design and evaluate replays, and an unknown phases
// value, leave the status as it was.
func (e *Engine) ReplaySnapshot(ctx context.Context, snapshotID string, opts ReplayOptions) (ReplayResult, error) {
	snap, err := e.store.GetSnapshot(snapshotID)
	if err != nil {
		return ReplayResult{}, err
	}

	phases := opts.Phases
	if phases == "" {
		phases = ReplayPhasesFull
	}

	projectID := snap.ProjectID
	if !opts.ReuseProject {
		tx, err := e.store.Begin(ctx)
		if err != nil {
			return ReplayResult{}, err
		}
		project, err := tx.CreateProject(models.Project{
			Title:       "Snapshot Replay: " + snap.Name,
			Description: "Ephemeral project for replaying snapshot " + snap.ID,
		})
		if err != nil {
			tx.Rollback()
			return ReplayResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return ReplayResult{}, err
		}
		projectID = project.ID
	}

	if err := e.RestoreSnapshotData(ctx, projectID, snap.SnapshotData); err != nil {
		return ReplayResult{}, err
	}

	mode := models.RunModeFullSearch
	cfg := models.RunConfig{NumCandidates: 5, NumScenarios: 8}
	if snap.SnapshotData.RunConfig != nil {
		mode = snap.SnapshotData.RunConfig.Mode
		cfg = snap.SnapshotData.RunConfig.Config
	}
	if opts.NumCandidates != nil {
		cfg.NumCandidates = *opts.NumCandidates
	}
	if opts.NumScenarios != nil {
		cfg.NumScenarios = *opts.NumScenarios
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return ReplayResult{}, err
	}
	run, err := tx.CreateRun(models.Run{ProjectID: projectID, Mode: mode, Config: cfg})
	if err != nil {
		tx.Rollback()
		return ReplayResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ReplayResult{}, err
	}

	result := ReplayResult{ReplayRunID: run.ID, ProjectID: projectID}

	var pipelineResult orchestrator.PipelineResult
	switch phases {
	case ReplayPhasesFull:
		pipelineResult, err = e.orch.ExecuteFullPipeline(ctx, run.ID, cfg.NumCandidates, cfg.NumScenarios)
	case ReplayPhasesDesign:
		pipelineResult.RunID = run.ID
		pipelineResult.Design, err = e.orch.ExecuteDesignPhase(ctx, run.ID, cfg.NumCandidates)
	case ReplayPhasesEvaluate:
		pipelineResult.RunID = run.ID
		pipelineResult.Evaluation, pipelineResult.Ranking, err = e.orch.ExecuteEvaluateAndRankPhase(ctx, run.ID)
	default:
		err = apperrors.Validation("unknown replay phases " + string(phases))
	}
	if err != nil {
		refreshed, getErr := e.store.GetRun(run.ID)
		if getErr == nil {
			result.Status = refreshed.Status
		}
		return result, err
	}

	refreshed, err := e.store.GetRun(run.ID)
	if err != nil {
		return result, err
	}
	result.Status = refreshed.Status
	result.Results = &pipelineResult
	return result, nil
}

// TestOptions configures run_snapshot_tests (§4.9 batch test).
type TestOptions struct {
	Replay             ReplayOptions
	StopOnFirstFailure bool
	CostLimitUSD       *float64
}

// MetricDelta is one replayed metric compared against its reference.
type MetricDelta struct {
	Metric    string
	Reference float64
	Actual    float64
	Delta     float64
}

// SnapshotTestResult is one snapshot's batch-test outcome.
type SnapshotTestResult struct {
	SnapshotID string
	Name       string
	Status     string // "passed" | "failed" | "skipped" | "error"
	Replay     *ReplayResult
	Invariants *ValidationReport
	Deltas     []MetricDelta
	CostUSD    float64
	Message    string
}

// TestSummary is the batch roll-up.
type TestSummary struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// TestReport is run_snapshot_tests' return shape.
type TestReport struct {
	Summary      TestSummary
	Results      []SnapshotTestResult
	TotalCostUSD float64
}

// RunSnapshotTests replays each snapshot, validates its declared
// invariants, computes metric deltas vs. reference_metrics, and
// accumulates cost, honouring stop_on_first_failure and cost_limit_usd
// (§4.9). An empty snapshotIDs slice tests every stored snapshot.
func (e *Engine) RunSnapshotTests(ctx context.Context, snapshotIDs []string, opts TestOptions) (TestReport, error) {
	if len(snapshotIDs) == 0 {
		for _, snap := range e.store.ListSnapshots("") {
			snapshotIDs = append(snapshotIDs, snap.ID)
		}
	}

	report := TestReport{}
	stopped := false

	for _, id := range snapshotIDs {
		report.Summary.Total++

		if stopped || (opts.CostLimitUSD != nil && report.TotalCostUSD >= *opts.CostLimitUSD) {
			report.Summary.Skipped++
			report.Results = append(report.Results, SnapshotTestResult{
				SnapshotID: id,
				Status:     "skipped",
				Message:    skipReason(stopped),
			})
			continue
		}

		result := e.testOne(ctx, id, opts.Replay)
		report.TotalCostUSD += result.CostUSD
		report.Results = append(report.Results, result)

		switch result.Status {
		case "passed":
			report.Summary.Passed++
		default:
			report.Summary.Failed++
			if opts.StopOnFirstFailure {
				stopped = true
			}
		}
	}

	return report, nil
}

// testOne replays a single snapshot and validates it.
func (e *Engine) testOne(ctx context.Context, snapshotID string, replayOpts ReplayOptions) SnapshotTestResult {
	snap, err := e.store.GetSnapshot(snapshotID)
	if err != nil {
		return SnapshotTestResult{SnapshotID: snapshotID, Status: "error", Message: err.Error()}
	}

	result := SnapshotTestResult{SnapshotID: snapshotID, Name: snap.Name}

	replay, err := e.ReplaySnapshot(ctx, snapshotID, replayOpts)
	result.Replay = &replay
	if err != nil {
		result.Status = "failed"
		result.Message = "replay failed: " + err.Error()
		return result
	}

	run, err := e.store.GetRun(replay.ReplayRunID)
	if err != nil {
		result.Status = "error"
		result.Message = err.Error()
		return result
	}
	if run.LLMUsage.CostUSD != nil {
		result.CostUSD = *run.LLMUsage.CostUSD
	}

	refMetrics := snap.ReferenceMetrics
	validation, err := e.ValidateInvariants(replay.ReplayRunID, snap.Invariants, &refMetrics)
	if err != nil {
		result.Status = "error"
		result.Message = err.Error()
		return result
	}
	result.Invariants = &validation
	result.Deltas = metricDeltas(refMetrics, run)

	if validation.AllPassed {
		result.Status = "passed"
	} else {
		result.Status = "failed"
		result.Message = "invariant validation failed"
	}
	return result
}

// metricDeltas compares the replayed run against the reference for the
// §4.9-named metrics.
func metricDeltas(ref models.ReferenceMetrics, run models.Run) []MetricDelta {
	deltas := []MetricDelta{
		{Metric: "candidate_count", Reference: float64(ref.CandidateCount), Actual: float64(run.CandidateCount)},
		{Metric: "scenario_count", Reference: float64(ref.ScenarioCount), Actual: float64(run.ScenarioCount)},
	}
	if ref.DurationSeconds != nil && run.DurationSeconds != nil {
		deltas = append(deltas, MetricDelta{
			Metric:    "duration_seconds",
			Reference: *ref.DurationSeconds,
			Actual:    *run.DurationSeconds,
		})
	}
	for i := range deltas {
		deltas[i].Delta = deltas[i].Actual - deltas[i].Reference
	}
	return deltas
}

func skipReason(stopped bool) string {
	if stopped {
		return "skipped: stop_on_first_failure triggered"
	}
	return "skipped: cost_limit_usd reached"
}
