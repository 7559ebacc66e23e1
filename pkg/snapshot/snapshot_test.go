package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/gateway"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/orchestrator"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// replayAgent answers every agent with a deterministic, minimal body.
type replayAgent struct{}

func (replayAgent) Invoke(_ context.Context, agentName string, task map[string]any) (string, models.UsageStats, error) {
	cost := 0.01
	usage := models.UsageStats{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, CallCount: 1, CostUSD: &cost}
	switch agentName {
	case "designer":
		n, _ := task["num_candidates"].(int)
		var candidates []map[string]any
		for i := 0; i < n; i++ {
			candidates = append(candidates, map[string]any{
				"mechanism_description": fmt.Sprintf("mechanism %d", i+1),
			})
		}
		return jsonBody(map[string]any{"candidates": candidates}), usage, nil
	case "scenario_generator":
		n, _ := task["num_scenarios"].(int)
		var scenarios []map[string]any
		for i := 0; i < n; i++ {
			scenarios = append(scenarios, map[string]any{
				"id":     fmt.Sprintf("scen-%d", i+1),
				"name":   fmt.Sprintf("scenario %d", i+1),
				"type":   "normal_operation",
				"weight": 1.0,
			})
		}
		return jsonBody(map[string]any{"scenarios": scenarios}), usage, nil
	case "evaluator":
		return jsonBody(map[string]any{
			"P": map[string]any{"overall": 0.9},
			"R": map[string]any{"overall": 0.5},
		}), usage, nil
	default:
		return "{}", usage, nil
	}
}

func jsonBody(v any) string {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(payload)
}

type env struct {
	store  *store.Store
	orch   *orchestrator.Orchestrator
	engine *Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := store.New()
	orch := orchestrator.New(s, gateway.New(replayAgent{}), orchestrator.WithConcurrency(2))
	return &env{store: s, orch: orch, engine: New(s, orch)}
}

func (e *env) seedProject(t *testing.T) models.Project {
	t.Helper()
	tx, err := e.store.Begin(context.Background())
	require.NoError(t, err)
	project, err := tx.CreateProject(models.Project{Title: "snapshot source"})
	require.NoError(t, err)
	_, err = tx.UpsertProblemSpec(project.ID, func(spec *models.ProblemSpec) {
		spec.Constraints = []models.Constraint{{Name: "safety", Description: "no unsafe states", Weight: 100}}
		spec.Goals = []string{"stay safe", "stay cheap"}
		spec.Resolution = models.ResolutionFine
		spec.Mode = models.RunModeFullSearch
	})
	require.NoError(t, err)
	_, err = tx.UpsertWorldModel(project.ID, func(wm *models.WorldModel) {
		wm.Sections.Actors = []models.WorldModelElement{{ID: "a1", Name: "operator"}}
		wm.Sections.Mechanisms = []models.WorldModelElement{{ID: "m1", Name: "throttle"}}
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return project
}

// completedRun drives the full pipeline on a fresh run.
func (e *env) completedRun(t *testing.T, projectID string, numCandidates, numScenarios int) models.Run {
	t.Helper()
	tx, err := e.store.Begin(context.Background())
	require.NoError(t, err)
	run, err := tx.CreateRun(models.Run{
		ProjectID: projectID,
		Mode:      models.RunModeFullSearch,
		Config:    models.RunConfig{NumCandidates: numCandidates, NumScenarios: numScenarios},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = e.orch.ExecuteFullPipeline(context.Background(), run.ID, numCandidates, numScenarios)
	require.NoError(t, err)
	refreshed, err := e.store.GetRun(run.ID)
	require.NoError(t, err)
	return refreshed
}

func TestCaptureSnapshotData_RequiresPrerequisites(t *testing.T) {
	e := newEnv(t)
	tx, err := e.store.Begin(context.Background())
	require.NoError(t, err)
	project, err := tx.CreateProject(models.Project{Title: "bare"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = e.engine.CaptureSnapshotData(project.ID, CaptureOptions{})
	assert.True(t, apperrors.Is(err, apperrors.KindPreconditionFailed))
}

func TestRestoreThenCapture_RoundTrips(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)

	data, err := e.engine.CaptureSnapshotData(project.ID, CaptureOptions{})
	require.NoError(t, err)

	// Restore into a fresh project, then capture again: the §8 property
	// restore(s) -> capture() == s.snapshot_data modulo timestamps.
	tx, err := e.store.Begin(context.Background())
	require.NoError(t, err)
	target, err := tx.CreateProject(models.Project{Title: "restore target"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NoError(t, e.engine.RestoreSnapshotData(context.Background(), target.ID, data))

	recaptured, err := e.engine.CaptureSnapshotData(target.ID, CaptureOptions{})
	require.NoError(t, err)
	assert.Equal(t, data, recaptured)
}

func TestRestoreSnapshotData_RejectsUnknownVersion(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)

	err := e.engine.RestoreSnapshotData(context.Background(), project.ID, models.SnapshotData{Version: "2.0"})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestReplaySnapshot_FullRoundTrip(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)
	run := e.completedRun(t, project.ID, 3, 2)

	snap, err := e.engine.CreateSnapshot(context.Background(), project.ID, "baseline", "known-good", nil,
		[]models.Invariant{
			{Type: "min_candidates", Value: 3},
			{Type: "run_status", Value: "completed"},
			{Type: "min_evaluation_coverage", Value: 1.0},
		},
		CaptureOptions{RunID: run.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, snap.ReferenceMetrics.CandidateCount)
	require.NotNil(t, snap.ReferenceMetrics.TopIScore)

	nc, ns := 3, 4
	replay, err := e.engine.ReplaySnapshot(context.Background(), snap.ID, ReplayOptions{
		Phases:        ReplayPhasesFull,
		NumCandidates: &nc,
		NumScenarios:  &ns,
	})
	require.NoError(t, err)

	assert.NotEqual(t, project.ID, replay.ProjectID)
	assert.Equal(t, models.RunStatusCompleted, replay.Status)

	replayRun, err := e.store.GetRun(replay.ReplayRunID)
	require.NoError(t, err)
	assert.Equal(t, 3, replayRun.CandidateCount)
	assert.Equal(t, 4, replayRun.ScenarioCount)
	assert.Equal(t, 12, replayRun.EvaluationCount)

	replayProject, err := e.store.GetProject(replay.ProjectID)
	require.NoError(t, err)
	assert.Contains(t, replayProject.Title, "Snapshot Replay: baseline")

	report, err := e.engine.ValidateInvariants(replay.ReplayRunID, snap.Invariants, &snap.ReferenceMetrics)
	require.NoError(t, err)
	assert.True(t, report.AllPassed)
}

func TestValidateInvariants_Table(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)
	run := e.completedRun(t, project.ID, 2, 2)

	tests := []struct {
		name     string
		inv      models.Invariant
		expected string
	}{
		{"min candidates pass", models.Invariant{Type: "min_candidates", Value: 2}, "passed"},
		{"min candidates fail", models.Invariant{Type: "min_candidates", Value: 5}, "failed"},
		{"max candidates pass", models.Invariant{Type: "max_candidates", Value: 2}, "passed"},
		{"min scenarios pass", models.Invariant{Type: "min_scenarios", Value: 2}, "passed"},
		{"max scenarios fail", models.Invariant{Type: "max_scenarios", Value: 1}, "failed"},
		{"run status pass", models.Invariant{Type: "run_status", Value: "completed"}, "passed"},
		{"run status fail", models.Invariant{Type: "run_status", Value: "failed"}, "failed"},
		{"min top i pass", models.Invariant{Type: "min_top_i_score", Value: 1.0}, "passed"},
		{"max top i fail", models.Invariant{Type: "max_top_i_score", Value: 1.0}, "failed"},
		{"no hard violations pass", models.Invariant{Type: "no_hard_constraint_violations"}, "passed"},
		{"coverage pass", models.Invariant{Type: "min_evaluation_coverage", Value: 1.0}, "passed"},
		{"duration pass", models.Invariant{Type: "max_duration_seconds", Value: 3600}, "passed"},
		{"unknown type errors", models.Invariant{Type: "spectral_norm"}, "error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report, err := e.engine.ValidateInvariants(run.ID, []models.Invariant{tc.inv}, nil)
			require.NoError(t, err)
			require.Len(t, report.Results, 1)
			assert.Equal(t, tc.expected, report.Results[0].Status)
			assert.Equal(t, tc.expected == "passed", report.AllPassed)
		})
	}
}

func TestValidateInvariants_TopIScoreNilFails(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)

	// A run with unranked candidates has no top I score; the invariant
	// fails rather than passing vacuously (§4.9: null => fail).
	tx, err := e.store.Begin(context.Background())
	require.NoError(t, err)
	run, err := tx.CreateRun(models.Run{ProjectID: project.ID})
	require.NoError(t, err)
	_, err = tx.CreateCandidate(models.Candidate{RunID: run.ID, ProjectID: project.ID})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	report, err := e.engine.ValidateInvariants(run.ID, []models.Invariant{
		{Type: "min_top_i_score", Value: 0.1},
	}, nil)
	require.NoError(t, err)
	assert.False(t, report.AllPassed)
	assert.Equal(t, "failed", report.Results[0].Status)
}

func TestValidateInvariants_CoverageZeroDenominator(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)

	tx, err := e.store.Begin(context.Background())
	require.NoError(t, err)
	run, err := tx.CreateRun(models.Run{ProjectID: project.ID})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	// candidate_count * scenario_count == 0 reads as full coverage.
	report, err := e.engine.ValidateInvariants(run.ID, []models.Invariant{
		{Type: "min_evaluation_coverage", Value: 1.0},
	}, nil)
	require.NoError(t, err)
	assert.True(t, report.AllPassed)
}

func TestRunSnapshotTests_Batch(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)
	run := e.completedRun(t, project.ID, 2, 2)

	good, err := e.engine.CreateSnapshot(context.Background(), project.ID, "good", "", nil,
		[]models.Invariant{{Type: "min_candidates", Value: 2}},
		CaptureOptions{RunID: run.ID})
	require.NoError(t, err)

	bad, err := e.engine.CreateSnapshot(context.Background(), project.ID, "bad", "", nil,
		[]models.Invariant{{Type: "min_candidates", Value: 99}},
		CaptureOptions{RunID: run.ID})
	require.NoError(t, err)

	report, err := e.engine.RunSnapshotTests(context.Background(), []string{good.ID, bad.ID}, TestOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Passed)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Greater(t, report.TotalCostUSD, 0.0)

	require.Len(t, report.Results, 2)
	assert.Equal(t, "passed", report.Results[0].Status)
	assert.Equal(t, "failed", report.Results[1].Status)
	require.NotEmpty(t, report.Results[0].Deltas)
}

func TestRunSnapshotTests_StopOnFirstFailure(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)
	run := e.completedRun(t, project.ID, 2, 2)

	bad, err := e.engine.CreateSnapshot(context.Background(), project.ID, "bad", "", nil,
		[]models.Invariant{{Type: "min_candidates", Value: 99}},
		CaptureOptions{RunID: run.ID})
	require.NoError(t, err)
	next, err := e.engine.CreateSnapshot(context.Background(), project.ID, "never-run", "", nil, nil,
		CaptureOptions{RunID: run.ID})
	require.NoError(t, err)

	report, err := e.engine.RunSnapshotTests(context.Background(), []string{bad.ID, next.ID},
		TestOptions{StopOnFirstFailure: true})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Skipped)
	assert.Equal(t, "skipped", report.Results[1].Status)
}
