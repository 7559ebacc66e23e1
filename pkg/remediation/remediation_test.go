package remediation

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
	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// scriptedAgent answers every agent with a minimal valid body so reruns
// can drive the real orchestrator end to end.
type scriptedAgent struct{}

func (scriptedAgent) Invoke(_ context.Context, agentName string, task map[string]any) (string, models.UsageStats, error) {
	usage := models.UsageStats{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, CallCount: 1}
	switch agentName {
	case "designer":
		n, _ := task["num_candidates"].(int)
		var candidates []map[string]any
		for i := 0; i < n; i++ {
			candidates = append(candidates, map[string]any{
				"mechanism_description": fmt.Sprintf("mechanism %d", i+1),
				"predicted_effects":     map[string]any{},
			})
		}
		return marshal(map[string]any{"candidates": candidates}), usage, nil
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
		return marshal(map[string]any{"scenarios": scenarios}), usage, nil
	case "evaluator":
		return marshal(map[string]any{
			"P": map[string]any{"overall": 0.8},
			"R": map[string]any{"overall": 0.4},
		}), usage, nil
	default:
		return "{}", usage, nil
	}
}

func marshal(v any) string {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(payload)
}

type env struct {
	store  *store.Store
	engine *Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := store.New()
	orch := orchestrator.New(s, gateway.New(scriptedAgent{}), orchestrator.WithConcurrency(2))
	return &env{store: s, engine: New(s, orch)}
}

func (e *env) seedProject(t *testing.T) models.Project {
	t.Helper()
	tx, err := e.store.Begin(context.Background())
	require.NoError(t, err)
	project, err := tx.CreateProject(models.Project{Title: "remediation"})
	require.NoError(t, err)
	_, err = tx.UpsertProblemSpec(project.ID, func(spec *models.ProblemSpec) {
		spec.Constraints = []models.Constraint{{Name: "budget", Description: "stay on budget", Weight: 70}}
		spec.Goals = []string{"original goal"}
		spec.Resolution = models.ResolutionMedium
		spec.Mode = models.RunModeFullSearch
	})
	require.NoError(t, err)
	_, err = tx.UpsertWorldModel(project.ID, func(wm *models.WorldModel) {
		wm.Sections.Actors = []models.WorldModelElement{{ID: "a1", Name: "operator"}}
		wm.Sections.Resources = []models.WorldModelElement{{ID: "r1", Name: "budget"}}
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return project
}

func (e *env) fileIssue(t *testing.T, projectID string, severity models.IssueSeverity, runID string) models.Issue {
	t.Helper()
	tx, err := e.store.Begin(context.Background())
	require.NoError(t, err)
	issue := models.Issue{
		ProjectID:   projectID,
		Type:        models.IssueTypeModel,
		Severity:    severity,
		Description: "model drifts from reality",
	}
	if runID != "" {
		issue.RunID = &runID
	}
	created, err := tx.CreateIssue(issue)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return created
}

func TestResolve_AutoUpgradeWithoutRun(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)
	issue := e.fileIssue(t, project.ID, models.IssueSeverityMinor, "")

	result, err := e.engine.Resolve(context.Background(), issue.ID, Request{
		Action: models.ActionPatchAndRescore,
		Patch:  &Patch{ProblemSpec: &ProblemSpecPatch{Goals: []string{"g"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ActionFullRerun, result.Action)
	assert.True(t, result.ActionUpgraded)
	assert.Equal(t, models.ActionPatchAndRescore, result.OriginalRemediationAction)
	require.NotEmpty(t, result.NewRunID)

	run, err := e.store.GetRun(result.NewRunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, project.ID, run.ProjectID)

	spec, err := e.store.GetProblemSpecByProject(project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, spec.Goals)

	resolved, err := e.store.GetIssue(issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueResolutionResolved, resolved.ResolutionStatus)
	require.NotNil(t, resolved.ResolvedAt)
}

func TestResolve_NoUpgradeWhenRunPresent(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)

	// Build a completed run the patch path can re-rank.
	tx, err := e.store.Begin(context.Background())
	require.NoError(t, err)
	run, err := tx.CreateRun(models.Run{ProjectID: project.ID})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	orch := orchestrator.New(e.store, gateway.New(scriptedAgent{}))
	_, err = orch.ExecuteFullPipeline(context.Background(), run.ID, 2, 2)
	require.NoError(t, err)

	issue := e.fileIssue(t, project.ID, models.IssueSeverityMinor, run.ID)

	result, err := e.engine.Resolve(context.Background(), issue.ID, Request{
		Action: models.ActionPatchAndRescore,
		Patch:  &Patch{ProblemSpec: &ProblemSpecPatch{Goals: []string{"patched goal"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ActionPatchAndRescore, result.Action)
	assert.False(t, result.ActionUpgraded)
	assert.Empty(t, result.NewRunID)
	require.NotNil(t, result.Ranking)
	assert.Equal(t, 2, result.Ranking.Count)
}

func TestResolve_SeverityDefaults(t *testing.T) {
	tests := []struct {
		severity     models.IssueSeverity
		candidateIDs []string
		expected     models.RemediationAction
	}{
		{models.IssueSeverityMinor, nil, models.ActionPatchAndRescore},
		{models.IssueSeverityImportant, nil, models.ActionPartialRerun},
		{models.IssueSeverityCatastrophic, nil, models.ActionFullRerun},
		{models.IssueSeverityCatastrophic, []string{"c1"}, models.ActionInvalidateCandidates},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, defaultAction(tc.severity, tc.candidateIDs), "severity %s", tc.severity)
	}
}

func TestResolve_InvalidEnumRejectsPatch(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)
	issue := e.fileIssue(t, project.ID, models.IssueSeverityMinor, "")

	bad := models.Resolution("ultra")
	_, err := e.engine.Resolve(context.Background(), issue.ID, Request{
		Patch: &Patch{ProblemSpec: &ProblemSpecPatch{Resolution: &bad}},
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	// No state changes committed: goals untouched, issue still open.
	spec, err := e.store.GetProblemSpecByProject(project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"original goal"}, spec.Goals)
	open, err := e.store.GetIssue(issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueResolutionOpen, open.ResolutionStatus)
}

func TestResolve_InvalidateCandidates(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)

	tx, err := e.store.Begin(context.Background())
	require.NoError(t, err)
	run, err := tx.CreateRun(models.Run{ProjectID: project.ID})
	require.NoError(t, err)
	c1, err := tx.CreateCandidate(models.Candidate{RunID: run.ID, ProjectID: project.ID})
	require.NoError(t, err)
	c2, err := tx.CreateCandidate(models.Candidate{RunID: run.ID, ProjectID: project.ID})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	issue := e.fileIssue(t, project.ID, models.IssueSeverityCatastrophic, "")

	result, err := e.engine.Resolve(context.Background(), issue.ID, Request{
		CandidateIDs: []string{c1.ID, c2.ID},
		Reason:       "evaluator systematically overestimated both",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ActionInvalidateCandidates, result.Action)
	assert.ElementsMatch(t, []string{c1.ID, c2.ID}, result.InvalidatedCandidateIDs)

	for _, id := range []string{c1.ID, c2.ID} {
		candidate, err := e.store.GetCandidate(id)
		require.NoError(t, err)
		assert.Equal(t, models.CandidateStatusRejected, candidate.Status)
		require.NotEmpty(t, candidate.ProvenanceLog)
		last := candidate.ProvenanceLog[len(candidate.ProvenanceLog)-1]
		assert.Equal(t, "invalidation", last.Type)
		assert.Contains(t, last.ReferenceIDs, issue.ID)
	}
}

func TestMergeTrees_ProvenanceConcatenates(t *testing.T) {
	existing := map[string]any{
		"actors":     []any{map[string]any{"id": "a1", "name": "operator"}},
		"provenance": []any{map[string]any{"type": "initial"}},
	}
	patch := map[string]any{
		"provenance": []any{map[string]any{"type": "feedback_patch"}},
	}

	merged := mergeTrees(existing, patch)

	prov, ok := merged["provenance"].([]any)
	require.True(t, ok)
	require.Len(t, prov, 2)
	assert.Equal(t, "initial", prov[0].(map[string]any)["type"])
	assert.Equal(t, "feedback_patch", prov[1].(map[string]any)["type"])
	// Untouched keys are preserved.
	assert.Contains(t, merged, "actors")
}

func TestMergeTrees_NestedDictMerge(t *testing.T) {
	existing := map[string]any{
		"metadata": map[string]any{"region": "us", "tier": "gold"},
	}
	patch := map[string]any{
		"metadata": map[string]any{"tier": "silver", "owner": "ops"},
	}

	merged := mergeTrees(existing, patch)
	metadata := merged["metadata"].(map[string]any)
	assert.Equal(t, "us", metadata["region"])
	assert.Equal(t, "silver", metadata["tier"])
	assert.Equal(t, "ops", metadata["owner"])
}

func TestMergeTrees_ListReplaces(t *testing.T) {
	existing := map[string]any{
		"actors": []any{map[string]any{"id": "a1"}},
	}
	patch := map[string]any{
		"actors": []any{map[string]any{"id": "a2"}, map[string]any{"id": "a3"}},
	}

	merged := mergeTrees(existing, patch)
	actors := merged["actors"].([]any)
	require.Len(t, actors, 2)
	assert.Equal(t, "a2", actors[0].(map[string]any)["id"])
}

func TestPatchWorldModel_AppendsFeedbackPatchProvenance(t *testing.T) {
	e := newEnv(t)
	project := e.seedProject(t)
	issue := e.fileIssue(t, project.ID, models.IssueSeverityMinor, "")

	_, err := e.engine.Resolve(context.Background(), issue.ID, Request{
		Patch: &Patch{WorldModel: map[string]any{
			"actors": []any{
				map[string]any{"id": "a1", "name": "operator"},
				map[string]any{"id": "a2", "name": "regulator"},
			},
		}},
	})
	require.NoError(t, err)

	wm, err := e.store.GetWorldModelByProject(project.ID)
	require.NoError(t, err)
	require.Len(t, wm.Sections.Actors, 2)
	// Unpatched sections survive the merge.
	require.Len(t, wm.Sections.Resources, 1)

	require.NotEmpty(t, wm.ProvenanceLog)
	last := wm.ProvenanceLog[len(wm.ProvenanceLog)-1]
	assert.Equal(t, "feedback_patch", last.Type)
	assert.Equal(t, provenance.ActorSystem, last.Actor)
}
