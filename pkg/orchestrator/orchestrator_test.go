package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/gateway"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// fakeAgentClient scripts each agent's responses. The evaluator script
// may vary by task; every other agent returns a fixed body.
type fakeAgentClient struct {
	mu        sync.Mutex
	calls     map[string]int
	designer  func(task map[string]any) string
	scenarios func(task map[string]any) string
	evaluator func(task map[string]any) string
	fail      map[string]error
}

func newFakeAgent() *fakeAgentClient {
	f := &fakeAgentClient{calls: map[string]int{}, fail: map[string]error{}}
	f.designer = func(task map[string]any) string {
		n, _ := task["num_candidates"].(int)
		var candidates []map[string]any
		for i := 0; i < n; i++ {
			candidates = append(candidates, map[string]any{
				"mechanism_description": fmt.Sprintf("mechanism %d", i+1),
				"predicted_effects": map[string]any{
					"actors_affected":     []string{"operator"},
					"resources_impacted":  []string{"budget"},
					"mechanisms_modified": []string{},
				},
				"constraint_compliance": map[string]any{"latency": 0.9},
				"reasoning":             "plausible",
			})
		}
		return mustJSON(map[string]any{"candidates": candidates, "reasoning": "done"})
	}
	f.scenarios = func(task map[string]any) string {
		n, _ := task["num_scenarios"].(int)
		var scenarios []map[string]any
		for i := 0; i < n; i++ {
			scenarios = append(scenarios, map[string]any{
				"id":          fmt.Sprintf("scen-%d", i+1),
				"name":        fmt.Sprintf("scenario %d", i+1),
				"description": "load test",
				"type":        "stress_test",
				"focus":       "throughput",
				"weight":      0.5,
			})
		}
		return mustJSON(map[string]any{"scenarios": scenarios, "reasoning": "done"})
	}
	f.evaluator = func(task map[string]any) string {
		return mustJSON(map[string]any{
			"P":           map[string]any{"overall": 0.9},
			"R":           map[string]any{"overall": 0.5},
			"explanation": "solid",
		})
	}
	return f
}

func (f *fakeAgentClient) Invoke(_ context.Context, agentName string, task map[string]any) (string, models.UsageStats, error) {
	f.mu.Lock()
	f.calls[agentName]++
	f.mu.Unlock()

	usage := models.UsageStats{InputTokens: 100, OutputTokens: 50, TotalTokens: 150, CallCount: 1}
	if err := f.fail[agentName]; err != nil {
		return "", usage, err
	}
	switch agentName {
	case "designer":
		return f.designer(task), usage, nil
	case "scenario_generator":
		return f.scenarios(task), usage, nil
	case "evaluator":
		return f.evaluator(task), usage, nil
	default:
		return "{}", usage, nil
	}
}

func (f *fakeAgentClient) callCount(agent string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[agent]
}

func mustJSON(v any) string {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(payload)
}

// harness wires a store, gateway, and orchestrator over the fake agent.
type harness struct {
	store *store.Store
	orch  *Orchestrator
	agent *fakeAgentClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := store.New()
	agent := newFakeAgent()
	return &harness{
		store: s,
		orch:  New(s, gateway.New(agent), WithConcurrency(2)),
		agent: agent,
	}
}

// seedProject creates a project with (optionally) its prerequisites and a
// created run.
func (h *harness) seedProject(t *testing.T, withSpec, withWorldModel bool) (models.Project, models.Run) {
	t.Helper()
	tx, err := h.store.Begin(context.Background())
	require.NoError(t, err)
	project, err := tx.CreateProject(models.Project{Title: "orchestration"})
	require.NoError(t, err)
	if withSpec {
		_, err = tx.UpsertProblemSpec(project.ID, func(spec *models.ProblemSpec) {
			spec.Constraints = []models.Constraint{{Name: "latency", Description: "p99 under budget", Weight: 60}}
			spec.Goals = []string{"reduce cost"}
			spec.Resolution = models.ResolutionMedium
			spec.Mode = models.RunModeFullSearch
		})
		require.NoError(t, err)
	}
	if withWorldModel {
		_, err = tx.UpsertWorldModel(project.ID, func(wm *models.WorldModel) {
			wm.Sections.Actors = []models.WorldModelElement{{ID: "a1", Name: "operator"}}
		})
		require.NoError(t, err)
	}
	run, err := tx.CreateRun(models.Run{ProjectID: project.ID, Mode: models.RunModeFullSearch})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return project, run
}

func TestExecuteFullPipeline_HappyPath(t *testing.T) {
	h := newHarness(t)
	project, run := h.seedProject(t, true, true)

	tx, err := h.store.Begin(context.Background())
	require.NoError(t, err)
	session, err := tx.CreateChatSession(models.ChatSession{ProjectID: project.ID, Mode: models.ChatSessionModeSetup})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	result, err := h.orch.ExecuteFullPipeline(context.Background(), run.ID, 2, 3)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Design.CandidatesGenerated)
	assert.Equal(t, 3, result.Scenario.ScenariosGenerated)
	assert.Equal(t, 6, result.Evaluation.Count)
	assert.Equal(t, 2, result.Ranking.Count)

	got, err := h.store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 2, got.CandidateCount)
	assert.Equal(t, 3, got.ScenarioCount)
	assert.Equal(t, 6, got.EvaluationCount)
	assert.Empty(t, got.ErrorSummary)

	// Phase instrumentation covers all four phases.
	for _, phase := range []string{phaseDesign, phaseScenario, phaseEvaluation, phaseRanking} {
		assert.Contains(t, got.Metrics.Phases, phase)
	}
	assert.Equal(t, 8, got.LLMUsage.CallCount) // 1 design + 1 scenario + 6 evals

	// The summary lands in the first chat session with metadata attached.
	require.NotNil(t, got.RunSummaryMessageID)
	messages := h.store.ListMessages(session.ID)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageRoleAgent, messages[0].Role)
	assert.Contains(t, messages[0].Metadata, "run_summary")
}

func TestExecuteFullPipeline_MissingWorldModelFailsRun(t *testing.T) {
	h := newHarness(t)
	_, run := h.seedProject(t, true, false)

	_, err := h.orch.ExecuteFullPipeline(context.Background(), run.ID, 2, 2)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindPreconditionFailed))

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "project_ids")

	got, err := h.store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Contains(t, got.ErrorSummary, "world_model")

	assert.Empty(t, h.store.ListCandidates(store.CandidateFilter{RunID: run.ID}))
	assert.Empty(t, h.store.ListEvaluations(store.EvaluationFilter{RunID: run.ID}))
	assert.Equal(t, 0, h.agent.callCount("designer"))
}

func TestExecuteFullPipeline_UnknownRun(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.ExecuteFullPipeline(context.Background(), "missing", 2, 2)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestExecuteEvaluationPhase_Idempotent(t *testing.T) {
	h := newHarness(t)
	_, run := h.seedProject(t, true, true)

	_, err := h.orch.ExecuteDesignPhase(context.Background(), run.ID, 2)
	require.NoError(t, err)
	_, err = h.orch.ExecuteScenarioPhase(context.Background(), run.ID, 2)
	require.NoError(t, err)

	first, err := h.orch.ExecuteEvaluationPhase(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Count)
	assert.Equal(t, 0, first.SkippedExisting)

	second, err := h.orch.ExecuteEvaluationPhase(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Count)
	assert.Equal(t, 4, second.SkippedExisting)

	got, err := h.store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.EvaluationCount)
	assert.Len(t, h.store.ListEvaluations(store.EvaluationFilter{RunID: run.ID}), 4)
}

func TestExecuteEvaluationPhase_SinglePairFailureContinues(t *testing.T) {
	h := newHarness(t)
	_, run := h.seedProject(t, true, true)

	_, err := h.orch.ExecuteDesignPhase(context.Background(), run.ID, 2)
	require.NoError(t, err)
	_, err = h.orch.ExecuteScenarioPhase(context.Background(), run.ID, 2)
	require.NoError(t, err)

	// The first evaluator call fails at the transport level; the phase
	// logs and continues with remaining pairs.
	failFirst := &failingOnce{inner: h.agent}
	h.orch = New(h.store, gateway.New(failFirst), WithConcurrency(1))

	result, err := h.orch.ExecuteEvaluationPhase(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)
	assert.Equal(t, 4, result.AttemptedPairs)
}

// failingOnce fails the first evaluator invocation, then delegates.
type failingOnce struct {
	mu     sync.Mutex
	failed bool
	inner  *fakeAgentClient
}

func (f *failingOnce) Invoke(ctx context.Context, agentName string, task map[string]any) (string, models.UsageStats, error) {
	if agentName == "evaluator" {
		f.mu.Lock()
		first := !f.failed
		f.failed = true
		f.mu.Unlock()
		if first {
			return "", models.UsageStats{}, apperrors.AgentFailure("transport reset", nil)
		}
	}
	return f.inner.Invoke(ctx, agentName, task)
}

func TestExecuteFullPipeline_DesignFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	_, run := h.seedProject(t, true, true)
	h.agent.fail["designer"] = apperrors.AgentFailure("designer unavailable", nil)

	_, err := h.orch.ExecuteFullPipeline(context.Background(), run.ID, 2, 2)
	require.Error(t, err)

	got, err := h.store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorSummary)
}

func TestExecuteFullPipeline_CancelledContext(t *testing.T) {
	h := newHarness(t)
	_, run := h.seedProject(t, true, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orch.ExecuteFullPipeline(ctx, run.ID, 2, 2)
	require.Error(t, err)

	got, err := h.store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, "cancelled", got.ErrorSummary)
}

func TestExecuteFullPipeline_CompletedIsSticky(t *testing.T) {
	h := newHarness(t)
	_, run := h.seedProject(t, true, true)

	_, err := h.orch.ExecuteFullPipeline(context.Background(), run.ID, 1, 1)
	require.NoError(t, err)

	// A later failure attempt must not demote the completed run.
	h.orch.failRun(context.Background(), run.ID, "late failure")

	got, err := h.store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Empty(t, got.ErrorSummary)
}
