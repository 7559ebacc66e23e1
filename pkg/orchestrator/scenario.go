package orchestrator

import (
	"context"
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// ScenarioResult is the scenario phase's outcome.
type ScenarioResult struct {
	ScenariosGenerated int
	SuiteID            string
}

// ExecuteScenarioPhase runs the ScenarioGenerator agent and persists the
// Run's singleton ScenarioSuite, created if absent, else overwritten in
// place (§4.6 scenario phase contract). Scenario weights are clamped into
// [0,1].
func (o *Orchestrator) ExecuteScenarioPhase(ctx context.Context, runID string, numScenarios int) (ScenarioResult, error) {
	run, err := o.store.GetRun(runID)
	if err != nil {
		return ScenarioResult{}, err
	}

	spec, err := o.store.GetProblemSpecByProject(run.ProjectID)
	if err != nil {
		return ScenarioResult{}, apperrors.PreconditionFailed("problem spec required for scenario phase", nil)
	}
	worldModel, err := o.store.GetWorldModelByProject(run.ProjectID)
	if err != nil {
		return ScenarioResult{}, apperrors.PreconditionFailed("world model required for scenario phase", nil)
	}

	candidates := o.store.ListCandidates(store.CandidateFilter{RunID: runID})
	candidateTasks := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		candidateTasks = append(candidateTasks, map[string]any{
			"id":                    c.ID,
			"mechanism_description": c.MechanismDescription,
			"predicted_effects":     c.PredictedEffects,
		})
	}

	started := time.Now().UTC()
	task := map[string]any{
		"problem_spec":  specTask(spec),
		"world_model":   worldModelTask(worldModel),
		"candidates":    candidateTasks,
		"num_scenarios": numScenarios,
	}

	resp, usage, err := o.gateway.GenerateScenarios(ctx, task)
	if err != nil {
		o.recordPhase(ctx, runID, phaseScenario, started, map[string]int{"scenarios_generated": 0, "llm_calls": 1}, []models.UsageStats{usage})
		return ScenarioResult{}, apperrors.AgentFailure("scenario generator agent failed", err)
	}

	scenarios := make([]models.Scenario, 0, len(resp.Scenarios))
	for _, sc := range resp.Scenarios {
		id := sc.ID
		if id == "" {
			id = store.NewID()
		}
		scenarios = append(scenarios, models.Scenario{
			ID:               id,
			Name:             sc.Name,
			Description:      sc.Description,
			Type:             models.ScenarioType(sc.Type),
			Focus:            sc.Focus,
			InitialState:     sc.InitialState,
			Events:           sc.Events,
			ExpectedOutcomes: sc.ExpectedOutcomes,
			Weight:           clampWeight(sc.Weight),
		})
	}

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return ScenarioResult{}, err
	}
	defer tx.Rollback()

	suite, err := tx.UpsertScenarioSuite(runID, scenarios)
	if err != nil {
		return ScenarioResult{}, err
	}
	if _, err := tx.UpdateRun(runID, func(r *models.Run) {
		r.ScenarioCount = len(scenarios)
	}); err != nil {
		return ScenarioResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ScenarioResult{}, err
	}

	o.recordPhase(ctx, runID, phaseScenario, started, map[string]int{
		"scenarios_generated": len(scenarios),
		"llm_calls":           1,
	}, []models.UsageStats{usage})

	o.logger.Info("scenario phase completed", "run_id", runID, "scenarios_generated", len(scenarios))
	return ScenarioResult{ScenariosGenerated: len(scenarios), SuiteID: suite.ID}, nil
}

// ExecuteDesignAndScenarioPhase runs the design and scenario phases in
// order (§4.6 public operations).
func (o *Orchestrator) ExecuteDesignAndScenarioPhase(ctx context.Context, runID string, numCandidates, numScenarios int) (DesignResult, ScenarioResult, error) {
	design, err := o.ExecuteDesignPhase(ctx, runID, numCandidates)
	if err != nil {
		return DesignResult{}, ScenarioResult{}, err
	}
	scenario, err := o.ExecuteScenarioPhase(ctx, runID, numScenarios)
	if err != nil {
		return design, ScenarioResult{}, err
	}
	return design, scenario, nil
}

func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
