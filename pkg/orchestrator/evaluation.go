package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/ranker"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// EvaluationResult is the evaluation phase's outcome (§4.6: result
// includes {count, candidates_evaluated, scenarios_used}).
type EvaluationResult struct {
	Count               int
	CandidatesEvaluated int
	ScenariosUsed       int
	AttemptedPairs      int
	SkippedExisting     int
}

// evalPair is one (candidate, scenario) unit of work.
type evalPair struct {
	candidate models.Candidate
	scenario  models.Scenario
}

// evalOutcome is one pair's result, delivered over the results channel
// the way SubAgentRunner delivers SubAgentResults.
type evalOutcome struct {
	pair  evalPair
	resp  models.Evaluation
	usage models.UsageStats
	err   error
}

// ExecuteEvaluationPhase dispatches the Evaluator agent for every
// (candidate, scenario) pair that has no Evaluation yet, fanning out over
// a bounded worker pool (§5: cap recommended 4). Individual pair failures
// log and continue; remaining pairs are attempted (§7 agent_failure
// containment). Re-running the phase creates no duplicates (§8
// idempotence): already-evaluated pairs are skipped up front.
func (o *Orchestrator) ExecuteEvaluationPhase(ctx context.Context, runID string) (EvaluationResult, error) {
	run, err := o.store.GetRun(runID)
	if err != nil {
		return EvaluationResult{}, err
	}

	spec, err := o.store.GetProblemSpecByProject(run.ProjectID)
	if err != nil {
		return EvaluationResult{}, apperrors.PreconditionFailed("problem spec required for evaluation phase", nil)
	}
	worldModel, err := o.store.GetWorldModelByProject(run.ProjectID)
	if err != nil {
		return EvaluationResult{}, apperrors.PreconditionFailed("world model required for evaluation phase", nil)
	}

	candidates := o.store.ListCandidates(store.CandidateFilter{RunID: runID})
	suite, err := o.store.GetScenarioSuiteByRun(runID)
	if err != nil {
		return EvaluationResult{}, apperrors.PreconditionFailed("scenario suite required for evaluation phase", nil)
	}

	existing := o.store.ListEvaluations(store.EvaluationFilter{RunID: runID})
	evaluated := make(map[[2]string]bool, len(existing))
	for _, e := range existing {
		evaluated[[2]string{e.CandidateID, e.ScenarioID}] = true
	}

	var pairs []evalPair
	skipped := 0
	for _, c := range candidates {
		for _, s := range suite.Scenarios {
			if evaluated[[2]string{c.ID, s.ID}] {
				skipped++
				continue
			}
			pairs = append(pairs, evalPair{candidate: c, scenario: s})
		}
	}

	started := time.Now().UTC()
	specMap := specTask(spec)
	wmMap := worldModelTask(worldModel)

	outcomes := make(chan evalOutcome, o.concurrency)
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup
	cancelled := false

	go func() {
		for _, p := range pairs {
			// Short-circuit before the next unscheduled pair (§5
			// cancellation rule); already-started pairs finish on their own.
			// The ctx.Err() pre-check keeps cancellation deterministic when
			// a worker slot is free at the same moment.
			if ctx.Err() != nil {
				outcomes <- evalOutcome{err: ctx.Err()}
				wg.Wait()
				close(outcomes)
				return
			}
			select {
			case <-ctx.Done():
				outcomes <- evalOutcome{err: ctx.Err()}
				wg.Wait()
				close(outcomes)
				return
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(p evalPair) {
				defer wg.Done()
				defer func() { <-sem }()
				outcomes <- o.evaluatePair(ctx, runID, p, specMap, wmMap)
			}(p)
		}
		wg.Wait()
		close(outcomes)
	}()

	result := EvaluationResult{SkippedExisting: skipped}
	candidatesSeen := map[string]bool{}
	scenariosSeen := map[string]bool{}
	var usages []models.UsageStats

	for out := range outcomes {
		if out.err != nil && out.pair.candidate.ID == "" {
			// Scheduler observed cancellation before dispatching the next
			// pair.
			cancelled = true
			continue
		}
		result.AttemptedPairs++
		usages = append(usages, out.usage)
		if out.err != nil {
			o.logger.Warn("evaluation pair failed, continuing with remaining pairs",
				"run_id", runID, "candidate_id", out.pair.candidate.ID,
				"scenario_id", out.pair.scenario.ID, "error", out.err)
			continue
		}
		if cancelled {
			// Started pairs that finish after cancellation are discarded
			// without persisting (§5).
			continue
		}
		if err := o.persistEvaluation(ctx, out.resp); err != nil {
			o.logger.Warn("failed to persist evaluation, continuing",
				"run_id", runID, "candidate_id", out.pair.candidate.ID,
				"scenario_id", out.pair.scenario.ID, "error", err)
			continue
		}
		result.Count++
		candidatesSeen[out.pair.candidate.ID] = true
		scenariosSeen[out.pair.scenario.ID] = true
	}

	result.CandidatesEvaluated = len(candidatesSeen)
	result.ScenariosUsed = len(scenariosSeen)

	tx, err := o.store.Begin(ctx)
	if err == nil {
		if _, uerr := tx.UpdateRun(runID, func(r *models.Run) {
			r.EvaluationCount = len(tx.ListEvaluationsByRun(runID))
		}); uerr != nil {
			tx.Rollback()
		} else if cerr := tx.Commit(); cerr != nil {
			o.logger.Error("failed to commit evaluation count", "run_id", runID, "error", cerr)
		}
	}

	o.recordPhase(ctx, runID, phaseEvaluation, started, map[string]int{
		"evaluations_created": result.Count,
		"attempted_pairs":     result.AttemptedPairs,
		"skipped_existing":    result.SkippedExisting,
		"llm_calls":           result.AttemptedPairs,
	}, usages)

	if cancelled {
		return result, apperrors.Cancelled("cancelled")
	}

	o.logger.Info("evaluation phase completed", "run_id", runID,
		"evaluations_created", result.Count, "skipped_existing", result.SkippedExisting)
	return result, nil
}

// evaluatePair invokes the Evaluator agent for one (candidate, scenario)
// pair and maps its response into an Evaluation entity.
func (o *Orchestrator) evaluatePair(ctx context.Context, runID string, p evalPair, specMap, wmMap map[string]any) evalOutcome {
	task := map[string]any{
		"candidate": map[string]any{
			"id":                    p.candidate.ID,
			"mechanism_description": p.candidate.MechanismDescription,
			"predicted_effects":     p.candidate.PredictedEffects,
		},
		"scenario": map[string]any{
			"id":                p.scenario.ID,
			"name":              p.scenario.Name,
			"description":       p.scenario.Description,
			"type":              string(p.scenario.Type),
			"focus":             p.scenario.Focus,
			"initial_state":     p.scenario.InitialState,
			"events":            p.scenario.Events,
			"expected_outcomes": p.scenario.ExpectedOutcomes,
			"weight":            p.scenario.Weight,
		},
		"problem_spec": specMap,
		"world_model":  wmMap,
	}

	resp, usage, err := o.gateway.Evaluate(ctx, task)
	if err != nil {
		return evalOutcome{pair: p, usage: usage, err: err}
	}

	satisfaction := make(map[string]models.ConstraintSatisfaction, len(resp.ConstraintSatisfaction))
	for id, cs := range resp.ConstraintSatisfaction {
		satisfaction[id] = models.ConstraintSatisfaction{
			Satisfied:   cs.Satisfied,
			Score:       cs.Score,
			Explanation: cs.Explanation,
		}
	}

	return evalOutcome{
		pair:  p,
		usage: usage,
		resp: models.Evaluation{
			RunID:       runID,
			CandidateID: p.candidate.ID,
			ScenarioID:  p.scenario.ID,
			P:                      models.ScoreComponent{Overall: resp.P.Overall, Components: resp.P.Components},
			R:                      models.ScoreComponent{Overall: resp.R.Overall, Components: resp.R.Components},
			ConstraintSatisfaction: satisfaction,
			Explanation:            resp.Explanation,
		},
	}
}

// persistEvaluation commits one Evaluation in its own transaction, so
// results land as they complete (§5: "results are persisted as they
// complete; order of persistence within a phase is not guaranteed").
func (o *Orchestrator) persistEvaluation(ctx context.Context, e models.Evaluation) error {
	tx, err := o.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.CreateEvaluation(e); err != nil {
		return err
	}
	return tx.Commit()
}

// ExecuteRankingPhase delegates to the I-Ranker (§4.7) and records the
// phase's instrumentation.
func (o *Orchestrator) ExecuteRankingPhase(ctx context.Context, runID string) (ranker.Result, error) {
	started := time.Now().UTC()
	result, err := o.ranker.Rank(ctx, runID)
	if err != nil {
		o.recordPhase(ctx, runID, phaseRanking, started, map[string]int{"candidates_ranked": 0}, nil)
		return ranker.Result{}, err
	}
	o.recordPhase(ctx, runID, phaseRanking, started, map[string]int{
		"candidates_ranked":          result.Count,
		"hard_constraint_violations": len(result.HardConstraintViolations),
	}, nil)
	o.logger.Info("ranking phase completed", "run_id", runID, "candidates_ranked", result.Count)
	return result, nil
}

// ExecuteEvaluateAndRankPhase runs the evaluation and ranking phases in
// order, the subset the Remediation Engine re-executes for
// patch_and_rescore and partial_rerun (§4.8).
func (o *Orchestrator) ExecuteEvaluateAndRankPhase(ctx context.Context, runID string) (EvaluationResult, ranker.Result, error) {
	evalResult, err := o.ExecuteEvaluationPhase(ctx, runID)
	if err != nil {
		return evalResult, ranker.Result{}, err
	}
	rankResult, err := o.ExecuteRankingPhase(ctx, runID)
	if err != nil {
		return evalResult, ranker.Result{}, err
	}
	return evalResult, rankResult, nil
}
