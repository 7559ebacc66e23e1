package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/ranker"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// PipelineResult is execute_full_pipeline's aggregate outcome.
type PipelineResult struct {
	RunID      string
	Design     DesignResult
	Scenario   ScenarioResult
	Evaluation EvaluationResult
	Ranking    ranker.Result
}

// ExecuteFullPipeline drives all four phases in order (§4.6). It
// invalidates the Store's caches, re-reads prerequisites, and fails the
// Run with a detailed precondition error (including the set of existing
// project ids as a debugging aid, §7) when ProblemSpec or WorldModel is
// missing. On success the Run transitions to completed and a summary is
// emitted into the project's first chat session; on any error the Run
// transitions to failed unless already completed.
func (o *Orchestrator) ExecuteFullPipeline(ctx context.Context, runID string, numCandidates, numScenarios int) (PipelineResult, error) {
	run, err := o.store.GetRun(runID)
	if err != nil {
		return PipelineResult{}, err
	}

	if run.Config.MaxRuntimeS != nil && *run.Config.MaxRuntimeS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*run.Config.MaxRuntimeS)*time.Second)
		defer cancel()
	}

	// Re-read prerequisites through a fresh view: earlier phases of this
	// logical operation may have just committed them (§4.1 cache
	// invalidation contract).
	o.store.InvalidateCaches()

	var missing []string
	if _, err := o.store.GetProblemSpecByProject(run.ProjectID); err != nil {
		missing = append(missing, "problem_spec")
	}
	if _, err := o.store.GetWorldModelByProject(run.ProjectID); err != nil {
		missing = append(missing, "world_model")
	}
	if len(missing) > 0 {
		msg := fmt.Sprintf("project %s is missing required artifacts: %v", run.ProjectID, missing)
		o.failRun(ctx, runID, msg)
		return PipelineResult{}, apperrors.PreconditionFailed(msg, map[string]any{
			"project_ids": o.store.ProjectIDs(),
			"missing":     missing,
		})
	}

	result := PipelineResult{RunID: runID}

	result.Design, err = o.ExecuteDesignPhase(ctx, runID, numCandidates)
	if err != nil {
		o.failRun(ctx, runID, pipelineErrorSummary(ctx, err))
		return result, err
	}
	result.Scenario, err = o.ExecuteScenarioPhase(ctx, runID, numScenarios)
	if err != nil {
		o.failRun(ctx, runID, pipelineErrorSummary(ctx, err))
		return result, err
	}
	result.Evaluation, err = o.ExecuteEvaluationPhase(ctx, runID)
	if err != nil {
		o.failRun(ctx, runID, pipelineErrorSummary(ctx, err))
		return result, err
	}
	result.Ranking, err = o.ExecuteRankingPhase(ctx, runID)
	if err != nil {
		o.failRun(ctx, runID, pipelineErrorSummary(ctx, err))
		return result, err
	}

	if err := o.completeRun(ctx, runID); err != nil {
		o.failRun(ctx, runID, pipelineErrorSummary(ctx, err))
		return result, err
	}

	// Summary emission happens after all phases succeed and before the
	// orchestrator returns (§5); failures here log but never demote the
	// completed Run (§4.6, DESIGN NOTES §9 stickiness).
	if err := o.emitRunSummary(ctx, runID, result.Ranking); err != nil {
		o.logger.Warn("failed to emit run summary", "run_id", runID, "error", err)
	}

	o.logger.Info("full pipeline completed", "run_id", runID,
		"candidates", result.Design.CandidatesGenerated,
		"scenarios", result.Scenario.ScenariosGenerated,
		"evaluations", result.Evaluation.Count)
	return result, nil
}

// pipelineErrorSummary maps an error to the Run's error_summary text;
// caller-triggered stops collapse to the literal "cancelled" (§5, §7).
func pipelineErrorSummary(ctx context.Context, err error) string {
	if apperrors.Is(err, apperrors.KindCancelled) || ctx.Err() != nil {
		return "cancelled"
	}
	return err.Error()
}

// completeRun transitions the Run to completed and stamps completed_at.
func (o *Orchestrator) completeRun(ctx context.Context, runID string) error {
	tx, err := o.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().UTC()
	if _, err := tx.UpdateRunStatus(runID, models.RunStatusCompleted, store.RunStatusUpdate{CompletedAt: &now}); err != nil {
		return err
	}
	return tx.Commit()
}

// RunSummary is the JSON metadata persisted on the run-summary Message
// (§4.6 summary emission).
type RunSummary struct {
	RunID           string                `json:"run_id"`
	CandidateCount  int                   `json:"candidate_count"`
	ScenarioCount   int                   `json:"scenario_count"`
	EvaluationCount int                   `json:"evaluation_count"`
	TopCandidates   []RunSummaryCandidate `json:"top_candidates"`
	Links           map[string]string     `json:"links"`
}

// RunSummaryCandidate is one of the top-3 entries in a RunSummary.
type RunSummaryCandidate struct {
	CandidateID string  `json:"candidate_id"`
	Label       string  `json:"label"`
	I           float64 `json:"i"`
	P           float64 `json:"p"`
	R           float64 `json:"r"`
	Notes       string  `json:"notes"`
}

// emitRunSummary synthesizes the post-run summary and persists it as an
// agent-role Message in the project's first chat session, storing the
// message id on Run.run_summary_message_id. A project with no chat
// sessions gets no summary.
func (o *Orchestrator) emitRunSummary(ctx context.Context, runID string, ranking ranker.Result) error {
	run, err := o.store.GetRun(runID)
	if err != nil {
		return err
	}

	sessions := o.store.ListChatSessions(run.ProjectID)
	if len(sessions) == 0 {
		return nil
	}
	// ListChatSessions returns newest-first (§4.1 ordering); the summary
	// goes to the first session ever opened.
	first := sessions[len(sessions)-1]

	summary := RunSummary{
		RunID:           runID,
		CandidateCount:  run.CandidateCount,
		ScenarioCount:   run.ScenarioCount,
		EvaluationCount: run.EvaluationCount,
		Links: map[string]string{
			"run":        "/runs/" + runID,
			"candidates": "/runs/" + runID + "/candidates",
		},
	}

	top := append([]models.Candidate(nil), ranking.RankedCandidates...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Scores.I > top[j].Scores.I })
	for i, c := range top {
		if i == 3 {
			break
		}
		label := c.MechanismDescription
		if len(label) > 80 {
			label = label[:80]
		}
		summary.TopCandidates = append(summary.TopCandidates, RunSummaryCandidate{
			CandidateID: c.ID,
			Label:       label,
			I:           c.Scores.I,
			P:           c.Scores.P,
			R:           c.Scores.R,
			Notes:       c.Scores.RankingExplanation,
		})
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	var metadata map[string]any
	if err := json.Unmarshal(payload, &metadata); err != nil {
		return err
	}

	content := fmt.Sprintf("Run finished: %d candidates, %d scenarios, %d evaluations.",
		run.CandidateCount, run.ScenarioCount, run.EvaluationCount)
	if len(summary.TopCandidates) > 0 {
		content += fmt.Sprintf(" Top candidate I=%.2f.", summary.TopCandidates[0].I)
	}

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	msg, err := tx.CreateMessage(models.Message{
		ChatSessionID: first.ID,
		Role:          models.MessageRoleAgent,
		Content:       content,
		Metadata:      map[string]any{"run_summary": metadata},
	})
	if err != nil {
		return err
	}
	if _, err := tx.UpdateRun(runID, func(r *models.Run) {
		r.RunSummaryMessageID = &msg.ID
	}); err != nil {
		return err
	}
	return tx.Commit()
}
