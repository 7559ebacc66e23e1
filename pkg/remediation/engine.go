// Package remediation implements C8, the Remediation Engine: issue-to-
// action mapping with severity-based auto-upgrade, deep-merge patching of
// ProblemSpecs and WorldModels with provenance, and re-execution of the
// appropriate pipeline subset. The merge semantics extend
// pkg/config/merge.go's override-by-key pattern into the recursive
// tagged-tree merger DESIGN NOTES §9 calls for.
package remediation

import (
	"context"
	"log/slog"
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/orchestrator"
	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
	"github.com/copperdogma/crucible-pipeline/pkg/ranker"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// ProblemSpecPatch replaces the named ProblemSpec fields where present;
// nil fields leave the existing values untouched (§4.8 patch application).
type ProblemSpecPatch struct {
	Constraints []models.Constraint `json:"constraints,omitempty"`
	Goals       []string            `json:"goals,omitempty"`
	Resolution  *models.Resolution  `json:"resolution,omitempty"`
	Mode        *models.RunMode     `json:"mode,omitempty"`
}

// Patch bundles the optional ProblemSpec and WorldModel patches a
// remediation request carries. The WorldModel patch is a map-shaped tree
// deep-merged per §4.8.
type Patch struct {
	ProblemSpec *ProblemSpecPatch `json:"problem_spec,omitempty"`
	WorldModel  map[string]any    `json:"world_model,omitempty"`
}

// Request is one remediation invocation against an Issue.
type Request struct {
	// Action overrides the severity-based default when non-empty.
	Action       models.RemediationAction `json:"action,omitempty"`
	Patch        *Patch                   `json:"patch,omitempty"`
	CandidateIDs []string                 `json:"candidate_ids,omitempty"`
	RunConfig    *models.RunConfig        `json:"run_config,omitempty"`
	RunMode      models.RunMode           `json:"run_mode,omitempty"`
	Reason       string                   `json:"reason,omitempty"`
}

// Result is the remediation outcome returned to the driver.
type Result struct {
	IssueID                   string                         `json:"issue_id"`
	Action                    models.RemediationAction       `json:"action"`
	ActionUpgraded            bool                           `json:"action_upgraded"`
	OriginalRemediationAction models.RemediationAction       `json:"original_remediation_action,omitempty"`
	NewRunID                  string                         `json:"new_run_id,omitempty"`
	InvalidatedCandidateIDs   []string                       `json:"invalidated_candidate_ids,omitempty"`
	Evaluation                *orchestrator.EvaluationResult `json:"evaluation,omitempty"`
	Ranking                   *ranker.Result                 `json:"ranking,omitempty"`
	Pipeline                  *orchestrator.PipelineResult   `json:"pipeline,omitempty"`
}

// Engine is C8. It composes the Entity Store with the Run Orchestrator for
// re-execution; it does not call the Delta Computer (pkg/delta).
type Engine struct {
	store  *store.Store
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// New builds a remediation Engine.
func New(s *store.Store, orch *orchestrator.Orchestrator) *Engine {
	return &Engine{store: s, orch: orch, logger: slog.Default()}
}

// defaultAction maps an Issue's severity to its default remediation
// action (§4.8): minor -> patch_and_rescore, important -> partial_rerun,
// catastrophic -> full_rerun, or invalidate_candidates when the caller
// supplies candidate ids.
func defaultAction(severity models.IssueSeverity, candidateIDs []string) models.RemediationAction {
	switch severity {
	case models.IssueSeverityMinor:
		return models.ActionPatchAndRescore
	case models.IssueSeverityImportant:
		return models.ActionPartialRerun
	default:
		if len(candidateIDs) > 0 {
			return models.ActionInvalidateCandidates
		}
		return models.ActionFullRerun
	}
}

// Resolve dispatches the remediation action for an Issue. On any success
// path the Issue is marked resolved with resolved_at=now; failures leave
// the Issue open and surface the error (§4.8 termination).
func (e *Engine) Resolve(ctx context.Context, issueID string, req Request) (Result, error) {
	issue, err := e.store.GetIssue(issueID)
	if err != nil {
		return Result{}, err
	}

	action := req.Action
	if action == "" {
		action = defaultAction(issue.Severity, req.CandidateIDs)
	}

	result := Result{IssueID: issueID, Action: action}

	// patch_and_rescore and partial_rerun both need a Run to re-execute
	// against; without one they auto-upgrade to full_rerun (§4.8).
	if (action == models.ActionPatchAndRescore || action == models.ActionPartialRerun) && !issue.HasRun() {
		result.OriginalRemediationAction = action
		result.ActionUpgraded = true
		action = models.ActionFullRerun
		result.Action = action
		e.logger.Info("remediation action auto-upgraded: issue has no run",
			"issue_id", issueID, "original_action", result.OriginalRemediationAction)
	}

	switch action {
	case models.ActionPatchAndRescore:
		if issue.Severity != models.IssueSeverityMinor {
			e.logger.Warn("patch_and_rescore requested for non-minor issue, proceeding",
				"issue_id", issueID, "severity", issue.Severity)
		}
		if err := e.applyPatches(ctx, issue, req, result); err != nil {
			return result, err
		}
		evalResult, rankResult, err := e.orch.ExecuteEvaluateAndRankPhase(ctx, *issue.RunID)
		if err != nil {
			return result, err
		}
		result.Evaluation = &evalResult
		result.Ranking = &rankResult

	case models.ActionPartialRerun:
		if err := e.applyPatches(ctx, issue, req, result); err != nil {
			return result, err
		}
		evalResult, rankResult, err := e.orch.ExecuteEvaluateAndRankPhase(ctx, *issue.RunID)
		if err != nil {
			return result, err
		}
		result.Evaluation = &evalResult
		result.Ranking = &rankResult

	case models.ActionFullRerun:
		if err := e.applyPatches(ctx, issue, req, result); err != nil {
			return result, err
		}
		newRunID, pipelineResult, err := e.fullRerun(ctx, issue, req)
		if err != nil {
			return result, err
		}
		result.NewRunID = newRunID
		result.Pipeline = &pipelineResult

	case models.ActionInvalidateCandidates:
		invalidated, err := e.invalidateCandidates(ctx, issue, req.CandidateIDs, req.Reason)
		if err != nil {
			return result, err
		}
		result.InvalidatedCandidateIDs = invalidated

	default:
		return result, apperrors.Validation("unknown remediation action " + string(action))
	}

	if err := e.markResolved(ctx, issueID); err != nil {
		return result, err
	}
	return result, nil
}

// applyPatches applies the request's ProblemSpec and WorldModel patches,
// recording the driver's intent (including any auto-upgrade, §4.8) in the
// patched entities' provenance.
func (e *Engine) applyPatches(ctx context.Context, issue models.Issue, req Request, result Result) error {
	if req.Patch == nil {
		return nil
	}
	if req.Patch.ProblemSpec != nil {
		if err := e.patchProblemSpec(ctx, issue, *req.Patch.ProblemSpec, result); err != nil {
			return err
		}
	}
	if len(req.Patch.WorldModel) > 0 {
		if err := e.patchWorldModel(ctx, issue, req.Patch.WorldModel, result); err != nil {
			return err
		}
	}
	return nil
}

// patchProblemSpec replaces constraints, goals, resolution, and mode with
// the provided fields where present; other fields remain. Invalid enum
// values reject the patch (§4.8, §7 validation_error: no state changes
// committed).
func (e *Engine) patchProblemSpec(ctx context.Context, issue models.Issue, patch ProblemSpecPatch, result Result) error {
	if patch.Resolution != nil {
		switch *patch.Resolution {
		case models.ResolutionCoarse, models.ResolutionMedium, models.ResolutionFine:
		default:
			return apperrors.Validation("invalid resolution " + string(*patch.Resolution))
		}
	}
	if patch.Mode != nil {
		switch *patch.Mode {
		case models.RunModeFullSearch, models.RunModeEvalOnly, models.RunModeSeeded:
		default:
			return apperrors.Validation("invalid mode " + string(*patch.Mode))
		}
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.GetProblemSpecByProject(issue.ProjectID); err != nil {
		return err
	}
	entry := e.patchEntry(issue, result, "Remediation patched problem spec")
	if _, err := tx.UpsertProblemSpec(issue.ProjectID, func(spec *models.ProblemSpec) {
		if patch.Constraints != nil {
			spec.Constraints = patch.Constraints
		}
		if patch.Goals != nil {
			spec.Goals = patch.Goals
		}
		if patch.Resolution != nil {
			spec.Resolution = *patch.Resolution
		}
		if patch.Mode != nil {
			spec.Mode = *patch.Mode
		}
		spec.ProvenanceLog = provenance.Append(spec.ProvenanceLog, entry)
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// patchWorldModel deep-merges the patch into the project's WorldModel and
// appends a feedback_patch provenance entry to the model data (§4.8).
func (e *Engine) patchWorldModel(ctx context.Context, issue models.Issue, patch map[string]any, result Result) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	wm, err := tx.GetWorldModelByProject(issue.ProjectID)
	if err != nil {
		return err
	}

	merged := mergeTrees(worldModelToMap(wm), patch)
	entry := e.patchEntry(issue, result, "Feedback patch applied to world model")
	entry.Type = "feedback_patch"

	if _, err := tx.UpsertWorldModel(issue.ProjectID, func(target *models.WorldModel) {
		applyModelMap(target, merged)
		target.ProvenanceLog = provenance.Append(target.ProvenanceLog, entry)
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// patchEntry builds the provenance record for one patched entity,
// carrying the driver's intent: the executed action and, on auto-upgrade,
// the original one (§4.8: "the driver's intent is recorded in provenance
// with both values").
func (e *Engine) patchEntry(issue models.Issue, result Result, description string) provenance.Entry {
	metadata := map[string]any{
		"issue_id":        issue.ID,
		"action":          string(result.Action),
		"action_upgraded": result.ActionUpgraded,
	}
	if result.ActionUpgraded {
		metadata["original_remediation_action"] = string(result.OriginalRemediationAction)
	}
	return provenance.Build("remediation", provenance.ActorSystem,
		provenance.WithSource("issue:"+issue.ID),
		provenance.WithDescription(description),
		provenance.WithReferenceIDs(issue.ID),
		provenance.WithMetadata(metadata),
	)
}

// fullRerun creates a new Run on the Issue's project with the supplied or
// default run config, then drives the full pipeline (§4.8).
func (e *Engine) fullRerun(ctx context.Context, issue models.Issue, req Request) (string, orchestrator.PipelineResult, error) {
	cfg := models.RunConfig{NumCandidates: 5, NumScenarios: 8}
	mode := req.RunMode
	if mode == "" {
		mode = models.RunModeFullSearch
	}
	if req.RunConfig != nil {
		cfg = *req.RunConfig
		if cfg.NumCandidates == 0 {
			cfg.NumCandidates = 5
		}
		if cfg.NumScenarios == 0 {
			cfg.NumScenarios = 8
		}
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return "", orchestrator.PipelineResult{}, err
	}
	run, err := tx.CreateRun(models.Run{ProjectID: issue.ProjectID, Mode: mode, Config: cfg})
	if err != nil {
		tx.Rollback()
		return "", orchestrator.PipelineResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return "", orchestrator.PipelineResult{}, err
	}

	pipelineResult, err := e.orch.ExecuteFullPipeline(ctx, run.ID, cfg.NumCandidates, cfg.NumScenarios)
	if err != nil {
		return run.ID, pipelineResult, err
	}
	return run.ID, pipelineResult, nil
}

// invalidateCandidates rejects each candidate belonging to the Issue's
// project, appending a provenance entry citing the Issue and reason
// (§4.8). Candidates from other projects are skipped.
func (e *Engine) invalidateCandidates(ctx context.Context, issue models.Issue, candidateIDs []string, reason string) ([]string, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var invalidated []string
	for _, id := range candidateIDs {
		candidate, err := tx.GetCandidate(id)
		if err != nil {
			return nil, err
		}
		if candidate.ProjectID != issue.ProjectID {
			e.logger.Warn("skipping candidate from another project",
				"candidate_id", id, "issue_id", issue.ID)
			continue
		}
		entry := provenance.Build("invalidation", provenance.ActorSystem,
			provenance.WithSource("issue:"+issue.ID),
			provenance.WithDescription("Candidate invalidated by remediation: "+reason),
			provenance.WithReferenceIDs(issue.ID),
			provenance.WithMetadata(map[string]any{"reason": reason}),
		)
		if _, err := tx.UpdateCandidate(id, func(c *models.Candidate) {
			c.Status = models.CandidateStatusRejected
			c.ProvenanceLog = provenance.Append(c.ProvenanceLog, entry)
		}); err != nil {
			return nil, err
		}
		invalidated = append(invalidated, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return invalidated, nil
}

// markResolved flips the Issue to resolved with resolved_at=now.
func (e *Engine) markResolved(ctx context.Context, issueID string) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.UpdateIssue(issueID, func(i *models.Issue) {
		i.ResolutionStatus = models.IssueResolutionResolved
		i.ResolvedAt = &now
	}); err != nil {
		return err
	}
	return tx.Commit()
}
