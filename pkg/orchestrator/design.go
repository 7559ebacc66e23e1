package orchestrator

import (
	"context"
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// DesignResult is the design phase's outcome.
type DesignResult struct {
	CandidatesGenerated int
	CandidateIDs        []string
}

// ExecuteDesignPhase runs the Designer agent once and persists the
// candidates it proposes (§4.6 design phase contract). The agent is told
// which candidate ids already exist in the Run; no structural dedup is
// performed here.
func (o *Orchestrator) ExecuteDesignPhase(ctx context.Context, runID string, numCandidates int) (DesignResult, error) {
	run, err := o.store.GetRun(runID)
	if err != nil {
		return DesignResult{}, err
	}
	if err := o.markRunning(ctx, runID); err != nil {
		return DesignResult{}, err
	}

	spec, err := o.store.GetProblemSpecByProject(run.ProjectID)
	if err != nil {
		return DesignResult{}, apperrors.PreconditionFailed("problem spec required for design phase", nil)
	}
	worldModel, err := o.store.GetWorldModelByProject(run.ProjectID)
	if err != nil {
		return DesignResult{}, apperrors.PreconditionFailed("world model required for design phase", nil)
	}

	existing := o.store.ListCandidates(store.CandidateFilter{RunID: runID})
	existingIDs := make([]string, 0, len(existing))
	for _, c := range existing {
		existingIDs = append(existingIDs, c.ID)
	}

	started := time.Now().UTC()
	task := map[string]any{
		"problem_spec":           specTask(spec),
		"world_model":            worldModelTask(worldModel),
		"existing_candidate_ids": existingIDs,
		"num_candidates":         numCandidates,
	}

	resp, usage, err := o.gateway.DesignCandidates(ctx, task)
	if err != nil {
		o.recordPhase(ctx, runID, phaseDesign, started, map[string]int{"candidates_generated": 0, "llm_calls": 1}, []models.UsageStats{usage})
		return DesignResult{}, apperrors.AgentFailure("designer agent failed", err)
	}

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return DesignResult{}, err
	}
	defer tx.Rollback()

	result := DesignResult{}
	for _, dc := range resp.Candidates {
		candidateID := store.NewID()
		entry := provenance.Build("design", provenance.ActorAgent,
			provenance.WithSource("run:"+runID),
			provenance.WithDescription("Designer proposed candidate"),
			provenance.WithReferenceIDs(runID, candidateID),
			provenance.WithMetadata(map[string]any{
				"constraint_compliance": dc.ConstraintCompliance,
				"parent_ids":            dc.ParentIDs,
			}),
		)
		created, err := tx.CreateCandidate(models.Candidate{
			ID:                   candidateID,
			RunID:                runID,
			ProjectID:            run.ProjectID,
			Origin:               models.CandidateOriginSystem,
			MechanismDescription: dc.MechanismDescription,
			PredictedEffects: map[string]any{
				"actors_affected":     dc.PredictedEffects.ActorsAffected,
				"resources_impacted":  dc.PredictedEffects.ResourcesImpacted,
				"mechanisms_modified": dc.PredictedEffects.MechanismsModified,
			},
			Scores: models.CandidateScores{
				ConstraintSatisfaction: constraintEstimates(dc.ConstraintCompliance),
			},
			Status:        models.CandidateStatusNew,
			ParentIDs:     dc.ParentIDs,
			ProvenanceLog: []provenance.Entry{entry},
		})
		if err != nil {
			return DesignResult{}, err
		}
		result.CandidateIDs = append(result.CandidateIDs, created.ID)
		result.CandidatesGenerated++
	}

	if _, err := tx.UpdateRun(runID, func(r *models.Run) {
		r.CandidateCount = len(existing) + result.CandidatesGenerated
	}); err != nil {
		return DesignResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return DesignResult{}, err
	}

	o.recordPhase(ctx, runID, phaseDesign, started, map[string]int{
		"candidates_generated": result.CandidatesGenerated,
		"llm_calls":            1,
	}, []models.UsageStats{usage})

	o.logger.Info("design phase completed", "run_id", runID, "candidates_generated", result.CandidatesGenerated)
	return result, nil
}

// constraintEstimates converts the Designer's constraint_compliance map
// (id -> float|bool, §6) into the initial constraint_satisfaction
// estimates stored on the candidate's scores.
func constraintEstimates(compliance map[string]any) map[string]models.ConstraintSatisfaction {
	if len(compliance) == 0 {
		return nil
	}
	out := make(map[string]models.ConstraintSatisfaction, len(compliance))
	for id, v := range compliance {
		switch val := v.(type) {
		case bool:
			score := 0.0
			if val {
				score = 1.0
			}
			out[id] = models.ConstraintSatisfaction{Satisfied: val, Score: score}
		case float64:
			out[id] = models.ConstraintSatisfaction{Satisfied: val >= 0.5, Score: val}
		default:
			out[id] = models.ConstraintSatisfaction{}
		}
	}
	return out
}

// specTask renders a ProblemSpec into the task map shape sent to agents.
func specTask(spec models.ProblemSpec) map[string]any {
	constraints := make([]map[string]any, 0, len(spec.Constraints))
	for _, c := range spec.Constraints {
		constraints = append(constraints, map[string]any{
			"name":        c.Name,
			"description": c.Description,
			"weight":      c.Weight,
		})
	}
	return map[string]any{
		"constraints": constraints,
		"goals":       spec.Goals,
		"resolution":  string(spec.Resolution),
		"mode":        string(spec.Mode),
	}
}

// worldModelTask renders a WorldModel's six sections into the task map
// shape sent to agents.
func worldModelTask(wm models.WorldModel) map[string]any {
	out := map[string]any{}
	for _, name := range models.SectionNames {
		elements := wm.Sections.Section(name)
		rendered := make([]map[string]any, 0, len(elements))
		for _, e := range elements {
			m := map[string]any{"id": e.ID, "name": e.Name}
			for k, v := range e.Attributes {
				m[k] = v
			}
			rendered = append(rendered, m)
		}
		out[name] = rendered
	}
	return out
}
