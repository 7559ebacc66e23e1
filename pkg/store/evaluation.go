package store

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

func findEvaluation(d *data, runID, candidateID, scenarioID string) (models.Evaluation, bool) {
	for _, e := range d.evaluations {
		if e.RunID == runID && e.CandidateID == candidateID && e.ScenarioID == scenarioID {
			return e, true
		}
	}
	return models.Evaluation{}, false
}

// CreateEvaluation inserts a new Evaluation, rejecting a duplicate
// (candidate_id, scenario_id) pair within the Run (§3 invariant: at most
// one Evaluation per pair per Run).
func (t *Tx) CreateEvaluation(e models.Evaluation) (models.Evaluation, error) {
	if _, ok := t.staged.runs[e.RunID]; !ok {
		return models.Evaluation{}, apperrors.NotFound("run " + e.RunID + " not found")
	}
	if _, exists := findEvaluation(t.staged, e.RunID, e.CandidateID, e.ScenarioID); exists {
		return models.Evaluation{}, apperrors.Validation("evaluation already exists for candidate " + e.CandidateID + " scenario " + e.ScenarioID)
	}
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = NewID()
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	t.staged.evaluations[e.ID] = e
	return e, nil
}

// HasEvaluation reports whether an Evaluation already exists for the pair,
// the check the evaluation phase uses to skip already-evaluated pairs
// (§4.6, idempotence per §8).
func (t *Tx) HasEvaluation(runID, candidateID, scenarioID string) bool {
	_, ok := findEvaluation(t.staged, runID, candidateID, scenarioID)
	return ok
}

// ListEvaluationsByRun returns a Run's evaluations within the
// transaction's staged view.
func (t *Tx) ListEvaluationsByRun(runID string) []models.Evaluation {
	var out []models.Evaluation
	for _, e := range t.staged.evaluations {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

// GetEvaluation retrieves an Evaluation by id.
func (t *Tx) GetEvaluation(id string) (models.Evaluation, error) {
	e, ok := t.staged.evaluations[id]
	if !ok {
		return models.Evaluation{}, apperrors.NotFound("evaluation " + id + " not found")
	}
	return e, nil
}

// EvaluationFilter narrows ListEvaluations (§4.1: list_evaluations(candidate_id?, run_id?)).
type EvaluationFilter struct {
	CandidateID string
	RunID       string
}

// ListEvaluations returns evaluations matching the filter, newest-first.
func (s *Store) ListEvaluations(filter EvaluationFilter) []models.Evaluation {
	var out []models.Evaluation
	s.read(func(d *data) {
		for _, e := range d.evaluations {
			if filter.CandidateID != "" && e.CandidateID != filter.CandidateID {
				continue
			}
			if filter.RunID != "" && e.RunID != filter.RunID {
				continue
			}
			out = append(out, e)
		}
	})
	newestFirst(out, func(e models.Evaluation) int64 { return e.CreatedAt.UnixNano() })
	return out
}
