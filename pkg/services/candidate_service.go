package services

import (
	"context"

	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// CandidateService covers user-seeded candidates and lookup; system
// candidates are created by the orchestrator's design phase.
type CandidateService struct {
	store *store.Store
}

// NewCandidateService builds a CandidateService.
func NewCandidateService(s *store.Store) *CandidateService {
	return &CandidateService{store: s}
}

// SeedRequest carries a user-supplied candidate for a seeded run.
type SeedRequest struct {
	RunID                string
	MechanismDescription string
	PredictedEffects     map[string]any
	ParentIDs            []string
}

// Seed inserts a user-origin candidate into a Run (§3: origin=user,
// parent_ids carry seed lineage).
func (s *CandidateService) Seed(ctx context.Context, req SeedRequest) (models.Candidate, error) {
	run, err := s.store.GetRun(req.RunID)
	if err != nil {
		return models.Candidate{}, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return models.Candidate{}, err
	}
	defer tx.Rollback()

	candidateID := store.NewID()
	entry := provenance.Build("seed", provenance.ActorUser,
		provenance.WithSource("run:"+req.RunID),
		provenance.WithDescription("User seeded candidate"),
		provenance.WithReferenceIDs(req.RunID, candidateID),
		provenance.WithMetadata(map[string]any{"parent_ids": req.ParentIDs}),
	)
	created, err := tx.CreateCandidate(models.Candidate{
		ID:                   candidateID,
		RunID:                req.RunID,
		ProjectID:            run.ProjectID,
		Origin:               models.CandidateOriginUser,
		MechanismDescription: req.MechanismDescription,
		PredictedEffects:     req.PredictedEffects,
		Status:               models.CandidateStatusNew,
		ParentIDs:            req.ParentIDs,
		ProvenanceLog:        []provenance.Entry{entry},
	})
	if err != nil {
		return models.Candidate{}, err
	}
	if _, err := tx.UpdateRun(req.RunID, func(r *models.Run) {
		r.CandidateCount++
	}); err != nil {
		return models.Candidate{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Candidate{}, err
	}
	return created, nil
}

// Get retrieves a Candidate.
func (s *CandidateService) Get(id string) (models.Candidate, error) {
	return s.store.GetCandidate(id)
}

// List returns candidates newest-first, optionally filtered (§4.1).
func (s *CandidateService) List(runID, projectID string) []models.Candidate {
	return s.store.ListCandidates(store.CandidateFilter{RunID: runID, ProjectID: projectID})
}

// Summary returns a candidate's provenance summary (§4.2).
func (s *CandidateService) Summary(id string) (*provenance.Summary, error) {
	c, err := s.store.GetCandidate(id)
	if err != nil {
		return nil, err
	}
	return provenance.Summarize(c.ProvenanceLog), nil
}

// EvaluationService covers Evaluation lookup; Evaluations are created by
// the orchestrator's evaluation phase alone.
type EvaluationService struct {
	store *store.Store
}

// NewEvaluationService builds an EvaluationService.
func NewEvaluationService(s *store.Store) *EvaluationService {
	return &EvaluationService{store: s}
}

// List returns evaluations newest-first, optionally filtered (§4.1).
func (s *EvaluationService) List(candidateID, runID string) []models.Evaluation {
	return s.store.ListEvaluations(store.EvaluationFilter{CandidateID: candidateID, RunID: runID})
}
