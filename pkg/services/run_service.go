package services

import (
	"context"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/preflight"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// RunService owns Run creation and lookup. Status mutation belongs to the
// orchestrator alone (§5: no operation outside the Orchestrator may
// mutate a Run's status).
type RunService struct {
	store *store.Store
}

// NewRunService builds a RunService.
func NewRunService(s *store.Store) *RunService {
	return &RunService{store: s}
}

// CreateRunRequest carries the driver's inputs for a new Run.
type CreateRunRequest struct {
	ProjectID     string
	Mode          models.RunMode
	Config        models.RunConfig
	ChatSessionID string
	UITrigger     *models.UITrigger
}

// Preflight evaluates readiness for a prospective Run without mutating
// anything (C4).
func (s *RunService) Preflight(projectID string, mode models.RunMode, cfg models.RunConfig) preflight.Result {
	_, specErr := s.store.GetProblemSpecByProject(projectID)
	_, wmErr := s.store.GetWorldModelByProject(projectID)
	existing := s.store.ListCandidates(store.CandidateFilter{ProjectID: projectID})
	return preflight.Check(preflight.Input{
		HasProblemSpec:     specErr == nil,
		HasWorldModel:      wmErr == nil,
		ExistingCandidates: len(existing),
		Mode:               mode,
		Config:             cfg,
	})
}

// Create runs preflight, then persists the Run with the normalized
// config. A Run that preflight blocks is rejected up front rather than
// failed mid-pipeline.
func (s *RunService) Create(ctx context.Context, req CreateRunRequest) (models.Run, preflight.Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = models.RunModeFullSearch
	}

	check := s.Preflight(req.ProjectID, mode, req.Config)
	if !check.Ready {
		return models.Run{}, check, apperrors.PreconditionFailed("project is not ready for a run", map[string]any{
			"blockers": check.Blockers,
		})
	}

	run := models.Run{
		ProjectID: req.ProjectID,
		Mode:      mode,
		Config:    check.NormalizedConfig,
		UITrigger: req.UITrigger,
	}
	if req.ChatSessionID != "" {
		id := req.ChatSessionID
		run.ChatSessionID = &id
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return models.Run{}, check, err
	}
	defer tx.Rollback()
	created, err := tx.CreateRun(run)
	if err != nil {
		return models.Run{}, check, err
	}
	if err := tx.Commit(); err != nil {
		return models.Run{}, check, err
	}
	return created, check, nil
}

// Get retrieves a Run.
func (s *RunService) Get(id string) (models.Run, error) {
	return s.store.GetRun(id)
}

// List returns runs, newest-first, optionally filtered by project and/or
// chat session (§4.1).
func (s *RunService) List(projectID, chatSessionID string) []models.Run {
	return s.store.ListRuns(store.RunFilter{ProjectID: projectID, ChatSessionID: chatSessionID})
}
