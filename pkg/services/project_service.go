// Package services holds the driver-facing entity services, one per
// entity family, grounded on pkg/services/session_service.go's CRUD +
// validation + transaction style. The heavy engines (orchestrator,
// ranker, remediation, snapshot) live in their own packages; these
// services cover creation, lookup, and the refinement paths the
// conversational agents drive.
package services

import (
	"context"

	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// ProjectService owns Project lifecycle.
type ProjectService struct {
	store *store.Store
}

// NewProjectService builds a ProjectService.
func NewProjectService(s *store.Store) *ProjectService {
	return &ProjectService{store: s}
}

// Create inserts a new Project.
func (s *ProjectService) Create(ctx context.Context, title, description string) (models.Project, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return models.Project{}, err
	}
	defer tx.Rollback()
	project, err := tx.CreateProject(models.Project{Title: title, Description: description})
	if err != nil {
		return models.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Project{}, err
	}
	return project, nil
}

// Get retrieves a Project.
func (s *ProjectService) Get(id string) (models.Project, error) {
	return s.store.GetProject(id)
}

// List returns every Project.
func (s *ProjectService) List() []models.Project {
	return s.store.ListProjects()
}

// Update replaces a Project's title/description where non-empty.
func (s *ProjectService) Update(ctx context.Context, id, title, description string) (models.Project, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return models.Project{}, err
	}
	defer tx.Rollback()
	project, err := tx.UpdateProject(id, func(p *models.Project) {
		if title != "" {
			p.Title = title
		}
		if description != "" {
			p.Description = description
		}
	})
	if err != nil {
		return models.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Project{}, err
	}
	return project, nil
}

// Delete removes a Project and cascades to every owned child entity (§3).
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := tx.DeleteProject(id); err != nil {
		return err
	}
	return tx.Commit()
}
