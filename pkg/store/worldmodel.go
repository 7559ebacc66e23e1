package store

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

func findWorldModelByProject(d *data, projectID string) (models.WorldModel, bool) {
	for _, wm := range d.worldModels {
		if wm.ProjectID == projectID {
			return wm, true
		}
	}
	return models.WorldModel{}, false
}

// UpsertWorldModel creates the per-project singleton if absent, else
// applies mutate to the existing one.
func (t *Tx) UpsertWorldModel(projectID string, mutate func(*models.WorldModel)) (models.WorldModel, error) {
	if _, ok := t.staged.projects[projectID]; !ok {
		return models.WorldModel{}, apperrors.NotFound("project " + projectID + " not found")
	}
	now := time.Now().UTC()
	existing, ok := findWorldModelByProject(t.staged, projectID)
	if !ok {
		existing = models.WorldModel{ID: NewID(), ProjectID: projectID, CreatedAt: now}
	}
	mutate(&existing)
	existing.UpdatedAt = now
	t.staged.worldModels[existing.ID] = existing
	return existing, nil
}

// GetWorldModelByProject retrieves the per-project singleton within the
// transaction's staged view, or not_found if the project has none yet.
func (t *Tx) GetWorldModelByProject(projectID string) (models.WorldModel, error) {
	wm, ok := findWorldModelByProject(t.staged, projectID)
	if !ok {
		return models.WorldModel{}, apperrors.NotFound("world model for project " + projectID + " not found")
	}
	return wm, nil
}

// GetWorldModelByProject retrieves the per-project singleton, or
// not_found if the project has none yet.
func (s *Store) GetWorldModelByProject(projectID string) (models.WorldModel, error) {
	var (
		wm models.WorldModel
		ok bool
	)
	s.read(func(d *data) { wm, ok = findWorldModelByProject(d, projectID) })
	if !ok {
		return models.WorldModel{}, apperrors.NotFound("world model for project " + projectID + " not found")
	}
	return wm, nil
}
