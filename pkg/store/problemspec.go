package store

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

func findProblemSpecByProject(d *data, projectID string) (models.ProblemSpec, bool) {
	for _, spec := range d.problemSpecs {
		if spec.ProjectID == projectID {
			return spec, true
		}
	}
	return models.ProblemSpec{}, false
}

// UpsertProblemSpec creates the per-project singleton if absent, else
// replaces its fields in place (the teacher's "update in place" restore
// idiom, kept per §4.9's restore contract).
func (t *Tx) UpsertProblemSpec(projectID string, mutate func(*models.ProblemSpec)) (models.ProblemSpec, error) {
	if _, ok := t.staged.projects[projectID]; !ok {
		return models.ProblemSpec{}, apperrors.NotFound("project " + projectID + " not found")
	}
	now := time.Now().UTC()
	existing, ok := findProblemSpecByProject(t.staged, projectID)
	if !ok {
		existing = models.ProblemSpec{ID: NewID(), ProjectID: projectID, CreatedAt: now}
	}
	mutate(&existing)
	existing.UpdatedAt = now
	t.staged.problemSpecs[existing.ID] = existing
	return existing, nil
}

// GetProblemSpecByProject retrieves the per-project singleton within the
// transaction's staged view, or not_found if the project has none yet.
func (t *Tx) GetProblemSpecByProject(projectID string) (models.ProblemSpec, error) {
	spec, ok := findProblemSpecByProject(t.staged, projectID)
	if !ok {
		return models.ProblemSpec{}, apperrors.NotFound("problem spec for project " + projectID + " not found")
	}
	return spec, nil
}

// GetProblemSpecByProject retrieves the per-project singleton, or
// not_found if the project has none yet.
func (s *Store) GetProblemSpecByProject(projectID string) (models.ProblemSpec, error) {
	var (
		spec models.ProblemSpec
		ok   bool
	)
	s.read(func(d *data) { spec, ok = findProblemSpecByProject(d, projectID) })
	if !ok {
		return models.ProblemSpec{}, apperrors.NotFound("problem spec for project " + projectID + " not found")
	}
	return spec, nil
}
