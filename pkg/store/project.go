package store

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

// CreateProject inserts a new Project, stamping id and timestamps.
func (t *Tx) CreateProject(p models.Project) (models.Project, error) {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = NewID()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	t.staged.projects[p.ID] = p
	return p, nil
}

// GetProject retrieves a Project by id within the transaction's staged
// view.
func (t *Tx) GetProject(id string) (models.Project, error) {
	p, ok := t.staged.projects[id]
	if !ok {
		return models.Project{}, apperrors.NotFound("project " + id + " not found")
	}
	return p, nil
}

// UpdateProject replaces a Project's mutable fields and bumps updated_at.
func (t *Tx) UpdateProject(id string, mutate func(*models.Project)) (models.Project, error) {
	p, ok := t.staged.projects[id]
	if !ok {
		return models.Project{}, apperrors.NotFound("project " + id + " not found")
	}
	mutate(&p)
	p.UpdatedAt = time.Now().UTC()
	t.staged.projects[id] = p
	return p, nil
}

// DeleteProject cascades deletion of every child entity owned by the
// project (§3: "all child deletions cascade from the root Project").
func (t *Tx) DeleteProject(id string) error {
	if _, ok := t.staged.projects[id]; !ok {
		return apperrors.NotFound("project " + id + " not found")
	}
	delete(t.staged.projects, id)

	for k, v := range t.staged.problemSpecs {
		if v.ProjectID == id {
			delete(t.staged.problemSpecs, k)
		}
	}
	for k, v := range t.staged.worldModels {
		if v.ProjectID == id {
			delete(t.staged.worldModels, k)
		}
	}
	var runIDs []string
	for k, v := range t.staged.runs {
		if v.ProjectID == id {
			runIDs = append(runIDs, k)
			delete(t.staged.runs, k)
		}
	}
	for k, v := range t.staged.candidates {
		if v.ProjectID == id {
			delete(t.staged.candidates, k)
		}
	}
	for _, runID := range runIDs {
		for k, v := range t.staged.scenarioSuites {
			if v.RunID == runID {
				delete(t.staged.scenarioSuites, k)
			}
		}
		for k, v := range t.staged.evaluations {
			if v.RunID == runID {
				delete(t.staged.evaluations, k)
			}
		}
	}
	for k, v := range t.staged.issues {
		if v.ProjectID == id {
			delete(t.staged.issues, k)
		}
	}
	for k, v := range t.staged.snapshots {
		if v.ProjectID == id {
			delete(t.staged.snapshots, k)
		}
	}
	sessionIDs := map[string]bool{}
	for k, v := range t.staged.chatSessions {
		if v.ProjectID == id {
			sessionIDs[k] = true
			delete(t.staged.chatSessions, k)
		}
	}
	for k, v := range t.staged.messages {
		if sessionIDs[v.ChatSessionID] {
			delete(t.staged.messages, k)
		}
	}
	return nil
}

// GetProject is the non-transactional read path, mirroring ent.Client
// used directly for simple queries outside a Tx.
func (s *Store) GetProject(id string) (models.Project, error) {
	var (
		p  models.Project
		ok bool
	)
	s.read(func(d *data) { p, ok = d.projects[id] })
	if !ok {
		return models.Project{}, apperrors.NotFound("project " + id + " not found")
	}
	return p, nil
}

// ListProjects returns every project; ordering is not meaningful per
// spec, so insertion order is not guaranteed.
func (s *Store) ListProjects() []models.Project {
	var out []models.Project
	s.read(func(d *data) {
		for _, p := range d.projects {
			out = append(out, p)
		}
	})
	return out
}

// ProjectIDs returns the set of existing project ids, used by
// precondition_failed errors as a debugging aid (§7).
func (s *Store) ProjectIDs() []string {
	var ids []string
	s.read(func(d *data) {
		for id := range d.projects {
			ids = append(ids, id)
		}
	})
	return ids
}
