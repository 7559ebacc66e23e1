package store

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

// CreateIssue inserts a new Issue in status "open".
func (t *Tx) CreateIssue(i models.Issue) (models.Issue, error) {
	if _, ok := t.staged.projects[i.ProjectID]; !ok {
		return models.Issue{}, apperrors.NotFound("project " + i.ProjectID + " not found")
	}
	now := time.Now().UTC()
	if i.ID == "" {
		i.ID = NewID()
	}
	if i.ResolutionStatus == "" {
		i.ResolutionStatus = models.IssueResolutionOpen
	}
	i.CreatedAt = now
	i.UpdatedAt = now
	t.staged.issues[i.ID] = i
	return i, nil
}

// GetIssue retrieves an Issue by id.
func (t *Tx) GetIssue(id string) (models.Issue, error) {
	i, ok := t.staged.issues[id]
	if !ok {
		return models.Issue{}, apperrors.NotFound("issue " + id + " not found")
	}
	return i, nil
}

// UpdateIssue applies mutate to an existing Issue.
func (t *Tx) UpdateIssue(id string, mutate func(*models.Issue)) (models.Issue, error) {
	i, ok := t.staged.issues[id]
	if !ok {
		return models.Issue{}, apperrors.NotFound("issue " + id + " not found")
	}
	mutate(&i)
	i.UpdatedAt = time.Now().UTC()
	t.staged.issues[id] = i
	return i, nil
}

// GetIssue is the non-transactional read path.
func (s *Store) GetIssue(id string) (models.Issue, error) {
	var (
		i  models.Issue
		ok bool
	)
	s.read(func(d *data) { i, ok = d.issues[id] })
	if !ok {
		return models.Issue{}, apperrors.NotFound("issue " + id + " not found")
	}
	return i, nil
}

// IssueFilter narrows ListIssues.
type IssueFilter struct {
	ProjectID string
	RunID     string
}

// ListIssues returns issues matching the filter, newest-first.
func (s *Store) ListIssues(filter IssueFilter) []models.Issue {
	var out []models.Issue
	s.read(func(d *data) {
		for _, i := range d.issues {
			if filter.ProjectID != "" && i.ProjectID != filter.ProjectID {
				continue
			}
			if filter.RunID != "" && (i.RunID == nil || *i.RunID != filter.RunID) {
				continue
			}
			out = append(out, i)
		}
	})
	newestFirst(out, func(i models.Issue) int64 { return i.CreatedAt.UnixNano() })
	return out
}
