package store

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

// CreateCandidate inserts a new Candidate.
func (t *Tx) CreateCandidate(c models.Candidate) (models.Candidate, error) {
	if _, ok := t.staged.runs[c.RunID]; !ok {
		return models.Candidate{}, apperrors.NotFound("run " + c.RunID + " not found")
	}
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.Status == "" {
		c.Status = models.CandidateStatusNew
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	t.staged.candidates[c.ID] = c
	return c, nil
}

// GetCandidate retrieves a Candidate by id.
func (t *Tx) GetCandidate(id string) (models.Candidate, error) {
	c, ok := t.staged.candidates[id]
	if !ok {
		return models.Candidate{}, apperrors.NotFound("candidate " + id + " not found")
	}
	return c, nil
}

// UpdateCandidate applies mutate to an existing Candidate.
func (t *Tx) UpdateCandidate(id string, mutate func(*models.Candidate)) (models.Candidate, error) {
	c, ok := t.staged.candidates[id]
	if !ok {
		return models.Candidate{}, apperrors.NotFound("candidate " + id + " not found")
	}
	mutate(&c)
	c.UpdatedAt = time.Now().UTC()
	t.staged.candidates[id] = c
	return c, nil
}

// ListCandidatesByRun returns a Run's candidates within the transaction's
// staged view, in no particular order (callers sort as needed).
func (t *Tx) ListCandidatesByRun(runID string) []models.Candidate {
	var out []models.Candidate
	for _, c := range t.staged.candidates {
		if c.RunID == runID {
			out = append(out, c)
		}
	}
	return out
}

// GetCandidate is the non-transactional read path.
func (s *Store) GetCandidate(id string) (models.Candidate, error) {
	var (
		c  models.Candidate
		ok bool
	)
	s.read(func(d *data) { c, ok = d.candidates[id] })
	if !ok {
		return models.Candidate{}, apperrors.NotFound("candidate " + id + " not found")
	}
	return c, nil
}

// CandidateFilter narrows ListCandidates (§4.1: list_candidates(run_id?,
// project_id?)).
type CandidateFilter struct {
	RunID     string
	ProjectID string
}

// ListCandidates returns candidates matching the filter, newest-first.
func (s *Store) ListCandidates(filter CandidateFilter) []models.Candidate {
	var out []models.Candidate
	s.read(func(d *data) {
		for _, c := range d.candidates {
			if filter.RunID != "" && c.RunID != filter.RunID {
				continue
			}
			if filter.ProjectID != "" && c.ProjectID != filter.ProjectID {
				continue
			}
			out = append(out, c)
		}
	})
	newestFirst(out, func(c models.Candidate) int64 { return c.CreatedAt.UnixNano() })
	return out
}
