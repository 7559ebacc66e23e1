package store

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

// allowedRunTransitions is the §3 state machine: created -> running ->
// {completed|failed|cancelled}. completed/failed/cancelled are terminal;
// completed is additionally sticky (DESIGN NOTES §9) — no edge leaves it,
// enforced here as well as by callers checking status first.
var allowedRunTransitions = map[models.RunStatus][]models.RunStatus{
	models.RunStatusCreated: {models.RunStatusRunning},
	models.RunStatusRunning: {models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled},
}

func runTransitionAllowed(from, to models.RunStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range allowedRunTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CreateRun inserts a new Run in status "created".
func (t *Tx) CreateRun(r models.Run) (models.Run, error) {
	if _, ok := t.staged.projects[r.ProjectID]; !ok {
		return models.Run{}, apperrors.NotFound("project " + r.ProjectID + " not found")
	}
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.Status == "" {
		r.Status = models.RunStatusCreated
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	t.staged.runs[r.ID] = r
	return r, nil
}

// GetRun retrieves a Run by id.
func (t *Tx) GetRun(id string) (models.Run, error) {
	r, ok := t.staged.runs[id]
	if !ok {
		return models.Run{}, apperrors.NotFound("run " + id + " not found")
	}
	return r, nil
}

// RunStatusUpdate carries the optional timestamp fields
// update_run_status may set.
type RunStatusUpdate struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// UpdateRunStatus is the sole mutator of Run.status (§4.1). It rejects
// transitions that violate the state machine; completed is sticky.
func (t *Tx) UpdateRunStatus(id string, status models.RunStatus, upd RunStatusUpdate) (models.Run, error) {
	r, ok := t.staged.runs[id]
	if !ok {
		return models.Run{}, apperrors.NotFound("run " + id + " not found")
	}
	if r.Status == models.RunStatusCompleted && status != models.RunStatusCompleted {
		return models.Run{}, apperrors.Validation("run " + id + " is completed; status is sticky")
	}
	if !runTransitionAllowed(r.Status, status) {
		return models.Run{}, apperrors.Validation("illegal run status transition " + string(r.Status) + " -> " + string(status))
	}
	r.Status = status
	if upd.StartedAt != nil {
		r.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		r.CompletedAt = upd.CompletedAt
		if r.StartedAt != nil {
			d := r.CompletedAt.Sub(*r.StartedAt).Seconds()
			r.DurationSeconds = &d
		}
	}
	r.UpdatedAt = time.Now().UTC()
	t.staged.runs[id] = r
	return r, nil
}

// UpdateRun applies an arbitrary mutation to a Run's non-status fields
// (metrics, counts, usage, error summary). Status must go through
// UpdateRunStatus.
func (t *Tx) UpdateRun(id string, mutate func(*models.Run)) (models.Run, error) {
	r, ok := t.staged.runs[id]
	if !ok {
		return models.Run{}, apperrors.NotFound("run " + id + " not found")
	}
	prevStatus := r.Status
	mutate(&r)
	r.Status = prevStatus // status changes only via UpdateRunStatus
	r.UpdatedAt = time.Now().UTC()
	t.staged.runs[id] = r
	return r, nil
}

// GetRun is the non-transactional read path.
func (s *Store) GetRun(id string) (models.Run, error) {
	var (
		r  models.Run
		ok bool
	)
	s.read(func(d *data) { r, ok = d.runs[id] })
	if !ok {
		return models.Run{}, apperrors.NotFound("run " + id + " not found")
	}
	return r, nil
}

// RunFilter narrows ListRuns (§4.1: list_runs(project_id?, chat_session_id?)).
type RunFilter struct {
	ProjectID     string
	ChatSessionID string
}

// ListRuns returns runs matching the filter, newest-first by created_at.
func (s *Store) ListRuns(filter RunFilter) []models.Run {
	var out []models.Run
	s.read(func(d *data) {
		for _, r := range d.runs {
			if filter.ProjectID != "" && r.ProjectID != filter.ProjectID {
				continue
			}
			if filter.ChatSessionID != "" && (r.ChatSessionID == nil || *r.ChatSessionID != filter.ChatSessionID) {
				continue
			}
			out = append(out, r)
		}
	})
	newestFirst(out, func(r models.Run) int64 { return r.CreatedAt.UnixNano() })
	return out
}
