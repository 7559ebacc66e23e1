package store

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

// CreateSnapshot inserts a new Snapshot, rejecting a duplicate name within
// the project (§3: "unique name").
func (t *Tx) CreateSnapshot(sn models.Snapshot) (models.Snapshot, error) {
	if _, ok := t.staged.projects[sn.ProjectID]; !ok {
		return models.Snapshot{}, apperrors.NotFound("project " + sn.ProjectID + " not found")
	}
	for _, existing := range t.staged.snapshots {
		if existing.ProjectID == sn.ProjectID && existing.Name == sn.Name {
			return models.Snapshot{}, apperrors.Validation("snapshot name " + sn.Name + " already exists in project " + sn.ProjectID)
		}
	}
	now := time.Now().UTC()
	if sn.ID == "" {
		sn.ID = NewID()
	}
	if sn.Version == "" {
		sn.Version = "1.0"
	}
	sn.CreatedAt = now
	sn.UpdatedAt = now
	t.staged.snapshots[sn.ID] = sn
	return sn, nil
}

// GetSnapshot retrieves a Snapshot by id.
func (t *Tx) GetSnapshot(id string) (models.Snapshot, error) {
	sn, ok := t.staged.snapshots[id]
	if !ok {
		return models.Snapshot{}, apperrors.NotFound("snapshot " + id + " not found")
	}
	return sn, nil
}

// UpdateSnapshotMetadata mutates only the mutable fields of a Snapshot
// (description, tags, invariants); snapshot_data itself is never touched
// here (§3 invariant: "snapshot_data is immutable after creation").
func (t *Tx) UpdateSnapshotMetadata(id string, mutate func(*models.Snapshot)) (models.Snapshot, error) {
	sn, ok := t.staged.snapshots[id]
	if !ok {
		return models.Snapshot{}, apperrors.NotFound("snapshot " + id + " not found")
	}
	frozen := sn.SnapshotData
	mutate(&sn)
	sn.SnapshotData = frozen
	sn.UpdatedAt = time.Now().UTC()
	t.staged.snapshots[id] = sn
	return sn, nil
}

// GetSnapshot is the non-transactional read path.
func (s *Store) GetSnapshot(id string) (models.Snapshot, error) {
	var (
		sn models.Snapshot
		ok bool
	)
	s.read(func(d *data) { sn, ok = d.snapshots[id] })
	if !ok {
		return models.Snapshot{}, apperrors.NotFound("snapshot " + id + " not found")
	}
	return sn, nil
}

// ListSnapshots returns snapshots for a project, newest-first.
func (s *Store) ListSnapshots(projectID string) []models.Snapshot {
	var out []models.Snapshot
	s.read(func(d *data) {
		for _, sn := range d.snapshots {
			if projectID != "" && sn.ProjectID != projectID {
				continue
			}
			out = append(out, sn)
		}
	})
	newestFirst(out, func(sn models.Snapshot) int64 { return sn.CreatedAt.UnixNano() })
	return out
}

// GetSnapshotByName looks up a snapshot by its unique-within-project name.
func (s *Store) GetSnapshotByName(projectID, name string) (models.Snapshot, error) {
	var (
		sn    models.Snapshot
		found bool
	)
	s.read(func(d *data) {
		for _, candidate := range d.snapshots {
			if candidate.ProjectID == projectID && candidate.Name == name {
				sn, found = candidate, true
				return
			}
		}
	})
	if !found {
		return models.Snapshot{}, apperrors.NotFound("snapshot " + name + " not found in project " + projectID)
	}
	return sn, nil
}
