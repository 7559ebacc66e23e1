package store

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

func findScenarioSuiteByRun(d *data, runID string) (models.ScenarioSuite, bool) {
	for _, suite := range d.scenarioSuites {
		if suite.RunID == runID {
			return suite, true
		}
	}
	return models.ScenarioSuite{}, false
}

// UpsertScenarioSuite creates the per-Run singleton if absent, else
// overwrites its scenarios in place (§4.6: "exactly one ScenarioSuite for
// the Run — created if absent, else overwritten in place").
func (t *Tx) UpsertScenarioSuite(runID string, scenarios []models.Scenario) (models.ScenarioSuite, error) {
	if _, ok := t.staged.runs[runID]; !ok {
		return models.ScenarioSuite{}, apperrors.NotFound("run " + runID + " not found")
	}
	now := time.Now().UTC()
	existing, ok := findScenarioSuiteByRun(t.staged, runID)
	if !ok {
		existing = models.ScenarioSuite{ID: NewID(), RunID: runID, CreatedAt: now}
	}
	existing.Scenarios = scenarios
	existing.UpdatedAt = now
	t.staged.scenarioSuites[existing.ID] = existing
	return existing, nil
}

// GetScenarioSuiteByRun retrieves the per-Run singleton suite within the
// transaction's staged view, or not_found if none has been generated yet.
func (t *Tx) GetScenarioSuiteByRun(runID string) (models.ScenarioSuite, error) {
	suite, ok := findScenarioSuiteByRun(t.staged, runID)
	if !ok {
		return models.ScenarioSuite{}, apperrors.NotFound("scenario suite for run " + runID + " not found")
	}
	return suite, nil
}

// GetScenarioSuiteByRun retrieves the per-Run singleton suite, or
// not_found if none has been generated yet.
func (s *Store) GetScenarioSuiteByRun(runID string) (models.ScenarioSuite, error) {
	var (
		suite models.ScenarioSuite
		ok    bool
	)
	s.read(func(d *data) { suite, ok = findScenarioSuiteByRun(d, runID) })
	if !ok {
		return models.ScenarioSuite{}, apperrors.NotFound("scenario suite for run " + runID + " not found")
	}
	return suite, nil
}
