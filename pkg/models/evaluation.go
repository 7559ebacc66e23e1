package models

import "time"

// ScoreComponent is the {overall, components?} shape both P and R carry
// (§3, §6).
type ScoreComponent struct {
	Overall    float64
	Components map[string]float64
}

// Evaluation is one (Candidate, Scenario) assessment within a Run. At
// most one Evaluation may exist per (candidate_id, scenario_id) within a
// Run (§3 invariant), enforced by pkg/store.
type Evaluation struct {
	ID                     string
	RunID                  string
	CandidateID            string
	ScenarioID             string
	P                      ScoreComponent
	R                      ScoreComponent
	ConstraintSatisfaction map[string]ConstraintSatisfaction
	Explanation            string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
