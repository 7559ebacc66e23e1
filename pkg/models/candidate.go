package models

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
)

// ConstraintSatisfaction is the aggregated-or-per-evaluation verdict for
// one constraint id.
type ConstraintSatisfaction struct {
	Satisfied   bool
	Score       float64
	Explanation string
}

// RankingFactors is the ≤4/≤4 positive/negative factor lists the I-Ranker
// synthesizes (§4.7).
type RankingFactors struct {
	TopPositiveFactors []string
	TopNegativeFactors []string
}

// CandidateScores is the scores object the Ranker persists onto a
// Candidate.
type CandidateScores struct {
	P                      float64
	R                      float64
	I                      float64
	ConstraintSatisfaction map[string]ConstraintSatisfaction
	RankingExplanation     string
	RankingFactors         RankingFactors
}

// Candidate is a proposed solution mechanism under evaluation, owned by a
// Run.
type Candidate struct {
	ID                   string
	RunID                string
	ProjectID            string
	Origin               CandidateOrigin
	MechanismDescription string
	PredictedEffects     map[string]any
	Scores               CandidateScores
	Status               CandidateStatus
	ParentIDs            []string
	ProvenanceLog        []provenance.Entry
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
