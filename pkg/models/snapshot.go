package models

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
)

// SnapshotProblemSpec is the frozen subset of ProblemSpec a Snapshot
// captures (§4.9).
type SnapshotProblemSpec struct {
	Constraints   []Constraint
	Goals         []string
	Resolution    Resolution
	Mode          RunMode
	ProvenanceLog []provenance.Entry
}

// SnapshotWorldModel is the frozen WorldModel data a Snapshot captures.
type SnapshotWorldModel struct {
	Sections      WorldModelSections
	ProvenanceLog []provenance.Entry
}

// SnapshotRunConfig is the frozen Run mode/config, present only when the
// snapshot was captured against a specific Run.
type SnapshotRunConfig struct {
	Mode   RunMode
	Config RunConfig
}

// ChatContextMessage is a trimmed view of a Message captured into a
// snapshot's optional chat_context.
type ChatContextMessage struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// SnapshotData is the immutable §6 snapshot_data layout.
type SnapshotData struct {
	Version     string
	ProblemSpec SnapshotProblemSpec
	WorldModel  SnapshotWorldModel
	RunConfig   *SnapshotRunConfig
	ChatContext []ChatContextMessage
}

// ReferenceMetrics is the §4.9 capture_reference_metrics output shape.
type ReferenceMetrics struct {
	CandidateCount  int
	ScenarioCount   int
	EvaluationCount int
	Status          RunStatus
	DurationSeconds *float64
	LLMUsage        UsageStats
	ErrorSummary    string
	TopIScore       *float64
	Metrics         RunMetrics
}

// Invariant is one declarative assertion attached to a Snapshot (§4.9).
type Invariant struct {
	Type        string
	Value       any
	Description string
}

// Snapshot is an immutable frozen bundle of a Project's inputs and
// reference outputs. Only Description, Tags, Invariants may be updated
// after creation (§3 invariant) — SnapshotData itself never changes.
type Snapshot struct {
	ID               string
	ProjectID        string
	RunID            *string
	Name             string
	Description      string
	Tags             []string
	SnapshotData     SnapshotData
	ReferenceMetrics ReferenceMetrics
	Invariants       []Invariant
	Version          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
