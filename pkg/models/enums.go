// Package models defines the entity types of §3: Project, ProblemSpec,
// WorldModel, Run, Candidate, ScenarioSuite, Evaluation, Issue, Snapshot,
// ChatSession, Message. Grounded on pkg/models/session.go's and
// pkg/models/timeline.go's struct-tag-free plain-Go-struct style (the
// teacher's DTOs are thin wrappers; ours are the entities themselves since
// the store is not ent-backed).
package models

// Resolution is a ProblemSpec's precision level.
type Resolution string

const (
	ResolutionCoarse Resolution = "coarse"
	ResolutionMedium Resolution = "medium"
	ResolutionFine   Resolution = "fine"
)

// RunMode selects how a Run is seeded and searched.
type RunMode string

const (
	RunModeFullSearch RunMode = "full_search"
	RunModeEvalOnly   RunMode = "eval_only"
	RunModeSeeded     RunMode = "seeded"
)

// RunStatus is the Run state machine of §3: created -> running ->
// {completed|failed|cancelled}, with completed sticky.
type RunStatus string

const (
	RunStatusCreated   RunStatus = "created"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// CandidateOrigin distinguishes user-seeded from system-generated
// candidates.
type CandidateOrigin string

const (
	CandidateOriginUser   CandidateOrigin = "user"
	CandidateOriginSystem CandidateOrigin = "system"
)

// CandidateStatus is monotone new -> under_test -> (promising|weak) |
// rejected, with rejected terminal.
type CandidateStatus string

const (
	CandidateStatusNew       CandidateStatus = "new"
	CandidateStatusUnderTest CandidateStatus = "under_test"
	CandidateStatusPromising CandidateStatus = "promising"
	CandidateStatusWeak      CandidateStatus = "weak"
	CandidateStatusRejected  CandidateStatus = "rejected"
)

// ScenarioType classifies a generated test scenario.
type ScenarioType string

const (
	ScenarioTypeStressTest      ScenarioType = "stress_test"
	ScenarioTypeEdgeCase        ScenarioType = "edge_case"
	ScenarioTypeNormalOperation ScenarioType = "normal_operation"
	ScenarioTypeFailureMode     ScenarioType = "failure_mode"
)

// IssueType classifies what artifact an Issue is filed against.
type IssueType string

const (
	IssueTypeModel      IssueType = "model"
	IssueTypeConstraint IssueType = "constraint"
	IssueTypeEvaluator  IssueType = "evaluator"
	IssueTypeScenario   IssueType = "scenario"
)

// IssueSeverity drives the Remediation Engine's default action mapping.
type IssueSeverity string

const (
	IssueSeverityMinor        IssueSeverity = "minor"
	IssueSeverityImportant    IssueSeverity = "important"
	IssueSeverityCatastrophic IssueSeverity = "catastrophic"
)

// IssueResolutionStatus tracks an Issue's lifecycle.
type IssueResolutionStatus string

const (
	IssueResolutionOpen        IssueResolutionStatus = "open"
	IssueResolutionResolved    IssueResolutionStatus = "resolved"
	IssueResolutionInvalidated IssueResolutionStatus = "invalidated"
)

// RemediationAction is one of the four actions the Remediation Engine
// dispatches.
type RemediationAction string

const (
	ActionPatchAndRescore      RemediationAction = "patch_and_rescore"
	ActionPartialRerun         RemediationAction = "partial_rerun"
	ActionFullRerun            RemediationAction = "full_rerun"
	ActionInvalidateCandidates RemediationAction = "invalidate_candidates"
)
