package models

import "time"

// Issue is a user-filed report against a Project, optionally linked to a
// Run and/or Candidate.
type Issue struct {
	ID               string
	ProjectID        string
	RunID            *string
	CandidateID      *string
	Type             IssueType
	Severity         IssueSeverity
	Description      string
	ResolutionStatus IssueResolutionStatus
	ResolvedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasRun reports whether this issue references a Run, the condition the
// Remediation Engine's auto-upgrade rule checks (§4.8).
func (i *Issue) HasRun() bool {
	return i.RunID != nil && *i.RunID != ""
}
