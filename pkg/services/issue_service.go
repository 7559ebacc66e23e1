package services

import (
	"context"
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// IssueService owns Issue filing and lookup. Resolution flows through the
// Remediation Engine; invalidation is the one direct terminal state a
// driver may set without remediation.
type IssueService struct {
	store *store.Store
}

// NewIssueService builds an IssueService.
func NewIssueService(s *store.Store) *IssueService {
	return &IssueService{store: s}
}

// FileIssueRequest carries a new Issue's fields.
type FileIssueRequest struct {
	ProjectID   string
	RunID       string
	CandidateID string
	Type        models.IssueType
	Severity    models.IssueSeverity
	Description string
}

// File creates a new open Issue against a project artifact.
func (s *IssueService) File(ctx context.Context, req FileIssueRequest) (models.Issue, error) {
	switch req.Type {
	case models.IssueTypeModel, models.IssueTypeConstraint, models.IssueTypeEvaluator, models.IssueTypeScenario:
	default:
		return models.Issue{}, apperrors.Validation("invalid issue type " + string(req.Type))
	}
	switch req.Severity {
	case models.IssueSeverityMinor, models.IssueSeverityImportant, models.IssueSeverityCatastrophic:
	default:
		return models.Issue{}, apperrors.Validation("invalid issue severity " + string(req.Severity))
	}

	issue := models.Issue{
		ProjectID:   req.ProjectID,
		Type:        req.Type,
		Severity:    req.Severity,
		Description: req.Description,
	}
	if req.RunID != "" {
		id := req.RunID
		if _, err := s.store.GetRun(id); err != nil {
			return models.Issue{}, err
		}
		issue.RunID = &id
	}
	if req.CandidateID != "" {
		id := req.CandidateID
		if _, err := s.store.GetCandidate(id); err != nil {
			return models.Issue{}, err
		}
		issue.CandidateID = &id
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return models.Issue{}, err
	}
	defer tx.Rollback()
	created, err := tx.CreateIssue(issue)
	if err != nil {
		return models.Issue{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Issue{}, err
	}
	return created, nil
}

// Get retrieves an Issue.
func (s *IssueService) Get(id string) (models.Issue, error) {
	return s.store.GetIssue(id)
}

// List returns issues newest-first, optionally filtered.
func (s *IssueService) List(projectID, runID string) []models.Issue {
	return s.store.ListIssues(store.IssueFilter{ProjectID: projectID, RunID: runID})
}

// Invalidate marks an open Issue invalidated without remediation.
func (s *IssueService) Invalidate(ctx context.Context, id string) (models.Issue, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return models.Issue{}, err
	}
	defer tx.Rollback()
	now := time.Now().UTC()
	issue, err := tx.UpdateIssue(id, func(i *models.Issue) {
		i.ResolutionStatus = models.IssueResolutionInvalidated
		i.ResolvedAt = &now
	})
	if err != nil {
		return models.Issue{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Issue{}, err
	}
	return issue, nil
}
