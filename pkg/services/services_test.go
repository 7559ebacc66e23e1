package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/gateway"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/preflight"
	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

func seedProject(t *testing.T, s *store.Store, withPrereqs bool) models.Project {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	project, err := tx.CreateProject(models.Project{Title: "services"})
	require.NoError(t, err)
	if withPrereqs {
		_, err = tx.UpsertProblemSpec(project.ID, func(spec *models.ProblemSpec) {
			spec.Goals = []string{"goal"}
		})
		require.NoError(t, err)
		_, err = tx.UpsertWorldModel(project.ID, func(wm *models.WorldModel) {})
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
	return project
}

func TestRunService_CreateBlockedWithoutPrerequisites(t *testing.T) {
	s := store.New()
	project := seedProject(t, s, false)

	_, check, err := NewRunService(s).Create(context.Background(), CreateRunRequest{
		ProjectID: project.ID,
		Config:    models.RunConfig{NumCandidates: 5, NumScenarios: 8},
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindPreconditionFailed))
	assert.False(t, check.Ready)
	assert.Contains(t, check.Blockers, preflight.BlockerMissingProblemSpec)
	assert.Contains(t, check.Blockers, preflight.BlockerMissingWorldModel)
}

func TestRunService_CreateNormalizesConfig(t *testing.T) {
	s := store.New()
	project := seedProject(t, s, true)

	run, check, err := NewRunService(s).Create(context.Background(), CreateRunRequest{
		ProjectID: project.ID,
		Config:    models.RunConfig{NumCandidates: 200, NumScenarios: 0},
	})
	require.NoError(t, err)
	assert.True(t, check.Ready)
	assert.Equal(t, 50, run.Config.NumCandidates)
	assert.Equal(t, 8, run.Config.NumScenarios)
	assert.Equal(t, models.RunModeFullSearch, run.Mode)
	assert.Contains(t, check.Warnings, preflight.WarningLargeCandidateCount)
}

func TestProblemSpecService_ApplyRefinementComputesDelta(t *testing.T) {
	s := store.New()
	project := seedProject(t, s, true)
	svc := NewProblemSpecService(s)

	resp := gateway.ProblemSpecResponse{
		UpdatedSpec: gateway.ProblemSpecUpdate{
			Constraints: []gateway.ProblemSpecConstraint{
				{Name: "latency", Description: "p99 under 100ms", Weight: 80},
			},
			Goals:      []string{"goal", "new goal"},
			Resolution: "fine",
			Mode:       "full_search",
		},
	}
	spec, specDelta, err := svc.ApplyRefinement(context.Background(), project.ID, resp, provenance.ActorAgent)
	require.NoError(t, err)

	assert.Len(t, spec.Constraints, 1)
	assert.Contains(t, specDelta.Constraints.Added, "latency")
	assert.Contains(t, specDelta.Goals.Added, "new goal")
	assert.True(t, specDelta.ResolutionChanged)
	require.NotEmpty(t, spec.ProvenanceLog)
	assert.Equal(t, "spec_refinement", spec.ProvenanceLog[len(spec.ProvenanceLog)-1].Type)
}

func TestProblemSpecService_RejectsDuplicateConstraintNames(t *testing.T) {
	s := store.New()
	project := seedProject(t, s, true)

	resp := gateway.ProblemSpecResponse{
		UpdatedSpec: gateway.ProblemSpecUpdate{
			Constraints: []gateway.ProblemSpecConstraint{
				{Name: "dup", Weight: 10},
				{Name: "dup", Weight: 20},
			},
		},
	}
	_, _, err := NewProblemSpecService(s).ApplyRefinement(context.Background(), project.ID, resp, provenance.ActorAgent)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestWorldModelService_ApplyRefinementClassifiesChanges(t *testing.T) {
	s := store.New()
	project := seedProject(t, s, true)
	svc := NewWorldModelService(s)

	resp := gateway.WorldModellerResponse{
		UpdatedModel: gateway.WorldModellerSections{
			Actors: []gateway.WorldModellerElement{{ID: "a1", Name: "operator"}},
		},
		Changes: []gateway.WorldModellerChange{
			{Type: "added", EntityType: "actor", EntityID: "a1"},
		},
	}
	wm, wmDelta, err := svc.ApplyRefinement(context.Background(), project.ID, resp, provenance.ActorAgent)
	require.NoError(t, err)

	assert.Len(t, wm.Sections.Actors, 1)
	assert.Contains(t, wmDelta.Sections, "actors")
}

func TestCandidateService_SeedUserCandidate(t *testing.T) {
	s := store.New()
	project := seedProject(t, s, true)

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	run, err := tx.CreateRun(models.Run{ProjectID: project.ID, Mode: models.RunModeSeeded})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	candidate, err := NewCandidateService(s).Seed(context.Background(), SeedRequest{
		RunID:                run.ID,
		MechanismDescription: "hand-built throttle",
		ParentIDs:            []string{"prior-winner"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.CandidateOriginUser, candidate.Origin)
	assert.Equal(t, models.CandidateStatusNew, candidate.Status)
	assert.Equal(t, []string{"prior-winner"}, candidate.ParentIDs)

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CandidateCount)
}

func TestIssueService_FileValidatesEnums(t *testing.T) {
	s := store.New()
	project := seedProject(t, s, true)
	svc := NewIssueService(s)

	_, err := svc.File(context.Background(), FileIssueRequest{
		ProjectID: project.ID,
		Type:      "cosmic",
		Severity:  models.IssueSeverityMinor,
	})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	issue, err := svc.File(context.Background(), FileIssueRequest{
		ProjectID:   project.ID,
		Type:        models.IssueTypeEvaluator,
		Severity:    models.IssueSeverityImportant,
		Description: "scores skewed",
	})
	require.NoError(t, err)
	assert.Equal(t, models.IssueResolutionOpen, issue.ResolutionStatus)
}
