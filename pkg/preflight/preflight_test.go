package preflight

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

func TestCheck_MissingPrerequisites(t *testing.T) {
	result := Check(Input{HasProblemSpec: false, HasWorldModel: false})
	assert.False(t, result.Ready)
	assert.Contains(t, result.Blockers, BlockerMissingProblemSpec)
	assert.Contains(t, result.Blockers, BlockerMissingWorldModel)
}

func TestCheck_ReadyWithDefaults(t *testing.T) {
	result := Check(Input{HasProblemSpec: true, HasWorldModel: true})
	assert.True(t, result.Ready)
	assert.Empty(t, result.Blockers)
	assert.Equal(t, 5, result.NormalizedConfig.NumCandidates)
	assert.Equal(t, 8, result.NormalizedConfig.NumScenarios)
}

func TestCheck_ClampsOutOfRange(t *testing.T) {
	result := Check(Input{
		HasProblemSpec: true,
		HasWorldModel:  true,
		Config:         models.RunConfig{NumCandidates: 999, NumScenarios: -5},
	})
	assert.Equal(t, 50, result.NormalizedConfig.NumCandidates)
	assert.Equal(t, 1, result.NormalizedConfig.NumScenarios)
}

func TestCheck_LargeCandidateCountWarning(t *testing.T) {
	result := Check(Input{
		HasProblemSpec: true,
		HasWorldModel:  true,
		Config:         models.RunConfig{NumCandidates: 25, NumScenarios: 5},
	})
	assert.Contains(t, result.Warnings, WarningLargeCandidateCount)
}

func TestCheck_HighBudgetWarning(t *testing.T) {
	budget := 100.0
	result := Check(Input{
		HasProblemSpec: true,
		HasWorldModel:  true,
		Config:         models.RunConfig{BudgetUSD: &budget},
	})
	assert.Contains(t, result.Warnings, WarningHighBudget)
}
