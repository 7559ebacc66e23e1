package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

func TestComputeProblemSpec(t *testing.T) {
	old := models.ProblemSpec{
		Constraints: []models.Constraint{
			{Name: "budget", Description: "stay under budget", Weight: 50},
			{Name: "latency", Description: "keep latency low", Weight: 30},
		},
		Goals:      []string{"g1", "g2"},
		Resolution: models.ResolutionCoarse,
		Mode:       models.RunModeFullSearch,
	}
	new := models.ProblemSpec{
		Constraints: []models.Constraint{
			{Name: "budget", Description: "stay under budget, revised", Weight: 50},
			{Name: "safety", Description: "no harm", Weight: 100},
		},
		Goals:      []string{"g2", "g3"},
		Resolution: models.ResolutionFine,
		Mode:       models.RunModeFullSearch,
	}

	d := ComputeProblemSpec(old, new)
	assert.ElementsMatch(t, []string{"safety"}, d.Constraints.Added)
	assert.ElementsMatch(t, []string{"budget"}, d.Constraints.Updated)
	assert.ElementsMatch(t, []string{"latency"}, d.Constraints.Removed)
	assert.ElementsMatch(t, []string{"g3"}, d.Goals.Added)
	assert.ElementsMatch(t, []string{"g1"}, d.Goals.Removed)
	assert.True(t, d.ResolutionChanged)
	assert.False(t, d.ModeChanged)
	assert.Contains(t, d.TouchedSections, "constraints")
	assert.Contains(t, d.TouchedSections, "goals")
	assert.Contains(t, d.TouchedSections, "resolution")
}

func TestComputeProblemSpec_GoalOrderingIgnored(t *testing.T) {
	old := models.ProblemSpec{Goals: []string{"a", "b"}}
	new := models.ProblemSpec{Goals: []string{"b", "a"}}
	d := ComputeProblemSpec(old, new)
	assert.Empty(t, d.Goals.Added)
	assert.Empty(t, d.Goals.Removed)
}

func TestComputeWorldModel_StructuredChanges(t *testing.T) {
	changes := []StructuredChange{
		{Type: "added", EntityType: "actor"},
		{Type: "modified", EntityType: "mechanism"},
		{Type: "removed", EntityType: "resource"},
	}
	d := ComputeWorldModel(models.WorldModelSections{}, models.WorldModelSections{}, changes)
	assert.Equal(t, []SectionChangeKind{SectionChangeAdded}, d.Sections["actors"])
	assert.Equal(t, []SectionChangeKind{SectionChangeModified}, d.Sections["mechanisms"])
	assert.Equal(t, []SectionChangeKind{SectionChangeRemoved}, d.Sections["resources"])
}

func TestComputeWorldModel_HeuristicFallback(t *testing.T) {
	old := models.WorldModelSections{
		Actors: []models.WorldModelElement{{ID: "1", Name: "a"}},
	}
	new := models.WorldModelSections{
		Actors: []models.WorldModelElement{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}},
	}
	d := ComputeWorldModel(old, new, nil)
	assert.Equal(t, []SectionChangeKind{SectionChangeAdded}, d.Sections["actors"])
	assert.Empty(t, d.Sections["mechanisms"])
}

func TestComputeWorldModel_HeuristicNoChangeOmitsEntry(t *testing.T) {
	same := models.WorldModelSections{
		Actors: []models.WorldModelElement{{ID: "1", Name: "a"}},
	}
	d := ComputeWorldModel(same, same, nil)
	_, present := d.Sections["actors"]
	assert.False(t, present)
}
