// Package delta implements C5, the Delta Computer: a structured diff
// between old/new ProblemSpec and WorldModel sections. No direct teacher
// analogue beyond pkg/config/merge.go's override-by-key pattern, adapted
// here for diffing rather than merging (SPEC_FULL.md MODULE MAP).
package delta

import "github.com/copperdogma/crucible-pipeline/pkg/models"

// ConstraintDelta is the {added, updated, removed} shape §4.5 specifies
// for ProblemSpec constraints.
type ConstraintDelta struct {
	Added   []string
	Updated []string
	Removed []string
}

// GoalDelta is the {added, removed} shape for goals, compared as a set
// (ordering differences ignored).
type GoalDelta struct {
	Added   []string
	Removed []string
}

// ProblemSpecDelta is the §4.5 ProblemSpec diff output.
type ProblemSpecDelta struct {
	TouchedSections   []string
	Constraints       ConstraintDelta
	Goals             GoalDelta
	ResolutionChanged bool
	ModeChanged       bool
}

// ComputeProblemSpec diffs old against new, keying constraints by name
// (unique within a spec, §3) and comparing goals as a set.
func ComputeProblemSpec(old, new models.ProblemSpec) ProblemSpecDelta {
	d := ProblemSpecDelta{}

	oldByName := map[string]models.Constraint{}
	for _, c := range old.Constraints {
		oldByName[c.Name] = c
	}
	newByName := map[string]models.Constraint{}
	for _, c := range new.Constraints {
		newByName[c.Name] = c
	}

	for name, nc := range newByName {
		oc, existed := oldByName[name]
		if !existed {
			d.Constraints.Added = append(d.Constraints.Added, name)
			continue
		}
		if oc.Description != nc.Description || oc.Weight != nc.Weight {
			d.Constraints.Updated = append(d.Constraints.Updated, name)
		}
	}
	for name := range oldByName {
		if _, stillPresent := newByName[name]; !stillPresent {
			d.Constraints.Removed = append(d.Constraints.Removed, name)
		}
	}

	oldGoals := toSet(old.Goals)
	newGoals := toSet(new.Goals)
	for g := range newGoals {
		if !oldGoals[g] {
			d.Goals.Added = append(d.Goals.Added, g)
		}
	}
	for g := range oldGoals {
		if !newGoals[g] {
			d.Goals.Removed = append(d.Goals.Removed, g)
		}
	}

	d.ResolutionChanged = old.Resolution != new.Resolution
	d.ModeChanged = old.Mode != new.Mode

	if len(d.Constraints.Added)+len(d.Constraints.Updated)+len(d.Constraints.Removed) > 0 {
		d.TouchedSections = append(d.TouchedSections, "constraints")
	}
	if len(d.Goals.Added)+len(d.Goals.Removed) > 0 {
		d.TouchedSections = append(d.TouchedSections, "goals")
	}
	if d.ResolutionChanged {
		d.TouchedSections = append(d.TouchedSections, "resolution")
	}
	if d.ModeChanged {
		d.TouchedSections = append(d.TouchedSections, "mode")
	}

	return d
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}

// SectionChangeKind classifies one WorldModel element change.
type SectionChangeKind string

const (
	SectionChangeAdded    SectionChangeKind = "added"
	SectionChangeModified SectionChangeKind = "modified"
	SectionChangeRemoved  SectionChangeKind = "removed"
)

// WorldModelDelta maps each of the six §3 sections to its classified
// changes.
type WorldModelDelta struct {
	Sections map[string][]SectionChangeKind
}

// entityTypeToSection maps a WorldModeller changes[].entity_type value to
// its canonical section name (§4.5: "actor→actors, mechanism→mechanisms,
// etc.").
var entityTypeToSection = map[string]string{
	"actor":          "actors",
	"mechanism":      "mechanisms",
	"resource":       "resources",
	"constraint":     "constraints",
	"assumption":     "assumptions",
	"simplification": "simplifications",
}

// StructuredChange is one agent-reported change entry (§6 WorldModeller
// contract's changes[]).
type StructuredChange struct {
	Type       string // "added" | "modified" | "removed"
	EntityType string // "actor" | "mechanism" | ...
}

// ComputeWorldModel classifies WorldModel changes. When the agent supplies
// structured changes, they are classified by entity_type → section
// mapping. Otherwise (§4.5 fallback), a per-section list-length heuristic
// is applied: length increase ⇒ added, decrease ⇒ removed, equal length
// with differing content ⇒ modified. Per SPEC_FULL.md's Open Question
// decision, the heuristic path omits a delta entirely for sections whose
// content cannot be meaningfully classified (equal length, identical
// content) rather than emitting a vague placeholder.
func ComputeWorldModel(old, new models.WorldModelSections, changes []StructuredChange) WorldModelDelta {
	result := WorldModelDelta{Sections: map[string][]SectionChangeKind{}}

	if len(changes) > 0 {
		for _, c := range changes {
			section, ok := entityTypeToSection[c.EntityType]
			if !ok {
				continue
			}
			kind := SectionChangeKind(c.Type)
			switch kind {
			case SectionChangeAdded, SectionChangeModified, SectionChangeRemoved:
				result.Sections[section] = append(result.Sections[section], kind)
			}
		}
		return result
	}

	for _, name := range models.SectionNames {
		oldLen := len(old.Section(name))
		newLen := len(new.Section(name))
		switch {
		case newLen > oldLen:
			result.Sections[name] = []SectionChangeKind{SectionChangeAdded}
		case newLen < oldLen:
			result.Sections[name] = []SectionChangeKind{SectionChangeRemoved}
		case newLen == oldLen && sectionsDiffer(old.Section(name), new.Section(name)):
			result.Sections[name] = []SectionChangeKind{SectionChangeModified}
		}
	}
	return result
}

func sectionsDiffer(a, b []models.WorldModelElement) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Name != b[i].Name {
			return true
		}
	}
	return false
}
