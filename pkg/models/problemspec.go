package models

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
)

// Constraint is one ProblemSpec constraint. Weight >= 100 marks a hard
// constraint (§3 invariant): a candidate failing it must never carry
// status "promising".
type Constraint struct {
	Name        string
	Description string
	Weight      float64
}

// IsHard reports whether this constraint forces rejection on violation.
func (c Constraint) IsHard() bool {
	return c.Weight >= 100
}

// ProblemSpec is a per-project singleton.
type ProblemSpec struct {
	ID            string
	ProjectID     string
	Constraints   []Constraint
	Goals         []string
	Resolution    Resolution
	Mode          RunMode
	ProvenanceLog []provenance.Entry
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ConstraintByName looks up a constraint by its unique name.
func (p *ProblemSpec) ConstraintByName(name string) (Constraint, bool) {
	for _, c := range p.Constraints {
		if c.Name == name {
			return c, true
		}
	}
	return Constraint{}, false
}
