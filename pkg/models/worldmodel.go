package models

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
)

// WorldModelElement is one entry within a WorldModel section. Id is
// unique within its section; Attributes carries whatever free-form fields
// the agent populated beyond id/name (DESIGN NOTES §9: tagged tree, not
// an open-world map of maps, at the WorldModel-as-a-whole level — within
// a single element's own attributes, an open map is the right shape since
// the per-section schema is agent-defined).
type WorldModelElement struct {
	ID         string
	Name       string
	Attributes map[string]any
}

// WorldModelSections groups the six semantic sections §3 names.
type WorldModelSections struct {
	Actors          []WorldModelElement
	Mechanisms      []WorldModelElement
	Resources       []WorldModelElement
	Constraints     []WorldModelElement
	Assumptions     []WorldModelElement
	Simplifications []WorldModelElement
}

// SectionNames lists the six sections in the canonical order used for
// delta classification (§4.5) and replay restoration.
var SectionNames = []string{"actors", "mechanisms", "resources", "constraints", "assumptions", "simplifications"}

// Section returns a section by its canonical name, or nil if unknown.
func (s *WorldModelSections) Section(name string) []WorldModelElement {
	switch name {
	case "actors":
		return s.Actors
	case "mechanisms":
		return s.Mechanisms
	case "resources":
		return s.Resources
	case "constraints":
		return s.Constraints
	case "assumptions":
		return s.Assumptions
	case "simplifications":
		return s.Simplifications
	default:
		return nil
	}
}

// SetSection replaces a section by canonical name.
func (s *WorldModelSections) SetSection(name string, elements []WorldModelElement) {
	switch name {
	case "actors":
		s.Actors = elements
	case "mechanisms":
		s.Mechanisms = elements
	case "resources":
		s.Resources = elements
	case "constraints":
		s.Constraints = elements
	case "assumptions":
		s.Assumptions = elements
	case "simplifications":
		s.Simplifications = elements
	}
}

// WorldModel is a per-project singleton: a single JSON-shaped blob with
// six sections plus an internal provenance array. WorldModel may refine
// but must not erase user-supplied elements without a provenance entry
// (§3 invariant) — enforced by pkg/services' update path, not here.
type WorldModel struct {
	ID            string
	ProjectID     string
	Sections      WorldModelSections
	ProvenanceLog []provenance.Entry
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
