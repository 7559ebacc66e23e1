package services

import (
	"context"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/delta"
	"github.com/copperdogma/crucible-pipeline/pkg/gateway"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// ProblemSpecService owns the per-project ProblemSpec singleton and its
// agent-driven refinement path.
type ProblemSpecService struct {
	store *store.Store
}

// NewProblemSpecService builds a ProblemSpecService.
func NewProblemSpecService(s *store.Store) *ProblemSpecService {
	return &ProblemSpecService{store: s}
}

// Get retrieves a project's ProblemSpec.
func (s *ProblemSpecService) Get(projectID string) (models.ProblemSpec, error) {
	return s.store.GetProblemSpecByProject(projectID)
}

// Summary returns the provenance summary for UI listing (§4.2).
func (s *ProblemSpecService) Summary(projectID string) (*provenance.Summary, error) {
	spec, err := s.store.GetProblemSpecByProject(projectID)
	if err != nil {
		return nil, err
	}
	return provenance.Summarize(spec.ProvenanceLog), nil
}

// ApplyRefinement upserts the spec from a ProblemSpec agent response,
// validating enums, enforcing unique constraint names (§3), computing the
// structured delta against the previous state (C5), and appending a
// provenance entry.
func (s *ProblemSpecService) ApplyRefinement(ctx context.Context, projectID string, resp gateway.ProblemSpecResponse, actor provenance.Actor) (models.ProblemSpec, delta.ProblemSpecDelta, error) {
	updated := resp.UpdatedSpec

	resolution := models.Resolution(updated.Resolution)
	switch resolution {
	case models.ResolutionCoarse, models.ResolutionMedium, models.ResolutionFine, "":
	default:
		return models.ProblemSpec{}, delta.ProblemSpecDelta{}, apperrors.Validation("invalid resolution " + updated.Resolution)
	}
	mode := models.RunMode(updated.Mode)
	switch mode {
	case models.RunModeFullSearch, models.RunModeEvalOnly, models.RunModeSeeded, "":
	default:
		return models.ProblemSpec{}, delta.ProblemSpecDelta{}, apperrors.Validation("invalid mode " + updated.Mode)
	}

	constraints := make([]models.Constraint, 0, len(updated.Constraints))
	seen := map[string]bool{}
	for _, c := range updated.Constraints {
		if seen[c.Name] {
			return models.ProblemSpec{}, delta.ProblemSpecDelta{}, apperrors.Validation("duplicate constraint name " + c.Name)
		}
		if c.Weight < 0 || c.Weight > 100 {
			return models.ProblemSpec{}, delta.ProblemSpecDelta{}, apperrors.Validation("constraint weight out of range for " + c.Name)
		}
		seen[c.Name] = true
		constraints = append(constraints, models.Constraint{Name: c.Name, Description: c.Description, Weight: c.Weight})
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return models.ProblemSpec{}, delta.ProblemSpecDelta{}, err
	}
	defer tx.Rollback()

	previous, _ := tx.GetProblemSpecByProject(projectID)

	entry := provenance.Build("spec_refinement", actor,
		provenance.WithSource("project:"+projectID),
		provenance.WithDescription("Problem spec refined"),
	)

	result, err := tx.UpsertProblemSpec(projectID, func(spec *models.ProblemSpec) {
		spec.Constraints = constraints
		spec.Goals = updated.Goals
		if resolution != "" {
			spec.Resolution = resolution
		}
		if mode != "" {
			spec.Mode = mode
		}
		spec.ProvenanceLog = provenance.Append(spec.ProvenanceLog, entry)
	})
	if err != nil {
		return models.ProblemSpec{}, delta.ProblemSpecDelta{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.ProblemSpec{}, delta.ProblemSpecDelta{}, err
	}

	return result, delta.ComputeProblemSpec(previous, result), nil
}

// WorldModelService owns the per-project WorldModel singleton and its
// agent-driven refinement path.
type WorldModelService struct {
	store *store.Store
}

// NewWorldModelService builds a WorldModelService.
func NewWorldModelService(s *store.Store) *WorldModelService {
	return &WorldModelService{store: s}
}

// Get retrieves a project's WorldModel.
func (s *WorldModelService) Get(projectID string) (models.WorldModel, error) {
	return s.store.GetWorldModelByProject(projectID)
}

// Summary returns the provenance summary for UI listing (§4.2).
func (s *WorldModelService) Summary(projectID string) (*provenance.Summary, error) {
	wm, err := s.store.GetWorldModelByProject(projectID)
	if err != nil {
		return nil, err
	}
	return provenance.Summarize(wm.ProvenanceLog), nil
}

// ApplyRefinement upserts the model from a WorldModeller agent response
// and classifies the delta: by the agent's structured changes[] when
// present, else by the per-section heuristic (§4.5). Elements the agent
// dropped stay replaced here — the refinement itself is the provenance
// entry §3's no-silent-erasure invariant requires.
func (s *WorldModelService) ApplyRefinement(ctx context.Context, projectID string, resp gateway.WorldModellerResponse, actor provenance.Actor) (models.WorldModel, delta.WorldModelDelta, error) {
	sections := models.WorldModelSections{
		Actors:          convertElements(resp.UpdatedModel.Actors),
		Mechanisms:      convertElements(resp.UpdatedModel.Mechanisms),
		Resources:       convertElements(resp.UpdatedModel.Resources),
		Constraints:     convertElements(resp.UpdatedModel.Constraints),
		Assumptions:     convertElements(resp.UpdatedModel.Assumptions),
		Simplifications: convertElements(resp.UpdatedModel.Simplifications),
	}

	for _, name := range models.SectionNames {
		ids := map[string]bool{}
		for _, e := range sections.Section(name) {
			if e.ID == "" {
				continue
			}
			if ids[e.ID] {
				return models.WorldModel{}, delta.WorldModelDelta{}, apperrors.Validation("duplicate element id " + e.ID + " in section " + name)
			}
			ids[e.ID] = true
		}
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return models.WorldModel{}, delta.WorldModelDelta{}, err
	}
	defer tx.Rollback()

	previous, _ := tx.GetWorldModelByProject(projectID)

	entry := provenance.Build("model_refinement", actor,
		provenance.WithSource("project:"+projectID),
		provenance.WithDescription("World model refined"),
	)

	result, err := tx.UpsertWorldModel(projectID, func(wm *models.WorldModel) {
		wm.Sections = sections
		wm.ProvenanceLog = provenance.Append(wm.ProvenanceLog, entry)
	})
	if err != nil {
		return models.WorldModel{}, delta.WorldModelDelta{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.WorldModel{}, delta.WorldModelDelta{}, err
	}

	changes := make([]delta.StructuredChange, 0, len(resp.Changes))
	for _, c := range resp.Changes {
		changes = append(changes, delta.StructuredChange{Type: c.Type, EntityType: c.EntityType})
	}
	return result, delta.ComputeWorldModel(previous.Sections, result.Sections, changes), nil
}

func convertElements(in []gateway.WorldModellerElement) []models.WorldModelElement {
	out := make([]models.WorldModelElement, 0, len(in))
	for _, e := range in {
		out = append(out, models.WorldModelElement{ID: e.ID, Name: e.Name, Attributes: e.Attributes})
	}
	return out
}
