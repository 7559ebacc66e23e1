package remediation

import (
	"encoding/json"

	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
)

// mergeTrees applies §4.8's WorldModel deep-merge semantics over two
// map-shaped trees:
//   - keys absent from the patch are preserved;
//   - a list under the "provenance" key concatenates, never replaces
//     (DESIGN NOTES §9: encode concat in the merger);
//   - a dict patching a dict merges recursively, new subkeys added,
//     existing subkeys overwritten;
//   - anything else replaces.
func mergeTrees(existing, patch map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(patch))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range patch {
		if k == "provenance" {
			if list, ok := v.([]any); ok {
				prev, _ := out[k].([]any)
				merged := make([]any, 0, len(prev)+len(list))
				merged = append(merged, prev...)
				merged = append(merged, list...)
				out[k] = merged
				continue
			}
		}
		if patchMap, ok := v.(map[string]any); ok {
			if existingMap, ok := out[k].(map[string]any); ok {
				out[k] = mergeTrees(existingMap, patchMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// worldModelToMap renders a WorldModel's model data into the map-shaped
// tree the merger operates on: one list per §3 section plus the internal
// provenance array.
func worldModelToMap(wm models.WorldModel) map[string]any {
	out := map[string]any{}
	for _, name := range models.SectionNames {
		elements := wm.Sections.Section(name)
		rendered := make([]any, 0, len(elements))
		for _, e := range elements {
			m := map[string]any{"id": e.ID, "name": e.Name}
			for k, v := range e.Attributes {
				m[k] = v
			}
			rendered = append(rendered, m)
		}
		out[name] = rendered
	}
	out["provenance"] = provenanceToList(wm.ProvenanceLog)
	return out
}

// applyModelMap writes a merged map-shaped tree back onto a WorldModel's
// typed sections and provenance log.
func applyModelMap(wm *models.WorldModel, merged map[string]any) {
	for _, name := range models.SectionNames {
		list, ok := merged[name].([]any)
		if !ok {
			continue
		}
		elements := make([]models.WorldModelElement, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			elements = append(elements, elementFromMap(m))
		}
		wm.Sections.SetSection(name, elements)
	}
	if list, ok := merged["provenance"].([]any); ok {
		wm.ProvenanceLog = provenanceFromList(list)
	}
}

func elementFromMap(m map[string]any) models.WorldModelElement {
	e := models.WorldModelElement{}
	attrs := map[string]any{}
	for k, v := range m {
		switch k {
		case "id":
			if s, ok := v.(string); ok {
				e.ID = s
			}
		case "name":
			if s, ok := v.(string); ok {
				e.Name = s
			}
		default:
			attrs[k] = v
		}
	}
	if len(attrs) > 0 {
		e.Attributes = attrs
	}
	return e
}

// provenanceToList and provenanceFromList round-trip provenance entries
// through their JSON shape, which is the same shape patches carry them in.
func provenanceToList(entries []provenance.Entry) []any {
	payload, err := json.Marshal(entries)
	if err != nil {
		return nil
	}
	var out []any
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil
	}
	return out
}

func provenanceFromList(list []any) []provenance.Entry {
	payload, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	var out []provenance.Entry
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil
	}
	return out
}
