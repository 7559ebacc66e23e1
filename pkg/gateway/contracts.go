// Package gateway implements C3, the Agent Gateway: a uniform façade over
// the seven conversational agents spec §6 defines as external black boxes.
// Grounded on pkg/agent/llm_client.go's LLMClient interface (the
// transport the gateway wraps is out of scope per §1, modeled here as
// AgentClient) and pkg/agent/controller/react_parser.go's forgiving,
// multi-strategy text extraction, generalized from ReAct sections to
// fenced-JSON blocks per §4.3.
package gateway

import "encoding/json"

// DesignerResponse is the §6 Designer agent contract.
type DesignerResponse struct {
	Candidates []DesignerCandidate `json:"candidates"`
	Reasoning  string              `json:"reasoning"`
}

// DesignerCandidate is one proposed candidate within a DesignerResponse.
type DesignerCandidate struct {
	MechanismDescription string           `json:"mechanism_description"`
	PredictedEffects     PredictedEffects `json:"predicted_effects"`
	ConstraintCompliance map[string]any   `json:"constraint_compliance"`
	Reasoning            string           `json:"reasoning"`
	ParentIDs            []string         `json:"parent_ids,omitempty"`
}

// PredictedEffects is the structured shape a Designer candidate's
// predicted_effects carries (§6).
type PredictedEffects struct {
	ActorsAffected     []string `json:"actors_affected"`
	ResourcesImpacted  []string `json:"resources_impacted"`
	MechanismsModified []string `json:"mechanisms_modified"`
}

// designerSafeDefault is returned by the gateway when a Designer response
// fails JSON extraction (§4.3.3: callers must be able to proceed).
func designerSafeDefault() DesignerResponse {
	return DesignerResponse{Candidates: nil, Reasoning: "parse_error: safe default, no candidates generated"}
}

// ScenarioGeneratorResponse is the §6 ScenarioGenerator agent contract.
type ScenarioGeneratorResponse struct {
	Scenarios []ScenarioGeneratorScenario `json:"scenarios"`
	Reasoning string                      `json:"reasoning"`
}

// ScenarioGeneratorScenario is one scenario record within a response.
type ScenarioGeneratorScenario struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Type             string           `json:"type"`
	Focus            string           `json:"focus"`
	InitialState     map[string]any   `json:"initial_state"`
	Events           []map[string]any `json:"events"`
	ExpectedOutcomes []map[string]any `json:"expected_outcomes"`
	Weight           float64          `json:"weight"`
}

func scenarioGeneratorSafeDefault() ScenarioGeneratorResponse {
	return ScenarioGeneratorResponse{Scenarios: nil, Reasoning: "parse_error: safe default, no scenarios generated"}
}

// EvaluatorResponse is the §6 Evaluator agent contract.
type EvaluatorResponse struct {
	P                      EvaluatorScore                    `json:"P"`
	R                      EvaluatorScore                    `json:"R"`
	ConstraintSatisfaction map[string]EvaluatorConstraintSat `json:"constraint_satisfaction"`
	Explanation            string                            `json:"explanation"`
}

// EvaluatorScore is the {overall, components?} shape shared by P and R.
type EvaluatorScore struct {
	Overall    float64            `json:"overall"`
	Components map[string]float64 `json:"components,omitempty"`
}

// EvaluatorConstraintSat is one constraint's verdict within an Evaluation.
type EvaluatorConstraintSat struct {
	Satisfied   bool    `json:"satisfied"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// evaluatorSafeDefault applies the §4.7 P/R defaults ("default 0.5 if
// missing") at the point of parse failure, so a degraded Evaluator
// response still aggregates sensibly downstream.
func evaluatorSafeDefault() EvaluatorResponse {
	return EvaluatorResponse{
		P:           EvaluatorScore{Overall: 0.5},
		R:           EvaluatorScore{Overall: 0.5},
		Explanation: "parse_error: safe default evaluation",
	}
}

// ProblemSpecResponse is the §6 ProblemSpec agent contract.
type ProblemSpecResponse struct {
	UpdatedSpec       ProblemSpecUpdate `json:"updated_spec"`
	FollowUpQuestions []string          `json:"follow_up_questions"`
	Reasoning         string            `json:"reasoning"`
	ReadyToRun        bool              `json:"ready_to_run"`
}

// ProblemSpecUpdate is the updated_spec sub-object.
type ProblemSpecUpdate struct {
	Constraints []ProblemSpecConstraint `json:"constraints"`
	Goals       []string                `json:"goals"`
	Resolution  string                  `json:"resolution"`
	Mode        string                  `json:"mode"`
}

// ProblemSpecConstraint mirrors models.Constraint over the wire.
type ProblemSpecConstraint struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

func problemSpecSafeDefault() ProblemSpecResponse {
	return ProblemSpecResponse{Reasoning: "parse_error: safe default, no spec changes proposed"}
}

// WorldModellerResponse is the §6 WorldModeller agent contract.
type WorldModellerResponse struct {
	UpdatedModel WorldModellerSections `json:"updated_model"`
	Changes      []WorldModellerChange `json:"changes"`
	Reasoning    string                `json:"reasoning"`
	ReadyToRun   bool                  `json:"ready_to_run"`
}

// WorldModellerSections is the updated_model sub-object, one array per
// §3 section.
type WorldModellerSections struct {
	Actors          []WorldModellerElement `json:"actors"`
	Mechanisms      []WorldModellerElement `json:"mechanisms"`
	Resources       []WorldModellerElement `json:"resources"`
	Constraints     []WorldModellerElement `json:"constraints"`
	Assumptions     []WorldModellerElement `json:"assumptions"`
	Simplifications []WorldModellerElement `json:"simplifications"`
}

// WorldModellerElement mirrors models.WorldModelElement over the wire.
// Agents may attach arbitrary extra fields beyond id/name per section;
// UnmarshalJSON below captures them into Attributes rather than dropping
// them, since the per-section schema is agent-defined (DESIGN NOTES §9).
type WorldModellerElement struct {
	ID         string
	Name       string
	Attributes map[string]any
}

func (e *WorldModellerElement) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["id"].(string); ok {
		e.ID = v
	}
	if v, ok := raw["name"].(string); ok {
		e.Name = v
	}
	delete(raw, "id")
	delete(raw, "name")
	if len(raw) > 0 {
		e.Attributes = raw
	}
	return nil
}

func (e WorldModellerElement) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range e.Attributes {
		out[k] = v
	}
	out["id"] = e.ID
	out["name"] = e.Name
	return json.Marshal(out)
}

// WorldModellerChange is one structured delta entry (§4.5: "if structured
// changes[] are supplied by the agent").
type WorldModellerChange struct {
	Type        string `json:"type"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Description string `json:"description"`
}

func worldModellerSafeDefault() WorldModellerResponse {
	return WorldModellerResponse{Reasoning: "parse_error: safe default, no model changes proposed"}
}

// FeedbackResponse and GuidanceResponse are driver adapters out of core
// scope (§6) beyond their JSON-in/JSON-out shape; the gateway extracts
// them the same way as every other agent so a future driver can use them
// without a bespoke parser.
type FeedbackResponse struct {
	Feedback  string         `json:"feedback"`
	Reasoning string         `json:"reasoning"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func feedbackSafeDefault() FeedbackResponse {
	return FeedbackResponse{Feedback: "", Reasoning: "parse_error: safe default"}
}

type GuidanceResponse struct {
	Guidance  string         `json:"guidance"`
	Reasoning string         `json:"reasoning"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func guidanceSafeDefault() GuidanceResponse {
	return GuidanceResponse{Guidance: "", Reasoning: "parse_error: safe default"}
}
