package models

import "time"

// Scenario is a structured test condition generated for a Run.
type Scenario struct {
	ID               string
	Name             string
	Description      string
	Type             ScenarioType
	Focus            string
	InitialState     map[string]any
	Events           []map[string]any
	ExpectedOutcomes []map[string]any
	Weight           float64
}

// ScenarioSuite is a per-Run singleton collection of Scenarios.
type ScenarioSuite struct {
	ID        string
	RunID     string
	Scenarios []Scenario
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ByID looks up a scenario by its within-suite-unique id.
func (s *ScenarioSuite) ByID(id string) (Scenario, bool) {
	for _, sc := range s.Scenarios {
		if sc.ID == id {
			return sc, true
		}
	}
	return Scenario{}, false
}
