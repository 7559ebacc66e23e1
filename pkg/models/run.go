package models

import "time"

// RunConfig holds the recognized Run config options (§3).
type RunConfig struct {
	NumCandidates int
	NumScenarios  int
	BudgetTokens  *int
	BudgetUSD     *float64
	MaxRuntimeS   *int
}

// UITrigger records where a Run was initiated from, when applicable.
type UITrigger struct {
	ID       string
	Source   string
	Metadata map[string]any
	At       time.Time
}

// PhaseMetric is the per-phase instrumentation record §4.6 requires:
// timing plus a phase-specific resource breakdown.
type PhaseMetric struct {
	StartedAt       time.Time
	CompletedAt     time.Time
	DurationSeconds float64
	Resources       map[string]int
}

// RunMetrics aggregates phase timings keyed by phase name ("design",
// "scenario", "evaluation", "ranking").
type RunMetrics struct {
	Phases map[string]PhaseMetric
}

// UsageStats is the usage/cost accounting shape the Agent Gateway
// produces per call and the orchestrator rolls up per Run (§4.3.5).
type UsageStats struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	CallCount    int
	CostUSD      *float64
	Providers    map[string]int
	Models       map[string]int
}

// Run is one execution of the four-phase pipeline for a Project.
type Run struct {
	ID                        string
	ProjectID                 string
	Mode                      RunMode
	Config                    RunConfig
	Status                    RunStatus
	StartedAt                 *time.Time
	CompletedAt               *time.Time
	DurationSeconds           *float64
	CandidateCount            int
	ScenarioCount             int
	EvaluationCount           int
	Metrics                   RunMetrics
	LLMUsage                  UsageStats
	ErrorSummary              string
	ChatSessionID             *string
	RecommendedConfigSnapshot map[string]any
	UITrigger                 *UITrigger
	RunSummaryMessageID       *string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// maxErrorSummaryLen is §7's 512-character truncation limit.
const maxErrorSummaryLen = 512

// TruncateErrorSummary enforces the §7 512-character cap.
func TruncateErrorSummary(s string) string {
	if len(s) <= maxErrorSummaryLen {
		return s
	}
	return s[:maxErrorSummaryLen]
}
