package gateway

import (
	"context"
	"log/slog"

	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

// AgentClient is the out-of-scope external collaborator (§1: "the
// language-model client ... their interfaces are specified in §6 only").
// It is the Go-native shape of pkg/agent.LLMClient, generalized from a
// streaming-chunk transport to a single request/response call since the
// core treats every agent invocation as one task-in, text-out exchange.
type AgentClient interface {
	// Invoke dispatches a task object to the named agent and returns its
	// raw text response plus usage statistics. AgentName is one of
	// "problem_spec", "world_modeller", "designer", "scenario_generator",
	// "evaluator", "feedback", "guidance".
	Invoke(ctx context.Context, agentName string, task map[string]any) (text string, usage models.UsageStats, err error)
}

// ParseFailureHandler is invoked (never throws) when the Gateway falls
// back to an agent's safe default, per §4.3.3's "the parse failure is
// reported via a non-throwing channel". The default handler logs via
// log/slog; callers may override for tests.
type ParseFailureHandler func(agentName string, rawPreview string, err error)

// Gateway is C3, the uniform façade over every agent invocation.
type Gateway struct {
	client       AgentClient
	onParseError ParseFailureHandler
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithParseFailureHandler overrides the default slog-based parse-failure
// reporter.
func WithParseFailureHandler(h ParseFailureHandler) Option {
	return func(g *Gateway) { g.onParseError = h }
}

// New builds a Gateway over the given AgentClient transport.
func New(client AgentClient, opts ...Option) *Gateway {
	g := &Gateway{
		client: client,
		onParseError: func(agentName, rawPreview string, err error) {
			slog.Warn("agent response failed JSON extraction, using safe default",
				"agent", agentName, "error", err, "preview", rawPreview)
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// dispatch is the shared façade step: build the task, invoke the agent,
// extract JSON into target, and fall back to safeDefault on failure
// (§4.3.1-3). Returns the usage stats regardless of parse outcome — a
// parse failure still consumed LLM tokens.
func dispatch[T any](ctx context.Context, g *Gateway, agentName string, task map[string]any, safeDefault func() T) (T, models.UsageStats, error) {
	text, usage, err := g.client.Invoke(ctx, agentName, task)
	if err != nil {
		var zero T
		return zero, usage, err
	}
	var result T
	if extractErr := extractJSON(text, &result); extractErr != nil {
		g.onParseError(agentName, preview(text), extractErr)
		return safeDefault(), usage, nil
	}
	return result, usage, nil
}

// DesignCandidates invokes the Designer agent.
func (g *Gateway) DesignCandidates(ctx context.Context, task map[string]any) (DesignerResponse, models.UsageStats, error) {
	return dispatch(ctx, g, "designer", task, designerSafeDefault)
}

// GenerateScenarios invokes the ScenarioGenerator agent.
func (g *Gateway) GenerateScenarios(ctx context.Context, task map[string]any) (ScenarioGeneratorResponse, models.UsageStats, error) {
	return dispatch(ctx, g, "scenario_generator", task, scenarioGeneratorSafeDefault)
}

// Evaluate invokes the Evaluator agent.
func (g *Gateway) Evaluate(ctx context.Context, task map[string]any) (EvaluatorResponse, models.UsageStats, error) {
	return dispatch(ctx, g, "evaluator", task, evaluatorSafeDefault)
}

// RefineProblemSpec invokes the ProblemSpec agent.
func (g *Gateway) RefineProblemSpec(ctx context.Context, task map[string]any) (ProblemSpecResponse, models.UsageStats, error) {
	return dispatch(ctx, g, "problem_spec", task, problemSpecSafeDefault)
}

// RefineWorldModel invokes the WorldModeller agent.
func (g *Gateway) RefineWorldModel(ctx context.Context, task map[string]any) (WorldModellerResponse, models.UsageStats, error) {
	return dispatch(ctx, g, "world_modeller", task, worldModellerSafeDefault)
}

// RequestFeedback invokes the Feedback agent (driver adapter, §6).
func (g *Gateway) RequestFeedback(ctx context.Context, task map[string]any) (FeedbackResponse, models.UsageStats, error) {
	return dispatch(ctx, g, "feedback", task, feedbackSafeDefault)
}

// RequestGuidance invokes the Guidance agent (driver adapter, §6).
func (g *Gateway) RequestGuidance(ctx context.Context, task map[string]any) (GuidanceResponse, models.UsageStats, error) {
	return dispatch(ctx, g, "guidance", task, guidanceSafeDefault)
}

// AggregateUsage rolls up a slice of per-call UsageStats into one summary
// (§4.3.5: aggregate_usage). Exposed standalone so the Ranker,
// Remediation, and Snapshot paths can reuse it when rolling up a Run's
// llm_usage instead of recomputing (SPEC_FULL.md supplement).
func AggregateUsage(entries []models.UsageStats) models.UsageStats {
	out := models.UsageStats{Providers: map[string]int{}, Models: map[string]int{}}
	var costTotal float64
	var haveCost bool
	for _, e := range entries {
		out.InputTokens += e.InputTokens
		out.OutputTokens += e.OutputTokens
		out.TotalTokens += e.TotalTokens
		out.CallCount++
		if e.CostUSD != nil {
			haveCost = true
			costTotal += *e.CostUSD
		}
		for name, count := range e.Providers {
			out.Providers[name] += count
		}
		for name, count := range e.Models {
			out.Models[name] += count
		}
	}
	if haveCost {
		out.CostUSD = &costTotal
	}
	if len(out.Providers) == 0 {
		out.Providers = nil
	}
	if len(out.Models) == 0 {
		out.Models = nil
	}
	return out
}
