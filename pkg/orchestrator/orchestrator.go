// Package orchestrator implements C6, the Run Orchestrator: the
// four-phase Design -> Scenario -> Evaluation -> Ranking pipeline with
// ordered prerequisites, per-phase timing/usage accounting, the Run
// status machine, and post-run summary emission. Its bounded-concurrency
// fan-out and push-based result collection are grounded on
// pkg/agent/orchestrator/runner.go's SubAgentRunner (reserve a slot,
// dispatch a goroutine, deliver results over a buffered channel, drain on
// cancel); its graceful-stop shape follows pkg/queue/pool.go.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/gateway"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/ranker"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// Phase names used as Run.Metrics keys.
const (
	phaseDesign     = "design"
	phaseScenario   = "scenario"
	phaseEvaluation = "evaluation"
	phaseRanking    = "ranking"
)

// defaultConcurrency bounds how many (candidate, scenario) pairs the
// evaluation phase dispatches at once when the caller does not override
// it (§5 recommends 4).
const defaultConcurrency = 4

// Orchestrator drives a Run through its phases. A single Orchestrator is
// safe for concurrent use across distinct Runs; a single Run must be
// driven by one owning caller at a time (§5 scheduling model).
type Orchestrator struct {
	store       *store.Store
	gateway     *gateway.Gateway
	ranker      *ranker.Ranker
	concurrency int
	logger      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency overrides the evaluation phase's concurrency cap.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New builds an Orchestrator over the given store and agent gateway.
func New(s *store.Store, g *gateway.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       s,
		gateway:     g,
		ranker:      ranker.New(s),
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// markRunning transitions a created Run to running and stamps started_at
// if unset (§4.6 status machine). A Run already running, or one being
// re-driven after completion (remediation's evaluate-and-rank path),
// is left untouched.
func (o *Orchestrator) markRunning(ctx context.Context, runID string) error {
	tx, err := o.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	run, err := tx.GetRun(runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunStatusCreated {
		return tx.Rollback()
	}
	now := time.Now().UTC()
	started := now
	if run.StartedAt != nil {
		started = *run.StartedAt
	}
	if _, err := tx.UpdateRunStatus(runID, models.RunStatusRunning, store.RunStatusUpdate{StartedAt: &started}); err != nil {
		return err
	}
	return tx.Commit()
}

// failRun transitions a Run to failed with the given error summary,
// honouring completed-stickiness: a Run already completed is never
// demoted (DESIGN NOTES §9). A Run still in created is routed through
// running first so the state machine's legal edges are respected.
func (o *Orchestrator) failRun(ctx context.Context, runID, summary string) {
	tx, err := o.store.Begin(ctx)
	if err != nil {
		o.logger.Error("failed to open transaction while failing run", "run_id", runID, "error", err)
		return
	}
	defer tx.Rollback()

	run, err := tx.GetRun(runID)
	if err != nil {
		o.logger.Error("failed to load run while failing it", "run_id", runID, "error", err)
		return
	}
	if run.Status == models.RunStatusCompleted {
		return
	}
	if run.Status == models.RunStatusCreated {
		now := time.Now().UTC()
		if _, err := tx.UpdateRunStatus(runID, models.RunStatusRunning, store.RunStatusUpdate{StartedAt: &now}); err != nil {
			o.logger.Error("failed to transition run to running before failing", "run_id", runID, "error", err)
			return
		}
	}
	now := time.Now().UTC()
	if _, err := tx.UpdateRunStatus(runID, models.RunStatusFailed, store.RunStatusUpdate{CompletedAt: &now}); err != nil {
		o.logger.Error("failed to transition run to failed", "run_id", runID, "error", err)
		return
	}
	if _, err := tx.UpdateRun(runID, func(r *models.Run) {
		r.ErrorSummary = models.TruncateErrorSummary(summary)
	}); err != nil {
		o.logger.Error("failed to record error summary", "run_id", runID, "error", err)
		return
	}
	if err := tx.Commit(); err != nil {
		o.logger.Error("failed to commit run failure", "run_id", runID, "error", err)
	}
}

// recordPhase persists one phase's instrumentation record (§4.6: timing
// plus a phase-specific resource breakdown plus aggregated usage) onto
// Run.metrics and rolls the phase's usage into Run.llm_usage. Persisted
// on both success and failure paths, so a failed phase still leaves its
// timing behind.
func (o *Orchestrator) recordPhase(ctx context.Context, runID, phase string, started time.Time, resources map[string]int, usage []models.UsageStats) {
	completed := time.Now().UTC()
	metric := models.PhaseMetric{
		StartedAt:       started,
		CompletedAt:     completed,
		DurationSeconds: completed.Sub(started).Seconds(),
		Resources:       resources,
	}
	phaseUsage := gateway.AggregateUsage(usage)

	tx, err := o.store.Begin(ctx)
	if err != nil {
		o.logger.Error("failed to open transaction for phase metrics", "run_id", runID, "phase", phase, "error", err)
		return
	}
	defer tx.Rollback()

	if _, err := tx.UpdateRun(runID, func(r *models.Run) {
		if r.Metrics.Phases == nil {
			r.Metrics.Phases = map[string]models.PhaseMetric{}
		}
		r.Metrics.Phases[phase] = metric
		r.LLMUsage = mergeUsage(r.LLMUsage, phaseUsage)
	}); err != nil {
		o.logger.Error("failed to persist phase metrics", "run_id", runID, "phase", phase, "error", err)
		return
	}
	if err := tx.Commit(); err != nil {
		o.logger.Error("failed to commit phase metrics", "run_id", runID, "phase", phase, "error", err)
	}
}

// mergeUsage combines two already-aggregated usage summaries.
// gateway.AggregateUsage counts each entry as one call, which is right
// for per-call entries but wrong when merging two roll-ups, so the call
// tally is restored from the inputs.
func mergeUsage(a, b models.UsageStats) models.UsageStats {
	out := gateway.AggregateUsage([]models.UsageStats{a, b})
	out.CallCount = a.CallCount + b.CallCount
	return out
}
