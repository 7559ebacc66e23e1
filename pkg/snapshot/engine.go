// Package snapshot implements C9, the Snapshot & Replay Engine:
// content-capture of a project's inputs and reference outputs, restore
// into ephemeral or reused projects, pipeline replay, and invariant
// checking against reference metrics. The capture/restore shape follows
// the upsert-in-place idiom pkg/store's singleton entities already
// expose; replay composes the Run Orchestrator.
package snapshot

import (
	"context"
	"log/slog"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/orchestrator"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// supportedVersion is the only snapshot_data version this engine
// restores; future versions must refuse restore unless explicitly
// supported (§6).
const supportedVersion = "1.0"

// Engine is C9. It composes the Entity Store with the Run Orchestrator.
type Engine struct {
	store  *store.Store
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// New builds a snapshot Engine.
func New(s *store.Store, orch *orchestrator.Orchestrator) *Engine {
	return &Engine{store: s, orch: orch, logger: slog.Default()}
}

// CaptureOptions controls what CaptureSnapshotData includes beyond the
// required ProblemSpec and WorldModel.
type CaptureOptions struct {
	RunID              string
	IncludeChatContext bool
	MaxChatMessages    int
}

// CaptureSnapshotData freezes a project's ProblemSpec and WorldModel
// (both required, §4.9) plus, optionally, the originating Run's config
// and the tail of the newest setup-mode chat session.
func (e *Engine) CaptureSnapshotData(projectID string, opts CaptureOptions) (models.SnapshotData, error) {
	spec, err := e.store.GetProblemSpecByProject(projectID)
	if err != nil {
		return models.SnapshotData{}, apperrors.PreconditionFailed("problem spec required to capture snapshot", nil)
	}
	wm, err := e.store.GetWorldModelByProject(projectID)
	if err != nil {
		return models.SnapshotData{}, apperrors.PreconditionFailed("world model required to capture snapshot", nil)
	}

	data := models.SnapshotData{
		Version: supportedVersion,
		ProblemSpec: models.SnapshotProblemSpec{
			Constraints:   spec.Constraints,
			Goals:         spec.Goals,
			Resolution:    spec.Resolution,
			Mode:          spec.Mode,
			ProvenanceLog: spec.ProvenanceLog,
		},
		WorldModel: models.SnapshotWorldModel{
			Sections:      wm.Sections,
			ProvenanceLog: wm.ProvenanceLog,
		},
	}

	if opts.RunID != "" {
		run, err := e.store.GetRun(opts.RunID)
		if err != nil {
			return models.SnapshotData{}, err
		}
		data.RunConfig = &models.SnapshotRunConfig{Mode: run.Mode, Config: run.Config}
	}

	if opts.IncludeChatContext {
		data.ChatContext = e.captureChatContext(projectID, opts.MaxChatMessages)
	}

	return data, nil
}

// captureChatContext returns the last maxMessages messages from the
// newest setup-mode chat session, oldest-first.
func (e *Engine) captureChatContext(projectID string, maxMessages int) []models.ChatContextMessage {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	for _, session := range e.store.ListChatSessions(projectID) {
		if session.Mode != models.ChatSessionModeSetup {
			continue
		}
		messages := e.store.ListMessages(session.ID)
		if len(messages) > maxMessages {
			messages = messages[:maxMessages]
		}
		// ListMessages is newest-first; the captured context reads
		// oldest-first like the conversation did.
		out := make([]models.ChatContextMessage, 0, len(messages))
		for i := len(messages) - 1; i >= 0; i-- {
			m := messages[i]
			out = append(out, models.ChatContextMessage{
				Role:      string(m.Role),
				Content:   m.Content,
				CreatedAt: m.CreatedAt,
			})
		}
		return out
	}
	return nil
}

// CaptureReferenceMetrics reads a Run's outcome numbers for later
// regression comparison (§4.9). top_i_score is the max scores.I across
// the Run's ranked candidates, or nil when none have been ranked.
func (e *Engine) CaptureReferenceMetrics(runID string) (models.ReferenceMetrics, error) {
	run, err := e.store.GetRun(runID)
	if err != nil {
		return models.ReferenceMetrics{}, err
	}

	metrics := models.ReferenceMetrics{
		CandidateCount:  run.CandidateCount,
		ScenarioCount:   run.ScenarioCount,
		EvaluationCount: run.EvaluationCount,
		Status:          run.Status,
		DurationSeconds: run.DurationSeconds,
		LLMUsage:        run.LLMUsage,
		ErrorSummary:    run.ErrorSummary,
		Metrics:         run.Metrics,
	}
	metrics.TopIScore = topIScore(e.store.ListCandidates(store.CandidateFilter{RunID: runID}))
	return metrics, nil
}

// topIScore returns the max I across ranked candidates, or nil when no
// candidate has been through the ranker yet.
func topIScore(candidates []models.Candidate) *float64 {
	var top *float64
	for _, c := range candidates {
		if c.Scores.RankingExplanation == "" {
			continue
		}
		i := c.Scores.I
		if top == nil || i > *top {
			v := i
			top = &v
		}
	}
	return top
}

// CreateSnapshot captures a project's snapshot data and reference
// metrics and persists them as a named Snapshot.
func (e *Engine) CreateSnapshot(ctx context.Context, projectID, name, description string, tags []string, invariants []models.Invariant, opts CaptureOptions) (models.Snapshot, error) {
	data, err := e.CaptureSnapshotData(projectID, opts)
	if err != nil {
		return models.Snapshot{}, err
	}

	snap := models.Snapshot{
		ProjectID:    projectID,
		Name:         name,
		Description:  description,
		Tags:         tags,
		SnapshotData: data,
		Invariants:   invariants,
		Version:      supportedVersion,
	}
	if opts.RunID != "" {
		runID := opts.RunID
		snap.RunID = &runID
		refMetrics, err := e.CaptureReferenceMetrics(runID)
		if err != nil {
			return models.Snapshot{}, err
		}
		snap.ReferenceMetrics = refMetrics
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	defer tx.Rollback()
	created, err := tx.CreateSnapshot(snap)
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Snapshot{}, err
	}
	e.logger.Info("snapshot captured", "snapshot_id", created.ID, "name", name, "project_id", projectID)
	return created, nil
}

// RestoreSnapshotData upserts a project's ProblemSpec and WorldModel from
// frozen snapshot data: create if absent, else update in place with the
// present keys overwriting (§4.9 restore). Versions other than "1.0" are
// rejected.
func (e *Engine) RestoreSnapshotData(ctx context.Context, projectID string, data models.SnapshotData) error {
	if data.Version != supportedVersion {
		return apperrors.Validation("unsupported snapshot version " + data.Version)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.UpsertProblemSpec(projectID, func(spec *models.ProblemSpec) {
		spec.Constraints = data.ProblemSpec.Constraints
		spec.Goals = data.ProblemSpec.Goals
		spec.Resolution = data.ProblemSpec.Resolution
		spec.Mode = data.ProblemSpec.Mode
		spec.ProvenanceLog = data.ProblemSpec.ProvenanceLog
	}); err != nil {
		return err
	}
	if _, err := tx.UpsertWorldModel(projectID, func(wm *models.WorldModel) {
		wm.Sections = data.WorldModel.Sections
		wm.ProvenanceLog = data.WorldModel.ProvenanceLog
	}); err != nil {
		return err
	}
	return tx.Commit()
}
