package services

import (
	"context"

	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// ChatService holds ChatSessions and Messages. Out of core scope per §1
// beyond Runs referencing sessions and summaries landing in them, but the
// store still has to serve both, so the thin CRUD lives here.
type ChatService struct {
	store *store.Store
}

// NewChatService builds a ChatService.
func NewChatService(s *store.Store) *ChatService {
	return &ChatService{store: s}
}

// OpenSession starts a new chat session on a project.
func (s *ChatService) OpenSession(ctx context.Context, projectID string, mode models.ChatSessionMode) (models.ChatSession, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return models.ChatSession{}, err
	}
	defer tx.Rollback()
	session, err := tx.CreateChatSession(models.ChatSession{ProjectID: projectID, Mode: mode})
	if err != nil {
		return models.ChatSession{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.ChatSession{}, err
	}
	return session, nil
}

// Post appends a message to a session.
func (s *ChatService) Post(ctx context.Context, sessionID string, role models.MessageRole, content string, metadata map[string]any) (models.Message, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()
	msg, err := tx.CreateMessage(models.Message{
		ChatSessionID: sessionID,
		Role:          role,
		Content:       content,
		Metadata:      metadata,
	})
	if err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Sessions lists a project's chat sessions, newest-first.
func (s *ChatService) Sessions(projectID string) []models.ChatSession {
	return s.store.ListChatSessions(projectID)
}

// Messages lists a session's messages, newest-first.
func (s *ChatService) Messages(sessionID string) []models.Message {
	return s.store.ListMessages(sessionID)
}

// SnapshotService covers Snapshot listing and metadata updates; capture,
// replay, and validation live in pkg/snapshot.
type SnapshotService struct {
	store *store.Store
}

// NewSnapshotService builds a SnapshotService.
func NewSnapshotService(s *store.Store) *SnapshotService {
	return &SnapshotService{store: s}
}

// Get retrieves a Snapshot.
func (s *SnapshotService) Get(id string) (models.Snapshot, error) {
	return s.store.GetSnapshot(id)
}

// List returns a project's snapshots, newest-first.
func (s *SnapshotService) List(projectID string) []models.Snapshot {
	return s.store.ListSnapshots(projectID)
}

// UpdateMetadata mutates only a Snapshot's mutable fields: description,
// tags, invariants (§3: snapshot_data is immutable after creation).
func (s *SnapshotService) UpdateMetadata(ctx context.Context, id string, description *string, tags []string, invariants []models.Invariant) (models.Snapshot, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	defer tx.Rollback()
	snap, err := tx.UpdateSnapshotMetadata(id, func(sn *models.Snapshot) {
		if description != nil {
			sn.Description = *description
		}
		if tags != nil {
			sn.Tags = tags
		}
		if invariants != nil {
			sn.Invariants = invariants
		}
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}
