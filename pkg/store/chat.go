package store

import (
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

// CreateChatSession inserts a new ChatSession.
func (t *Tx) CreateChatSession(cs models.ChatSession) (models.ChatSession, error) {
	if _, ok := t.staged.projects[cs.ProjectID]; !ok {
		return models.ChatSession{}, apperrors.NotFound("project " + cs.ProjectID + " not found")
	}
	now := time.Now().UTC()
	if cs.ID == "" {
		cs.ID = NewID()
	}
	if cs.Mode == "" {
		cs.Mode = models.ChatSessionModeChat
	}
	cs.CreatedAt = now
	cs.UpdatedAt = now
	t.staged.chatSessions[cs.ID] = cs
	return cs, nil
}

// GetChatSession retrieves a ChatSession by id.
func (t *Tx) GetChatSession(id string) (models.ChatSession, error) {
	cs, ok := t.staged.chatSessions[id]
	if !ok {
		return models.ChatSession{}, apperrors.NotFound("chat session " + id + " not found")
	}
	return cs, nil
}

// CreateMessage appends a new Message to a ChatSession.
func (t *Tx) CreateMessage(m models.Message) (models.Message, error) {
	if _, ok := t.staged.chatSessions[m.ChatSessionID]; !ok {
		return models.Message{}, apperrors.NotFound("chat session " + m.ChatSessionID + " not found")
	}
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = NewID()
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	t.staged.messages[m.ID] = m
	return m, nil
}

// ListChatSessionsByProject returns a project's chat sessions within the
// transaction's staged view, in no particular order.
func (t *Tx) ListChatSessionsByProject(projectID string) []models.ChatSession {
	var out []models.ChatSession
	for _, cs := range t.staged.chatSessions {
		if cs.ProjectID == projectID {
			out = append(out, cs)
		}
	}
	return out
}

// ListChatSessions returns a project's chat sessions, newest-first by
// created_at (§4.6's "first chat session" resolves against oldest, so
// callers reverse this slice where the contract needs oldest-first).
func (s *Store) ListChatSessions(projectID string) []models.ChatSession {
	var out []models.ChatSession
	s.read(func(d *data) {
		for _, cs := range d.chatSessions {
			if cs.ProjectID == projectID {
				out = append(out, cs)
			}
		}
	})
	newestFirst(out, func(cs models.ChatSession) int64 { return cs.CreatedAt.UnixNano() })
	return out
}

// ListMessages returns a chat session's messages, newest-first.
func (s *Store) ListMessages(chatSessionID string) []models.Message {
	var out []models.Message
	s.read(func(d *data) {
		for _, m := range d.messages {
			if m.ChatSessionID == chatSessionID {
				out = append(out, m)
			}
		}
	})
	newestFirst(out, func(m models.Message) int64 { return m.CreatedAt.UnixNano() })
	return out
}
