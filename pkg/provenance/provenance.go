// Package provenance implements the append-only audit trail (C2) every
// entity that carries history exposes. Grounded on
// crucible/core/provenance.py's build_provenance_entry/
// summarize_provenance_log and shaped like the teacher's
// pkg/models/timeline.go event records.
package provenance

import (
	"time"
)

// Actor identifies who produced a provenance entry.
type Actor string

const (
	ActorUser   Actor = "user"
	ActorAgent  Actor = "agent"
	ActorSystem Actor = "system"
)

// Entry is one append-only audit record. Entries are never modified or
// deleted (§4.2); callers append, they never rewrite.
type Entry struct {
	Type         string         `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	Actor        Actor          `json:"actor"`
	Source       string         `json:"source,omitempty"`
	Description  string         `json:"description,omitempty"`
	ReferenceIDs []string       `json:"reference_ids,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Build constructs a provenance Entry the way
// crucible/core/provenance.py's build_provenance_entry does: timestamp is
// always stamped, optional fields are only attached when non-empty.
func Build(eventType string, actor Actor, opts ...Option) Entry {
	e := Entry{
		Type:      eventType,
		Timestamp: nowFn().UTC(),
		Actor:     actor,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// nowFn is indirected so tests can freeze time without monkeypatching the
// standard library.
var nowFn = time.Now

// Option configures optional Entry fields.
type Option func(*Entry)

func WithSource(source string) Option {
	return func(e *Entry) { e.Source = source }
}

func WithDescription(description string) Option {
	return func(e *Entry) { e.Description = description }
}

func WithReferenceIDs(ids ...string) Option {
	return func(e *Entry) {
		if len(ids) > 0 {
			e.ReferenceIDs = append([]string(nil), ids...)
		}
	}
}

func WithMetadata(metadata map[string]any) Option {
	return func(e *Entry) {
		if len(metadata) > 0 {
			e.Metadata = metadata
		}
	}
}

// Summary is the {event_count, last_event} shape returned for UI listing.
type Summary struct {
	EventCount int        `json:"event_count"`
	LastEvent  *LastEvent `json:"last_event,omitempty"`
}

// LastEvent is the abbreviated view of the most recent Entry.
type LastEvent struct {
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Actor       Actor     `json:"actor"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// Summarize returns nil for an empty log (mirrors
// summarize_provenance_log's `if not provenance_log: return None`).
func Summarize(log []Entry) *Summary {
	if len(log) == 0 {
		return nil
	}
	last := log[len(log)-1]
	return &Summary{
		EventCount: len(log),
		LastEvent: &LastEvent{
			Type:        last.Type,
			Timestamp:   last.Timestamp,
			Actor:       last.Actor,
			Description: last.Description,
			Source:      last.Source,
		},
	}
}

// Append returns a new slice with entry appended, never mutating log's
// backing array in place so concurrent readers holding the old slice
// header are unaffected.
func Append(log []Entry, entry Entry) []Entry {
	out := make([]Entry, len(log), len(log)+1)
	copy(out, log)
	return append(out, entry)
}
