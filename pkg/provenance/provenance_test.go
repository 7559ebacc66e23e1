package provenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_OmitsEmptyOptionalFields(t *testing.T) {
	entry := Build("design", ActorAgent)

	assert.Equal(t, "design", entry.Type)
	assert.Equal(t, ActorAgent, entry.Actor)
	assert.Empty(t, entry.Source)
	assert.Empty(t, entry.Description)
	assert.Nil(t, entry.ReferenceIDs)
	assert.Nil(t, entry.Metadata)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestBuild_WithAllOptions(t *testing.T) {
	entry := Build("ranking", ActorSystem,
		WithSource("run:r1"),
		WithDescription("Ranker computed I=1.80 and set status to promising"),
		WithReferenceIDs("r1", "c1"),
		WithMetadata(map[string]any{"evaluation_count": 2}),
	)

	assert.Equal(t, "run:r1", entry.Source)
	assert.Equal(t, []string{"r1", "c1"}, entry.ReferenceIDs)
	assert.Equal(t, 2, entry.Metadata["evaluation_count"])
}

func TestSummarize_EmptyLogReturnsNil(t *testing.T) {
	assert.Nil(t, Summarize(nil))
	assert.Nil(t, Summarize([]Entry{}))
}

func TestSummarize_ReturnsLastEvent(t *testing.T) {
	log := []Entry{
		Build("design", ActorAgent, WithDescription("first")),
		Build("ranking", ActorSystem, WithDescription("second"), WithSource("run:r1")),
	}

	summary := Summarize(log)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.EventCount)
	assert.Equal(t, "ranking", summary.LastEvent.Type)
	assert.Equal(t, "second", summary.LastEvent.Description)
	assert.Equal(t, "run:r1", summary.LastEvent.Source)
}

func TestAppend_DoesNotMutateOriginalBackingArray(t *testing.T) {
	base := make([]Entry, 0, 4)
	base = append(base, Build("design", ActorAgent))

	appended := Append(base, Build("ranking", ActorSystem))

	require.Len(t, base, 1)
	require.Len(t, appended, 2)
	assert.Equal(t, "design", base[0].Type)
	assert.Equal(t, "ranking", appended[1].Type)
}

func TestEntry_TimestampIsUTC(t *testing.T) {
	entry := Build("design", ActorAgent)
	assert.Equal(t, time.UTC.String(), entry.Timestamp.Location().String())
}
