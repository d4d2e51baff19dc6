package timeline

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/extract"
	"github.com/dgallion1/casegest/internal/patterns"
)

func build(t *testing.T, content string) []document.TimelineEvent {
	t.Helper()
	doc := document.Document{ID: "doc-1", Content: content}
	entities, err := extract.NewPatternExtractor().ExtractEntities(context.Background(), content)
	require.NoError(t, err)
	events, err := NewBuilder(slog.Default()).ConstructTimeline(context.Background(), doc, entities)
	require.NoError(t, err)
	return events
}

func TestConstructTimeline_FilingSentence(t *testing.T) {
	events := build(t, "The motion was filed on 01/15/2024 by John Smith, Esq. in the United States District Court.")
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), ev.Date)
	assert.Equal(t, "doc-1", ev.DocumentID)
	assert.InDelta(t, 0.88, ev.Confidence, 1e-9)
	assert.Equal(t, "The motion was filed on 01/15/2024 by John Smith, Esq", ev.Description)

	require.NotEmpty(t, ev.EntityReferences)
	assert.Equal(t, patterns.Date, ev.EntityReferences[0].Type)
	assert.Equal(t, "01/15/2024", ev.EntityReferences[0].Text)

	var person, court bool
	for _, ref := range ev.EntityReferences[1:] {
		assert.NotEqual(t, ev.EntityReferences[0].Key(), ref.Key(), "trigger repeated in related entities")
		person = person || (ref.Type == patterns.PersonName && ref.Text == "John Smith, Esq.")
		court = court || (ref.Type == patterns.CourtName && ref.Text == "United States District Court")
	}
	assert.True(t, person, "missing person reference")
	assert.True(t, court, "missing court reference")
}

func TestConstructTimeline_SortedByDate(t *testing.T) {
	events := build(t, "Hearing set for March 3, 2024. Complaint filed 01/15/2024. Answer due february 1, 2024.")
	require.Len(t, events, 3)
	assert.Equal(t, time.January, events[0].Date.Month())
	assert.Equal(t, time.February, events[1].Date.Month())
	assert.Equal(t, time.March, events[2].Date.Month())
}

func TestConstructTimeline_SkipsUnparsableDate(t *testing.T) {
	events := build(t, "the hearing moved from 02/30/2024 to 03/01/2024.")
	require.Len(t, events, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), events[0].Date)
}

func TestConstructTimeline_NoRelatedEntities(t *testing.T) {
	events := build(t, "paid on 01/15/2024 without fuss")
	require.Len(t, events, 1)
	assert.Len(t, events[0].EntityReferences, 1)
	assert.InDelta(t, 0.64, events[0].Confidence, 1e-9)
}

func TestConstructTimeline_WindowExcludesDistantEntities(t *testing.T) {
	content := "the plaintiff appeared. " + strings.Repeat("x", 200) + " filed 01/15/2024 today."
	events := build(t, content)
	require.Len(t, events, 1)
	for _, ref := range events[0].EntityReferences {
		assert.NotEqual(t, patterns.LegalRole, ref.Type)
	}
	assert.InDelta(t, 0.64, events[0].Confidence, 1e-9)
}

func TestConstructTimeline_MultibyteWindow(t *testing.T) {
	content := strings.Repeat("é", 100) + " filed 01/15/2024"
	events := build(t, content)
	require.Len(t, events, 1)
	assert.True(t, utf8.ValidString(events[0].Description))
	assert.Equal(t, "filed 01/15/2024", events[0].Description)
}

func TestConstructTimeline_NoDates(t *testing.T) {
	assert.Empty(t, build(t, "The defendant filed a reply."))
}

func TestConstructTimeline_CanceledContext(t *testing.T) {
	content := "filed 01/15/2024"
	entities, err := extract.NewPatternExtractor().ExtractEntities(context.Background(), content)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewBuilder(nil).ConstructTimeline(ctx, document.Document{ID: "d", Content: content}, entities)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseDate(t *testing.T) {
	valid := map[string]time.Time{
		"01/15/2024":        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		"1/5/2024":          time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		"March 3, 2024":     time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
		"march 3, 2024":     time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
		"DECEMBER 31, 1999": time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC),
		"July  4,\n1776":    time.Date(1776, 7, 4, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range valid {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%q: got %v want %v", in, got, want)
	}

	for _, in := range []string{"02/30/2024", "13/01/2024", "Smarch 3, 2024", ""} {
		_, err := ParseDate(in)
		assert.Error(t, err, in)
	}
}

func TestEventConfidence(t *testing.T) {
	trigger := document.Entity{Type: patterns.Date, Confidence: 0.8}
	plain := document.Entity{Type: patterns.Money, Confidence: 0.8}
	legal := document.Entity{Type: patterns.LegalAction, Confidence: 0.8}

	many := func(e document.Entity, n int) []document.Entity {
		out := make([]document.Entity, n)
		for i := range out {
			out[i] = e
			out[i].Position.Start = i
		}
		return out
	}

	assert.InDelta(t, 0.64, EventConfidence(trigger, nil), 1e-9)
	assert.InDelta(t, 0.8, EventConfidence(trigger, many(plain, 3)), 1e-9)
	assert.InDelta(t, 0.88, EventConfidence(trigger, many(legal, 1)), 1e-9)
	assert.InDelta(t, 0.72, EventConfidence(trigger, many(plain, 11)), 1e-9)
	assert.InDelta(t, 0.792, EventConfidence(trigger, append(many(plain, 10), legal)), 1e-9)

	strong := document.Entity{Type: patterns.Date, Confidence: 0.95}
	assert.Equal(t, 1.0, EventConfidence(strong, many(legal, 2)))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "The hearing on 01/15/2024 went long",
		Describe("Prior matters! The hearing on 01/15/2024   went long.  Next", "01/15/2024"))
	assert.Equal(t, "Nothing here", Describe("...Nothing here. Else", "01/15/2024"))
}
