package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/patterns"
)

func findEntity(t *testing.T, entities []document.Entity, typ, text string) document.Entity {
	t.Helper()
	for _, e := range entities {
		if e.Type == typ && e.Text == text {
			return e
		}
	}
	t.Fatalf("no %s entity %q in %+v", typ, text, entities)
	return document.Entity{}
}

func TestExtractEntities_FilingSentence(t *testing.T) {
	content := "The motion was filed on 01/15/2024 by John Smith, Esq. in the United States District Court."
	entities, err := NewPatternExtractor().ExtractEntities(context.Background(), content)
	require.NoError(t, err)

	date := findEntity(t, entities, patterns.Date, "01/15/2024")
	assert.Equal(t, document.Position{Start: 24, End: 34}, date.Position)
	assert.InDelta(t, 0.8, date.Confidence, 1e-9)

	assert.InDelta(t, 0.8, findEntity(t, entities, patterns.PersonName, "John Smith, Esq.").Confidence, 1e-9)
	assert.InDelta(t, 0.8, findEntity(t, entities, patterns.CourtName, "United States District Court").Confidence, 1e-9)
	findEntity(t, entities, patterns.Jurisdiction, "District Court")
	findEntity(t, entities, patterns.LegalAction, "motion")

	for _, e := range entities {
		assert.Equal(t, content[e.Position.Start:e.Position.End], e.Text)
		assert.True(t, ValidateEntity(&e, content), "invalid entity %+v", e)
	}
}

func TestExtractEntities_TableOrder(t *testing.T) {
	content := "Judge Brown signed the order on March 3, 2024 awarding $500."
	entities, err := NewPatternExtractor().ExtractEntities(context.Background(), content)
	require.NoError(t, err)

	rank := make(map[string]int)
	for i, typ := range patterns.Types() {
		rank[typ] = i
	}
	for i := 1; i < len(entities); i++ {
		prev, cur := entities[i-1], entities[i]
		require.LessOrEqual(t, rank[prev.Type], rank[cur.Type], "entities out of table order")
		if prev.Type == cur.Type {
			assert.Less(t, prev.Position.Start, cur.Position.Start)
		}
	}
	assert.Equal(t, patterns.Date, entities[0].Type)
}

func TestExtractEntities_MoneyConfidence(t *testing.T) {
	content := "Damages of $1,250.00 and a fee of 1250 dollars."
	entities, err := NewPatternExtractor().ExtractEntities(context.Background(), content)
	require.NoError(t, err)

	assert.InDelta(t, 0.8, findEntity(t, entities, patterns.Money, "$1,250.00").Confidence, 1e-9)
	assert.InDelta(t, 0.64, findEntity(t, entities, patterns.Money, "1250 dollars").Confidence, 1e-9)
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		typ, text string
		want      float64
	}{
		{patterns.Date, "01/15/2024", 0.8},
		{patterns.Date, "1/2/2024", 0.72},
		{patterns.PersonName, "John Smith", 0.8},
		{patterns.PersonName, "Smith", 0.56},
		{patterns.LegalCitation, "410 U.S. 113", 0.8},
		{patterns.LegalCitation, "999 F.3d 12", 0.72},
		{patterns.Money, "$75", 0.8},
		{patterns.Money, "2,000 USD", 0.64},
		{patterns.LegalRole, "plaintiff", 0.8},
		{patterns.Statute, "42 U.S.C. § 1983", 0.8},
	}
	for _, tc := range tests {
		t.Run(tc.typ+"/"+tc.text, func(t *testing.T) {
			assert.InDelta(t, tc.want, Confidence(tc.typ, tc.text), 1e-9)
		})
	}
}

func TestExtractEntities_DeduplicatesKeepingFirst(t *testing.T) {
	rules := patterns.Rules()
	e := &PatternExtractor{rules: append(rules, rules[0])}

	entities, err := e.ExtractEntities(context.Background(), "Filed 01/15/2024.")
	require.NoError(t, err)

	var dates int
	for _, ent := range entities {
		if ent.Type == patterns.Date {
			dates++
		}
	}
	assert.Equal(t, 1, dates)
}

func TestExtractEntities_NoMatches(t *testing.T) {
	entities, err := NewPatternExtractor().ExtractEntities(context.Background(), "the quick brown fox jumps over the lazy dog")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestExtractEntities_InvalidEncoding(t *testing.T) {
	_, err := NewPatternExtractor().ExtractEntities(context.Background(), "filed \xff\xfe on 01/15/2024")
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestExtractEntities_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPatternExtractor().ExtractEntities(ctx, "Filed 01/15/2024.")
	assert.ErrorIs(t, err, context.Canceled)
}
