package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/patterns"
)

// BaseConfidence is the starting score for every pattern hit.
const BaseConfidence = 0.8

// ErrInvalidEncoding is returned for content that is not valid UTF-8.
var ErrInvalidEncoding = errors.New("content is not valid UTF-8")

// Extractor finds typed entities in document content.
type Extractor interface {
	ExtractEntities(ctx context.Context, content string) ([]document.Entity, error)
}

// PatternExtractor scans content with the legal pattern table.
type PatternExtractor struct {
	rules []patterns.Rule
}

func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{rules: patterns.Rules()}
}

// ExtractEntities returns every pattern hit in table order, then match order
// within a type. Duplicate (text, type, start) hits keep the first occurrence.
func (e *PatternExtractor) ExtractEntities(ctx context.Context, content string) ([]document.Entity, error) {
	if !utf8.ValidString(content) {
		return nil, ErrInvalidEncoding
	}

	var entities []document.Entity
	seen := make(map[document.EntityKey]bool)
	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extract %s: %w", rule.Type, err)
		}
		for _, loc := range rule.Pattern.FindAllStringIndex(content, -1) {
			ent := document.Entity{
				Text:       content[loc[0]:loc[1]],
				Type:       rule.Type,
				Position:   document.Position{Start: loc[0], End: loc[1]},
				Confidence: Confidence(rule.Type, content[loc[0]:loc[1]]),
			}
			if seen[ent.Key()] {
				continue
			}
			seen[ent.Key()] = true
			entities = append(entities, ent)
		}
	}
	return entities, nil
}

// Confidence scores a match of the given type.
func Confidence(entityType, text string) float64 {
	c := BaseConfidence
	switch entityType {
	case patterns.Date:
		if len(text) <= 8 {
			c *= 0.9
		}
	case patterns.PersonName:
		if len(strings.Fields(text)) < 2 {
			c *= 0.7
		}
	case patterns.LegalCitation:
		if !strings.Contains(text, "U.S.") {
			c *= 0.9
		}
	case patterns.Money:
		if !strings.HasPrefix(text, "$") {
			c *= 0.8
		}
	}
	return document.Clamp(c)
}
