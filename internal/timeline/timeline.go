// Package timeline turns date entities into dated, described events.
package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/patterns"
)

// ContextWindow is how many bytes on each side of a date are searched for
// related entities and the event description.
const ContextWindow = 150

// legalContextTypes boost an event's confidence when present near the date.
var legalContextTypes = map[string]bool{
	patterns.LegalAction:   true,
	patterns.CourtName:     true,
	patterns.LegalRole:     true,
	patterns.LegalCitation: true,
}

var (
	sentenceSplitRe = regexp.MustCompile(`[.!?]\s+`)
	edgeNonWordRe   = regexp.MustCompile(`^\W+|\W+$`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

var dateLayouts = []string{
	"1/2/2006",
	"January 2, 2006",
}

// Builder constructs timelines. It is stateless apart from its logger.
type Builder struct {
	log *slog.Logger
}

func NewBuilder(log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{log: log}
}

// ConstructTimeline emits one event per parsable date entity, sorted
// ascending by date. Events with equal dates keep entity order.
func (b *Builder) ConstructTimeline(ctx context.Context, doc document.Document, entities []document.Entity) ([]document.TimelineEvent, error) {
	var events []document.TimelineEvent
	for _, trigger := range entities {
		if trigger.Type != patterns.Date {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("construct timeline: %w", err)
		}

		date, err := ParseDate(trigger.Text)
		if err != nil {
			b.log.Debug("skipping unparsable date", "doc_id", doc.ID, "text", trigger.Text, "error", err)
			continue
		}

		lo, hi := window(doc.Content, trigger.Position)
		related := relatedEntities(entities, trigger, lo, hi)

		refs := make([]document.Entity, 0, len(related)+1)
		refs = append(refs, trigger)
		refs = append(refs, related...)

		events = append(events, document.TimelineEvent{
			Date:             date,
			Description:      Describe(doc.Content[lo:hi], trigger.Text),
			DocumentID:       doc.ID,
			EntityReferences: refs,
			Confidence:       EventConfidence(trigger, related),
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
	return events, nil
}

// ParseDate parses M/D/YYYY and "Month D, YYYY" (any case) as UTC midnight.
func ParseDate(text string) (time.Time, error) {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized != "" && !strings.Contains(normalized, "/") {
		lower := strings.ToLower(normalized)
		normalized = strings.ToUpper(lower[:1]) + lower[1:]
	}

	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, normalized, time.UTC)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: %w", text, firstErr)
}

// EventConfidence scores an event from its trigger and the entities around it.
func EventConfidence(trigger document.Entity, related []document.Entity) float64 {
	c := trigger.Confidence
	for _, e := range related {
		if legalContextTypes[e.Type] {
			c *= 1.1
			break
		}
	}
	switch {
	case len(related) == 0:
		c *= 0.8
	case len(related) > 10:
		c *= 0.9
	}
	return document.Clamp(c)
}

// Describe picks the first sentence of the window that mentions dateText,
// falling back to the first sentence, and tidies it.
func Describe(window, dateText string) string {
	sentences := sentenceSplitRe.Split(window, -1)
	chosen := sentences[0]
	for _, s := range sentences {
		if strings.Contains(s, dateText) {
			chosen = s
			break
		}
	}
	chosen = edgeNonWordRe.ReplaceAllString(strings.TrimSpace(chosen), "")
	return whitespaceRe.ReplaceAllString(chosen, " ")
}

// window returns the clamped context span around pos, widened to whole runes.
func window(content string, pos document.Position) (int, int) {
	lo := max(0, pos.Start-ContextWindow)
	hi := min(len(content), pos.End+ContextWindow)
	for lo > 0 && !utf8.RuneStart(content[lo]) {
		lo--
	}
	for hi < len(content) && !utf8.RuneStart(content[hi]) {
		hi++
	}
	return lo, hi
}

func relatedEntities(entities []document.Entity, trigger document.Entity, lo, hi int) []document.Entity {
	key := trigger.Key()
	var out []document.Entity
	for _, e := range entities {
		if e.Position.Start >= lo && e.Position.End <= hi && e.Key() != key {
			out = append(out, e)
		}
	}
	return out
}
