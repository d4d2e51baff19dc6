package extract

import (
	"regexp"
	"strings"

	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/patterns"
)

// ValidateEntity checks that an entity is a well-formed span of content.
// Returns true if valid.
func ValidateEntity(e *document.Entity, content string) bool {
	if e == nil {
		return false
	}
	if strings.TrimSpace(e.Text) == "" {
		return false
	}
	if _, ok := patterns.Lookup(e.Type); !ok {
		return false
	}
	if e.Position.Start < 0 || e.Position.Start >= e.Position.End || e.Position.End > len(content) {
		return false
	}
	if content[e.Position.Start:e.Position.End] != e.Text {
		return false
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return false
	}
	return true
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]`)
	slugRepeat  = regexp.MustCompile(`-+`)
)

// Slugify converts a string to a URL/path-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugRepeat.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}
