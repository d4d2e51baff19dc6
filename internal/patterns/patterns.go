// Package patterns holds the fixed table of legal-domain entity matchers.
package patterns

import "regexp"

// Entity type names.
const (
	Date          = "date"
	CaseNumber    = "caseNumber"
	Money         = "money"
	PersonName    = "personName"
	CourtName     = "courtName"
	LegalCitation = "legalCitation"
	Statute       = "statute"
	LegalRole     = "legalRole"
	Jurisdiction  = "jurisdiction"
	LegalAction   = "legalAction"
)

// Rule pairs an entity type with its matcher.
type Rule struct {
	Type    string
	Pattern *regexp.Regexp
}

// Order matters: extraction walks the table front to back, and deduplication
// keeps the first hit.
var rules = []Rule{
	{Date, regexp.MustCompile(
		`(?i)\b\d{1,2}/\d{1,2}/\d{4}\b|` +
			`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}\b`)},
	{CaseNumber, regexp.MustCompile(
		`(?i)\b\d{2}-[A-Z]{2}-\d{4,}\b|` +
			`\b[A-Z]{2}\d{2}[A-Z]{2}\d{4,}\b|` +
			`\b[A-Z]{2}\d{6,}\b|` +
			`\b\d{1,2}:\d{2}-[A-Z]{2}-\d{3,}\b`)},
	{Money, regexp.MustCompile(
		`(?i)\$(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?|` +
			`\b(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?\s*(?:dollars|USD)\b`)},
	// Case-sensitive. Tokens stay on one line; generational and professional
	// suffixes are folded into the name.
	{PersonName, regexp.MustCompile(
		`\b[A-Z][a-z]+\b(?:,?[ \t]+(?:Jr\.|Sr\.|Esq\.)|[ \t]+(?:III|II|IV)\b|[ \t]+[A-Z][a-z]+\b)*`)},
	{CourtName, regexp.MustCompile(
		`(?i)\b(?:United States (?:District|Bankruptcy|Circuit|Supreme) Court|` +
			`(?:Supreme|Superior|District|Circuit|Federal|State) Court|` +
			`Court of (?:Appeals|Claims))\b`)},
	{LegalCitation, regexp.MustCompile(
		`(?i)\b\d{1,3}\s+(?:U\.S\.|F\.\d[a-z]{1,2}|F\.|S\.\s?Ct\.|L\.\s?Ed\.|Cal\.|N\.Y\.|Tex\.)\s+\d{1,4}\b`)},
	{Statute, regexp.MustCompile(
		`(?i)\b\d{1,2}\s+U\.S\.C\.\s+§\s*\d{1,5}\b(?:\([a-z]\))?|` +
			`\b\d{1,2}\s+C\.?F\.?R\.?\s+\d{1,5}\.\d{1,5}\b`)},
	{LegalRole, regexp.MustCompile(
		`(?i)\b(?:plaintiff|defendant|appellant|appellee|petitioner|respondent|counsel|attorney|judge|magistrate|prosecutor|witness)\b`)},
	{Jurisdiction, regexp.MustCompile(
		`(?i)\b(?:Federal|State|District|Circuit|Appellate|Supreme)\s+(?:Court|District|Jurisdiction)\b`)},
	{LegalAction, regexp.MustCompile(
		`(?i)\b(?:motion|petition|complaint|appeal|objection|response|reply|brief|order|judgment|decree|verdict|settlement|stipulation)\b`)},
}

// LegalTermTypes are the types whose presence marks text as legal in nature.
var LegalTermTypes = []string{CourtName, LegalCitation, Statute, LegalRole, Jurisdiction, LegalAction}

var byType = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(rules))
	for _, r := range rules {
		m[r.Type] = r.Pattern
	}
	return m
}()

// Rules returns the pattern table in extraction order. The returned slice is a
// copy; the compiled patterns are shared and safe for concurrent use.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Types returns every entity type name in table order.
func Types() []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Type
	}
	return out
}

// Lookup returns the matcher for an entity type.
func Lookup(entityType string) (*regexp.Regexp, bool) {
	re, ok := byType[entityType]
	return re, ok
}

// ContainsLegalTerms reports whether any legal-term pattern matches text.
func ContainsLegalTerms(text string) bool {
	for _, t := range LegalTermTypes {
		if byType[t].MatchString(text) {
			return true
		}
	}
	return false
}
