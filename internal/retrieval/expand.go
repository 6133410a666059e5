package retrieval

import (
	"strings"
	"unicode"
)

// Expander appends rule-driven expansion terms to a query so short or
// colloquial queries embed closer to the vocabulary the corpus uses.
type Expander struct {
	rules map[string][]string
}

// NewExpander copies the rule map so later mutation by the caller cannot
// change expansion behavior. A nil map yields a pass-through expander.
func NewExpander(rules map[string][]string) *Expander {
	copied := make(map[string][]string, len(rules))
	for trigger, terms := range rules {
		copied[strings.ToLower(trigger)] = append([]string(nil), terms...)
	}
	return &Expander{rules: copied}
}

// Expand returns the query followed by the expansion terms of every trigger
// that appears in it as a whole word. Matching is case-insensitive. Terms
// are appended in query word order with first-seen deduplication, so the
// same query always expands the same way.
func (e *Expander) Expand(query string) string {
	tokens := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		seen[token] = true
	}

	var extra []string
	for _, token := range tokens {
		for _, term := range e.rules[token] {
			key := strings.ToLower(term)
			if seen[key] {
				continue
			}
			seen[key] = true
			extra = append(extra, term)
		}
	}

	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}
