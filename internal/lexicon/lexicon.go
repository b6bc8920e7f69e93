// Package lexicon matches whole terms inside free text.
//
// Matching is case-insensitive and anchored on letter/digit boundaries, so
// "JLP" matches "the JLP's" but "Portland" does not match "Portlandia".
// Terms beginning with "St." also match "St", "Saint" and "St" followed by
// any amount of whitespace.
package lexicon

import (
	"regexp"
	"sort"
	"strings"
)

// Term is a compiled vocabulary entry.
type Term struct {
	Value   string
	pattern *regexp.Regexp
}

// Set is an ordered vocabulary; order is preserved for first-match lookups.
type Set struct {
	terms []Term
}

// NewSet compiles the terms, dropping blanks and case-insensitive repeats.
func NewSet(values ...[]string) *Set {
	seen := map[string]bool{}
	set := &Set{}
	for _, group := range values {
		for _, v := range group {
			v = strings.TrimSpace(v)
			key := strings.ToLower(v)
			if v == "" || seen[key] {
				continue
			}
			seen[key] = true
			set.terms = append(set.terms, Term{Value: v, pattern: compile(v)})
		}
	}
	return set
}

// Len is the number of distinct terms in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.terms)
}

// Terms returns the original term values in order.
func (s *Set) Terms() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.terms))
	for i, t := range s.terms {
		out[i] = t.Value
	}
	return out
}

// First returns the first term in set order that occurs in text.
func (s *Set) First(text string) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, t := range s.terms {
		if t.pattern.MatchString(text) {
			return t.Value, true
		}
	}
	return "", false
}

// Any reports whether at least one term occurs in text.
func (s *Set) Any(text string) bool {
	_, ok := s.First(text)
	return ok
}

// Matches returns every distinct term found in text. A match fully contained
// in a longer match ("Holness" inside "Andrew Holness") is not reported.
func (s *Set) Matches(text string) []string {
	if s == nil {
		return nil
	}
	var found []string
	for _, t := range s.terms {
		if t.pattern.MatchString(text) {
			found = append(found, t.Value)
		}
	}
	return dropContained(found)
}

// Count is len(Matches(text)).
func (s *Set) Count(text string) int {
	return len(s.Matches(text))
}

func dropContained(found []string) []string {
	if len(found) < 2 {
		return found
	}
	byLen := make([]string, len(found))
	copy(byLen, found)
	sort.SliceStable(byLen, func(i, j int) bool { return len(byLen[i]) > len(byLen[j]) })

	kept := map[string]bool{}
	var longer []string
	for _, term := range byLen {
		lower := strings.ToLower(term)
		contained := false
		for _, l := range longer {
			if strings.Contains(l, lower) {
				contained = true
				break
			}
		}
		if !contained {
			kept[term] = true
			longer = append(longer, lower)
		}
	}

	out := found[:0:0]
	for _, term := range found {
		if kept[term] {
			out = append(out, term)
		}
	}
	return out
}

var saintPrefix = regexp.MustCompile(`(?i)^(st\.?|saint)\s+`)

func compile(term string) *regexp.Regexp {
	body := term
	prefix := ""
	if loc := saintPrefix.FindStringIndex(term); loc != nil {
		prefix = `(?:st\.?|saint)\s+`
		body = term[loc[1]:]
	}

	words := strings.Fields(body)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	expr := prefix + strings.Join(words, `\s+`)
	// Boundaries are consumed rather than asserted; callers only test presence.
	return regexp.MustCompile(`(?i)(?:^|[^\pL\pN])` + expr + `(?:$|[^\pL\pN])`)
}
