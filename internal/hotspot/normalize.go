package hotspot

import (
	"regexp"
	"strings"
)

// The legacy data refers to the same place under many names ("Chennai
// Airport", "Chennai Central", "chennai, international"). Both sides of every
// alias comparison go through NormalizeLocation so matching stays in one
// place.
var (
	punctRe  = regexp.MustCompile(`[.,()]`)
	scopeRe  = regexp.MustCompile(`\b(international|domestic)\b`)
	suffixRe = regexp.MustCompile(`\b(airport|air\s*port|railway|rail|station|stn|junction|jn|central|egmore|terminus|bus\s*stand|stand)\b`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// NormalizeLocation folds case, strips punctuation and generic transport
// suffixes, and collapses whitespace.
func NormalizeLocation(name string) string {
	s := strings.ToLower(name)
	s = punctRe.ReplaceAllString(s, " ")
	s = scopeRe.ReplaceAllString(s, " ")
	s = suffixRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// MatchesLocation reports whether any of the hotspot's aliases normalizes to
// the same place as the given name. Alias values may carry pipe-separated
// lists, mirroring the reference data.
func (h Hotspot) MatchesLocation(name string) bool {
	target := NormalizeLocation(name)
	if target == "" {
		return false
	}
	for _, alias := range h.Aliases {
		for _, part := range strings.Split(alias, "|") {
			if NormalizeLocation(part) == target {
				return true
			}
		}
	}
	return false
}

// WithinBoundary reports whether the hotspot lies between the two named
// cities, i.e. its boundary list contains both endpoints. Boundary values may
// be separated by pipe, comma, or slash.
func (h Hotspot) WithinBoundary(source, destination string) bool {
	s := NormalizeLocation(source)
	d := NormalizeLocation(destination)
	if s == "" || d == "" {
		return false
	}

	var hasSource, hasDest bool
	for _, raw := range h.Boundaries {
		for _, token := range strings.FieldsFunc(raw, func(r rune) bool {
			return r == '|' || r == ',' || r == '/'
		}) {
			switch NormalizeLocation(token) {
			case s:
				hasSource = true
			case d:
				hasDest = true
			}
		}
	}
	return hasSource && hasDest
}
