// Package clarify decides whether a question is ambiguous enough to ask the
// user which reading they meant before it is sent to the backend.
package clarify

import (
	"strings"
	"unicode"
)

const (
	DefaultMaxOptions = 3
	DefaultDepthBound = 2
)

// DefaultMarkers holds the disjunction words that split a query. "или" is
// Russian for "or".
var DefaultMarkers = []string{"или"}

type Engine struct {
	markers    []string
	maxOptions int
}

// NewEngine builds an engine; empty markers or a non-positive cap fall back
// to the defaults.
func NewEngine(markers []string, maxOptions int) *Engine {
	ms := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			ms = append(ms, m)
		}
	}
	if len(ms) == 0 {
		ms = DefaultMarkers
	}
	if maxOptions <= 0 {
		maxOptions = DefaultMaxOptions
	}
	return &Engine{markers: ms, maxOptions: maxOptions}
}

var defaultEngine = NewEngine(nil, 0)

// BuildOptions uses the default markers and cap.
func BuildOptions(query string) []string {
	return defaultEngine.BuildOptions(query)
}

// BuildOptions returns the candidate readings of query, or nil when fewer than
// two remain. A marker word takes precedence over "/".
func (e *Engine) BuildOptions(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	var parts []string
	if ps, ok := e.splitOnMarker(query); ok {
		parts = ps
	} else if strings.Contains(query, "/") {
		parts = strings.Split(query, "/")
	} else {
		return nil
	}

	out := make([]string, 0, e.maxOptions)
	for _, p := range parts {
		if p = strings.TrimFunc(p, isPartEdge); p != "" {
			out = append(out, p)
			if len(out) == e.maxOptions {
				break
			}
		}
	}
	if len(out) < 2 {
		return nil
	}
	return out
}

// isPartEdge trims whitespace and the list punctuation left behind when a
// marker is written as "a, или b".
func isPartEdge(r rune) bool {
	return unicode.IsSpace(r) || r == ',' || r == ';'
}

// splitOnMarker matches markers as whole words only, so "или" inside a longer
// word does not split. Punctuation stuck to a word does not hide a marker.
func (e *Engine) splitOnMarker(query string) ([]string, bool) {
	words := strings.Fields(query)
	var (
		parts []string
		cur   []string
		found bool
	)
	for _, w := range words {
		if e.isMarker(w) {
			found = true
			parts = append(parts, strings.Join(cur, " "))
			cur = cur[:0]
			continue
		}
		cur = append(cur, w)
	}
	if !found {
		return nil, false
	}
	parts = append(parts, strings.Join(cur, " "))
	return parts, true
}

func (e *Engine) isMarker(word string) bool {
	word = strings.TrimFunc(word, unicode.IsPunct)
	for _, m := range e.markers {
		if strings.EqualFold(word, m) {
			return true
		}
	}
	return false
}
