package topics

import (
	"math"
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/docent-ai/docent/pkg/textnorm"
)

const (
	// DefaultWordThreshold is the minimum 0-100 fuzzy ratio for a single
	// word to count as a keyword hit.
	DefaultWordThreshold = 70
	// DefaultMinTopicScore is the minimum accumulated score for a path to
	// be reported at all.
	DefaultMinTopicScore = 100
)

// Matcher scores free text against the learning-path keyword table.
// The zero value is not usable; construct with NewMatcher.
type Matcher struct {
	WordThreshold int
	MinTopicScore int
}

// NewMatcher returns a matcher with the default thresholds.
func NewMatcher() *Matcher {
	return &Matcher{
		WordThreshold: DefaultWordThreshold,
		MinTopicScore: DefaultMinTopicScore,
	}
}

// Match returns the learning paths relevant to the user text, most relevant
// first. For every (word, path) pair at most one keyword contributes: the
// first keyword in the path's defined order whose fuzzy ratio against the
// word reaches WordThreshold adds that ratio to the path's score. Paths
// below MinTopicScore are dropped. Equal scores keep taxonomy declaration
// order.
func (m *Matcher) Match(userText string) []Path {
	words := textnorm.Fields(userText)
	if len(words) == 0 {
		return nil
	}

	var scores [numPaths]int
	for _, word := range words {
		for p := Path(0); p < numPaths; p++ {
			for _, kw := range pathKeywords[p] {
				if r := Ratio(word, kw); r >= m.WordThreshold {
					scores[p] += r
					break
				}
			}
		}
	}

	var matched []Path
	for p := Path(0); p < numPaths; p++ {
		if scores[p] >= m.MinTopicScore {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return scores[matched[i]] > scores[matched[j]]
	})
	return matched
}

// MatchNames is Match with paths rendered to their display names, for
// response payloads.
func (m *Matcher) MatchNames(userText string) []string {
	paths := m.Match(userText)
	if len(paths) == 0 {
		return nil
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, p.String())
	}
	return names
}

// Ratio is a Levenshtein-based similarity on a 0-100 scale: 100 means
// identical strings, 0 means nothing in common. Both inputs are expected to
// be normalized already.
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(d)/float64(longest))))
}
