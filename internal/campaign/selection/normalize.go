// internal/campaign/selection/normalize.go
package selection

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var segmentSeparators = regexp.MustCompile(`[\s-]+`)

// NormalizeSegment capitalizes the first letter of every word of an audience
// label, lowercases the rest of the word and joins the words with single
// spaces: "young-PROFESSIONALS" becomes "Young Professionals". Only dashes
// and whitespace split words, so "millennials/genz" stays one word.
func NormalizeSegment(label string) string {
	upper, lower := cases.Upper(language.Und), cases.Lower(language.Und)

	words := segmentSeparators.Split(strings.TrimSpace(label), -1)
	out := words[:0]
	for _, w := range words {
		if w == "" {
			continue
		}
		_, size := utf8.DecodeRuneInString(w)
		out = append(out, upper.String(w[:size])+lower.String(w[size:]))
	}
	return strings.Join(out, " ")
}

// NormalizeSegments normalizes, dedupes and sorts extracted segment labels.
func NormalizeSegments(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		n := NormalizeSegment(l)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
