// Package matcher scores how well a search-result name matches a game title
// typed by the user.
package matcher

import (
	"regexp"
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/unicode/norm"
)

// containmentFloor is the minimum score when one normalized name fully
// contains the other ("hollow knight" vs "hollow knight voidheart edition").
const containmentFloor = 0.85

// platforms are the markers storefronts append to titles. They are dropped
// only as whole tokens.
var platforms = map[string]bool{
	"ps3": true, "ps4": true, "ps5": true,
	"xbox": true, "switch": true, "pc": true, "mac": true, "linux": true,
}

var (
	// reNonWord matches anything that is neither a word rune nor whitespace.
	reNonWord = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s]`)

	// reSeparator matches subtitle separators replaced by Simplify.
	reSeparator = regexp.MustCompile(`[:\-–—|]`)

	reSpaces = regexp.MustCompile(`\s+`)
)

// Normalize lowercases name, drops platform markers and punctuation and
// collapses whitespace.
func Normalize(name string) string {
	s := strings.ToLower(norm.NFC.String(name))
	s = reNonWord.ReplaceAllString(s, " ")
	words := slices.DeleteFunc(strings.Fields(s), func(w string) bool {
		return platforms[w]
	})
	return strings.Join(words, " ")
}

// Similarity returns a score in [0, 1] for how well candidate matches query.
//
// Equal normalized names score exactly 1. When one normalized name contains
// the other the score is at least containmentFloor. Everything else falls
// back to the Ratcliff/Obershelp ratio of the normalized names.
func Similarity(query, candidate string) float64 {
	a := Normalize(query)
	b := Normalize(candidate)

	if a == b {
		return 1.0
	}
	if strings.Contains(b, a) || strings.Contains(a, b) {
		return max(containmentFloor, Ratio(a, b))
	}
	return Ratio(a, b)
}

// Ratio is the sequence similarity 2*M/T of a and b, where M is the total size
// of the matching blocks found greedily and T the combined rune count.
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(runes(a), runes(b))
	return m.Ratio()
}

// Simplify rewrites a title for a second search attempt: subtitle separators
// become spaces and any other punctuation is removed.
func Simplify(name string) string {
	s := reSeparator.ReplaceAllString(name, " ")
	s = reNonWord.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
