package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	"golang.org/x/net/html"

	"github.com/nekopy/Tokei/pkg/identity"
)

var boldSelector = cascadia.MustCompile("b, strong")

// HasMarkup reports whether s looks like an HTML fragment.
func HasMarkup(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}

// ExtractMarkedTerm returns the bolded term of an HTML fragment such as an
// example sentence with the target word in <b>. With several bolded spans the
// only Japanese one wins; failing that, the shortest (first on ties).
func ExtractMarkedTerm(fragment string) (string, bool) {
	if !HasMarkup(fragment) {
		return "", false
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return "", false
	}

	var candidates []string
	seen := make(map[string]bool)
	for _, n := range boldSelector.MatchAll(doc) {
		text := identity.Normalize(dom.TextContent(n))
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		candidates = append(candidates, text)
	}

	switch len(candidates) {
	case 0:
		return "", false
	case 1:
		return candidates[0], true
	}

	var japanese []string
	for _, c := range candidates {
		if identity.IsJapanese(c) {
			japanese = append(japanese, c)
		}
	}
	if len(japanese) == 1 {
		return japanese[0], true
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if utf8.RuneCountInString(c) < utf8.RuneCountInString(best) {
			best = c
		}
	}
	return best, true
}
