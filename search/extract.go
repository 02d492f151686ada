package search

import (
	"strings"

	"github.com/use-agent/dealscout/browser"
)

// extractor reads one field from an element. It returns "" on a miss.
type extractor func(el browser.Element) string

// Per-field strategies, tried in order until one yields a value.
var (
	nameExtractors = []extractor{
		within(linkSelector, ariaLabelName),
		within(".game-info-title", text),
	}
	urlExtractors   = []extractor{within(linkSelector, attr("href"))}
	priceExtractors = []extractor{within(priceSelector, text)}

	linkNameExtractors = []extractor{ariaLabelName}
	linkURLExtractors  = []extractor{attr("href")}
)

// extractItem reads the name, price and URL of one result entry.
func extractItem(item browser.Element) Match {
	return Match{
		Name:  extractFirst(item, nameExtractors),
		Price: extractFirst(item, priceExtractors),
		URL:   extractFirst(item, urlExtractors),
	}
}

func extractFirst(el browser.Element, extractors []extractor) string {
	for _, ex := range extractors {
		if v := ex(el); v != "" {
			return v
		}
	}
	return ""
}

// within applies ex to the first descendant matching selector.
func within(selector string, ex extractor) extractor {
	return func(el browser.Element) string {
		found := el.Find(selector)
		if len(found) == 0 {
			return ""
		}
		return ex(found[0])
	}
}

func text(el browser.Element) string {
	t, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(t)
}

func attr(name string) extractor {
	return func(el browser.Element) string {
		v, err := el.Attribute(name)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	}
}

// ariaLabelName reads a listing link's accessible label without the
// "Go to: " prefix.
func ariaLabelName(el browser.Element) string {
	label := attr("aria-label")(el)
	return strings.TrimSpace(strings.ReplaceAll(label, "Go to: ", ""))
}
