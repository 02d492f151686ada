// Package price turns storefront price labels into numbers.
package price

import (
	"regexp"
	"strconv"
	"strings"
)

var reNumber = regexp.MustCompile(`\d+[.,]?\d*`)

// Parse extracts a numeric price from a label such as "$19.99", "14,99€" or
// "Free to Play". The second return value is false when no price could be
// read; a free game yields (0, true).
func Parse(text string) (float64, bool) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return 0, false
	}

	switch strings.ToLower(cleaned) {
	case "free", "free to play":
		return 0, true
	}

	m := reNumber.FindString(strings.ReplaceAll(cleaned, ",", "."))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Value is Parse for optional labels; it returns nil when label is nil or has
// no readable price.
func Value(label *string) *float64 {
	if label == nil {
		return nil
	}
	v, ok := Parse(*label)
	if !ok {
		return nil
	}
	return &v
}
