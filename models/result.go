package models

// Result is the outcome of searching for one game title.
//
// Pointer fields are serialised as null when absent; a PriceValue of 0 means
// the game is free, which is different from a missing price.
type Result struct {
	// SearchName is the title as submitted by the user.
	SearchName string `json:"search_name"`

	// MatchedName is the listing name that was accepted, or SearchName when
	// no acceptable listing was found.
	MatchedName string `json:"matched_name"`

	// Price is the raw price label shown on the listing.
	Price *string `json:"price"`

	// PriceValue is Price parsed into a number.
	PriceValue *float64 `json:"price_value"`

	// URL links to the matched listing.
	URL *string `json:"url"`

	// MatchConfidence is the name similarity of the accepted listing in [0, 1],
	// 0 when nothing was accepted.
	MatchConfidence float64 `json:"match_confidence"`
}

// HasPrice reports whether a price label was captured for the result.
func (r Result) HasPrice() bool {
	return r.Price != nil && *r.Price != ""
}
