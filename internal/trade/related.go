// Package trade selects bounded, ordered page subsets for one trade,
// suitable as input to a single model call.
package trade

// relatedTrades maps a trade to the trades whose drawings commonly carry
// cross-scope context for it. Lookups are one-directional: the table lists
// what each trade wants to see, and absence of a reverse mapping is fine.
var relatedTrades = map[string][]string{
	"Mechanical":      {"Plumbing", "Fire Protection", "Electrical"},
	"Plumbing":        {"Mechanical", "Fire Protection", "Civil"},
	"Fire Protection": {"Mechanical", "Plumbing", "Fire Alarm"},
	"Electrical":      {"Fire Alarm", "Communications", "Mechanical"},
	"Fire Alarm":      {"Electrical", "Fire Protection", "Communications"},
	"Communications":  {"Electrical", "Fire Alarm"},
	"Structural":      {"Architectural", "Civil"},
	"Architectural":   {"Structural", "Civil", "Landscape"},
	"Civil":           {"Structural", "Landscape", "Plumbing"},
	"Landscape":       {"Civil", "Architectural"},
}

// RelatedTrades returns the trades related to the given trade, in table
// order. Unmapped trades yield nil.
func RelatedTrades(trade string) []string {
	return relatedTrades[trade]
}
