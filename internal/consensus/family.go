package consensus

import "strings"

// FamilyTable maps a backend-id prefix to its coarse provider family. Two
// runs whose backends share a family count as one voter, so repeated calls
// to the same provider never masquerade as independent corroboration.
type FamilyTable map[string]string

// DefaultFamilyTable covers the model ids the pipeline ships with.
func DefaultFamilyTable() FamilyTable {
	return FamilyTable{
		"claude": "anthropic",
		"gpt":    "openai",
		"o1":     "openai",
		"o3":     "openai",
		"gemini": "google",
	}
}

// Family resolves a backend id. Unknown ids fall back to the id's first
// hyphen-delimited token, so "acme-large-2" and "acme-small-1" still land
// in one family.
func (t FamilyTable) Family(backendID string) string {
	lower := strings.ToLower(backendID)
	for prefix, family := range t {
		if strings.HasPrefix(lower, prefix) {
			return family
		}
	}
	if idx := strings.IndexByte(lower, '-'); idx > 0 {
		return lower[:idx]
	}
	return lower
}
