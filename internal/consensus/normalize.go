// Package consensus reconciles independent extraction runs over the same
// documents into per-item and per-package agreement metrics, and scores
// what each pass contributed.
package consensus

import (
	"strings"
	"unicode"

	"github.com/sells-group/precon-cli/internal/model"
)

// normDescription and itemKey share the merge identity used by the
// orchestrator, so consensus groups exactly what merging deduplicates.
func normDescription(s string) string {
	return model.NormalizeDescription(s)
}

func itemKey(packageID, description string) string {
	return model.ItemKey(packageID, description)
}

// normDivision keeps only the digits, so "Division 23", "23", and "23 -
// HVAC" all compare equal.
func normDivision(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
