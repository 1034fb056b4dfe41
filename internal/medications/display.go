package medications

import (
	"fmt"
	"strings"
)

// PurposeDisplayLimit is the number of runes of a purpose kept before the
// ellipsis when it stands in for a name.
const PurposeDisplayLimit = 43

// DisplayName picks the label shown for an occurrence at the given position
// in its list: generic, brand, suggested name, purpose, then a numbered
// placeholder.
func DisplayName(occ Occurrence, position int) string {
	for _, name := range []*string{occ.GenericName, occ.BrandName, occ.SuggestedName} {
		if v := trimmed(name); v != "" {
			return v
		}
	}
	if purpose := trimmed(occ.Purpose); purpose != "" {
		runes := []rune(purpose)
		if len(runes) > PurposeDisplayLimit {
			return "Purpose: " + string(runes[:PurposeDisplayLimit]) + "..."
		}
		return "Purpose: " + purpose
	}
	return fmt.Sprintf("Medication Entry #%d", position+1)
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
