package llm

import (
	"encoding/json"
	"strings"
)

// ParseMedications decodes an extraction payload. It accepts a bare array or
// an object wrapping the array under "medications". Anything else, and any
// entry that is not an object, is dropped.
func ParseMedications(raw []byte) []Medication {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Medications json.RawMessage `json:"medications"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return []Medication{}
		}
		if err := json.Unmarshal(wrapped.Medications, &items); err != nil {
			return []Medication{}
		}
	}

	out := make([]Medication, 0, len(items))
	for _, item := range items {
		var m Medication
		if err := json.Unmarshal(item, &m); err != nil {
			continue
		}
		// A JSON null decodes without error into the zero value.
		if strings.TrimSpace(string(item)) == "null" {
			continue
		}
		for _, p := range []**string{
			&m.GenericName, &m.BrandName, &m.SuggestedName, &m.Dosage,
			&m.Frequency, &m.Purpose, &m.SpecialInstructions, &m.SideEffects,
		} {
			if *p != nil && strings.TrimSpace(**p) == "" {
				*p = nil
			}
		}
		out = append(out, m)
	}
	return out
}
