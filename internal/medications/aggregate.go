package medications

import "strings"

// Key identifies an aggregated medication: the lower-cased extracted name
// and dosage, compared as a pair.
type Key struct {
	Name   string
	Dosage string
}

// String renders the key for clients. It is not used for comparison.
func (k Key) String() string {
	return k.Name + "|" + k.Dosage
}

// KeyOf derives the dedup key of an occurrence from its extracted name
// (generic preferred over brand) and dosage, case-insensitively. Suggested
// names never take part. The second return is false when both parts are
// empty.
func KeyOf(occ Occurrence) (Key, bool) {
	name := trimmed(occ.GenericName)
	if name == "" {
		name = trimmed(occ.BrandName)
	}
	dosage := trimmed(occ.Dosage)
	if name == "" && dosage == "" {
		return Key{}, false
	}
	return Key{Name: strings.ToLower(name), Dosage: strings.ToLower(dosage)}, true
}

// Aggregate folds occurrences into one record per key in first-seen order.
// Later occurrences add a source unless their document already contributed.
// documentNames maps document ids to display names.
func Aggregate(occurrences []Occurrence, documentNames map[string]string) []Aggregated {
	out := []Aggregated{}
	index := make(map[Key]int)

	for _, occ := range occurrences {
		key, ok := KeyOf(occ)
		if !ok {
			continue
		}
		src := Source{
			DocumentID:   occ.DocumentID,
			DocumentName: documentNames[occ.DocumentID],
			CapturedAt:   occ.CapturedAt,
		}

		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, Aggregated{
				Occurrence: occ,
				Key:        key,
				Sources:    []Source{src},
			})
			continue
		}
		if !hasSource(out[i].Sources, occ.DocumentID) {
			out[i].Sources = append(out[i].Sources, src)
		}
	}

	for i := range out {
		out[i].DisplayName = DisplayName(out[i].Occurrence, i)
	}
	return out
}

func hasSource(sources []Source, documentID string) bool {
	for _, s := range sources {
		if s.DocumentID == documentID {
			return true
		}
	}
	return false
}
