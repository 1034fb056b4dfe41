package medications

import "time"

// Occurrence is one medication record extracted from one document.
type Occurrence struct {
	ID                               string
	UserID                           string
	DocumentID                       string
	GenericName                      *string
	BrandName                        *string
	SuggestedName                    *string
	Dosage                           *string
	Frequency                        *string
	Purpose                          *string
	SpecialInstructions              *string
	InstructionsFromGeneralKnowledge bool
	SideEffects                      *string
	SideEffectsFromGeneralKnowledge  bool
	// Generation is the document processing attempt that produced the batch.
	Generation int
	CapturedAt time.Time
}

// Source is one contributing document of an aggregated medication.
type Source struct {
	DocumentID   string    `json:"documentId"`
	DocumentName string    `json:"documentName"`
	CapturedAt   time.Time `json:"capturedAt"`
}

// Aggregated merges occurrences that share a (name, dosage) key. The
// occurrence fields are those of the first occurrence seen for the key.
type Aggregated struct {
	Occurrence
	Key         Key
	DisplayName string
	Sources     []Source
}

// View is an occurrence annotated for display in a flat list.
type View struct {
	Occurrence
	DocumentName string
	DisplayName  string
}
