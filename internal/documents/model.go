package documents

import "time"

// State is the processing lifecycle state of a document.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateProcessed  State = "processed"
	StateError      State = "error"
)

// Valid reports whether s is one of the four lifecycle states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateProcessed, StateError:
		return true
	default:
		return false
	}
}

// Restartable reports whether a new processing attempt may start from s
// without forcing.
func (s State) Restartable() bool {
	return s == StatePending || s == StateProcessed || s == StateError
}

// Annotation is a reviewer note attached to a document (endorsement or flag).
type Annotation struct {
	ReviewerID  string    `json:"reviewerId"`
	DisplayName string    `json:"displayName"`
	Note        string    `json:"note"`
	At          time.Time `json:"at"`
}

// Document represents an uploaded medical document owned by a user.
type Document struct {
	ID                  string
	UserID              string
	Name                string
	StorageKey          string
	MimeType            string
	SizeBytes           int64
	State               State
	Classification      DocumentType
	ExtractedText       string
	SimplifiedText      *string
	Summary             *string
	ProcessingError     *string
	Endorsement         *Annotation
	Flag                *Annotation
	SharedWith          []string
	Attempt             int
	ProcessingStartedAt *time.Time
	ProcessedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsSharedWith reports whether reviewerID is in the sharing set.
func (d Document) IsSharedWith(reviewerID string) bool {
	for _, id := range d.SharedWith {
		if id == reviewerID {
			return true
		}
	}
	return false
}

// Update is a partial write. Nil fields are left untouched.
type Update struct {
	State                *State
	Classification       *DocumentType
	ExtractedText        *string
	SimplifiedText       *string
	ProcessingError      *string
	ClearProcessingError bool
	Endorsement          *Annotation
	Flag                 *Annotation
	BumpAttempt          bool
	ProcessingStartedAt  *time.Time
	ProcessedAt          *time.Time
}

// Condition guards a CompareAndUpdate. An empty States list matches any
// state; Attempt zero matches any attempt.
type Condition struct {
	States  []State
	Attempt int
}

// Matches reports whether doc satisfies the condition.
func (c Condition) Matches(doc Document) bool {
	if c.Attempt > 0 && doc.Attempt != c.Attempt {
		return false
	}
	if len(c.States) == 0 {
		return true
	}
	for _, s := range c.States {
		if doc.State == s {
			return true
		}
	}
	return false
}

// apply writes the update onto doc. SimplifiedText also sets the legacy
// Summary alias so both always carry the same value.
func (u Update) apply(doc *Document, now time.Time) {
	if u.State != nil {
		doc.State = *u.State
	}
	if u.Classification != nil {
		doc.Classification = *u.Classification
	}
	if u.ExtractedText != nil {
		doc.ExtractedText = *u.ExtractedText
	}
	if u.SimplifiedText != nil {
		text := *u.SimplifiedText
		summary := text
		doc.SimplifiedText = &text
		doc.Summary = &summary
	}
	if u.ClearProcessingError {
		doc.ProcessingError = nil
	}
	if u.ProcessingError != nil {
		msg := *u.ProcessingError
		doc.ProcessingError = &msg
	}
	if u.Endorsement != nil {
		a := *u.Endorsement
		doc.Endorsement = &a
	}
	if u.Flag != nil {
		a := *u.Flag
		doc.Flag = &a
	}
	if u.BumpAttempt {
		doc.Attempt++
	}
	if u.ProcessingStartedAt != nil {
		t := *u.ProcessingStartedAt
		doc.ProcessingStartedAt = &t
	}
	if u.ProcessedAt != nil {
		t := *u.ProcessedAt
		doc.ProcessedAt = &t
	}
	doc.UpdatedAt = now
}
