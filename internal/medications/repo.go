package medications

import (
	"context"

	"medocs-backend/internal/documents"
)

// Repo persists medication occurrences.
type Repo interface {
	ListByDocument(ctx context.Context, documentID string) ([]Occurrence, error)
	// ListByUser returns occurrences ordered by capture time, then document,
	// then their position within the document batch.
	ListByUser(ctx context.Context, userID string) ([]Occurrence, error)
	// ReplaceForDocument swaps the document's whole batch. A generation lower
	// than the last one written for the document returns ErrStaleGeneration.
	ReplaceForDocument(ctx context.Context, documentID, userID string, generation int, occurrences []Occurrence) error
	// Complete replaces the batch and applies the document update as one
	// unit: either both land or neither does. A document that fails the
	// condition returns documents.ErrConditionFailed with its current state.
	Complete(ctx context.Context, c Completion) (documents.Document, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Completion is the write that finishes a processing attempt.
type Completion struct {
	DocumentID  string
	UserID      string
	Generation  int
	Occurrences []Occurrence
	Condition   documents.Condition
	Update      documents.Update
}
