package medications

import (
	"context"
	"errors"
	"sort"
	"sync"

	"medocs-backend/internal/documents"
)

type batch struct {
	userID      string
	generation  int
	occurrences []Occurrence
}

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu      sync.RWMutex
	batches map[string]batch // documentID -> latest batch
	docs    *documents.MemoryRepo
}

// NewMemoryRepo constructs a standalone MemoryRepo. It accepts batches for
// any document id and cannot Complete.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{batches: make(map[string]batch)}
}

// NewMemoryRepoFor constructs a MemoryRepo bound to docs. Batches are only
// written while their document exists, and deleting a document drops its
// batch.
func NewMemoryRepoFor(docs *documents.MemoryRepo) *MemoryRepo {
	r := NewMemoryRepo()
	r.docs = docs
	docs.OnDelete(r.drop)
	return r
}

// ListByDocument returns the document's occurrences in batch order.
func (r *MemoryRepo) ListByDocument(ctx context.Context, documentID string) ([]Occurrence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneOccurrences(r.batches[documentID].occurrences), nil
}

// ListByUser returns every occurrence owned by the user.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string) ([]Occurrence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	batches := make([]batch, 0)
	for _, b := range r.batches {
		if b.userID == userID && len(b.occurrences) > 0 {
			batches = append(batches, b)
		}
	}
	r.mu.RUnlock()

	// Occurrences in a batch share one capture time, so ordering batches
	// orders the flattened list.
	sort.Slice(batches, func(i, j int) bool {
		ti, tj := batches[i].occurrences[0].CapturedAt, batches[j].occurrences[0].CapturedAt
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return batches[i].occurrences[0].DocumentID < batches[j].occurrences[0].DocumentID
	})

	out := make([]Occurrence, 0)
	for _, b := range batches {
		out = append(out, cloneOccurrences(b.occurrences)...)
	}
	return out, nil
}

// ReplaceForDocument stores occurrences as the document's only batch.
func (r *MemoryRepo) ReplaceForDocument(ctx context.Context, documentID, userID string, generation int, occurrences []Occurrence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if documentID == "" || userID == "" {
		return ErrInvalidInput
	}
	if r.docs == nil {
		return r.replace(documentID, userID, generation, occurrences)
	}
	_, err := r.docs.Guard(ctx, documentID, documents.Condition{}, nil, func(documents.Document) error {
		return r.replace(documentID, userID, generation, occurrences)
	})
	if errors.Is(err, documents.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Complete writes the batch while holding the document store's lock, so no
// transition of the document can land between the two writes.
func (r *MemoryRepo) Complete(ctx context.Context, c Completion) (documents.Document, error) {
	if c.DocumentID == "" || c.UserID == "" {
		return documents.Document{}, ErrInvalidInput
	}
	if r.docs == nil {
		return documents.Document{}, ErrNoDocumentStore
	}
	return r.docs.Guard(ctx, c.DocumentID, c.Condition, &c.Update, func(documents.Document) error {
		return r.replace(c.DocumentID, c.UserID, c.Generation, c.Occurrences)
	})
}

func (r *MemoryRepo) replace(documentID, userID string, generation int, occurrences []Occurrence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.batches[documentID]; ok && generation < current.generation {
		return ErrStaleGeneration
	}

	stored := cloneOccurrences(occurrences)
	for i := range stored {
		stored[i].DocumentID = documentID
		stored[i].UserID = userID
		stored[i].Generation = generation
	}
	r.batches[documentID] = batch{
		userID:      userID,
		generation:  generation,
		occurrences: stored,
	}
	return nil
}

// DeleteByDocument drops the document's batch.
func (r *MemoryRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.drop(documentID)
	return nil
}

func (r *MemoryRepo) drop(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.batches, documentID)
}

func cloneOccurrences(in []Occurrence) []Occurrence {
	out := make([]Occurrence, len(in))
	for i, occ := range in {
		out[i] = cloneOccurrence(occ)
	}
	return out
}

func cloneOccurrence(occ Occurrence) Occurrence {
	out := occ
	for _, p := range []**string{
		&out.GenericName, &out.BrandName, &out.SuggestedName, &out.Dosage,
		&out.Frequency, &out.Purpose, &out.SpecialInstructions, &out.SideEffects,
	} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return out
}

var _ Repo = (*MemoryRepo)(nil)
