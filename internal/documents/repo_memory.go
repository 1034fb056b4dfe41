package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of DocumentsRepo.
type MemoryRepo struct {
	mu       sync.RWMutex
	data     map[string]Document // documentID -> document
	now      func() time.Time
	onDelete []func(documentID string)
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[doc.ID]; exists {
		return ErrInvalidInput
	}
	r.data[doc.ID] = cloneDocument(doc)
	return nil
}

// Get returns a document by ID.
func (r *MemoryRepo) Get(ctx context.Context, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// ListByUser returns documents for a user, newest first, honoring limit/offset.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	docs := r.filter(func(d Document) bool { return d.UserID == userID })
	if len(docs) == 0 || offset >= len(docs) {
		return []Document{}, nil
	}

	end := len(docs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return docs[offset:end], nil
}

// ListSharedWith returns documents whose sharing set contains reviewerID.
func (r *MemoryRepo) ListSharedWith(ctx context.Context, reviewerID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.filter(func(d Document) bool { return d.IsSharedWith(reviewerID) }), nil
}

// ListStuck returns processing documents whose attempt started before the cutoff.
func (r *MemoryRepo) ListStuck(ctx context.Context, startedBefore time.Time) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.filter(func(d Document) bool {
		return d.State == StateProcessing &&
			d.ProcessingStartedAt != nil &&
			d.ProcessingStartedAt.Before(startedBefore)
	}), nil
}

// UpdateFields applies a partial update unconditionally.
func (r *MemoryRepo) UpdateFields(ctx context.Context, documentID string, upd Update) (Document, error) {
	return r.CompareAndUpdate(ctx, documentID, Condition{}, upd)
}

// CompareAndUpdate applies upd if the stored document satisfies cond.
func (r *MemoryRepo) CompareAndUpdate(ctx context.Context, documentID string, cond Condition, upd Update) (Document, error) {
	return r.Guard(ctx, documentID, cond, &upd, nil)
}

// Guard runs fn under the repo lock once the document exists and satisfies
// cond, then applies upd. An error from fn leaves the document untouched; a
// nil upd only runs fn. Writes fn makes to other stores are therefore
// ordered with every transition of this document.
func (r *MemoryRepo) Guard(ctx context.Context, documentID string, cond Condition, upd *Update, fn func(Document) error) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	if !cond.Matches(doc) {
		return cloneDocument(doc), ErrConditionFailed
	}
	if fn != nil {
		if err := fn(cloneDocument(doc)); err != nil {
			return cloneDocument(doc), err
		}
	}
	if upd != nil {
		upd.apply(&doc, r.now())
		r.data[documentID] = doc
	}
	return cloneDocument(doc), nil
}

// OnDelete registers fn to run, under the repo lock, whenever a document is
// deleted. It plays the part of ON DELETE CASCADE for dependent stores.
func (r *MemoryRepo) OnDelete(fn func(documentID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDelete = append(r.onDelete, fn)
}

// AddShare adds reviewerID to the sharing set if absent.
func (r *MemoryRepo) AddShare(ctx context.Context, documentID, reviewerID string) (Document, error) {
	return r.mutateShares(ctx, documentID, func(doc *Document) {
		if !doc.IsSharedWith(reviewerID) {
			doc.SharedWith = append(doc.SharedWith, reviewerID)
		}
	})
}

// RemoveShare removes reviewerID from the sharing set if present.
func (r *MemoryRepo) RemoveShare(ctx context.Context, documentID, reviewerID string) (Document, error) {
	return r.mutateShares(ctx, documentID, func(doc *Document) {
		kept := doc.SharedWith[:0]
		for _, id := range doc.SharedWith {
			if id != reviewerID {
				kept = append(kept, id)
			}
		}
		doc.SharedWith = kept
	})
}

func (r *MemoryRepo) mutateShares(ctx context.Context, documentID string, fn func(doc *Document)) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	doc = cloneDocument(doc)
	fn(&doc)
	doc.UpdatedAt = r.now()
	r.data[documentID] = doc
	return cloneDocument(doc), nil
}

// Delete removes a document.
func (r *MemoryRepo) Delete(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[documentID]; !ok {
		return ErrNotFound
	}
	delete(r.data, documentID)
	for _, fn := range r.onDelete {
		fn(documentID)
	}
	return nil
}

// filter returns matching documents newest-first.
func (r *MemoryRepo) filter(keep func(Document) bool) []Document {
	r.mu.RLock()
	out := make([]Document, 0)
	for _, doc := range r.data {
		if keep(doc) {
			out = append(out, cloneDocument(doc))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func cloneDocument(doc Document) Document {
	out := doc
	out.SimplifiedText = cloneString(doc.SimplifiedText)
	out.Summary = cloneString(doc.Summary)
	out.ProcessingError = cloneString(doc.ProcessingError)
	if doc.Endorsement != nil {
		a := *doc.Endorsement
		out.Endorsement = &a
	}
	if doc.Flag != nil {
		a := *doc.Flag
		out.Flag = &a
	}
	if doc.SharedWith != nil {
		out.SharedWith = append([]string(nil), doc.SharedWith...)
	}
	if doc.ProcessingStartedAt != nil {
		t := *doc.ProcessingStartedAt
		out.ProcessingStartedAt = &t
	}
	if doc.ProcessedAt != nil {
		t := *doc.ProcessedAt
		out.ProcessedAt = &t
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var _ DocumentsRepo = (*MemoryRepo)(nil)
