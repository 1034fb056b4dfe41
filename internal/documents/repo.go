package documents

import (
	"context"
	"time"
)

// DocumentsRepo defines persistence operations for documents.
type DocumentsRepo interface {
	Create(ctx context.Context, doc Document) error
	Get(ctx context.Context, documentID string) (Document, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Document, error)
	ListSharedWith(ctx context.Context, reviewerID string) ([]Document, error)
	UpdateFields(ctx context.Context, documentID string, upd Update) (Document, error)
	// CompareAndUpdate applies upd only if the stored document satisfies cond,
	// otherwise it returns ErrConditionFailed.
	CompareAndUpdate(ctx context.Context, documentID string, cond Condition, upd Update) (Document, error)
	AddShare(ctx context.Context, documentID, reviewerID string) (Document, error)
	RemoveShare(ctx context.Context, documentID, reviewerID string) (Document, error)
	Delete(ctx context.Context, documentID string) error
	// ListStuck returns documents in processing that started before the cutoff.
	ListStuck(ctx context.Context, startedBefore time.Time) ([]Document, error)
}
