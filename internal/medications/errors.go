package medications

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrStaleGeneration = errors.New("stale medication generation")
	// ErrNoDocumentStore is returned by Complete on a MemoryRepo built
	// without a document store to commit against.
	ErrNoDocumentStore = errors.New("medications: no document store attached")
)
