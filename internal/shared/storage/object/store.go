package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Open when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// ExtractedSuffix names the derived plain-text copy kept beside an object.
const ExtractedSuffix = ".extracted.txt"

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Save(ctx context.Context, userId string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, storageKey string) error
}

// KeySaver is implemented by stores that can write to a caller-chosen key.
type KeySaver interface {
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
}

// Presigner is implemented by stores that can hand out direct upload URLs.
type Presigner interface {
	PresignPut(ctx context.Context, storageKey string, expires time.Duration) (string, error)
}

// Info describes a stored object.
type Info struct {
	Size        int64
	ContentType string
}

// Statter is implemented by stores that can describe an object without
// reading it.
type Statter interface {
	Stat(ctx context.Context, storageKey string) (Info, error)
}
