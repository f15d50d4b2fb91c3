package object

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrInvalidKey is returned for storage keys that escape the store root.
	ErrInvalidKey = errors.New("invalid storage key")
	// ErrNotFound is returned by Open when no body is stored under the key.
	ErrNotFound = errors.New("object not found")
)

// ObjectStore defines the contract for writing and reading document bodies by key.
type ObjectStore interface {
	Put(ctx context.Context, storageKey string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// Delete removes a body. Deleting a missing key is not an error.
	Delete(ctx context.Context, storageKey string) error
}
