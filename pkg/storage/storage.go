package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// ErrPreconditionFailed is returned by WriteIfMatch when the stored version
// no longer matches the expected one.
var ErrPreconditionFailed = errors.New("precondition failed")

// Storage provides an abstraction over key-value style file storage.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)

	// ReadVersioned returns the object together with an opaque version token.
	ReadVersioned(ctx context.Context, path string) ([]byte, string, error)
	// WriteIfMatch stores data only if the current version equals version.
	// An empty version means the path must not exist yet. It returns the new
	// version token.
	WriteIfMatch(ctx context.Context, path string, data []byte, version string) (string, error)
}
