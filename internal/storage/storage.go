package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Sentinel errors for blob storage
var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// Storage holds opaque document blobs addressed by key. Callers never interpret contents.
type Storage interface {
	// Put stores the content of r under key and returns the number of bytes read from r.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)

	// Get opens the object stored under key. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object stored under key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// ValidateKey checks that key is a relative slash separated path without traversal.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
