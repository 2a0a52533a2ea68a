// Package storage defines the interface for object storage operations.
// Swap implementations by changing the concrete type injected at startup —
// the MinIO implementation works with any S3-compatible provider.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Stat when no object exists at the given key.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Storage is the interface for staging, deleting, and granting read access to objects.
// The bucket is private: the only read path is a time-bounded signed URL.
type Storage interface {
	// Put streams data to the store under the given key with content type and
	// user-metadata tags.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string, tags map[string]string) error
	// Delete removes an object identified by key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// SignedURL returns a presigned read URL for key, valid for ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Stat returns metadata for the object at key, or ErrNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// List returns all objects under prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
