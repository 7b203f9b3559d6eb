package storage

import (
	"context"
	"errors"
	"io"
)

// Package storage hosts normalized images on a third-party provider and
// reports back their public URL. Implementations stream from the reader
// and never touch local disk.

var ErrNotConfigured = errors.New("storage backend is not configured")

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo describes a hosted object.
type ObjectInfo struct {
	// Key is the backend identifier needed to delete the object later.
	Key         string
	URL         string
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// Storage is the hosting backend used by the upload pipeline.
type Storage interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Put uploads an object under the given key and returns its public URL.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
}
