package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrExists is returned by Upload when the object exists and Upsert is false.
	ErrExists = errors.New("storage: object already exists")
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("storage: object not found")
	// ErrInvalidPath is returned for empty, absolute or escaping paths.
	ErrInvalidPath = errors.New("storage: invalid object path")
)

// UploadOptions mirrors the options accepted by hosted object stores.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
}

// Object describes a stored object.
type Object struct {
	Bucket  string
	Path    string
	Size    int64
	ModTime time.Time
}

// Bucket is a named container of objects addressed by slash-separated paths.
type Bucket interface {
	Name() string
	Upload(ctx context.Context, path string, r io.Reader, opts UploadOptions) (Object, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}
