package storage

import (
	"context"
	"io"
	"time"
)

// Storage is the object store holding uploaded resumes and import workbooks.
// Files are referenced everywhere by key, never by content.
type Storage interface {
	Upload(ctx context.Context, key string, data io.ReadSeeker, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// PresignedGet returns a URL that grants read access to key for ttl.
	PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
