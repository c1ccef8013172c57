package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies event log slices to cold storage.
type Archiver interface {
	Export(ctx context.Context, filter EventFilter) (path string, count int64, err error)
	ArchiveBefore(ctx context.Context, before time.Time) (int64, error)
}
