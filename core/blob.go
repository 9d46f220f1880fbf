package core

import (
	"context"
	"io"
)

// File is an uploaded file about to be stored.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// BlobStore persists files and returns a URL referencing them.
// Implementations report failures as *StorageError.
type BlobStore interface {
	Store(ctx context.Context, folder string, file File) (string, error)
}
