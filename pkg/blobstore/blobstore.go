// Package blobstore keeps uploaded media on the local filesystem and hands
// out download URLs for it.
package blobstore

//go:generate mockgen -destination=mocks/store.go -package=mocks chatsync/pkg/blobstore Store

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound    = errors.New("blobstore: not found")
	ErrTooLarge    = errors.New("blobstore: upload too large")
	ErrDiskFull    = errors.New("blobstore: not enough free disk space")
	ErrInvalidPath = errors.New("blobstore: invalid path")
)

type Info struct {
	Path        string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// Store is the blob service seen by the chat core and the API.
type Store interface {
	// Put writes r at path, replacing any previous blob, and returns the
	// number of bytes stored.
	Put(ctx context.Context, path string, r io.Reader) (int64, error)
	// URL returns the durable download URL of a stored blob.
	URL(ctx context.Context, path string) (string, error)
	Open(path string) (io.ReadCloser, Info, error)
	Stat(path string) (Info, error)
}
