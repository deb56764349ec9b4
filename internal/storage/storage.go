package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Uploader stores media objects and returns the hosted URL under which
// they are served.
type Uploader struct {
	backend ObjectStorage
	baseURL string
}

// NewUploader constructs an Uploader over the given backend. baseURL is
// the public base URL of the media host, e.g. "https://media.example.com".
func NewUploader(backend ObjectStorage, baseURL string) *Uploader {
	return &Uploader{
		backend: backend,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// EnsureBucket ensures the configured bucket exists.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	return u.backend.EnsureBucket(ctx)
}

// Upload writes the object under a random key with the original file
// extension preserved, and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, prefix, filename string, r io.Reader, size int64, contentType string) (string, error) {
	key := path.Join(prefix, uuid.NewString()+strings.ToLower(path.Ext(filename)))
	if err := u.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return u.baseURL + "/" + u.backend.Bucket() + "/" + key, nil
}

// Get opens a reader for an object in the configured bucket.
func (u *Uploader) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return u.backend.Get(ctx, key)
}

// Delete removes an object from the configured bucket.
func (u *Uploader) Delete(ctx context.Context, key string) error {
	return u.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (u *Uploader) Bucket() string {
	return u.backend.Bucket()
}
