package storage_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/cliptube/accounts/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackend struct {
	bucket  string
	objects map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{bucket: "media", objects: map[string][]byte{}}
}

func (b *memoryBackend) EnsureBucket(ctx context.Context) error { return nil }

func (b *memoryBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *memoryBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.objects[key])), nil
}

func (b *memoryBackend) Delete(ctx context.Context, key string) error {
	delete(b.objects, key)
	return nil
}

func (b *memoryBackend) Bucket() string { return b.bucket }

func TestUploadReturnsPublicURL(t *testing.T) {
	backend := newMemoryBackend()
	uploader := storage.NewUploader(backend, "https://media.example.com/")

	url, err := uploader.Upload(context.Background(), "avatars", "Photo.PNG", strings.NewReader("data"), 4, "image/png")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "https://media.example.com/media/avatars/"), "unexpected url %q", url)
	assert.True(t, strings.HasSuffix(url, ".png"), "extension should be preserved lowercase, got %q", url)
	require.Len(t, backend.objects, 1)
	for key, data := range backend.objects {
		assert.True(t, strings.HasPrefix(key, "avatars/"))
		assert.Equal(t, "data", string(data))
	}
}

func TestUploadKeysAreUnique(t *testing.T) {
	backend := newMemoryBackend()
	uploader := storage.NewUploader(backend, "https://media.example.com")

	first, err := uploader.Upload(context.Background(), "covers", "a.jpg", strings.NewReader("x"), 1, "image/jpeg")
	require.NoError(t, err)
	second, err := uploader.Upload(context.Background(), "covers", "a.jpg", strings.NewReader("y"), 1, "image/jpeg")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Len(t, backend.objects, 2)
}
