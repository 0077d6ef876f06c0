// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// BlobStore keeps objects in a map keyed by bucket and key. It serves both
// as an object reader for source locations and as the hosted store.
type BlobStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	kind   ingest.LocationType
	bucket string
}

// NewBlobStore creates an in-memory store whose PutObject calls land in
// bucket and report locations of the given kind.
func NewBlobStore(kind ingest.LocationType, bucket string) *BlobStore {
	if kind == "" {
		kind = ingest.LocationFolderShared
	}
	return &BlobStore{
		data:   make(map[string][]byte),
		kind:   kind,
		bucket: bucket,
	}
}

func objectKey(bucket, key string) string {
	return path.Join(bucket, key)
}

// Seed stores content directly, bypassing the hosted bucket.
func (s *BlobStore) Seed(bucket, key string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[objectKey(bucket, key)] = append([]byte(nil), content...)
}

// GetObject returns a reader over a copy of the stored object.
func (s *BlobStore) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", objectKey(bucket, key), os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// PutObject persists the content into the hosted bucket.
func (s *BlobStore) PutObject(_ context.Context, key string, _ string, r io.Reader) (ingest.Location, error) {
	if key == "" {
		return ingest.Location{}, fmt.Errorf("key is required")
	}
	byteData, err := io.ReadAll(r)
	if err != nil {
		return ingest.Location{}, fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	s.data[objectKey(s.bucket, key)] = byteData
	s.mu.Unlock()

	if s.kind == ingest.LocationFolderShared {
		return ingest.Location{Type: s.kind, FilePath: key}, nil
	}
	return ingest.Location{Type: s.kind, BucketName: s.bucket, FileName: key}, nil
}

// Len reports how many objects are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
