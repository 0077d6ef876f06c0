// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	// Bucket receives hosted copies; reads may address any bucket.
	Bucket string
}

// BlobStore reads source objects from GCS and writes hosted copies to the
// configured bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// GetObject opens gs://bucket/key for streaming.
func (s *BlobStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if bucket == "" {
		bucket = s.bucket
	}
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, os.ErrNotExist)
		}
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, key, err)
	}
	return r, nil
}

// PutObject uploads data to the configured bucket.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, r io.Reader) (ingest.Location, error) {
	if strings.TrimSpace(key) == "" {
		return ingest.Location{}, fmt.Errorf("path is required")
	}
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return ingest.Location{}, fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return ingest.Location{}, fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ingest.Location{}, fmt.Errorf("close writer: %w", err)
	}
	return ingest.Location{Type: ingest.LocationGCS, BucketName: s.bucket, FileName: key}, nil
}

// Close releases the underlying client.
func (s *BlobStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
