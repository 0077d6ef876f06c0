// Package s3 provides a BlobStore backed by Amazon S3 or an S3-compatible
// endpoint.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// Config captures the parameters required to reach S3.
type Config struct {
	// Bucket receives hosted copies; reads may address any bucket.
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	MaxRetries      int
	Timeout         time.Duration
}

type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BlobStore reads and writes objects through the S3 API.
type BlobStore struct {
	api    objectAPI
	bucket string
}

// New builds an S3 client from cfg.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3.bucket is required")
	}
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewWithAPI(client, cfg.Bucket)
}

// NewWithAPI constructs a store from an existing client (primarily for testing).
func NewWithAPI(api objectAPI, bucket string) (*BlobStore, error) {
	if api == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3.bucket is required")
	}
	return &BlobStore{api: api, bucket: bucket}, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.MaxRetries > 0 {
		optFns = append(optFns, awsconfig.WithRetryMaxAttempts(cfg.MaxRetries))
	}
	if cfg.Timeout > 0 {
		optFns = append(optFns, awsconfig.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

// GetObject streams s3://bucket/key.
func (s *BlobStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if bucket == "" {
		bucket = s.bucket
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, os.ErrNotExist)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// PutObject uploads r to the configured bucket. The SDK needs a seekable
// body to sign the payload, so non-seekable readers are buffered.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, r io.Reader) (ingest.Location, error) {
	if strings.TrimSpace(key) == "" {
		return ingest.Location{}, fmt.Errorf("path is required")
	}
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return ingest.Location{}, fmt.Errorf("read content: %w", err)
		}
		body = bytes.NewReader(data)
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return ingest.Location{}, fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return ingest.Location{Type: ingest.LocationS3, BucketName: s.bucket, FileName: key}, nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
