// Package s3 provides an S3-backed blob backend.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/marmos91/dittobin/pkg/blob/backend"
)

// Config configures the S3 backend. Region, Endpoint and credentials fall
// back to the SDK default chain when empty; Endpoint and ForcePathStyle
// target MinIO or Localstack.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string

	// KeyPrefix is prepended to every blob key, e.g. "blobs/".
	KeyPrefix string

	// AccessKeyID and SecretAccessKey set static credentials. When empty the
	// SDK default chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// MaxRetries bounds SDK retries of transient failures.
	MaxRetries     int
	ForcePathStyle bool

	// SpoolDir holds temporary files for uploads from non-seekable streams.
	// Empty means os.TempDir().
	SpoolDir string

	// Metrics is optional.
	Metrics Metrics
}

// Store is an S3-backed implementation of backend.BlobStore.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	spoolDir  string
	metrics   Metrics
	closed    bool
	mu        sync.RWMutex
}

// New creates an S3 backend with an existing client.
func New(client *s3.Client, config Config) *Store {
	return &Store{
		client:    client,
		bucket:    config.Bucket,
		keyPrefix: config.KeyPrefix,
		spoolDir:  config.SpoolDir,
		metrics:   config.Metrics,
	}
}

// NewFromConfig creates an S3 backend by building a client from config.
func NewFromConfig(ctx context.Context, config Config) (*Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}
	if config.MaxRetries > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(config.MaxRetries))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if config.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}
	if config.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...), config), nil
}

func (s *Store) Type() string { return "s3" }

func (s *Store) fullKey(key string) string {
	return s.keyPrefix + key
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return backend.ErrStoreClosed
	}
	return nil
}

// WriteBlob uploads the stream with a single PutObject. Signing needs a
// seekable body, so other readers are spooled to a temporary file first.
func (s *Store) WriteBlob(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	body, ok := r.(io.ReadSeeker)
	if !ok {
		f, err := s.spool(r, size)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}()
		body = f
	}

	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.fullKey(key)),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	s.observe("PutObject", start, err)
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	s.recordBytes("PutObject", size)
	return nil
}

func (s *Store) spool(r io.Reader, size int64) (*os.File, error) {
	f, err := os.CreateTemp(s.spoolDir, "dittobin-s3-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	n, err := io.Copy(f, r)
	if err == nil && n != size {
		err = fmt.Errorf("short write: spooled %d of %d bytes", n, size)
	}
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}

func (s *Store) OpenBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	s.observe("GetObject", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, backend.ErrBlobNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	s.recordBytes("GetObject", aws.ToInt64(resp.ContentLength))
	return resp.Body, nil
}

func (s *Store) DeleteBlob(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	s.observe("DeleteObject", start, err)
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

func (s *Store) ListBlobs(ctx context.Context, fn func(key string, size int64) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.keyPrefix != "" {
		input.Prefix = aws.String(s.keyPrefix)
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, input)

	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		s.observe("ListObjectsV2", start, err)
		if err != nil {
			return fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.keyPrefix)
			if err := fn(key, aws.ToInt64(obj.Size)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) Usage(ctx context.Context) (backend.Usage, error) {
	return backend.UsageFromList(ctx, s)
}

// HealthCheck performs a HeadBucket call to check connectivity and permissions.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	// Some S3-compatible servers answer with a generic code, or with a bare
	// 404 on HEAD requests.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

var _ backend.BlobStore = (*Store)(nil)
