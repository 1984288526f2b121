// Package storage reads source dataset exports from S3-compatible object storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ErrExportNotFound is returned when no export object exists for a source
var ErrExportNotFound = errors.New("source export not found")

// ObjectClient is the subset of the S3 API used by the export reader
type ObjectClient interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3SourceExportReader reads `<prefix>/<key>.json` objects written by the
// upstream export jobs. Compatible with AWS S3, MinIO and RustFS.
type S3SourceExportReader struct {
	client ObjectClient
	bucket string
	prefix string
	logger *zap.Logger
}

// ReaderOption is a functional option for configuring S3SourceExportReader
type ReaderOption func(*S3SourceExportReader)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) ReaderOption {
	return func(r *S3SourceExportReader) {
		r.logger = logger
	}
}

// NewS3SourceExportReader builds an S3 client from configuration
func NewS3SourceExportReader(ctx context.Context, cfg *config.StorageConfig, opts ...ReaderOption) (*S3SourceExportReader, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normalizeEndpoint(cfg.Endpoint))
		}
	})

	return NewS3SourceExportReaderWithClient(client, cfg.Bucket, cfg.Prefix, opts...), nil
}

// NewS3SourceExportReaderWithClient creates a reader over an existing client
func NewS3SourceExportReaderWithClient(client ObjectClient, bucket, prefix string, opts ...ReaderOption) *S3SourceExportReader {
	r := &S3SourceExportReader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func normalizeEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "https://" + endpoint
}

// ObjectKey returns the object key holding the export of a source
func (r *S3SourceExportReader) ObjectKey(key catalog.SourceKey) string {
	name := string(key) + ".json"
	if r.prefix == "" {
		return name
	}
	return path.Join(r.prefix, name)
}

// Read downloads the raw export of a source
func (r *S3SourceExportReader) Read(ctx context.Context, key catalog.SourceKey) ([]byte, error) {
	objectKey := r.ObjectKey(key)
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrExportNotFound, objectKey)
		}
		return nil, fmt.Errorf("failed to get export %s: %w", objectKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read export %s: %w", objectKey, err)
	}

	r.logger.Debug("Source export downloaded",
		zap.String("source", key.String()),
		zap.String("object", objectKey),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}

// Exists checks whether an export object is present for a source
func (r *S3SourceExportReader) Exists(ctx context.Context, key catalog.SourceKey) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.ObjectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check export existence: %w", err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	// Some S3-compatible services only report the code in the message
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey")
}

// ExportFetch returns a fetch function decoding the export of src into typed records
func ExportFetch[T any](r *S3SourceExportReader, src catalog.Source[T]) func(ctx context.Context) ([]T, error) {
	return func(ctx context.Context) ([]T, error) {
		data, err := r.Read(ctx, src.Key())
		if err != nil {
			return nil, err
		}
		var records []T
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, catalog.ErrInvalidRecords.WithMessage("decode %s export: %v", src.Key(), err)
		}
		return records, nil
	}
}
