package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/satymtripathi/microbiology/pkg/config"
	"github.com/satymtripathi/microbiology/pkg/logger"
)

// S3API is the slice of the S3 client the store uses
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store keeps images in an S3 compatible bucket
type S3Store struct {
	client S3API
	bucket string
	prefix string
	logger *logger.Logger
}

// NewS3Store loads the default AWS credential chain and builds a client
func NewS3Store(ctx context.Context, cfg config.S3Config, log *logger.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	client := s3.New(s3.Options{
		Region:       awsCfg.Region,
		Credentials:  awsCfg.Credentials,
		HTTPClient:   awsCfg.HTTPClient,
		BaseEndpoint: endpointOrDefault(cfg.Endpoint, awsCfg.BaseEndpoint),
		UsePathStyle: cfg.UsePathStyle,
	})

	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix, log), nil
}

// NewS3StoreWithClient wraps an existing client
func NewS3StoreWithClient(client S3API, bucket, prefix string, log *logger.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, logger: log}
}

func (s *S3Store) Backend() string { return config.StorageBackendS3 }

// Save uploads data as a private object named {prefix}{uuid}{ext}
func (s *S3Store) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := s.prefix + uuid.New().String() + extensionFor(name, contentType)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"bucket": s.bucket,
		"key":    key,
		"bytes":  len(data),
	}).Debug("Image uploaded")
	return key, nil
}

// Open streams the object. The caller closes the body.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" || !strings.HasPrefix(key, s.prefix) {
		return nil, ErrImageNotFound
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	return out.Body, nil
}

// Ping checks the bucket is reachable with the configured credentials
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s unavailable: %w", s.bucket, err)
	}
	return nil
}

func endpointOrDefault(endpoint string, fallback *string) *string {
	if endpoint != "" {
		return aws.String(endpoint)
	}
	return fallback
}
