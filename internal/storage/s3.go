// Package storage keeps product and variant images in S3-compatible object
// storage (AWS S3, MinIO and friends).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"pos-service/config"
	"pos-service/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrForeignURL is returned when a URL does not point into this store
var ErrForeignURL = errors.New("url does not belong to this image store")

// ObjectAPI is the subset of the S3 client the image store calls
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3ImageStore saves blobs and hands back their public URL
type S3ImageStore struct {
	client  ObjectAPI
	bucket  string
	baseURL string
	logger  *zap.Logger
}

type Option func(*S3ImageStore)

// WithClient replaces the S3 client
func WithClient(client ObjectAPI) Option {
	return func(s *S3ImageStore) {
		s.client = client
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *S3ImageStore) {
		s.logger = logger
	}
}

// NewS3ImageStore creates an image store from configuration
func NewS3ImageStore(cfg config.StorageConfig, opts ...Option) (*S3ImageStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}

	baseURL := strings.TrimRight(cfg.PublicURL, "/")
	if baseURL == "" {
		baseURL = endpoint + "/" + cfg.Bucket
	}

	store := &S3ImageStore{
		bucket:  cfg.Bucket,
		baseURL: baseURL,
		logger:  util.GetLogger(),
	}
	for _, opt := range opts {
		opt(store)
	}
	if store.client != nil {
		return store, nil
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	store.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return store, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *S3ImageStore) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("creating image bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Save uploads r under key and returns the object's public URL
func (s *S3ImageStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	if size <= 0 {
		return "", errors.New("empty upload")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.Debug("image stored", zap.String("key", key), zap.Int64("size", size))
	return s.URL(key), nil
}

// Delete removes the object stored under key. Missing objects are not an error.
func (s *S3ImageStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DeleteURL removes the object a previously returned URL points at
func (s *S3ImageStore) DeleteURL(ctx context.Context, url string) error {
	key, err := s.KeyFromURL(url)
	if err != nil {
		return err
	}
	return s.Delete(ctx, key)
}

// URL returns the public URL of key
func (s *S3ImageStore) URL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL inverts URL
func (s *S3ImageStore) KeyFromURL(url string) (string, error) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) || len(url) == len(prefix) {
		return "", ErrForeignURL
	}
	return strings.TrimPrefix(url, prefix), nil
}

// ImageKey builds a unique key for an image owned by a tenant's product.
// variantID is empty for product-level images.
func ImageKey(tenantID, productID, variantID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	name := uuid.New().String() + ext
	if variantID != "" {
		return path.Join("tenants", tenantID, "products", productID, "variants", variantID, name)
	}
	return path.Join("tenants", tenantID, "products", productID, name)
}
