package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"certificate-workers/internal/common/config"
	apperrors "certificate-workers/internal/common/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const documentContentType = "text/plain; charset=utf-8"

// objectClient is the subset of *minio.Client the store uses.
type objectClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error)
}

// MinioStore keeps documents in an S3-compatible bucket, one object per hash.
type MinioStore struct {
	client        objectClient
	bucket        string
	presignExpiry time.Duration
	publicBaseURL string
}

// NewMinioStore builds the client; it does not dial until first use.
func NewMinioStore(cfg config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
		Secure: cfg.Minio.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return newMinioStore(client, cfg), nil
}

func newMinioStore(client objectClient, cfg config.StorageConfig) *MinioStore {
	return &MinioStore{
		client:        client,
		bucket:        cfg.Minio.Bucket,
		presignExpiry: cfg.Minio.PresignExpiryDuration(),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.NewValidationError("document is empty")
	}
	hash := Hash(data)
	_, err := s.client.PutObject(ctx, s.bucket, hash, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: documentContentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload document %s: %w", hash, err)
	}
	return hash, nil
}

// ResolveURL links to the public gateway when one is configured and to a
// presigned GET otherwise.
func (s *MinioStore) ResolveURL(ctx context.Context, hash string) (string, error) {
	if !validHash(hash) {
		return "", apperrors.NewValidationError(fmt.Sprintf("malformed document hash %q", hash))
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + hash, nil
	}

	if _, err := s.client.StatObject(ctx, s.bucket, hash, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", apperrors.NewNotFoundError("document", hash)
		}
		return "", fmt.Errorf("failed to stat document %s: %w", hash, err)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, hash, s.presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}
