package minio

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"medocs-backend/internal/shared/storage/object"
)

// Options configures a MinIO-backed store.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// Store implements ObjectStore against any S3-compatible MinIO endpoint.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to MinIO and creates the bucket when it does not exist yet.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
	}

	return &Store{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(strings.TrimSpace(opts.Prefix), "/"),
	}, nil
}

// Save streams the reader into the bucket under the user's namespace.
func (s *Store) Save(ctx context.Context, userId string, fileName string, r io.Reader) (string, int64, string, error) {
	storageKey, err := object.NewKey(userId, fileName)
	if err != nil {
		return "", 0, "", err
	}

	mimeType, body, err := object.Sniff(r, fileName)
	if err != nil {
		return "", 0, "", err
	}

	size, err := s.SaveWithKey(ctx, storageKey, mimeType, body)
	if err != nil {
		return "", 0, "", err
	}
	return storageKey, size, mimeType, nil
}

// SaveWithKey uploads data of unknown length to a specific storage key.
func (s *Store) SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	objectKey := s.objectKey(storageKey)
	info, err := s.client.PutObject(ctx, s.bucket, objectKey, r, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("minio put object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return info.Size, nil
}

// Open returns the object body. Missing keys surface as object.ErrNotFound.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	objectKey := s.objectKey(storageKey)
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	// GetObject is lazy; Stat forces the request so a missing key fails here.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, s.statErr(objectKey, err)
	}
	return obj, nil
}

// Stat reports the size and content type recorded for the object.
func (s *Store) Stat(ctx context.Context, storageKey string) (object.Info, error) {
	objectKey := s.objectKey(storageKey)
	info, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		return object.Info{}, s.statErr(objectKey, err)
	}
	return object.Info{Size: info.Size, ContentType: info.ContentType}, nil
}

func (s *Store) statErr(objectKey string, err error) error {
	if code := minio.ToErrorResponse(err).Code; code == "NoSuchKey" || code == "NotFound" {
		return fmt.Errorf("%w: bucket=%s key=%s", object.ErrNotFound, s.bucket, objectKey)
	}
	return fmt.Errorf("minio stat bucket=%s key=%s: %w", s.bucket, objectKey, err)
}

// Delete removes the object and its derived text copy.
func (s *Store) Delete(ctx context.Context, storageKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, key := range []string{storageKey, storageKey + object.ExtractedSuffix} {
		objectKey := s.objectKey(key)
		if err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("minio remove object bucket=%s key=%s: %w", s.bucket, objectKey, err)
		}
	}
	return nil
}

// PresignPut returns a URL the client can PUT the object to directly.
func (s *Store) PresignPut(ctx context.Context, storageKey string, expires time.Duration) (string, error) {
	objectKey := s.objectKey(storageKey)
	u, err := s.client.PresignedPutObject(ctx, s.bucket, objectKey, expires)
	if err != nil {
		return "", fmt.Errorf("minio presign put bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return u.String(), nil
}

func (s *Store) objectKey(storageKey string) string {
	key := strings.TrimLeft(storageKey, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

var (
	_ object.ObjectStore = (*Store)(nil)
	_ object.KeySaver    = (*Store)(nil)
	_ object.Presigner   = (*Store)(nil)
	_ object.Statter     = (*Store)(nil)
)
