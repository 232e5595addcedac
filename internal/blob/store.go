// Package blob stores uploaded field attachments in an S3-compatible bucket.
// Callers treat the returned locators as opaque strings.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"labbook/api/internal/util"
)

type Store struct {
	client *minio.Client
	bucket string
}

func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect blob store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Store{client: client, bucket: bucket}, nil
}

// Upload stores a new object under the given prefix and returns its locator.
func (s *Store) Upload(ctx context.Context, prefix, name string, r io.Reader, size int64, contentType string) (string, error) {
	locator := path.Join(prefix, util.NewID("blob"), name)
	_, err := s.client.PutObject(ctx, s.bucket, locator, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload blob: %w", err)
	}
	return locator, nil
}

// Get opens the object behind a locator. The caller closes the reader.
func (s *Store) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, locator, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat blob: %w", err)
	}
	return obj, nil
}

func (s *Store) Delete(ctx context.Context, locator string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, locator, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Replace uploads the new content and then removes the old object. A failed
// delete of the old object is reported but the new locator is still valid.
func (s *Store) Replace(ctx context.Context, oldLocator, prefix, name string, r io.Reader, size int64, contentType string) (string, error) {
	locator, err := s.Upload(ctx, prefix, name, r, size, contentType)
	if err != nil {
		return "", err
	}
	if oldLocator != "" {
		if err := s.Delete(ctx, oldLocator); err != nil {
			return locator, fmt.Errorf("replace blob: %w", err)
		}
	}
	return locator, nil
}
