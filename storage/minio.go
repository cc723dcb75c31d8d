package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
)

// MinioStorage implements ObjectStorage for MinIO and S3-compatible services.
type MinioStorage struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStorage creates an object-store backend.
// rootPrefix is prepended to all keys (e.g. "media/").
func NewMinioStorage(client *minio.Client, bucket, rootPrefix string) (*MinioStorage, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &MinioStorage{client: client, bucket: bucket, prefix: rootPrefix}, nil
}

func (s *MinioStorage) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *MinioStorage) Bucket() string { return s.bucket }

// Put uploads an object and returns its public URL.
func (s *MinioStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	full := s.key(key)
	_, err := s.client.PutObject(ctx, s.bucket, full, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return publicURL(s.client.EndpointURL().String(), s.bucket, full), nil
}

// Delete removes an object. A missing key is treated as already deleted.
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(key), minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil // already gone
		}
		return err
	}
	return nil
}

func publicURL(endpoint, bucket, key string) string {
	return strings.TrimRight(endpoint, "/") + "/" + bucket + "/" + key
}
