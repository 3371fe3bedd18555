// Package objectstore removes sign asset objects from S3-compatible storage.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// Enabled reports whether enough is configured to reach a bucket.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Bucket) != ""
}

type objectRemover interface {
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type MinioStore struct {
	client  objectRemover
	bucket  string
	baseURL string
}

func NewMinioStore(cfg Config) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newMinioStore(client, cfg.Bucket, cfg.PublicBaseURL), nil
}

func newMinioStore(client objectRemover, bucket, baseURL string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// KeyForURL maps a public asset URL to its object key. URLs outside baseURL are not ours.
func KeyForURL(baseURL, assetURL string) (string, bool) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(strings.TrimSpace(assetURL), base+"/")
	if !ok {
		return "", false
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	key, err := url.PathUnescape(rest)
	if err != nil || key == "" || strings.HasSuffix(key, "/") {
		return "", false
	}
	return key, true
}

// RemoveURL deletes the object behind assetURL. Foreign URLs are ignored.
func (s *MinioStore) RemoveURL(ctx context.Context, assetURL string) error {
	key, ok := KeyForURL(s.baseURL, assetURL)
	if !ok {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}
