package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"medoai/internal/config"
	"medoai/internal/logger"
)

// GCSStore stores blobs in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	log    *logger.Logger
}

func NewGCSStore(ctx context.Context, sc config.StorageConfig, log *logger.Logger) (*GCSStore, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if sc.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(sc.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: sc.Bucket, log: log.With("service", "blob.GCSStore")}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if progress != nil {
		w.ProgressFunc = func(done int64) { progress(done, size) }
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) URL(_ context.Context, key string) (string, error) {
	escaped := make([]string, 0, 8)
	for _, part := range strings.Split(key, "/") {
		escaped = append(escaped, url.PathEscape(part))
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, strings.Join(escaped, "/")), nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete gcs object %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
