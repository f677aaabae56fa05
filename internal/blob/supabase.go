package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	storage "github.com/supabase-community/storage-go"

	"medoai/internal/config"
)

// SupabaseStore stores blobs in a Supabase storage bucket.
type SupabaseStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewSupabaseStore(sc config.StorageConfig) (*SupabaseStore, error) {
	if sc.SupabaseURL == "" || sc.SupabaseKey == "" {
		return nil, errors.New("supabase url and key required")
	}
	baseURL := strings.TrimRight(sc.SupabaseURL, "/")
	return &SupabaseStore{
		client:  storage.NewClient(baseURL+"/storage/v1", sc.SupabaseKey, nil),
		bucket:  sc.Bucket,
		baseURL: baseURL,
	}, nil
}

func (s *SupabaseStore) Put(_ context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) error {
	upsert := false
	_, err := s.client.UploadFile(s.bucket, key, newProgressReader(r, size, progress), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("upload supabase object %s: %w", key, err)
	}
	return nil
}

func (s *SupabaseStore) URL(_ context.Context, key string) (string, error) {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key), nil
}

// Delete relies on RemoveFile echoing back the objects it removed; an empty
// echo means the key was not there.
func (s *SupabaseStore) Delete(_ context.Context, key string) error {
	removed, err := s.client.RemoveFile(s.bucket, []string{key})
	if err != nil {
		return fmt.Errorf("remove supabase object %s: %w", key, err)
	}
	if len(removed) == 0 {
		return ErrNotFound
	}
	return nil
}
