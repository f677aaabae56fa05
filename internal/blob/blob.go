// Package blob stores uploaded file bytes behind a backend-neutral interface.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"medoai/internal/config"
	"medoai/internal/logger"
)

// ErrNotFound is returned by Delete when the object does not exist.
var ErrNotFound = errors.New("blob: object not found")

// ProgressFunc receives the cumulative bytes transferred and the total size.
type ProgressFunc func(transferred, total int64)

// Store is a blob backend.
type Store interface {
	// Put uploads size bytes from r under key, reporting progress as bytes move.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) error
	// URL returns a download URL for key. It stays valid for the lifetime of
	// the object unless the store reports URLsExpire.
	URL(ctx context.Context, key string) (string, error)
	// Delete removes key, returning ErrNotFound if it is absent.
	Delete(ctx context.Context, key string) error
}

// Expiring is implemented by stores whose URLs can lapse, such as presigned
// links on a private bucket.
type Expiring interface {
	URLsExpire() bool
}

// URLsExpire reports whether URLs from s must be re-issued instead of stored.
func URLsExpire(s Store) bool {
	e, ok := s.(Expiring)
	return ok && e.URLsExpire()
}

// New builds the backend named by cfg.Storage.Backend.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (Store, error) {
	sc := cfg.Storage
	switch sc.Backend {
	case "local":
		return NewLocalStore(sc.LocalDir, cfg.BasicConfig.PublicBaseURL, sc.URLKey)
	case "minio":
		return NewMinioStore(ctx, sc, log)
	case "gcs":
		return NewGCSStore(ctx, sc, log)
	case "supabase":
		return NewSupabaseStore(sc)
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", sc.Backend)
	}
}
