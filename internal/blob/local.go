package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps blobs on disk and serves them through sealed URL tokens.
type LocalStore struct {
	root    string
	baseURL string
	sealer  *urlSealer
}

// NewLocalStore roots the store at dir. baseURL prefixes download links (may be empty for relative links).
func NewLocalStore(dir, baseURL, urlKey string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("local blob dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	sealer, err := newURLSealer(urlKey)
	if err != nil {
		return nil, err
	}
	return &LocalStore{
		root:    dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		sealer:  sealer,
	}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) error {
	dest, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	src := newProgressReader(r, size, progress)
	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src}); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

func (s *LocalStore) URL(_ context.Context, key string) (string, error) {
	token, err := s.sealer.Seal(key)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/api/blobs/" + token, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	dest, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	// prune empty directories
	_ = os.Remove(filepath.Dir(dest))
	return nil
}

// Open resolves a download token to the object, returning ErrNotFound for
// unknown tokens and missing objects alike.
func (s *LocalStore) Open(token string) (io.ReadCloser, string, error) {
	key, err := s.sealer.Open(token)
	if err != nil {
		return nil, "", ErrNotFound
	}
	dest, err := s.path(key)
	if err != nil {
		return nil, "", ErrNotFound
	}
	f, err := os.Open(dest)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("open blob: %w", err)
	}
	return f, key, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
