package blob

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var errInvalidURLToken = errors.New("invalid blob url token")

// urlSealer turns object keys into opaque, tamper-proof URL tokens.
type urlSealer struct {
	aead cipher.AEAD
}

func newURLSealer(raw string) (*urlSealer, error) {
	key, err := decodeURLKey(raw)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &urlSealer{aead: aead}, nil
}

// decodeURLKey accepts a 32 byte raw key or its base64 form. An empty key
// yields a random one, so tokens stop resolving after a restart.
func decodeURLKey(raw string) ([]byte, error) {
	if raw == "" {
		key := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate url key: %w", err)
		}
		return key, nil
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode url key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid url key length %d, want 32", len(key))
	}
	return key, nil
}

func (s *urlSealer) Seal(objectKey string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := s.aead.Seal(nil, nonce, []byte(objectKey), nil)
	return base64.RawURLEncoding.EncodeToString(append(nonce, sealed...)), nil
}

func (s *urlSealer) Open(token string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", errInvalidURLToken
	}
	ns := s.aead.NonceSize()
	if len(data) < ns {
		return "", errInvalidURLToken
	}
	plain, err := s.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", errInvalidURLToken
	}
	return string(plain), nil
}
