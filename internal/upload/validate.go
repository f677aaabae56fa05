package upload

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// MaxFileBytes is the per-file size ceiling.
const MaxFileBytes = 4 << 20

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds the 4MB limit")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// CheckSize rejects empty and oversized files.
func CheckSize(size int64) error {
	if size <= 0 {
		return ErrEmptyFile
	}
	if size > MaxFileBytes {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
	}
	return nil
}

// NormalizeType strips parameters and lowercases a MIME type.
func NormalizeType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// IsAIAttachment accepts images and PDFs, the inputs the chat and question
// flows can read.
func IsAIAttachment(contentType string) bool {
	ct := NormalizeType(contentType)
	return strings.HasPrefix(ct, "image/") || ct == "application/pdf"
}

// CheckAttachment validates a file that will be inlined into an AI request.
func CheckAttachment(size int64, contentType string) error {
	if err := CheckSize(size); err != nil {
		return err
	}
	if !IsAIAttachment(contentType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return nil
}
