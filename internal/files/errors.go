package files

import (
	"errors"
	"fmt"

	"medoai/internal/models"
)

// ErrNotFound means no metadata record exists for the id.
var ErrNotFound = errors.New("file record not found")

// PermissionError reports a metadata write the store refused. It carries the
// path and operation so callers can surface a structured diagnostic.
type PermissionError struct {
	Path      string
	Operation string
	Record    *models.UploadedFile
	Err       error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// DeleteOutcome describes how a delete completed.
type DeleteOutcome string

const (
	DeleteOutcomeRemoved     DeleteOutcome = "removed"
	DeleteOutcomeBlobMissing DeleteOutcome = "blob_missing"
	DeleteOutcomeAlreadyGone DeleteOutcome = "already_removed"
)
