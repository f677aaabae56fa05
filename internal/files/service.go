package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"medoai/internal/blob"
	"medoai/internal/logger"
	"medoai/internal/models"
	"medoai/internal/redis"
)

// Service is the storage adapter: blob bytes plus per-user metadata records.
type Service struct {
	repo  *Repository
	blobs blob.Store
	hub   Notifier
	log   *logger.Logger

	mu       sync.Mutex
	lastDate time.Time
	now      func() time.Time
}

// NewNotifier returns a redis-backed notifier when a client is given, else an in-process one.
func NewNotifier(ctx context.Context, client *redis.Client, log *logger.Logger) (Notifier, error) {
	if client == nil {
		return newLocalHub(), nil
	}
	return newRedisHub(ctx, client, log)
}

func NewService(repo *Repository, blobs blob.Store, hub Notifier, log *logger.Logger) *Service {
	if hub == nil {
		hub = newLocalHub()
	}
	return &Service{
		repo:  repo,
		blobs: blobs,
		hub:   hub,
		log:   log.With("service", "files.Service"),
		now:   time.Now,
	}
}

// UploadDir is the per-user prefix for uploaded files.
func UploadDir(userID string) string {
	return "user-uploads/" + userID
}

// AudioDir is the per-user prefix for saved recordings.
func AudioDir(userID string) string {
	return UploadDir(userID) + "/audio"
}

// StoragePath is the object key for record id under dir. The id keeps keys
// unique when the same name lands in the same millisecond.
func StoragePath(dir, id, fileName string, at time.Time) string {
	return fmt.Sprintf("%s/%d_%s_%s", dir, at.UnixMilli(), id, cleanName(fileName))
}

// CollectionPath names the per-user record collection in diagnostics.
func CollectionPath(userID string) string {
	return fmt.Sprintf("users/%s/uploadedFiles", userID)
}

func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// Upload moves the bytes into blob storage and returns the durable download URL.
func (s *Service) Upload(ctx context.Context, key, contentType string, size int64, r io.Reader, progress blob.ProgressFunc) (string, error) {
	if err := s.blobs.Put(ctx, key, r, size, contentType, progress); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	url, err := s.blobs.URL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("download url %s: %w", key, err)
	}
	return url, nil
}

// RecordMetadata writes one record keyed by its pre-generated id. A refused
// write comes back as *PermissionError.
func (s *Service) RecordMetadata(ctx context.Context, rec *models.UploadedFile) error {
	if rec == nil || rec.ID == "" || rec.UserID == "" {
		return errors.New("record id and user id are required")
	}
	if rec.UploadDate.IsZero() {
		rec.UploadDate = s.nextUploadDate()
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		perr := &PermissionError{
			Path:      CollectionPath(rec.UserID),
			Operation: "create",
			Record:    rec,
			Err:       err,
		}
		s.log.Error("metadata write refused",
			"path", perr.Path,
			"operation", perr.Operation,
			"file_id", rec.ID,
			"file_name", rec.FileName,
			"error", err,
		)
		return perr
	}
	s.hub.Notify(ctx, changeMessage{UserID: rec.UserID, FileID: rec.ID, Kind: changeCreated})
	return nil
}

// NewFile describes bytes to be saved for a user.
type NewFile struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
	// Dir overrides the default UploadDir prefix.
	Dir string
}

// Save runs one file end to end: pre-generate the id, upload, fetch the URL,
// then write the metadata record.
func (s *Service) Save(ctx context.Context, userID string, f NewFile, progress blob.ProgressFunc) (*models.UploadedFile, error) {
	id := uuid.NewString()
	dir := f.Dir
	if dir == "" {
		dir = UploadDir(userID)
	}
	key := StoragePath(dir, id, f.Name, s.now())
	url, err := s.Upload(ctx, key, f.ContentType, f.Size, f.Reader, progress)
	if err != nil {
		return nil, err
	}
	rec := &models.UploadedFile{
		ID:              id,
		UserID:          userID,
		FileName:        cleanName(f.Name),
		FileType:        f.ContentType,
		FileSize:        f.Size,
		StorageLocation: url,
		StoragePath:     key,
	}
	if err := s.RecordMetadata(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns the user's records, newest first. When the store's URLs
// expire, each storageLocation is re-issued from the storage path.
func (s *Service) List(ctx context.Context, userID string) ([]*models.UploadedFile, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil || !blob.URLsExpire(s.blobs) {
		return list, err
	}
	for _, rec := range list {
		url, err := s.blobs.URL(ctx, rec.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("download url %s: %w", rec.StoragePath, err)
		}
		rec.StorageLocation = url
	}
	return list, nil
}

// Watch emits the current listing, then a fresh one after every change, until ctx ends.
func (s *Service) Watch(ctx context.Context, userID string) (<-chan []*models.UploadedFile, error) {
	signal, cancel := s.hub.Subscribe(userID)
	initial, err := s.List(ctx, userID)
	if err != nil {
		cancel()
		return nil, err
	}
	out := make(chan []*models.UploadedFile, 1)
	out <- initial
	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
			}
			list, err := s.List(ctx, userID)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("watch refresh failed", "user_id", userID, "error", err)
				}
				continue
			}
			select {
			case out <- list:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Delete looks the record up by id and deletes it. An id with no record is
// reported as DeleteOutcomeAlreadyGone rather than an error.
func (s *Service) Delete(ctx context.Context, userID, id string) (DeleteOutcome, *models.UploadedFile, error) {
	rec, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DeleteOutcomeAlreadyGone, nil, nil
		}
		return "", nil, err
	}
	outcome, err := s.DeleteRecord(ctx, rec)
	return outcome, rec, err
}

// DeleteRecord removes the blob, then the record. A blob that is already gone
// still lets the record go and reports DeleteOutcomeBlobMissing; any other
// blob error stops before the record is touched.
func (s *Service) DeleteRecord(ctx context.Context, rec *models.UploadedFile) (DeleteOutcome, error) {
	if rec == nil || rec.ID == "" || rec.UserID == "" {
		return "", errors.New("record id and user id are required")
	}
	outcome := DeleteOutcomeRemoved
	if err := s.blobs.Delete(ctx, rec.StoragePath); err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			return "", fmt.Errorf("delete blob %s: %w", rec.StoragePath, err)
		}
		s.log.Info("blob already missing, removing record", "file_id", rec.ID, "path", rec.StoragePath)
		outcome = DeleteOutcomeBlobMissing
	}
	if err := s.repo.Delete(ctx, rec.UserID, rec.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	s.hub.Notify(ctx, changeMessage{UserID: rec.UserID, FileID: rec.ID, Kind: changeDeleted})
	return outcome, nil
}

// nextUploadDate is strictly increasing so the listing order is total.
func (s *Service) nextUploadDate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now().UTC().Truncate(time.Millisecond)
	if !t.After(s.lastDate) {
		t = s.lastDate.Add(time.Millisecond)
	}
	s.lastDate = t
	return t
}
