package files

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medoai/internal/blob"
	"medoai/internal/config"
	"medoai/internal/logger"
	"medoai/internal/models"
	"medoai/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{
		"sqlite3": {DSN: filepath.Join(t.TempDir(), "files.db")},
	}}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	t.Cleanup(func() { db.Close() })
	return db
}

func insertUser(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO users (id, is_anonymous, created_at) VALUES (?, 1, ?)`, id, time.Now().UTC())
	require.NoError(t, err)
}

func newTestService(t *testing.T, store blob.Store) (*Service, *sql.DB) {
	t.Helper()
	db := openTestDB(t)
	insertUser(t, db, "u1")
	return NewService(NewRepository(db), store, nil, logger.Nop()), db
}

// brokenBlobs fails every delete with a non-not-found error.
type brokenBlobs struct{ blob.Store }

func (brokenBlobs) Delete(context.Context, string) error { return errors.New("bucket offline") }

func TestSaveListDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := blob.NewLocalStore(t.TempDir(), "", "")
	require.NoError(t, err)
	svc, _ := newTestService(t, store)

	data := []byte("%PDF-1.4 tiny")
	rec, err := svc.Save(ctx, "u1", NewFile{Name: "notes.pdf", ContentType: "application/pdf", Size: int64(len(data)), Reader: bytes.NewReader(data)}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.True(t, strings.HasPrefix(rec.StoragePath, "user-uploads/u1/"))
	assert.True(t, strings.HasSuffix(rec.StoragePath, "_"+rec.ID+"_notes.pdf"))

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)

	outcome, err := svc.DeleteRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, DeleteOutcomeRemoved, outcome)

	list, err = svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	// the blob is gone now; a repeated delete must still succeed softly
	outcome, err = svc.DeleteRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, DeleteOutcomeBlobMissing, outcome)

	outcome, _, err = svc.Delete(ctx, "u1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, DeleteOutcomeAlreadyGone, outcome)
}

func TestDeleteKeepsRecordOnHardBlobError(t *testing.T) {
	ctx := context.Background()
	local, err := blob.NewLocalStore(t.TempDir(), "", "")
	require.NoError(t, err)
	svc, _ := newTestService(t, brokenBlobs{local})

	rec, err := svc.Save(ctx, "u1", NewFile{Name: "a.png", ContentType: "image/png", Size: 3, Reader: bytes.NewReader([]byte("abc"))}, nil)
	require.NoError(t, err)

	_, _, err = svc.Delete(ctx, "u1", rec.ID)
	require.Error(t, err)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListIsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store, err := blob.NewLocalStore(t.TempDir(), "", "")
	require.NoError(t, err)
	svc, _ := newTestService(t, store)
	fixed := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	var ids []string
	for _, name := range []string{"first.txt", "second.txt", "third.txt"} {
		rec, err := svc.Save(ctx, "u1", NewFile{Name: name, ContentType: "text/plain", Size: 1, Reader: bytes.NewReader([]byte("x"))}, nil)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.True(t, list[0].UploadDate.After(list[1].UploadDate))
}

func TestRecordMetadataReturnsPermissionError(t *testing.T) {
	ctx := context.Background()
	store, err := blob.NewLocalStore(t.TempDir(), "", "")
	require.NoError(t, err)
	svc, _ := newTestService(t, store)

	// unknown user violates the foreign key
	err = svc.RecordMetadata(ctx, &models.UploadedFile{ID: "f1", UserID: "ghost", FileName: "x", FileType: "text/plain"})
	var perr *PermissionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "users/ghost/uploadedFiles", perr.Path)
	assert.Equal(t, "create", perr.Operation)
}

func TestWatchEmitsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, err := blob.NewLocalStore(t.TempDir(), "", "")
	require.NoError(t, err)
	svc, _ := newTestService(t, store)

	updates, err := svc.Watch(ctx, "u1")
	require.NoError(t, err)

	first := <-updates
	assert.Empty(t, first)

	_, err = svc.Save(ctx, "u1", NewFile{Name: "live.txt", ContentType: "text/plain", Size: 4, Reader: bytes.NewReader([]byte("live"))}, nil)
	require.NoError(t, err)

	select {
	case list := <-updates:
		require.Len(t, list, 1)
		assert.Equal(t, "live.txt", list[0].FileName)
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not emit after save")
	}

	cancel()
	for range updates {
	}
}

func TestSaveReportsProgress(t *testing.T) {
	store, err := blob.NewLocalStore(t.TempDir(), "", "")
	require.NoError(t, err)
	svc, _ := newTestService(t, store)

	data := bytes.Repeat([]byte("z"), 64*1024)
	var last int
	_, err = svc.Save(context.Background(), "u1", NewFile{Name: "big.bin", ContentType: "application/octet-stream", Size: int64(len(data)), Reader: io.LimitReader(bytes.NewReader(data), int64(len(data)))},
		func(done, total int64) { last = blob.Percent(done, total) })
	require.NoError(t, err)
	assert.Equal(t, 100, last)
}

func TestSameNameSameMillisecondKeepsBothFiles(t *testing.T) {
	ctx := context.Background()
	store, err := blob.NewLocalStore(t.TempDir(), "", "")
	require.NoError(t, err)
	svc, _ := newTestService(t, store)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	contents := []string{"first scan bytes", "second, different contents"}
	recs := make([]*models.UploadedFile, len(contents))
	for i, body := range contents {
		rec, err := svc.Save(ctx, "u1", NewFile{Name: "scan.png", ContentType: "image/png", Size: int64(len(body)), Reader: strings.NewReader(body)}, nil)
		require.NoError(t, err)
		recs[i] = rec
	}
	require.NotEqual(t, recs[0].StoragePath, recs[1].StoragePath)

	for i, rec := range recs {
		token := rec.StorageLocation[strings.LastIndex(rec.StorageLocation, "/")+1:]
		rc, key, err := store.Open(token)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, rec.StoragePath, key)
		assert.Equal(t, contents[i], string(data))
	}

	outcome, err := svc.DeleteRecord(ctx, recs[0])
	require.NoError(t, err)
	assert.Equal(t, DeleteOutcomeRemoved, outcome)
	outcome, err = svc.DeleteRecord(ctx, recs[1])
	require.NoError(t, err)
	assert.Equal(t, DeleteOutcomeRemoved, outcome)
}

// expiringBlobs hands out a new link on every URL call, like a presigning store.
type expiringBlobs struct {
	*blob.LocalStore
	issued int
}

func (e *expiringBlobs) URL(_ context.Context, key string) (string, error) {
	e.issued++
	return fmt.Sprintf("https://signed.test/%s?sig=%d", key, e.issued), nil
}

func (e *expiringBlobs) URLsExpire() bool { return true }

func TestListReissuesExpiringURLs(t *testing.T) {
	ctx := context.Background()
	local, err := blob.NewLocalStore(t.TempDir(), "", "")
	require.NoError(t, err)
	store := &expiringBlobs{LocalStore: local}
	svc, _ := newTestService(t, store)

	rec, err := svc.Save(ctx, "u1", NewFile{Name: "a.txt", ContentType: "text/plain", Size: 1, Reader: strings.NewReader("a")}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(rec.StorageLocation, "?sig=1"))

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "https://signed.test/"+rec.StoragePath+"?sig=2", list[0].StorageLocation)

	list, err = svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(list[0].StorageLocation, "?sig=3"))
}
