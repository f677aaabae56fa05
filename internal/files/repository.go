package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"medoai/internal/models"
)

// Repository persists file metadata records.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, rec *models.UploadedFile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO uploaded_files (id, user_id, file_name, file_type, file_size, upload_date, storage_location, storage_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.FileName, rec.FileType, rec.FileSize, rec.UploadDate.UTC(), rec.StorageLocation, rec.StoragePath,
	)
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

// ListByUser returns records newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]*models.UploadedFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, file_name, file_type, file_size, upload_date, storage_location, storage_path
		FROM uploaded_files WHERE user_id = ? ORDER BY upload_date DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.UploadedFile, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file records: %w", err)
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, userID, id string) (*models.UploadedFile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, file_name, file_type, file_size, upload_date, storage_location, storage_path
		FROM uploaded_files WHERE user_id = ? AND id = ?`, userID, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM uploaded_files WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.UploadedFile, error) {
	var (
		rec      models.UploadedFile
		uploaded time.Time
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.FileName, &rec.FileType, &rec.FileSize, &uploaded, &rec.StorageLocation, &rec.StoragePath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan file record: %w", err)
	}
	rec.UploadDate = uploaded.UTC()
	return &rec, nil
}
