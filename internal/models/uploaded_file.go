package models

import "time"

// UploadedFile is the metadata record of a stored blob. JSON names follow the
// document shape clients already consume.
type UploadedFile struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	FileName        string    `json:"fileName"`
	FileType        string    `json:"fileType"`
	FileSize        int64     `json:"fileSize"`
	UploadDate      time.Time `json:"uploadDate"`
	StorageLocation string    `json:"storageLocation"`
	StoragePath     string    `json:"-"`
}
