package domain

import (
	"time"

	"github.com/google/uuid"
)

type ImportedFile struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name          string    `json:"name" gorm:"not null"`
	MimeType      string    `json:"mime_type" gorm:"not null"`
	Size          int64     `json:"size" gorm:"not null"`
	GoogleDriveID string    `json:"google_drive_id" gorm:"not null;index"`
	StoragePath   string    `json:"-" gorm:"not null"`
	ImportedAt    time.Time `json:"imported_at" gorm:"not null;index"`
}
