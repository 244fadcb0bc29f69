package models

import "time"

// Directory represents one tracked photo directory in the database using GORM.
// It corresponds to the 'directories' table. One row exists per logical
// directory name; rediscovery updates the row in place.
type Directory struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string `gorm:"uniqueIndex;not null" json:"name"`
	FullPath string `gorm:"column:full_path;not null" json:"full_path"`

	Status string `gorm:"not null;default:pending;index" json:"status"`

	ImageCount int64   `gorm:"column:image_count;not null;default:0" json:"image_count"`
	FileSizeMB float64 `gorm:"column:file_size_mb;not null;default:0" json:"file_size_mb"`

	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
	ProcessedAt *time.Time `gorm:"" json:"processed_at"` // Nullable, set only on completion

	ErrorMessage          *string `gorm:"" json:"error_message"` // Nullable
	ProcessingTimeSeconds int64   `gorm:"column:processing_time_seconds;not null;default:0" json:"processing_time_seconds"`
	HasExposureCorrection bool    `gorm:"column:has_exposure_correction;not null;default:false" json:"has_exposure_correction"`
}

// TableName explicitly sets the table name for GORM.
func (Directory) TableName() string {
	return "directories"
}

// ProcessingLog is an append-only audit entry tied to a directory record.
// It corresponds to the 'processing_log' table. Entries are never mutated;
// they are removed only when retention cleanup deletes their directory.
type ProcessingLog struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DirectoryID int64     `gorm:"column:directory_id;index" json:"directory_id"`
	Action      string    `gorm:"not null" json:"action"`
	Message     string    `gorm:"" json:"message"`
	Timestamp   time.Time `gorm:"not null" json:"timestamp"`
}

// TableName explicitly sets the table name for GORM.
func (ProcessingLog) TableName() string {
	return "processing_log"
}
