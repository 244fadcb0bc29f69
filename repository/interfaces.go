package repository

import (
	"github.com/ostanek/reconbackend/database"
	"github.com/ostanek/reconbackend/models"
)

// DirectoryRepositoryInterface defines the methods for directory tracking
// operations. The scanner, worker pool and HTTP handlers all depend on this
// interface rather than the concrete GORM-backed implementation
type DirectoryRepositoryInterface interface {
	Upsert(name, fullPath string, imageCount int64, fileSizeMB float64) (int64, error)
	SetStatus(name, status string, opts StatusUpdate) error
	GetByName(name string) (*models.Directory, error)

	ListByStatus(status string) ([]models.Directory, error)
	ListPending() ([]models.Directory, error)
	ListQueued() ([]models.Directory, error)
	ListCompleted() ([]models.Directory, error)
	ListFailed() ([]models.Directory, error)

	History(name string) ([]models.ProcessingLog, error)
	Stats() (database.ProcessingStats, error)

	ResetProcessing(names []string) (int64, error)
	Cleanup(olderThanDays int) (int64, error)
	ExportSnapshot(path string) error
}
