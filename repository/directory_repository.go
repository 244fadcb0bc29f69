package repository

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/ostanek/reconbackend/database"
	"github.com/ostanek/reconbackend/models"
)

// log entry actions
const (
	ActionDirectoryAdded   = "directory_added"
	ActionDirectoryUpdated = "directory_updated"
	ActionStatusChanged    = "status_changed"
)

// StatusUpdate carries the optional fields written alongside a status
// transition. All of them are persisted on every SetStatus call; callers
// that omit them reset the columns to their zero values
type StatusUpdate struct {
	ErrorMessage          *string
	ProcessingTimeSeconds int64
	HasExposureCorrection bool
}

// DirectoryRepository handles database operations for tracked photo
// directories and their audit log
type DirectoryRepository struct {
	DB *gorm.DB
}

// NewDirectoryRepository creates a new instance of DirectoryRepository
func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{DB: db}
}

// wrapBusy maps SQLite lock contention onto the retryable ErrTimeout
// sentinel so callers can distinguish it from hard failures
func wrapBusy(err error) error {
	if err == nil {
		return nil
	}
	if database.IsBusy(err) {
		return fmt.Errorf("%w: %v", database.ErrTimeout, err)
	}
	return err
}

// appendLog inserts an audit entry inside the caller's transaction. Audit
// durability is secondary to status durability: a failed insert is logged
// and discarded instead of aborting the enclosing write
func appendLog(tx *gorm.DB, directoryID int64, action, message string) {
	entry := models.ProcessingLog{
		DirectoryID: directoryID,
		Action:      action,
		Message:     message,
		Timestamp:   time.Now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		log.Printf("repository: failed to append %q log entry for directory %d: %v", action, directoryID, err)
	}
}

// Upsert registers a directory by name or refreshes an existing record's
// path, image count and size. The existence check, the write and the audit
// append run in one transaction. The record's status is never touched here.
// Returns the (possibly pre-existing) surrogate id
func (r *DirectoryRepository) Upsert(name, fullPath string, imageCount int64, fileSizeMB float64) (int64, error) {
	var id int64
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.Directory
		err := tx.Where("name = ?", name).First(&existing).Error
		switch {
		case err == nil:
			updates := map[string]interface{}{
				"full_path":    fullPath,
				"image_count":  imageCount,
				"file_size_mb": fileSizeMB,
				"updated_at":   time.Now(),
			}
			if err := tx.Model(&models.Directory{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update directory %s: %w", name, err)
			}
			id = existing.ID
			appendLog(tx, id, ActionDirectoryUpdated,
				fmt.Sprintf("Updated: %d images, %.1f MB", imageCount, fileSizeMB))
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			dir := models.Directory{
				Name:       name,
				FullPath:   fullPath,
				Status:     database.StatusPending,
				ImageCount: imageCount,
				FileSizeMB: fileSizeMB,
			}
			if err := tx.Create(&dir).Error; err != nil {
				return fmt.Errorf("failed to insert directory %s: %w", name, err)
			}
			id = dir.ID
			appendLog(tx, id, ActionDirectoryAdded,
				fmt.Sprintf("Added: %d images, %.1f MB", imageCount, fileSizeMB))
			return nil
		default:
			return fmt.Errorf("failed to look up directory %s: %w", name, err)
		}
	})
	if err != nil {
		return 0, wrapBusy(err)
	}
	return id, nil
}

// SetStatus transitions a directory to the given status, stamping
// processed_at only when the target status is completed. error_message,
// processing_time_seconds and has_exposure_correction are always written.
// Unknown names yield ErrNotFound; unknown status tokens are rejected
// before any row is touched
func (r *DirectoryRepository) SetStatus(name, status string, opts StatusUpdate) error {
	if !database.IsValidStatus(status) {
		return fmt.Errorf("%w: %q", database.ErrInvalidStatus, status)
	}

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var dir models.Directory
		if err := tx.Where("name = ?", name).First(&dir).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return database.ErrNotFound
			}
			return fmt.Errorf("failed to look up directory %s: %w", name, err)
		}

		updates := map[string]interface{}{
			"status":                  status,
			"error_message":           opts.ErrorMessage,
			"processing_time_seconds": opts.ProcessingTimeSeconds,
			"has_exposure_correction": opts.HasExposureCorrection,
			"updated_at":              time.Now(),
		}
		if status == database.StatusCompleted {
			now := time.Now()
			updates["processed_at"] = &now
		}

		if err := tx.Model(&models.Directory{}).Where("id = ?", dir.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update status for %s: %w", name, err)
		}

		message := fmt.Sprintf("Status changed to: %s", status)
		if opts.ErrorMessage != nil && *opts.ErrorMessage != "" {
			message += fmt.Sprintf(" - Error: %s", *opts.ErrorMessage)
		}
		if opts.ProcessingTimeSeconds > 0 {
			message += fmt.Sprintf(" - Time: %ds", opts.ProcessingTimeSeconds)
		}
		appendLog(tx, dir.ID, ActionStatusChanged, message)
		return nil
	})
	return wrapBusy(err)
}

// GetByName retrieves a directory record by its logical name
func (r *DirectoryRepository) GetByName(name string) (*models.Directory, error) {
	var dir models.Directory
	err := r.DB.Where("name = ?", name).First(&dir).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get directory %s: %w", name, err)
	}
	return &dir, nil
}

// ListByStatus returns all directories with the given status ordered by
// creation time, oldest first
func (r *DirectoryRepository) ListByStatus(status string) ([]models.Directory, error) {
	if !database.IsValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", database.ErrInvalidStatus, status)
	}
	var dirs []models.Directory
	err := r.DB.Where("status = ?", status).Order("created_at ASC").Find(&dirs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list directories by status %s: %w", status, wrapBusy(err))
	}
	return dirs, nil
}

// ListPending returns all directories ready for processing
func (r *DirectoryRepository) ListPending() ([]models.Directory, error) {
	return r.ListByStatus(database.StatusPending)
}

// ListQueued returns all directories waiting on more images
func (r *DirectoryRepository) ListQueued() ([]models.Directory, error) {
	return r.ListByStatus(database.StatusQueued)
}

// ListCompleted returns all successfully processed directories
func (r *DirectoryRepository) ListCompleted() ([]models.Directory, error) {
	return r.ListByStatus(database.StatusCompleted)
}

// ListFailed returns all directories whose processing failed
func (r *DirectoryRepository) ListFailed() ([]models.Directory, error) {
	return r.ListByStatus(database.StatusFailed)
}

// History returns the audit log for a directory, newest first. Unknown
// names yield an empty slice, not an error
func (r *DirectoryRepository) History(name string) ([]models.ProcessingLog, error) {
	var dir models.Directory
	err := r.DB.Select("id").Where("name = ?", name).First(&dir).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []models.ProcessingLog{}, nil
		}
		return nil, fmt.Errorf("failed to resolve directory %s for history: %w", name, err)
	}

	var entries []models.ProcessingLog
	err = r.DB.Where("directory_id = ?", dir.ID).
		Order("timestamp DESC").Order("id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", name, wrapBusy(err))
	}
	return entries, nil
}

// Stats computes aggregate processing statistics via the underlying sql.DB
func (r *DirectoryRepository) Stats() (database.ProcessingStats, error) {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return database.ProcessingStats{}, fmt.Errorf("failed to get sql.DB for stats: %w", err)
	}
	return database.GetProcessingStats(sqlDB)
}

// ResetProcessing moves directories stuck in 'processing' back to 'pending'.
// Without a name filter it is the crash-recovery sweep run at startup; with
// a filter it also retries 'failed' directories. Returns the number of rows
// affected; calling it when nothing qualifies is a no-op
func (r *DirectoryRepository) ResetProcessing(names []string) (int64, error) {
	query := r.DB.Model(&models.Directory{})
	if len(names) > 0 {
		query = query.Where("name IN ?", names).
			Where("status IN ?", []string{database.StatusProcessing, database.StatusFailed})
	} else {
		query = query.Where("status = ?", database.StatusProcessing)
	}

	result := query.Updates(map[string]interface{}{
		"status":     database.StatusPending,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset processing status: %w", wrapBusy(result.Error))
	}
	if result.RowsAffected > 0 {
		log.Printf("repository: reset %d directories to '%s'", result.RowsAffected, database.StatusPending)
	}
	return result.RowsAffected, nil
}

// Cleanup deletes completed or failed directories whose last update is
// older than the cutoff, cascading to their log entries in the same
// transaction. Transient directories are never removed regardless of age
func (r *DirectoryRepository) Cleanup(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	var affected int64
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var ids []int64
		err := tx.Model(&models.Directory{}).
			Where("status IN ?", database.TerminalStatuses).
			Where("updated_at < ?", cutoff).
			Pluck("id", &ids).Error
		if err != nil {
			return fmt.Errorf("failed to select stale directories: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("directory_id IN ?", ids).Delete(&models.ProcessingLog{}).Error; err != nil {
			return fmt.Errorf("failed to delete log entries for stale directories: %w", err)
		}

		result := tx.Where("id IN ?", ids).Delete(&models.Directory{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete stale directories: %w", result.Error)
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, wrapBusy(err)
	}
	if affected > 0 {
		log.Printf("repository: cleaned up %d directory entries older than %d days", affected, olderThanDays)
	}
	return affected, nil
}
