package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/ostanek/reconbackend/models"
)

// Snapshot is the self-describing backup document produced by
// ExportSnapshot. Field names match the underlying column names exactly
type Snapshot struct {
	Directories     []models.Directory     `json:"directories"`
	ProcessingLog   []models.ProcessingLog `json:"processing_log"`
	ExportTimestamp string                 `json:"export_timestamp"`
}

// ExportSnapshot serializes both tables plus an export timestamp to a JSON
// file at path. Both reads run in a single transaction so the snapshot is a
// consistent point-in-time view, never a union of reads taken at different
// times
func (r *DirectoryRepository) ExportSnapshot(path string) error {
	snapshot := Snapshot{
		Directories:   []models.Directory{},
		ProcessingLog: []models.ProcessingLog{},
	}

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("created_at ASC").Find(&snapshot.Directories).Error; err != nil {
			return fmt.Errorf("failed to read directories for export: %w", err)
		}
		if err := tx.Order("timestamp ASC").Find(&snapshot.ProcessingLog).Error; err != nil {
			return fmt.Errorf("failed to read processing log for export: %w", err)
		}
		return nil
	})
	if err != nil {
		return wrapBusy(err)
	}

	snapshot.ExportTimestamp = time.Now().Format(time.RFC3339)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot to %s: %w", path, err)
	}
	return nil
}
