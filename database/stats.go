package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// ProcessingStats is a point-in-time aggregate over the directories table.
// JSON field names match the report keys consumed by the UI layer
type ProcessingStats struct {
	StatusCounts           map[string]int64 `json:"status_counts"`
	TotalProcessingTime    int64            `json:"total_processing_time"`
	AverageProcessingTime  float64          `json:"average_processing_time"`
	TotalImagesProcessed   int64            `json:"total_images_processed"`
	TotalFileSizeMB        float64          `json:"total_file_size_mb"`
	ExposureCorrectedCount int64            `json:"directories_with_exposure_correction"`
}

// GetProcessingStats computes overall processing statistics. An empty store
// yields zero counts and zero averages, not an error
func GetProcessingStats(db *sql.DB) (ProcessingStats, error) {
	stats := ProcessingStats{StatusCounts: make(map[string]int64)}

	countQuery := psql.Select("status", "COUNT(*)").
		From("directories").
		GroupBy("status")

	sqlStr, args, err := countQuery.ToSql()
	if err != nil {
		return stats, fmt.Errorf("failed to build status count query: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return stats, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("failed to scan status count row: %w", err)
		}
		stats.StatusCounts[status] = count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("failed iterating status count rows: %w", err)
	}

	timeQuery := psql.Select(
		"COALESCE(SUM(processing_time_seconds), 0)",
		"COALESCE(AVG(processing_time_seconds), 0)",
	).
		From("directories").
		Where(sq.Eq{"status": StatusCompleted}).
		Where(sq.Gt{"processing_time_seconds": 0})

	sqlStr, args, err = timeQuery.ToSql()
	if err != nil {
		return stats, fmt.Errorf("failed to build processing time query: %w", err)
	}
	err = db.QueryRow(sqlStr, args...).Scan(&stats.TotalProcessingTime, &stats.AverageProcessingTime)
	if err != nil {
		return stats, fmt.Errorf("failed to query processing time stats: %w", err)
	}

	imagesQuery := psql.Select("COALESCE(SUM(image_count), 0)").
		From("directories").
		Where(sq.Eq{"status": StatusCompleted})

	sqlStr, args, err = imagesQuery.ToSql()
	if err != nil {
		return stats, fmt.Errorf("failed to build image total query: %w", err)
	}
	err = db.QueryRow(sqlStr, args...).Scan(&stats.TotalImagesProcessed)
	if err != nil {
		return stats, fmt.Errorf("failed to query image totals: %w", err)
	}

	sizeQuery := psql.Select("COALESCE(SUM(file_size_mb), 0)").From("directories")
	sqlStr, args, err = sizeQuery.ToSql()
	if err != nil {
		return stats, fmt.Errorf("failed to build size total query: %w", err)
	}
	err = db.QueryRow(sqlStr, args...).Scan(&stats.TotalFileSizeMB)
	if err != nil {
		return stats, fmt.Errorf("failed to query size totals: %w", err)
	}

	exposureQuery := psql.Select("COUNT(*)").
		From("directories").
		Where(sq.Eq{"status": StatusCompleted}).
		Where(sq.Eq{"has_exposure_correction": true})

	sqlStr, args, err = exposureQuery.ToSql()
	if err != nil {
		return stats, fmt.Errorf("failed to build exposure count query: %w", err)
	}
	err = db.QueryRow(sqlStr, args...).Scan(&stats.ExposureCorrectedCount)
	if err != nil {
		return stats, fmt.Errorf("failed to query exposure correction count: %w", err)
	}

	return stats, nil
}
