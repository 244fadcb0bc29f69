package utils

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// CameraInfo is the subset of EXIF data logged when a photo set is first
// discovered
type CameraInfo struct {
	Make    *string
	Model   *string
	TakenAt *time.Time
}

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val := strings.Trim(strings.TrimRight(tag.String(), "\x00"), "\"")
	if val == "" {
		return nil
	}
	return &val
}

// GetCameraInfo extracts camera make/model and capture time from an image
// file's EXIF data. A file without EXIF yields an empty CameraInfo, not an
// error
func GetCameraInfo(filePath string) (*CameraInfo, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	exifData, err := exif.Decode(file)
	if err != nil {
		// not necessarily a problem, file might just lack EXIF data
		return &CameraInfo{}, nil
	}

	info := &CameraInfo{
		Make:  getString(exifData, exif.Make),
		Model: getString(exifData, exif.Model),
	}
	if taken, err := exifData.DateTime(); err == nil {
		info.TakenAt = &taken
	}
	return info, nil
}

// String renders the camera info for log output
func (ci *CameraInfo) String() string {
	parts := []string{}
	if ci.Make != nil {
		parts = append(parts, *ci.Make)
	}
	if ci.Model != nil {
		parts = append(parts, *ci.Model)
	}
	if len(parts) == 0 {
		return "unknown camera"
	}
	s := strings.Join(parts, " ")
	if ci.TakenAt != nil {
		s += fmt.Sprintf(" (shot %s)", ci.TakenAt.Format("2006-01-02"))
	}
	return s
}
