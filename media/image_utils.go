package media

import (
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/facette/natsort"
)

var supportedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".tiff": true, ".tif": true, ".bmp": true, ".raw": true,
}

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// ListImageFiles returns the image files directly inside dir in natural
// sort order (IMG_2 before IMG_10). Subdirectories are not descended into;
// a photo set is always a flat directory of captures
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsRasterImage(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	natsort.Sort(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// ScanDirectory counts the image files in dir and totals their size in MB
func ScanDirectory(dir string) (int64, float64, error) {
	paths, err := ListImageFiles(dir)
	if err != nil {
		return 0, 0, err
	}

	var totalBytes int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			// file may have been moved mid-scan; count it, size unknown
			continue
		}
		totalBytes += info.Size()
	}
	return int64(len(paths)), float64(totalBytes) / (1024 * 1024), nil
}
