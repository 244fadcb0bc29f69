package media

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

// overexposure thresholds on HSL lightness, in percent
const (
	overexposedMaxLightness  = 95.0
	overexposedMeanLightness = 70.0

	// analysis subsamples the image on a fixed grid to keep per-photo cost
	// bounded on large captures
	analysisGridSize = 256
)

// CorrectedDirSuffix is appended to a photo set's name when corrected
// copies are written alongside the originals
const CorrectedDirSuffix = "_corrected"

// ExposureInfo is the analysis result for a single image
type ExposureInfo struct {
	MeanLightness float64
	MaxLightness  float64
	Overexposed   bool
}

// ExposureStats summarizes one directory's correction pass
type ExposureStats struct {
	Total       int
	Overexposed int
	Corrected   int
}

// ExposureCorrector darkens overexposed captures before reconstruction.
// It processes one directory's images with a bounded pool of goroutines
type ExposureCorrector struct {
	Adjustment    float64 // stops, negative = darker
	Workers       int
	KeepOriginals bool
}

func NewExposureCorrector(adjustment float64, workers int, keepOriginals bool) *ExposureCorrector {
	if workers <= 0 {
		workers = 1
	}
	return &ExposureCorrector{
		Adjustment:    adjustment,
		Workers:       workers,
		KeepOriginals: keepOriginals,
	}
}

// AnalyzeExposure computes mean and peak HSL lightness over a subsampled
// grid and flags the image as overexposed when either crosses its threshold
func AnalyzeExposure(img image.Image) ExposureInfo {
	bounds := img.Bounds()
	stepX := bounds.Dx() / analysisGridSize
	stepY := bounds.Dy() / analysisGridSize
	if stepX < 1 {
		stepX = 1
	}
	if stepY < 1 {
		stepY = 1
	}

	var sum, peak float64
	var samples int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			rf := float64(r) / 65535.0
			gf := float64(g) / 65535.0
			bf := float64(b) / 65535.0
			// HSL lightness: midpoint of the channel extremes
			l := (math.Max(rf, math.Max(gf, bf)) + math.Min(rf, math.Min(gf, bf))) / 2.0 * 100.0
			sum += l
			if l > peak {
				peak = l
			}
			samples++
		}
	}
	if samples == 0 {
		return ExposureInfo{}
	}

	mean := sum / float64(samples)
	return ExposureInfo{
		MeanLightness: mean,
		MaxLightness:  peak,
		Overexposed:   peak > overexposedMaxLightness || mean > overexposedMeanLightness,
	}
}

// correct applies the correction chain: a slight saturation lift, a linear
// multiply of 2^adjustment stops, sigmoidal contrast to pull highlights
// back, and a light unsharp pass
func (c *ExposureCorrector) correct(img image.Image) image.Image {
	scale := math.Pow(2, c.Adjustment)
	clamp := func(v float64) uint8 {
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(v + 0.5)
	}

	out := imaging.AdjustSaturation(img, 10)
	out = imaging.AdjustFunc(out, func(px color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp(float64(px.R) * scale),
			G: clamp(float64(px.G) * scale),
			B: clamp(float64(px.B) * scale),
			A: px.A,
		}
	})
	out = imaging.AdjustSigmoid(out, 0.5, 3.0)
	return imaging.Sharpen(out, 0.5)
}

// CorrectDirectory runs exposure correction over every image in srcDir and
// returns the directory reconstruction should read from. With KeepOriginals
// the corrected set lands in <srcDir>_corrected; otherwise images are
// corrected in place with an _original backup per modified file
func (c *ExposureCorrector) CorrectDirectory(srcDir string) (string, ExposureStats, error) {
	paths, err := ListImageFiles(srcDir)
	if err != nil {
		return srcDir, ExposureStats{}, err
	}
	if len(paths) == 0 {
		log.Printf("exposure: no images found in %s, skipping correction", srcDir)
		return srcDir, ExposureStats{}, nil
	}

	outDir := srcDir
	if c.KeepOriginals {
		outDir = srcDir + CorrectedDirSuffix
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return srcDir, ExposureStats{}, fmt.Errorf("failed to create corrected directory %s: %w", outDir, err)
		}
	}

	var (
		stats ExposureStats
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	stats.Total = len(paths)

	jobs := make(chan string)
	wg.Add(c.Workers)
	for i := 0; i < c.Workers; i++ {
		go func() {
			defer wg.Done()
			for src := range jobs {
				overexposed, corrected := c.processImage(src, outDir)
				mu.Lock()
				if overexposed {
					stats.Overexposed++
				}
				if corrected {
					stats.Corrected++
				}
				mu.Unlock()
			}
		}()
	}
	for _, p := range paths {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	log.Printf("exposure: %s complete: %d images, %d overexposed, %d corrected",
		filepath.Base(srcDir), stats.Total, stats.Overexposed, stats.Corrected)
	return outDir, stats, nil
}

// processImage handles one capture: analyze, correct or copy through.
// Failures degrade to copying the original so the reconstruction input set
// always stays complete
func (c *ExposureCorrector) processImage(src, outDir string) (overexposed, corrected bool) {
	dst := filepath.Join(outDir, filepath.Base(src))
	inPlace := dst == src

	img, err := imaging.Open(src)
	if err != nil {
		// unreadable or unsupported format (e.g. camera raw): pass through
		log.Printf("exposure: cannot decode %s, copying unmodified: %v", filepath.Base(src), err)
		if !inPlace {
			c.copyThrough(src, dst)
		}
		return false, false
	}

	info := AnalyzeExposure(img)
	if !info.Overexposed {
		if !inPlace {
			c.copyThrough(src, dst)
		}
		return false, false
	}

	if inPlace {
		ext := filepath.Ext(src)
		backup := strings.TrimSuffix(src, ext) + "_original" + ext
		if _, err := os.Stat(backup); os.IsNotExist(err) {
			if copyErr := copyFile(src, backup); copyErr != nil {
				log.Printf("exposure: failed to back up %s, leaving original untouched: %v", filepath.Base(src), copyErr)
				return true, false
			}
		}
	}

	if err := imaging.Save(c.correct(img), dst, imaging.JPEGQuality(95)); err != nil {
		log.Printf("exposure: failed to save corrected %s, using original: %v", filepath.Base(src), err)
		if !inPlace {
			c.copyThrough(src, dst)
		}
		return true, false
	}
	return true, true
}

func (c *ExposureCorrector) copyThrough(src, dst string) {
	if _, err := os.Stat(dst); err == nil {
		return
	}
	if err := copyFile(src, dst); err != nil {
		log.Printf("exposure: failed to copy %s: %v", filepath.Base(src), err)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
