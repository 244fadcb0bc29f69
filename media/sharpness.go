package media

import (
	"fmt"
	"log"

	"gocv.io/x/gocv"
)

// SharpnessAnalyzer scores images by variance of the Laplacian, a standard
// focus measure. Blurry photo sets reconstruct poorly, so the worker runs
// this over a small sample before handing a set to the engine
type SharpnessAnalyzer struct {
	Enabled bool

	// minimum acceptable average score; sets below it get a warning
	MinSharpness float64
}

// NewSharpnessAnalyzer returns an analyzer that is disabled when
// minSharpness is zero or negative
func NewSharpnessAnalyzer(minSharpness float64) *SharpnessAnalyzer {
	if minSharpness <= 0 {
		log.Println("sharpness: threshold not set, disabling pre-flight check")
		return &SharpnessAnalyzer{Enabled: false}
	}
	return &SharpnessAnalyzer{Enabled: true, MinSharpness: minSharpness}
}

// Measure returns the Laplacian variance of the image at path. Higher means
// sharper; values near zero indicate heavy blur
func (a *SharpnessAnalyzer) Measure(path string) (float64, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		return 0, fmt.Errorf("sharpness: failed to read image %s", path)
	}
	defer img.Close()

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(img, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stdDev := gocv.NewMat()
	defer stdDev.Close()
	gocv.MeanStdDev(lap, &mean, &stdDev)

	sd := stdDev.GetDoubleAt(0, 0)
	return sd * sd, nil
}

// CheckDirectory measures up to sampleSize evenly spaced images from dir
// and reports the average score and whether it clears the threshold. An
// empty or unreadable sample passes; the check only ever warns
func (a *SharpnessAnalyzer) CheckDirectory(dir string, sampleSize int) (float64, bool) {
	if !a.Enabled {
		return 0, true
	}
	paths, err := ListImageFiles(dir)
	if err != nil || len(paths) == 0 {
		return 0, true
	}
	if sampleSize <= 0 {
		sampleSize = 1
	}
	if sampleSize > len(paths) {
		sampleSize = len(paths)
	}

	step := len(paths) / sampleSize
	var sum float64
	var measured int
	for i := 0; i < sampleSize; i++ {
		score, err := a.Measure(paths[i*step])
		if err != nil {
			continue
		}
		sum += score
		measured++
	}
	if measured == 0 {
		return 0, true
	}

	avg := sum / float64(measured)
	return avg, avg >= a.MinSharpness
}
