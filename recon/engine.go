package recon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ostanek/reconbackend/config"
)

// Engine runs an external photogrammetry tool over a photo directory and
// writes model files into an output directory. It must never be called
// while a store transaction is open; only its result is persisted
type Engine interface {
	Name() string
	Reconstruct(photoDir, outputDir string) error
}

// CLIEngine drives RealityCapture or RealityScan through their headless
// command line interfaces
type CLIEngine struct {
	ExePath string
	Type    string // config.EngineRealityCapture or config.EngineRealityScan
	Timeout time.Duration
}

func NewCLIEngine(exePath, engineType string, timeout time.Duration) *CLIEngine {
	return &CLIEngine{ExePath: exePath, Type: engineType, Timeout: timeout}
}

func (e *CLIEngine) Name() string {
	return e.Type
}

// buildArgs assembles the headless pipeline: load the photo folder, align,
// build and export the mesh, texture it, export again, save and quit. The
// two tools differ in project extension, export syntax and the automatic
// reconstruction region step
func (e *CLIEngine) buildArgs(photoDir, outputDir, name string) []string {
	objPath := filepath.Join(outputDir, name+".obj")
	texturedPath := filepath.Join(outputDir, name+"_textured.obj")

	if e.Type == config.EngineRealityScan {
		projectFile := filepath.Join(outputDir, name+".rsproj")
		return []string{
			"-headless",
			"-addFolder", photoDir,
			"-save", projectFile,
			"-align",
			"-selectMaximalComponent",
			"-setReconstructionRegionAuto",
			"-calculateNormalModel",
			"-exportModel", "Model 1", objPath,
			"-calculateTexture",
			"-exportModel", "Model 1", texturedPath,
			"-save", projectFile,
			"-quit",
		}
	}

	projectFile := filepath.Join(outputDir, name+".rcproj")
	return []string{
		"-headless",
		"-addFolder", photoDir,
		"-save", projectFile,
		"-align",
		"-selectMaximalComponent",
		"-calculateNormalModel",
		"-exportSelectedModel", objPath, "-exportFormat", "obj",
		"-calculateTexture",
		"-exportSelectedModel", texturedPath, "-exportFormat", "obj",
		"-save", projectFile,
		"-quit",
	}
}

// Reconstruct runs the engine over photoDir with a hard timeout and
// verifies that a model file was actually produced. The output directory's
// base name doubles as the model name
func (e *CLIEngine) Reconstruct(photoDir, outputDir string) error {
	name := filepath.Base(outputDir)
	args := e.buildArgs(photoDir, outputDir, name)

	ctx, cancel := context.WithTimeout(context.Background(), e.Timeout)
	defer cancel()

	log.Printf("engine(%s): starting reconstruction of %s", e.Type, name)
	cmd := exec.CommandContext(ctx, e.ExePath, args...)
	output, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("engine(%s): reconstruction of %s timed out after %s", e.Type, name, e.Timeout)
	}
	if err != nil {
		return fmt.Errorf("engine(%s): reconstruction of %s failed: %w: %s", e.Type, name, err, truncate(string(output), 2000))
	}

	objPath := filepath.Join(outputDir, name+".obj")
	if _, err := os.Stat(objPath); err != nil {
		return fmt.Errorf("engine(%s): %s exited cleanly but exported no model at %s", e.Type, name, objPath)
	}

	log.Printf("engine(%s): exported model for %s", e.Type, name)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
