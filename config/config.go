package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// engine types accepted by ENGINE_TYPE
const (
	EngineRealityCapture = "realitycapture"
	EngineRealityScan    = "realityscan"
	EngineAuto           = "auto"
)

const (
	defaultMinImages           = 300
	defaultScanIntervalSeconds = 300
	defaultExposureAdjustment  = -0.5
	defaultExposureWorkers     = 4
	defaultNumReconWorkers     = 1
	defaultReconQueueSize      = 50
	defaultBusyTimeoutMS       = 10000
	defaultEngineTimeoutMin    = 120
)

type Config struct {
	// source directory (where photo set folders are discovered)
	InputDirectory string

	// destination root for generated 3D models
	OutputDirectory string

	// database path
	DatabasePath string

	// external photogrammetry engine
	EnginePath    string
	EngineType    string // realitycapture, realityscan or auto
	EngineTimeout time.Duration

	// discovery settings
	MinImages    int64
	ScanInterval time.Duration

	// exposure correction settings
	EnableExposureCorrection bool
	ExposureAdjustment       float64 // stops, negative = darker
	KeepOriginals            bool
	ExposureWorkers          int

	// pre-flight sharpness check (0 disables)
	MinSharpness float64

	// reconstruction worker settings
	NumReconWorkers int
	ReconQueueSize  int

	// store lock wait bound
	BusyTimeout time.Duration
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

// detectEngineType resolves ENGINE_TYPE=auto from the executable name,
// following the original automation tool's convention
func detectEngineType(engineType, enginePath string) string {
	if engineType != EngineAuto {
		return engineType
	}
	if strings.Contains(strings.ToLower(filepath.Base(enginePath)), "realityscan") {
		return EngineRealityScan
	}
	return EngineRealityCapture
}

func LoadConfig() (Config, error) {
	input := getEnvOrDefault("INPUT_DIRECTORY", ".")
	absInput, err := filepath.Abs(input)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for input directory '%s': %w", input, err)
	}

	output := getEnvOrDefault("OUTPUT_DIRECTORY", filepath.Join(".", "models"))
	absOutput, err := filepath.Abs(output)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for output directory '%s': %w", output, err)
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", "processing_database.db")

	enginePath := getEnvOrDefault("ENGINE_PATH", "")
	engineType := getEnvOrDefault("ENGINE_TYPE", EngineAuto)
	switch engineType {
	case EngineRealityCapture, EngineRealityScan, EngineAuto:
	default:
		return Config{}, fmt.Errorf("invalid ENGINE_TYPE '%s': must be %s, %s or %s",
			engineType, EngineRealityCapture, EngineRealityScan, EngineAuto)
	}
	engineType = detectEngineType(engineType, enginePath)

	cfg := Config{
		InputDirectory:           absInput,
		OutputDirectory:          absOutput,
		DatabasePath:             dbPath,
		EnginePath:               enginePath,
		EngineType:               engineType,
		EngineTimeout:            time.Duration(getEnvIntOrDefault("ENGINE_TIMEOUT_MINUTES", defaultEngineTimeoutMin)) * time.Minute,
		MinImages:                int64(getEnvIntOrDefault("MIN_IMAGES", defaultMinImages)),
		ScanInterval:             time.Duration(getEnvIntOrDefault("SCAN_INTERVAL_SECONDS", defaultScanIntervalSeconds)) * time.Second,
		EnableExposureCorrection: getEnvBoolOrDefault("ENABLE_EXPOSURE_CORRECTION", true),
		ExposureAdjustment:       getEnvFloatOrDefault("EXPOSURE_ADJUSTMENT", defaultExposureAdjustment),
		KeepOriginals:            getEnvBoolOrDefault("KEEP_ORIGINALS", true),
		ExposureWorkers:          getEnvIntOrDefault("EXPOSURE_WORKERS", defaultExposureWorkers),
		MinSharpness:             getEnvFloatOrDefault("MIN_SHARPNESS", 0),
		NumReconWorkers:          getEnvIntOrDefault("NUM_RECON_WORKERS", defaultNumReconWorkers),
		ReconQueueSize:           getEnvIntOrDefault("RECON_QUEUE_SIZE", defaultReconQueueSize),
		BusyTimeout:              time.Duration(getEnvIntOrDefault("DB_BUSY_TIMEOUT_MS", defaultBusyTimeoutMS)) * time.Millisecond,
	}

	return cfg, nil
}
