package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/ostanek/reconbackend/config"
	"github.com/ostanek/reconbackend/database"
	"github.com/ostanek/reconbackend/handlers"
	"github.com/ostanek/reconbackend/media"
	"github.com/ostanek/reconbackend/recon"
	"github.com/ostanek/reconbackend/repository"
	"github.com/ostanek/reconbackend/scanner"
	"github.com/ostanek/reconbackend/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	exportDir := filepath.Join(cfg.OutputDirectory, "exports")
	storagePaths := []string{cfg.OutputDirectory, exportDir, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath, cfg.BusyTimeout)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database schema: %v", err)
	}

	dirRepo := repository.NewDirectoryRepository(db)

	// recover anything a previous run left mid-flight
	reset, err := dirRepo.ResetProcessing(nil)
	if err != nil {
		log.Fatalf("FATAL: Failed to recover stuck directories: %v", err)
	}
	if reset > 0 {
		log.Printf("Recovered %d directories left in 'processing' by a previous run", reset)
	}

	engine := recon.NewCLIEngine(cfg.EnginePath, cfg.EngineType, cfg.EngineTimeout)
	log.Printf("Using %s engine at %s", engine.Name(), cfg.EnginePath)

	var corrector *media.ExposureCorrector
	if cfg.EnableExposureCorrection {
		corrector = media.NewExposureCorrector(cfg.ExposureAdjustment, cfg.ExposureWorkers, cfg.KeepOriginals)
		log.Printf("Exposure correction enabled: %.1f stops using %d threads", cfg.ExposureAdjustment, cfg.ExposureWorkers)
	} else {
		log.Println("Exposure correction disabled")
	}
	sharpness := media.NewSharpnessAnalyzer(cfg.MinSharpness)

	log.Printf("Initializing reconstruction worker pool (Workers: %d, Queue Size: %d)...", cfg.NumReconWorkers, cfg.ReconQueueSize)
	pool := workers.NewReconProcessor(cfg, dirRepo, engine, corrector, sharpness, cfg.ReconQueueSize, cfg.NumReconWorkers)

	scan := scanner.New(cfg, dirRepo, pool)
	go scan.Run()

	log.Printf("Watching input root: %s", cfg.InputDirectory)
	log.Printf("Writing models to: %s", cfg.OutputDirectory)
	log.Printf("Using database: %s", cfg.DatabasePath)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsHandler.Handler)

	statusHandler := &handlers.StatusHandler{Repo: dirRepo}
	maintenanceHandler := &handlers.MaintenanceHandler{Repo: dirRepo, ExportDir: exportDir}

	r.Route("/api", func(r chi.Router) {
		r.Route("/directories", func(r chi.Router) {
			r.Get("/", statusHandler.ListDirectories)
			r.Get("/{name}/history", statusHandler.GetHistory)
		})
		r.Get("/stats", statusHandler.GetStats)
		r.Route("/maintenance", func(r chi.Router) {
			r.Post("/reset", maintenanceHandler.ResetProcessing)
			r.Post("/cleanup", maintenanceHandler.Cleanup)
			r.Post("/export", maintenanceHandler.Export)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received")
	scan.Stop()
	pool.Stop()
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Println("Shutdown complete")
}
