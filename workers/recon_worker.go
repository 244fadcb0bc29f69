package workers

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ostanek/reconbackend/config"
	"github.com/ostanek/reconbackend/database"
	"github.com/ostanek/reconbackend/media"
	"github.com/ostanek/reconbackend/recon"
	"github.com/ostanek/reconbackend/repository"
)

// sampleSize for the sharpness pre-flight: enough to catch a bad set,
// cheap enough to not delay the engine start
const sharpnessSampleSize = 5

// ReconJob is one photo directory handed to the pool for reconstruction
type ReconJob struct {
	ID       string
	Name     string
	PhotoDir string
}

// ReconProcessor is the reconstruction worker pool. Jobs are deduplicated
// by directory name so the scanner can re-submit freely between ticks
type ReconProcessor struct {
	JobQueue  chan ReconJob
	Config    config.Config
	Repo      repository.DirectoryRepositoryInterface
	Engine    recon.Engine
	Corrector *media.ExposureCorrector // nil when exposure correction is disabled
	Sharpness *media.SharpnessAnalyzer
	Wg        sync.WaitGroup
	StopChan  chan struct{}
	Pending   map[string]bool
	Mutex     sync.Mutex
}

func NewReconProcessor(cfg config.Config, repo repository.DirectoryRepositoryInterface, engine recon.Engine,
	corrector *media.ExposureCorrector, sharpness *media.SharpnessAnalyzer, queueSize, numWorkers int) *ReconProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 50
	}
	proc := &ReconProcessor{
		JobQueue:  make(chan ReconJob, queueSize),
		Config:    cfg,
		Repo:      repo,
		Engine:    engine,
		Corrector: corrector,
		Sharpness: sharpness,
		StopChan:  make(chan struct{}),
		Pending:   make(map[string]bool),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d reconstruction worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

func (rp *ReconProcessor) worker(id int) {
	defer rp.Wg.Done()

	log.Printf("Reconstruction worker %d started", id)
	for {
		select {
		case job, ok := <-rp.JobQueue:
			if !ok {
				log.Printf("Reconstruction worker %d stopping: job queue closed", id)
				return
			}
			log.Printf("Worker %d: received job %s for directory %s", id, job.ID, job.Name)
			rp.processJob(id, job)

			rp.Mutex.Lock()
			delete(rp.Pending, job.Name)
			rp.Mutex.Unlock()

		case <-rp.StopChan:
			log.Printf("Reconstruction worker %d stopping: stop signal received", id)
			return
		}
	}
}

// processJob drives one directory through its lifecycle: mark processing,
// correct exposure, reconstruct, record the terminal status. Every status
// write is its own store transaction; the engine and image transforms run
// entirely outside the store's locks
func (rp *ReconProcessor) processJob(id int, job ReconJob) {
	start := time.Now()

	if err := rp.Repo.SetStatus(job.Name, database.StatusProcessing, repository.StatusUpdate{}); err != nil {
		log.Printf("Worker %d: ERROR marking %s processing: %v. Skipping job.", id, job.Name, err)
		return
	}

	if rp.Sharpness != nil && rp.Sharpness.Enabled {
		if avg, ok := rp.Sharpness.CheckDirectory(job.PhotoDir, sharpnessSampleSize); !ok {
			log.Printf("Worker %d: WARNING %s sharpness %.1f below threshold, reconstruction may fail", id, job.Name, avg)
		}
	}

	photoDir := job.PhotoDir
	exposureApplied := false
	if rp.Corrector != nil {
		correctedDir, _, err := rp.Corrector.CorrectDirectory(photoDir)
		if err != nil {
			log.Printf("Worker %d: ERROR exposure correction for %s: %v. Proceeding with original images.", id, job.Name, err)
		} else {
			photoDir = correctedDir
			exposureApplied = true
		}
	}

	outputDir := filepath.Join(rp.Config.OutputDirectory, job.Name)
	var taskErr error
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		taskErr = fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	} else {
		taskErr = rp.Engine.Reconstruct(photoDir, outputDir)
	}

	elapsed := int64(time.Since(start).Seconds())
	if taskErr != nil {
		log.Printf("Worker %d: FAILED %s after %ds: %v", id, job.Name, elapsed, taskErr)
		msg := taskErr.Error()
		err := rp.Repo.SetStatus(job.Name, database.StatusFailed, repository.StatusUpdate{
			ErrorMessage:          &msg,
			ProcessingTimeSeconds: elapsed,
			HasExposureCorrection: exposureApplied,
		})
		if err != nil {
			log.Printf("Worker %d: ERROR recording failure for %s: %v", id, job.Name, err)
		}
		return
	}

	log.Printf("Worker %d: COMPLETED %s in %ds", id, job.Name, elapsed)
	err := rp.Repo.SetStatus(job.Name, database.StatusCompleted, repository.StatusUpdate{
		ProcessingTimeSeconds: elapsed,
		HasExposureCorrection: exposureApplied,
	})
	if err != nil {
		log.Printf("Worker %d: ERROR recording completion for %s: %v", id, job.Name, err)
	}
}

// QueueJob queues a directory for reconstruction if it is not already
// pending. Returns false when the directory is in flight or the queue is
// full
func (rp *ReconProcessor) QueueJob(job ReconJob) bool {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	rp.Mutex.Lock()
	if rp.Pending[job.Name] {
		rp.Mutex.Unlock()
		return false
	}
	rp.Pending[job.Name] = true
	rp.Mutex.Unlock()

	select {
	case rp.JobQueue <- job:
		log.Printf("Queued reconstruction job %s for: %s", job.ID, job.Name)
		return true
	default:
		log.Printf("WARNING: reconstruction queue full. Failed to queue: %s", job.Name)
		rp.Mutex.Lock()
		delete(rp.Pending, job.Name)
		rp.Mutex.Unlock()
		return false
	}
}

func (rp *ReconProcessor) Stop() {
	log.Println("Stopping reconstruction workers...")
	close(rp.StopChan)
	rp.Wg.Wait()
	log.Println("All reconstruction workers stopped")
}
