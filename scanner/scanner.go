package scanner

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/facette/natsort"

	"github.com/ostanek/reconbackend/config"
	"github.com/ostanek/reconbackend/database"
	"github.com/ostanek/reconbackend/media"
	"github.com/ostanek/reconbackend/repository"
	"github.com/ostanek/reconbackend/utils"
	"github.com/ostanek/reconbackend/workers"
)

// JobQueuer is the slice of the worker pool the scanner needs
type JobQueuer interface {
	QueueJob(job workers.ReconJob) bool
}

// Scanner discovers photo directories under the input root, keeps their
// records fresh and hands ready sets to the reconstruction pool
type Scanner struct {
	Cfg      config.Config
	Repo     repository.DirectoryRepositoryInterface
	Pool     JobQueuer
	StopChan chan struct{}
}

func New(cfg config.Config, repo repository.DirectoryRepositoryInterface, pool JobQueuer) *Scanner {
	return &Scanner{
		Cfg:      cfg,
		Repo:     repo,
		Pool:     pool,
		StopChan: make(chan struct{}),
	}
}

// Run scans immediately and then on every tick until Stop is called.
// Intended to be launched as a goroutine from main
func (s *Scanner) Run() {
	log.Printf("Scanner started: watching %s every %s (minimum %d images)",
		s.Cfg.InputDirectory, s.Cfg.ScanInterval, s.Cfg.MinImages)

	if err := s.ScanOnce(); err != nil {
		log.Printf("Scanner: ERROR during initial scan: %v", err)
	}

	ticker := time.NewTicker(s.Cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.ScanOnce(); err != nil {
				log.Printf("Scanner: ERROR during scan: %v", err)
			}
		case <-s.StopChan:
			log.Println("Scanner stopped")
			return
		}
	}
}

func (s *Scanner) Stop() {
	close(s.StopChan)
}

// ScanOnce walks the immediate children of the input root once. Directory
// names are visited in natural sort order so photo sets process in the
// order operators expect from their file browser
func (s *Scanner) ScanOnce() error {
	entries, err := os.ReadDir(s.Cfg.InputDirectory)
	if err != nil {
		return fmt.Errorf("failed to read input directory %s: %w", s.Cfg.InputDirectory, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// skip the corrected copies the exposure pipeline writes alongside
		// the source sets
		if strings.HasSuffix(entry.Name(), media.CorrectedDirSuffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	natsort.Sort(names)

	for _, name := range names {
		if err := s.scanDirectory(name); err != nil {
			log.Printf("Scanner: ERROR scanning %s: %v", name, err)
		}
	}
	return nil
}

// scanDirectory refreshes one photo set's record and applies the threshold
// decisions: not enough images parks a pending set in the queue, enough
// images releases a queued set and submits pending work to the pool
func (s *Scanner) scanDirectory(name string) error {
	fullPath := filepath.Join(s.Cfg.InputDirectory, name)

	imageCount, sizeMB, err := media.ScanDirectory(fullPath)
	if err != nil {
		return err
	}
	if imageCount == 0 {
		return nil
	}

	_, getErr := s.Repo.GetByName(name)
	firstDiscovery := errors.Is(getErr, database.ErrNotFound)

	if _, err := s.Repo.Upsert(name, fullPath, imageCount, sizeMB); err != nil {
		return fmt.Errorf("failed to register %s: %w", name, err)
	}

	if firstDiscovery {
		s.logCameraInfo(name, fullPath)
	}

	dir, err := s.Repo.GetByName(name)
	if err != nil {
		return fmt.Errorf("failed to re-read %s after upsert: %w", name, err)
	}

	switch dir.Status {
	case database.StatusPending:
		if imageCount < s.Cfg.MinImages {
			log.Printf("Scanner: %s has only %d images (minimum: %d), queueing", name, imageCount, s.Cfg.MinImages)
			return s.Repo.SetStatus(name, database.StatusQueued, repository.StatusUpdate{})
		}
		s.submit(name, fullPath)
	case database.StatusQueued:
		if imageCount >= s.Cfg.MinImages {
			log.Printf("Scanner: %s now has %d images - ready for processing", name, imageCount)
			if err := s.Repo.SetStatus(name, database.StatusPending, repository.StatusUpdate{}); err != nil {
				return err
			}
			s.submit(name, fullPath)
		}
	default:
		// processing, completed and failed sets are not the scanner's to touch
	}
	return nil
}

func (s *Scanner) submit(name, fullPath string) {
	if s.Pool == nil {
		return
	}
	s.Pool.QueueJob(workers.ReconJob{Name: name, PhotoDir: fullPath})
}

func (s *Scanner) logCameraInfo(name, fullPath string) {
	paths, err := media.ListImageFiles(fullPath)
	if err != nil || len(paths) == 0 {
		return
	}
	info, err := utils.GetCameraInfo(paths[0])
	if err != nil {
		return
	}
	log.Printf("Scanner: discovered %s, shot with %s", name, info)
}
