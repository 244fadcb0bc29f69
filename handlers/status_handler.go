package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ostanek/reconbackend/database"
	"github.com/ostanek/reconbackend/models"
	"github.com/ostanek/reconbackend/repository"
)

// StatusHandler serves the read side of the tracker: status-filtered
// listings, aggregate statistics and per-directory history. Read failures
// degrade to empty payloads so a polling UI never breaks; the error is
// recorded in the process log instead
type StatusHandler struct {
	Repo repository.DirectoryRepositoryInterface
}

// DirectoryListResponse is the payload for GET /api/directories
type DirectoryListResponse struct {
	Status      string             `json:"status"`
	Count       int                `json:"count"`
	Directories []models.Directory `json:"directories"`
}

// HistoryResponse is the payload for GET /api/directories/{name}/history
type HistoryResponse struct {
	Name    string                 `json:"name"`
	Count   int                    `json:"count"`
	History []models.ProcessingLog `json:"history"`
}

// ListDirectories returns all directories with the requested status,
// defaulting to pending. An unrecognized status token is a client error
func (h *StatusHandler) ListDirectories(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = database.StatusPending
	}

	dirs, err := h.Repo.ListByStatus(status)
	if err != nil {
		if errors.Is(err, database.ErrInvalidStatus) {
			WriteStoreError(w, err)
			return
		}
		log.Printf("handlers: ERROR listing directories by status %s: %v", status, err)
		dirs = []models.Directory{}
	}
	if dirs == nil {
		dirs = []models.Directory{}
	}

	WriteJSON(w, http.StatusOK, DirectoryListResponse{
		Status:      status,
		Count:       len(dirs),
		Directories: dirs,
	})
}

// GetHistory returns a directory's audit log, newest entry first. An
// unknown name yields an empty history rather than a 404
func (h *StatusHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	entries, err := h.Repo.History(name)
	if err != nil {
		log.Printf("handlers: ERROR loading history for %s: %v", name, err)
		entries = []models.ProcessingLog{}
	}
	if entries == nil {
		entries = []models.ProcessingLog{}
	}

	WriteJSON(w, http.StatusOK, HistoryResponse{
		Name:    name,
		Count:   len(entries),
		History: entries,
	})
}

// GetStats returns the point-in-time processing statistics
func (h *StatusHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Repo.Stats()
	if err != nil {
		log.Printf("handlers: ERROR computing stats: %v", err)
		stats.StatusCounts = map[string]int64{}
	}
	WriteJSON(w, http.StatusOK, stats)
}
