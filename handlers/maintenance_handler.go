package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ostanek/reconbackend/repository"
)

const defaultCleanupDays = 30

// MaintenanceHandler exposes the recovery and retention operations: bulk
// status reset, old-record cleanup and full snapshot export. Unlike the
// read side these report store failures to the caller
type MaintenanceHandler struct {
	Repo      repository.DirectoryRepositoryInterface
	ExportDir string
}

type resetRequest struct {
	Names []string `json:"names"`
}

// ResetProcessing moves stuck directories back to pending. With no body it
// is the crash-recovery sweep; with a names array it also retries failed
// directories
func (h *MaintenanceHandler) ResetProcessing(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteAPIError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON with an optional 'names' array")
			return
		}
	}

	count, err := h.Repo.ResetProcessing(req.Names)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"reset": count})
}

// Cleanup deletes terminal-status directories older than ?days= (default
// 30), cascading to their log entries
func (h *MaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := defaultCleanupDays
	if dayStr := r.URL.Query().Get("days"); dayStr != "" {
		parsed, err := strconv.Atoi(dayStr)
		if err != nil || parsed <= 0 {
			WriteAPIError(w, http.StatusBadRequest, "invalid_days", "'days' must be a positive integer")
			return
		}
		days = parsed
	}

	count, err := h.Repo.Cleanup(days)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"deleted": count})
}

// Export writes a consistent snapshot of both tables to the export
// directory and returns the file path
func (h *MaintenanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("export-%s-%s.json",
		time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(h.ExportDir, filename)

	if err := h.Repo.ExportSnapshot(path); err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"path": path})
}
