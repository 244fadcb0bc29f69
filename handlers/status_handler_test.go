package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostanek/reconbackend/database"
	"github.com/ostanek/reconbackend/models"
	"github.com/ostanek/reconbackend/repository"
)

func setupRouter(t *testing.T) (*chi.Mux, repository.DirectoryRepositoryInterface, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tracker.db")
	db, err := database.InitGormDB(dbPath, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	repo := repository.NewDirectoryRepository(db)

	exportDir := t.TempDir()
	statusHandler := &StatusHandler{Repo: repo}
	maintenanceHandler := &MaintenanceHandler{Repo: repo, ExportDir: exportDir}

	r := chi.NewRouter()
	r.Get("/api/directories", statusHandler.ListDirectories)
	r.Get("/api/directories/{name}/history", statusHandler.GetHistory)
	r.Get("/api/stats", statusHandler.GetStats)
	r.Post("/api/maintenance/reset", maintenanceHandler.ResetProcessing)
	r.Post("/api/maintenance/cleanup", maintenanceHandler.Cleanup)
	r.Post("/api/maintenance/export", maintenanceHandler.Export)
	return r, repo, exportDir
}

func doRequest(t *testing.T, router *chi.Mux, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// failingRepo simulates a store whose reads break mid-flight (corrupt file,
// dropped volume). Only the read side is stubbed; a write call is a test bug
type failingRepo struct {
	repository.DirectoryRepositoryInterface
}

func (failingRepo) ListByStatus(status string) ([]models.Directory, error) {
	if !database.IsValidStatus(status) {
		return nil, database.ErrInvalidStatus
	}
	return nil, errors.New("disk I/O error")
}

func (failingRepo) History(name string) ([]models.ProcessingLog, error) {
	return nil, errors.New("disk I/O error")
}

func (failingRepo) Stats() (database.ProcessingStats, error) {
	return database.ProcessingStats{}, errors.New("disk I/O error")
}

func TestListDirectoriesDegradesOnStoreFailure(t *testing.T) {
	h := &StatusHandler{Repo: failingRepo{}}

	rec := httptest.NewRecorder()
	h.ListDirectories(rec, httptest.NewRequest(http.MethodGet, "/api/directories?status=completed", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DirectoryListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, database.StatusCompleted, resp.Status)
	assert.Zero(t, resp.Count)
	assert.NotNil(t, resp.Directories)
	assert.Empty(t, resp.Directories)
}

func TestGetHistoryDegradesOnStoreFailure(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/api/directories/{name}/history", (&StatusHandler{Repo: failingRepo{}}).GetHistory)

	rec := doRequest(t, router, http.MethodGet, "/api/directories/Obj1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Obj1", resp.Name)
	assert.Zero(t, resp.Count)
	assert.NotNil(t, resp.History)
	assert.Empty(t, resp.History)
}

func TestGetStatsDegradesOnStoreFailure(t *testing.T) {
	h := &StatusHandler{Repo: failingRepo{}}

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats database.ProcessingStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Empty(t, stats.StatusCounts)
	assert.Zero(t, stats.TotalProcessingTime)
	assert.Zero(t, stats.TotalImagesProcessed)
}

func TestListDirectoriesFailingStoreStillRejectsBadStatus(t *testing.T) {
	// validation runs before the store; a broken store must not turn a
	// client error into a silent empty 200
	h := &StatusHandler{Repo: failingRepo{}}

	rec := httptest.NewRecorder()
	h.ListDirectories(rec, httptest.NewRequest(http.MethodGet, "/api/directories?status=exploded", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDirectoriesDefaultsToPending(t *testing.T) {
	router, repo, _ := setupRouter(t)
	_, err := repo.Upsert("Obj1", "/in/Obj1", 400, 100)
	require.NoError(t, err)
	_, err = repo.Upsert("Obj2", "/in/Obj2", 400, 100)
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus("Obj2", database.StatusCompleted, repository.StatusUpdate{}))

	rec := doRequest(t, router, http.MethodGet, "/api/directories", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DirectoryListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, database.StatusPending, resp.Status)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Directories, 1)
	assert.Equal(t, "Obj1", resp.Directories[0].Name)
}

func TestListDirectoriesByStatus(t *testing.T) {
	router, repo, _ := setupRouter(t)
	_, err := repo.Upsert("Obj1", "/in/Obj1", 400, 100)
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus("Obj1", database.StatusCompleted, repository.StatusUpdate{}))

	rec := doRequest(t, router, http.MethodGet, "/api/directories?status=completed", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DirectoryListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestListDirectoriesRejectsUnknownStatus(t *testing.T) {
	router, _, _ := setupRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/directories?status=exploded", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "invalid_status", resp.Errors[0].Code)
}

func TestListDirectoriesEmptyStore(t *testing.T) {
	router, _, _ := setupRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/directories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"directories":[]`)
}

func TestGetHistory(t *testing.T) {
	router, repo, _ := setupRouter(t)
	_, err := repo.Upsert("Obj1", "/in/Obj1", 400, 100)
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus("Obj1", database.StatusQueued, repository.StatusUpdate{}))

	rec := doRequest(t, router, http.MethodGet, "/api/directories/Obj1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Obj1", resp.Name)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.History, 2)
	assert.Equal(t, repository.ActionStatusChanged, resp.History[0].Action)
}

func TestGetHistoryUnknownNameIsEmpty(t *testing.T) {
	router, _, _ := setupRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/directories/ghost/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
	assert.Empty(t, resp.History)
}

func TestGetStats(t *testing.T) {
	router, repo, _ := setupRouter(t)
	_, err := repo.Upsert("Obj1", "/in/Obj1", 400, 100)
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus("Obj1", database.StatusCompleted, repository.StatusUpdate{
		ProcessingTimeSeconds: 600, HasExposureCorrection: true,
	}))

	rec := doRequest(t, router, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats database.ProcessingStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.StatusCounts[database.StatusCompleted])
	assert.Equal(t, int64(600), stats.TotalProcessingTime)
	assert.Equal(t, int64(1), stats.ExposureCorrectedCount)
}

func TestResetProcessingEndpoint(t *testing.T) {
	router, repo, _ := setupRouter(t)
	_, err := repo.Upsert("stuck", "/in/stuck", 400, 100)
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus("stuck", database.StatusProcessing, repository.StatusUpdate{}))

	rec := doRequest(t, router, http.MethodPost, "/api/maintenance/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp["reset"])

	dir, err := repo.GetByName("stuck")
	require.NoError(t, err)
	assert.Equal(t, database.StatusPending, dir.Status)
}

func TestResetProcessingWithNames(t *testing.T) {
	router, repo, _ := setupRouter(t)
	_, err := repo.Upsert("broken", "/in/broken", 400, 100)
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus("broken", database.StatusFailed, repository.StatusUpdate{}))

	rec := doRequest(t, router, http.MethodPost, "/api/maintenance/reset", `{"names":["broken"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	dir, err := repo.GetByName("broken")
	require.NoError(t, err)
	assert.Equal(t, database.StatusPending, dir.Status)
}

func TestResetProcessingRejectsBadBody(t *testing.T) {
	router, _, _ := setupRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/maintenance/reset", `{"names": not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanupEndpointValidatesDays(t *testing.T) {
	router, _, _ := setupRouter(t)

	for _, days := range []string{"0", "-5", "soon"} {
		rec := doRequest(t, router, http.MethodPost, "/api/maintenance/cleanup?days="+days, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "days=%s must be rejected", days)
	}

	rec := doRequest(t, router, http.MethodPost, "/api/maintenance/cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp["deleted"])
}

func TestExportEndpointWritesSnapshot(t *testing.T) {
	router, repo, exportDir := setupRouter(t)
	_, err := repo.Upsert("Obj1", "/in/Obj1", 400, 100)
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPost, "/api/maintenance/export", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["path"])
	assert.Equal(t, exportDir, filepath.Dir(resp["path"]))

	data, err := os.ReadFile(resp["path"])
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "directories")
	assert.Contains(t, doc, "processing_log")
	assert.Contains(t, doc, "export_timestamp")
}
