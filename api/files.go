package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/soilwise/soilwise/internal/extract"
	"github.com/soilwise/soilwise/internal/ingest"
	"github.com/soilwise/soilwise/internal/log"
	"github.com/soilwise/soilwise/internal/store"
)

// MaxUploadBytes bounds the size of one uploaded document.
const MaxUploadBytes = 32 << 20

// ownerHeader carries the caller identity. Absent, requests fall back to the
// handler's default owner.
const ownerHeader = "X-Owner-ID"

// Enqueuer accepts ingestion work for background processing.
type Enqueuer interface {
	Enqueue(req ingest.Request) (ingest.Job, error)
}

// JobGetter looks up background ingestion jobs.
type JobGetter interface {
	Get(id uuid.UUID) (ingest.Job, bool)
}

// Deleter removes all chunks of one source document.
type Deleter interface {
	DeleteBySource(ctx context.Context, ownerID, filename string) (int64, error)
}

// FilesHandler handles document upload, job status, and deletion.
type FilesHandler struct {
	enqueuer     Enqueuer
	jobs         JobGetter
	deleter      Deleter
	defaultOwner string
	logger       log.Logger
}

// NewFilesHandler creates a files handler.
func NewFilesHandler(enqueuer Enqueuer, jobs JobGetter, deleter Deleter, defaultOwner string, logger log.Logger) *FilesHandler {
	return &FilesHandler{
		enqueuer:     enqueuer,
		jobs:         jobs,
		deleter:      deleter,
		defaultOwner: defaultOwner,
		logger:       logger,
	}
}

// RegisterRoutes registers file routes on the given mux.
func (h *FilesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/files", h.upload)
	mux.HandleFunc("GET /api/files/jobs/{id}", h.jobStatus)
	mux.HandleFunc("DELETE /api/files", h.deleteFile)
}

// UploadResponse acknowledges an accepted upload. The actual indexing runs
// in the background; its outcome is observable via the job endpoint.
type UploadResponse struct {
	Status   string `json:"status"`
	JobID    string `json:"jobId"`
	Filename string `json:"filename"`
}

// upload accepts a multipart document and queues it for ingestion.
// Form fields: "file" (required), "partition" (optional, defaults to
// user_upload).
func (h *FilesHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(extract.SupportedExtensions, ext) {
		writeError(w, h.logger, http.StatusUnsupportedMediaType, "unsupported_format",
			"supported formats: "+strings.Join(extract.SupportedExtensions, ", "))
		return
	}

	partition := store.PartitionUserUpload
	if v := r.FormValue("partition"); v != "" {
		partition = store.Partition(v)
		if !partition.Valid() {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "unknown partition")
			return
		}
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "failed to read uploaded file")
		return
	}

	job, err := h.enqueuer.Enqueue(ingest.Request{
		Filename:  header.Filename,
		Content:   content,
		OwnerID:   h.owner(r),
		Partition: partition,
	})
	if err != nil {
		if errors.Is(err, ingest.ErrQueueFull) {
			writeError(w, h.logger, http.StatusServiceUnavailable, "queue_full", "ingestion queue is full, retry later")
			return
		}
		h.logger.Error("failed to enqueue upload", "filename", header.Filename, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to queue document")
		return
	}

	writeJSON(w, h.logger, http.StatusAccepted, UploadResponse{
		Status:   string(ingest.StatusProcessing),
		JobID:    job.ID.String(),
		Filename: header.Filename,
	})
}

// jobStatus reports the state of one background ingestion.
func (h *FilesHandler) jobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid job id")
		return
	}

	job, ok := h.jobs.Get(id)
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, "not_found", "unknown job id")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, job)
}

// DeleteRequest names the document to remove.
type DeleteRequest struct {
	Filename string `json:"filename"`
}

// DeleteResponse reports how many chunks were removed.
type DeleteResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}

// deleteFile removes every chunk derived from one document, scoped to the
// caller. Zero matches is a not-found condition, not a silent success.
func (h *FilesHandler) deleteFile(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Filename) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "filename is required")
		return
	}

	deleted, err := h.deleter.DeleteBySource(r.Context(), h.owner(r), req.Filename)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "not_found", "no chunks found for "+req.Filename)
			return
		}
		h.logger.Error("delete by source failed", "filename", req.Filename, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to delete document")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, DeleteResponse{DeletedCount: deleted})
}

func (h *FilesHandler) owner(r *http.Request) string {
	if owner := r.Header.Get(ownerHeader); owner != "" {
		return owner
	}
	return h.defaultOwner
}
