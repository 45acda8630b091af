package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docuscan/docuscan/constants"
	"github.com/docuscan/docuscan/internal/common"
)

type uploadResponse struct {
	JobID       string `json:"job_id"`
	DocumentRef string `json:"document_ref"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

type depthResponse struct {
	QueueDepth int `json:"queue_depth"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleUpload accepts a multipart PDF upload plus a document_type,
// stores the bytes in the blob store, and enqueues a processing job.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	docType := r.FormValue("document_type")
	if docType == "" {
		writeError(w, http.StatusBadRequest, "document_type is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	if !constants.IsAllowedExt(filepath.Ext(header.Filename)) {
		writeError(w, http.StatusBadRequest, "only PDF files are allowed")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	ref := fmt.Sprintf("%s_%s", uuid.New(), filepath.Base(header.Filename))
	if err := h.blob.Put(r.Context(), ref, data); err != nil {
		h.logger.Error("server.upload.blob_failed", "ref", ref, "error", err)
		writeError(w, http.StatusInternalServerError, "could not store document")
		return
	}

	jobID, err := h.queue.Enqueue(r.Context(), ref, docType)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown document type %q", docType))
			return
		}
		h.logger.Error("server.upload.enqueue_failed", "ref", ref, "error", err)
		writeError(w, http.StatusInternalServerError, "could not enqueue job")
		return
	}

	h.logger.Info("server.upload.ok",
		"job_id", jobID,
		"document_ref", ref,
		"document_type", docType,
		"bytes", len(data),
	)
	writeJSON(w, http.StatusAccepted, uploadResponse{JobID: jobID.String(), DocumentRef: ref})
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	status, err := h.queue.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("server.status_failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	cancelled, err := h.queue.Cancel(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("server.cancel_failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not cancel job")
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Cancelled: cancelled})
}

func (h *Handler) handleQueueDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		h.logger.Error("server.depth_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not read queue depth")
		return
	}
	writeJSON(w, http.StatusOK, depthResponse{QueueDepth: depth})
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
