// Package server is the thin HTTP surface over the queue service:
// upload a document, poll a job, cancel it, observe queue depth. All
// processing semantics live below in the queue and pipeline packages.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/docuscan/docuscan/internal/blob"
	"github.com/docuscan/docuscan/internal/queue"
)

type Handler struct {
	queue  *queue.Service
	blob   blob.Store
	logger *slog.Logger

	maxUploadBytes int64
}

func NewHandler(q *queue.Service, b blob.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		queue:          q,
		blob:           b,
		logger:         logger,
		maxUploadBytes: 32 << 20, // 32MB
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/files", h.handleUpload)
		r.Get("/jobs/{id}", h.handleJobStatus)
		r.Post("/jobs/{id}/cancel", h.handleJobCancel)
		r.Get("/queue/depth", h.handleQueueDepth)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
