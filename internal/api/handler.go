package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/jobs"
	"github.com/book-expert/tts-job-service/internal/jobstore"
	"github.com/book-expert/tts-job-service/internal/queue"
	"github.com/book-expert/tts-job-service/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const (
	jobIDParam          = "jobID"
	maxRequestBodyBytes = 1 << 20
	contentTypeWAV      = "audio/wav"
	healthStatusOK      = "ok"
	healthStatusDown    = "unavailable"
)

// JobService is what the handlers need from jobs.Service.
type JobService interface {
	Submit(ctx context.Context, text string) (jobs.Task, error)
	Open(ctx context.Context, jobID string) (*jobstore.Artifact, error)
	Delete(ctx context.Context, jobID string) error
	Status(ctx context.Context, jobID string) (jobs.Snapshot, error)
}

// WorkerState reports the worker lifecycle.
type WorkerState interface {
	State() worker.State
}

// QueueDepth reports how many tasks are waiting.
type QueueDepth interface {
	Len() int
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Text string `json:"text" validate:"required"`
}

// Handler serves the job routes.
type Handler struct {
	service   JobService
	worker    WorkerState
	queue     QueueDepth
	validator *validator.Validate
	log       *logger.Logger
}

// NewHandler creates a handler over service. worker and queue feed /health.
func NewHandler(service JobService, workerState WorkerState, queueDepth QueueDepth, log *logger.Logger) *Handler {
	return &Handler{
		service:   service,
		worker:    workerState,
		queue:     queueDepth,
		validator: validator.New(),
		log:       log,
	}
}

// Generate handles POST /generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	var req GenerateRequest

	decodeErr := json.NewDecoder(r.Body).Decode(&req)
	if decodeErr != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(decodeErr, &maxBytesErr) {
			respondError(w, h.log, http.StatusRequestEntityTooLarge, msgBodyTooLarge)

			return
		}

		respondError(w, h.log, http.StatusBadRequest, msgMissingText)

		return
	}

	validationErr := h.validator.Struct(req)
	if validationErr != nil {
		respondError(w, h.log, http.StatusBadRequest, msgMissingText)

		return
	}

	task, err := h.service.Submit(r.Context(), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrEmptyText):
			respondError(w, h.log, http.StatusBadRequest, msgMissingText)
		case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
			h.log.Warn("Rejected job submission: %v", err)
			respondError(w, h.log, http.StatusServiceUnavailable, msgQueueUnavailable)
		default:
			h.log.Error("Failed to submit job: %v", err)
			respondError(w, h.log, http.StatusInternalServerError, msgSubmitFailed)
		}

		return
	}

	respondJSON(w, h.log, http.StatusCreated, GenerateResponse{JobID: task.ID})
}

// GetJob handles GET /job/{jobID}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, jobIDParam)

	artifact, err := h.service.Open(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			respondError(w, h.log, http.StatusNotFound, msgStillProcessing)

			return
		}

		h.log.Error("Failed to open artifact for job %s: %v", jobID, err)
		respondError(w, h.log, http.StatusInternalServerError, msgReadFailed)

		return
	}

	defer func() {
		closeErr := artifact.Close()
		if closeErr != nil {
			h.log.Warn("Failed to close artifact for job %s: %v", jobID, closeErr)
		}
	}()

	w.Header().Set(headerContentType, contentTypeWAV)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.FileName))
	http.ServeContent(w, r, artifact.FileName, artifact.ModTime, artifact.File)
}

// DeleteJob handles DELETE /job/{jobID}.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, jobIDParam)

	err := h.service.Delete(r.Context(), jobID)
	if err != nil {
		respondError(w, h.log, http.StatusNotFound, msgFileNotFound)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// JobStatus handles GET /job/{jobID}/status.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, jobIDParam)

	snapshot, err := h.service.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			respondError(w, h.log, http.StatusNotFound, msgJobNotFound)

			return
		}

		h.log.Error("Failed to look up job %s: %v", jobID, err)
		respondError(w, h.log, http.StatusInternalServerError, msgStatusFailed)

		return
	}

	respondJSON(w, h.log, http.StatusOK, StatusResponse{
		JobID:  snapshot.ID,
		Status: string(snapshot.Status),
		Error:  snapshot.Reason,
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	state := h.worker.State()
	response := HealthResponse{
		Status:     healthStatusOK,
		Worker:     state.String(),
		QueueDepth: h.queue.Len(),
	}

	if state != worker.StateReady && state != worker.StateRunning {
		response.Status = healthStatusDown
		respondJSON(w, h.log, http.StatusServiceUnavailable, response)

		return
	}

	respondJSON(w, h.log, http.StatusOK, response)
}
