package api

import (
	"encoding/json"
	"net/http"

	"github.com/book-expert/logger"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Client-facing error messages.
const (
	msgMissingText      = "Missing or empty text."
	msgBodyTooLarge     = "Request body too large."
	msgQueueUnavailable = "Job queue is not accepting new work."
	msgSubmitFailed     = "Failed to queue job."
	msgStillProcessing  = "File still processing or does not exist."
	msgReadFailed       = "Failed to read file."
	msgFileNotFound     = "File not found."
	msgJobNotFound      = "Job not found."
	msgStatusFailed     = "Failed to look up job."
)

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GenerateResponse is returned when a job was accepted.
type GenerateResponse struct {
	JobID string `json:"job_id"`
}

// StatusResponse describes one job.
type StatusResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse reports whether the worker can take jobs.
type HealthResponse struct {
	Status     string `json:"status"`
	Worker     string `json:"worker"`
	QueueDepth int    `json:"queue_depth"`
}

func respondJSON(w http.ResponseWriter, log *logger.Logger, status int, body any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)

	encodeErr := json.NewEncoder(w).Encode(body)
	if encodeErr != nil {
		log.Warn("Failed to write response body: %v", encodeErr)
	}
}

func respondError(w http.ResponseWriter, log *logger.Logger, status int, message string) {
	respondJSON(w, log, status, ErrorResponse{Error: message})
}
