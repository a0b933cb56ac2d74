// Package jobclient is an HTTP client for the job API.
package jobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/tts-job-service/internal/api"
	"github.com/book-expert/tts-job-service/internal/jobs"
)

const (
	pathGenerate = "/generate"
	pathJob      = "/job/"
	pathHealth   = "/health"
	suffixStatus = "/status"

	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

var (
	// ErrNotFound indicates the server answered 404 for the job.
	ErrNotFound = errors.New("job not found")
	// ErrJobFailed indicates the worker reported the job as failed.
	ErrJobFailed = errors.New("job failed")
	// ErrPollInterval indicates a non-positive polling interval.
	ErrPollInterval = errors.New("poll interval must be positive")
)

// APIError is a non-2xx answer other than 404.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to one job service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a client for the service at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Submit enqueues text and returns the job id.
func (c *Client) Submit(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(api.GenerateRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, pathGenerate, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", decodeFailure(resp)
	}

	var body api.GenerateResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", decodeErr)
	}

	return body.JobID, nil
}

// Status returns the reported state of the job.
func (c *Client) Status(ctx context.Context, jobID string) (api.StatusResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, jobPath(jobID)+suffixStatus, http.NoBody)
	if err != nil {
		return api.StatusResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return api.StatusResponse{}, decodeFailure(resp)
	}

	var body api.StatusResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if decodeErr != nil {
		return api.StatusResponse{}, fmt.Errorf("failed to decode status response: %w", decodeErr)
	}

	return body, nil
}

// Download copies the finished audio into dst and returns the byte count.
// ErrNotFound means the audio does not exist yet, or never will.
func (c *Client) Download(ctx context.Context, jobID string, dst io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, jobPath(jobID), http.NoBody)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeFailure(resp)
	}

	written, copyErr := io.Copy(dst, resp.Body)
	if copyErr != nil {
		return written, fmt.Errorf("failed to read audio for job %s: %w", jobID, copyErr)
	}

	return written, nil
}

// Delete removes the job's audio from the server.
func (c *Client) Delete(ctx context.Context, jobID string) error {
	resp, err := c.do(ctx, http.MethodDelete, jobPath(jobID), http.NoBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return decodeFailure(resp)
	}

	return nil
}

// Health returns the service health report. A 503 still yields the report
// alongside an *APIError.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, pathHealth, http.NoBody)
	if err != nil {
		return api.HealthResponse{}, err
	}
	defer resp.Body.Close()

	var body api.HealthResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if decodeErr != nil {
		return api.HealthResponse{}, fmt.Errorf("failed to decode health response: %w", decodeErr)
	}

	if resp.StatusCode != http.StatusOK {
		return body, &APIError{StatusCode: resp.StatusCode, Message: body.Status}
	}

	return body, nil
}

// Wait polls the job status until it is done or failed, or ctx ends.
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration) (api.StatusResponse, error) {
	if interval <= 0 {
		return api.StatusResponse{}, ErrPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, jobID)
		if err != nil {
			return status, err
		}

		switch jobs.Status(status.Status) {
		case jobs.StatusDone:
			return status, nil
		case jobs.StatusFailed:
			return status, fmt.Errorf("%w: %s", ErrJobFailed, status.Error)
		default:
		}

		select {
		case <-ctx.Done():
			return status, fmt.Errorf("stopped waiting for job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if method == http.MethodPost {
		req.Header.Set(headerContentType, contentTypeJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}

	return resp, nil
}

func jobPath(jobID string) string {
	return pathJob + url.PathEscape(jobID)
}

func decodeFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	var body api.ErrorResponse

	message := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		message = body.Error
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
