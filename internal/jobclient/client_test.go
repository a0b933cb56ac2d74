package jobclient_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/tts-job-service/internal/api"
	"github.com/book-expert/tts-job-service/internal/jobclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJobID   = "8d3f2a1e-0000-4000-8000-000000000001"
	failedJobID = "8d3f2a1e-0000-4000-8000-000000000002"
)

// fakeJobServer answers like the real API for one job that finishes after a few polls.
type fakeJobServer struct {
	mu          sync.Mutex
	statusPolls int
	deleted     bool
	submitted   []string
}

func (f *fakeJobServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		var req api.GenerateRequest
		if json.NewDecoder(r.Body).Decode(&req) != nil || req.Text == "" {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "Missing or empty text."})

			return
		}

		f.mu.Lock()
		f.submitted = append(f.submitted, req.Text)
		f.mu.Unlock()

		writeJSON(w, http.StatusCreated, api.GenerateResponse{JobID: testJobID})
	})

	mux.HandleFunc("GET /job/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == failedJobID {
			writeJSON(w, http.StatusOK, api.StatusResponse{JobID: failedJobID, Status: "failed", Error: "boom"})

			return
		}

		f.mu.Lock()
		f.statusPolls++
		polls := f.statusPolls
		f.mu.Unlock()

		status := "pending"
		if polls >= 3 {
			status = "done"
		}

		writeJSON(w, http.StatusOK, api.StatusResponse{JobID: testJobID, Status: status})
	})

	mux.HandleFunc("GET /job/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		deleted := f.deleted
		f.mu.Unlock()

		if r.PathValue("id") != testJobID || deleted {
			writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "File still processing or does not exist."})

			return
		}

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFdata"))
	})

	mux.HandleFunc("DELETE /job/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.PathValue("id") != testJobID || f.deleted {
			writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "File not found."})

			return
		}

		f.deleted = true

		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Worker: "running", QueueDepth: 2})
	})

	return mux
}

func (f *fakeJobServer) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.submitted...)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newClient(t *testing.T) (*jobclient.Client, *fakeJobServer) {
	t.Helper()

	fake := &fakeJobServer{}
	server := httptest.NewServer(fake.routes())
	t.Cleanup(server.Close)

	return jobclient.New(server.URL+"/", 5*time.Second), fake
}

func TestClient_FullLifecycle(t *testing.T) {
	t.Parallel()

	client, fake := newClient(t)
	ctx := context.Background()

	jobID, err := client.Submit(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, testJobID, jobID)
	assert.Equal(t, []string{"hello"}, fake.texts())

	status, err := client.Wait(ctx, jobID, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "done", status.Status)

	var audio bytes.Buffer

	written, err := client.Download(ctx, jobID, &audio)
	require.NoError(t, err)
	assert.Equal(t, int64(8), written)
	assert.Equal(t, "RIFFdata", audio.String())

	require.NoError(t, client.Delete(ctx, jobID))

	_, err = client.Download(ctx, jobID, &audio)
	require.ErrorIs(t, err, jobclient.ErrNotFound)
	assert.Contains(t, err.Error(), "File still processing or does not exist.")

	err = client.Delete(ctx, jobID)
	require.ErrorIs(t, err, jobclient.ErrNotFound)
}

func TestClient_SubmitRejected(t *testing.T) {
	t.Parallel()

	client, _ := newClient(t)

	_, err := client.Submit(context.Background(), "")

	var apiErr *jobclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Missing or empty text.", apiErr.Message)
}

func TestClient_WaitReportsFailure(t *testing.T) {
	t.Parallel()

	client, _ := newClient(t)

	status, err := client.Wait(context.Background(), failedJobID, time.Millisecond)
	require.ErrorIs(t, err, jobclient.ErrJobFailed)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "failed", status.Status)
}

func TestClient_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	client, _ := newClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Wait(ctx, testJobID, time.Hour)
	require.ErrorIs(t, err, context.Canceled)

	_, err = client.Wait(context.Background(), testJobID, 0)
	require.ErrorIs(t, err, jobclient.ErrPollInterval)
}

func TestClient_Health(t *testing.T) {
	t.Parallel()

	client, _ := newClient(t)

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, api.HealthResponse{Status: "ok", Worker: "running", QueueDepth: 2}, health)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "unavailable", Worker: "starting"})
	}))
	defer down.Close()

	health, err = jobclient.New(down.URL, time.Second).Health(context.Background())

	var apiErr *jobclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "starting", health.Worker)
}
