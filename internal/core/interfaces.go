// Package core defines the collaborator interfaces shared by the job service components.
package core

import "context"

// SynthesisRequest describes one synthesis invocation for a single job.
type SynthesisRequest struct {
	// Text is the input to speak. Never empty.
	Text string
	// OutputPath is where the engine must write the resulting WAV file.
	OutputPath string
	// SpeakerReference is a path to a reference recording used for voice cloning.
	SpeakerReference string
	// Options carries free-form engine parameters from configuration.
	Options map[string]any
}

// Synthesizer turns text into a WAV file. Implementations are synchronous and
// are never invoked concurrently.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) error
}

// SynthesizerLoader performs the expensive one-time engine initialization.
type SynthesizerLoader interface {
	Load(ctx context.Context) (Synthesizer, error)
}

// ObjectStore is a write-only mirror of finished artifacts.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// JobNotifier announces job outcomes to interested parties.
type JobNotifier interface {
	JobCompleted(ctx context.Context, jobID, audioKey string) error
	JobFailed(ctx context.Context, jobID string, cause error) error
}
