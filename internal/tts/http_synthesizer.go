package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/tts-job-service/internal/core"
)

const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// ErrOutputPathEmpty indicates a request without a destination file.
var ErrOutputPathEmpty = errors.New("output path cannot be empty")

// HTTPSynthesizer implements core.Synthesizer on top of HTTPClient.
type HTTPSynthesizer struct {
	client      *HTTPClient
	language    string
	temperature float64
}

// NewHTTPSynthesizer creates a synthesizer with the given defaults. Per-request
// options override language and temperature; other options travel as Params.
func NewHTTPSynthesizer(client *HTTPClient, language string, temperature float64) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		client:      client,
		language:    language,
		temperature: temperature,
	}
}

// Synthesize requests speech for req.Text and writes it to req.OutputPath.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, req core.SynthesisRequest) error {
	if req.OutputPath == "" {
		return ErrOutputPathEmpty
	}

	temperature, err := floatOption(req.Options, OptionTemperature, s.temperature)
	if err != nil {
		return err
	}

	speechReq := SpeechRequest{
		Text:           req.Text,
		SpeakerRefPath: req.SpeakerReference,
		Language:       stringOption(req.Options, OptionLanguage, s.language),
		Temperature:    temperature,
		Params:         passthrough(req.Options, OptionLanguage, OptionTemperature),
	}

	audioData, err := s.client.GenerateSpeech(ctx, speechReq)
	if err != nil {
		return fmt.Errorf("failed to generate speech: %w", err)
	}

	mkdirErr := os.MkdirAll(filepath.Dir(req.OutputPath), dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create output directory: %w", mkdirErr)
	}

	writeErr := os.WriteFile(req.OutputPath, audioData, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write audio file: %w", writeErr)
	}

	return nil
}
