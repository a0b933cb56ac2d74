package tts

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/book-expert/tts-job-service/internal/core"
)

var (
	// ErrModelPathEmpty indicates that the model path is empty.
	ErrModelPathEmpty = errors.New("model path cannot be empty")
	// ErrSnacModelPathEmpty indicates that the SNAC model path is empty.
	ErrSnacModelPathEmpty = errors.New("snac model path cannot be empty")
	// ErrVoiceEmpty indicates that the voice is empty.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrTopPRange indicates that the TopP parameter is out of the valid range [0.0, 1.0].
	ErrTopPRange = errors.New("top_p must be between 0.0 and 1.0")
	// ErrRepetitionPenaltyRange indicates that the RepetitionPenalty parameter is below 1.0.
	ErrRepetitionPenaltyRange = errors.New("repetition penalty must be >= 1.0")
	// ErrTemperatureRange indicates a negative temperature.
	ErrTemperatureRange = errors.New("temperature must be >= 0.0")
	// ErrNGLNegative indicates that the NGL (number of GPU layers) parameter is negative.
	ErrNGLNegative = errors.New("n_gpu_layers must be non-negative")
)

// ChatLLMConfig holds the engine settings and the per-job defaults.
type ChatLLMConfig struct {
	BinaryPath        string
	ModelPath         string
	SnacModelPath     string
	Voice             string
	Seed              int
	NGL               int
	TopP              float64
	RepetitionPenalty float64
	Temperature       float64
}

// ChatLLMSynthesizer implements core.Synthesizer by running the chatllm binary.
type ChatLLMSynthesizer struct {
	config ChatLLMConfig
}

// NewChatLLMSynthesizer creates a synthesizer for an already verified binary.
func NewChatLLMSynthesizer(cfg ChatLLMConfig) *ChatLLMSynthesizer {
	return &ChatLLMSynthesizer{config: cfg}
}

// Synthesize runs chatllm once and lets it export the WAV to req.OutputPath.
// The speaker reference does not apply to this engine; voices are named.
func (p *ChatLLMSynthesizer) Synthesize(ctx context.Context, req core.SynthesisRequest) error {
	if req.OutputPath == "" {
		return ErrOutputPathEmpty
	}

	jobCfg, err := p.resolve(req.Options)
	if err != nil {
		return err
	}

	validationErr := validateChatLLMConfig(jobCfg)
	if validationErr != nil {
		return validationErr
	}

	args := []string{
		"-m", jobCfg.ModelPath,
		"--snac_model", jobCfg.SnacModelPath,
		"-p", fmt.Sprintf("{%s}: %s", jobCfg.Voice, req.Text),
		"--tts_export", req.OutputPath,
		"--seed", strconv.Itoa(jobCfg.Seed),
		"-ngl", strconv.Itoa(jobCfg.NGL),
		"--top_p", fmt.Sprintf("%.2f", jobCfg.TopP),
		"--repetition_penalty", fmt.Sprintf("%.2f", jobCfg.RepetitionPenalty),
		"--temp", fmt.Sprintf("%.2f", jobCfg.Temperature),
	}

	// #nosec G204 -- arguments are validated by validateChatLLMConfig
	cmd := exec.CommandContext(ctx, jobCfg.BinaryPath, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("chatllm binary execution failed: %w - output: %s", err, string(output))
	}

	return nil
}

// resolve overlays per-job options on the configured defaults.
func (p *ChatLLMSynthesizer) resolve(options map[string]any) (ChatLLMConfig, error) {
	cfg := p.config
	cfg.Voice = stringOption(options, OptionVoice, cfg.Voice)

	var err error

	cfg.Seed, err = intOption(options, OptionSeed, cfg.Seed)
	if err != nil {
		return ChatLLMConfig{}, err
	}

	cfg.NGL, err = intOption(options, OptionNGL, cfg.NGL)
	if err != nil {
		return ChatLLMConfig{}, err
	}

	cfg.TopP, err = floatOption(options, OptionTopP, cfg.TopP)
	if err != nil {
		return ChatLLMConfig{}, err
	}

	cfg.RepetitionPenalty, err = floatOption(options, OptionRepetitionPenalty, cfg.RepetitionPenalty)
	if err != nil {
		return ChatLLMConfig{}, err
	}

	cfg.Temperature, err = floatOption(options, OptionTemperature, cfg.Temperature)
	if err != nil {
		return ChatLLMConfig{}, err
	}

	return cfg, nil
}

// validateChatLLMConfig ensures that the command line is built from sane values.
func validateChatLLMConfig(cfg ChatLLMConfig) error {
	if cfg.ModelPath == "" {
		return ErrModelPathEmpty
	}

	if cfg.SnacModelPath == "" {
		return ErrSnacModelPathEmpty
	}

	if cfg.Voice == "" {
		return ErrVoiceEmpty
	}

	if cfg.TopP < 0.0 || cfg.TopP > 1.0 {
		return fmt.Errorf("%w: got %f", ErrTopPRange, cfg.TopP)
	}
	// chatllm --help says 1.0=no penalty
	if cfg.RepetitionPenalty < 1.0 {
		return fmt.Errorf("%w: got %f", ErrRepetitionPenaltyRange, cfg.RepetitionPenalty)
	}

	if cfg.Temperature < 0.0 {
		return fmt.Errorf("%w: got %f", ErrTemperatureRange, cfg.Temperature)
	}

	if cfg.NGL < 0 {
		return fmt.Errorf("%w: got %d", ErrNGLNegative, cfg.NGL)
	}

	return nil
}
