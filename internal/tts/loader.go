package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/config"
	"github.com/book-expert/tts-job-service/internal/core"
)

// Engine names accepted in configuration.
const (
	EngineHTTP    = "http"
	EngineChatLLM = "chatllm"
)

const healthRetryInterval = 2 * time.Second

var (
	// ErrUnknownEngine indicates an unsupported engine name.
	ErrUnknownEngine = errors.New("unknown synthesis engine")
	// ErrServiceURLEmpty indicates the HTTP engine has no server to talk to.
	ErrServiceURLEmpty = errors.New("service url cannot be empty")
)

// Loader builds and warms the configured engine. It is used once, by the worker.
type Loader struct {
	cfg           config.TTSServiceConfig
	log           *logger.Logger
	retryInterval time.Duration
	lookPath      func(file string) (string, error)
}

// NewLoader creates a loader for cfg.
func NewLoader(cfg config.TTSServiceConfig, log *logger.Logger) *Loader {
	return &Loader{
		cfg:           cfg,
		log:           log,
		retryInterval: healthRetryInterval,
		lookPath:      exec.LookPath,
	}
}

// Load returns a ready synthesizer or an error explaining why none can be built.
func (l *Loader) Load(ctx context.Context) (core.Synthesizer, error) {
	if l.cfg.LoadTimeoutSeconds > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(l.cfg.LoadTimeoutSeconds)*time.Second)
		defer cancel()
	}

	switch l.cfg.Engine {
	case EngineHTTP:
		return l.loadHTTP(ctx)
	case EngineChatLLM:
		return l.loadChatLLM()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, l.cfg.Engine)
	}
}

// loadHTTP waits until the remote server reports its model as loaded.
func (l *Loader) loadHTTP(ctx context.Context) (core.Synthesizer, error) {
	if l.cfg.ServiceURL == "" {
		return nil, ErrServiceURLEmpty
	}

	client := NewHTTPClient(l.cfg.ServiceURL, 0)

	for attempt := 1; ; attempt++ {
		healthErr := client.HealthCheck(ctx)
		if healthErr == nil {
			break
		}

		l.log.Warn("TTS service not ready (attempt %d): %v", attempt, healthErr)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("TTS service at %s never became healthy: %w", l.cfg.ServiceURL, healthErr)
		case <-time.After(l.retryInterval):
		}
	}

	l.log.Info("Using HTTP synthesis engine at %s", l.cfg.ServiceURL)

	return NewHTTPSynthesizer(client, l.cfg.Language, l.cfg.Temperature), nil
}

// loadChatLLM verifies that the binary and both model files are present.
func (l *Loader) loadChatLLM() (core.Synthesizer, error) {
	binaryPath, err := l.lookPath(l.cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("chatllm binary %q not found: %w", l.cfg.BinaryPath, err)
	}

	engineCfg := ChatLLMConfig{
		BinaryPath:        binaryPath,
		ModelPath:         l.cfg.ModelPath,
		SnacModelPath:     l.cfg.SnacModelPath,
		Voice:             l.cfg.Voice,
		Seed:              l.cfg.Seed,
		NGL:               l.cfg.NGL,
		TopP:              l.cfg.TopP,
		RepetitionPenalty: l.cfg.RepetitionPenalty,
		Temperature:       l.cfg.Temperature,
	}

	validationErr := validateChatLLMConfig(engineCfg)
	if validationErr != nil {
		return nil, validationErr
	}

	for _, path := range []string{engineCfg.ModelPath, engineCfg.SnacModelPath} {
		_, statErr := os.Stat(path)
		if statErr != nil {
			return nil, fmt.Errorf("model file unavailable: %w", statErr)
		}
	}

	l.log.Info("Using chatllm synthesis engine with model %s", engineCfg.ModelPath)

	return NewChatLLMSynthesizer(engineCfg), nil
}
