// Package config provides the configuration structure for the tts-job-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Environment overrides honoured after the configuration file is loaded.
const (
	EnvOutputDir  = "OUTPUT_DIR"
	EnvSpeakerWAV = "SPEAKER_WAV"
)

// Defaults applied to unset fields.
const (
	defaultAddress              = ":5000"
	defaultOutputDir            = "/workspace"
	defaultSpeakerWAV           = "/workspace/speaker.wav"
	defaultEngine               = "http"
	defaultServiceURL           = "http://127.0.0.1:8000"
	defaultBinaryPath           = "chatllm"
	defaultVoice                = "default"
	defaultLanguage             = "en"
	defaultTemperature          = 0.75
	defaultRepetitionPenalty    = 1.0
	defaultTopP                 = 0.9
	defaultLoadTimeoutSeconds   = 300
	defaultReadTimeoutSeconds   = 30
	defaultWriteTimeoutSeconds  = 60
	defaultShutdownTimeoutSecs  = 30
	defaultCompletedSubject     = "tts.job.completed"
	defaultFailedSubject        = "tts.job.failed"
	defaultAudioObjectBucket    = "TTS_AUDIO"
	defaultCORSMaxAgeSeconds    = 300
	defaultNATSConnectTimeoutMs = 2000
)

var (
	// ErrOutputDirEmpty indicates that no output directory is configured.
	ErrOutputDirEmpty = errors.New("paths.output_dir cannot be empty")
	// ErrNegativeQueueDepth indicates a negative queue depth limit.
	ErrNegativeQueueDepth = errors.New("queue.max_depth must be non-negative")
	// ErrNegativeTimeout indicates a negative timeout.
	ErrNegativeTimeout = errors.New("timeouts must be non-negative")
	// ErrNATSURLEmpty indicates NATS is enabled without a server URL.
	ErrNATSURLEmpty = errors.New("nats.url cannot be empty when nats is enabled")
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address                string `toml:"address"`
	ReadTimeoutSeconds     int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `toml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	OutputDir   string `toml:"output_dir"`
	SpeakerWAV  string `toml:"speaker_wav"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// TTSServiceConfig selects and tunes the synthesis engine.
type TTSServiceConfig struct {
	Engine             string         `toml:"engine"`
	ServiceURL         string         `toml:"service_url"`
	BinaryPath         string         `toml:"binary_path"`
	ModelPath          string         `toml:"model_path"`
	SnacModelPath      string         `toml:"snac_model_path"`
	Voice              string         `toml:"voice"`
	Language           string         `toml:"language"`
	Temperature        float64        `toml:"temperature"`
	TopP               float64        `toml:"top_p"`
	RepetitionPenalty  float64        `toml:"repetition_penalty"`
	Seed               int            `toml:"seed"`
	NGL                int            `toml:"n_gpu_layers"`
	TimeoutSeconds     int            `toml:"timeout_seconds"`
	LoadTimeoutSeconds int            `toml:"load_timeout_seconds"`
	NormalizeText      bool           `toml:"normalize_text"`
	Params             map[string]any `toml:"params"`
}

// QueueConfig bounds the work queue. Zero means unbounded.
type QueueConfig struct {
	MaxDepth int `toml:"max_depth"`
}

// CORSConfig is the cross-origin policy for the HTTP API.
type CORSConfig struct {
	AllowedOrigins   []string `toml:"allowed_origins"`
	AllowedMethods   []string `toml:"allowed_methods"`
	AllowedHeaders   []string `toml:"allowed_headers"`
	AllowCredentials bool     `toml:"allow_credentials"`
	MaxAgeSeconds    int      `toml:"max_age_seconds"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	Enabled                bool   `toml:"enabled"`
	URL                    string `toml:"url"`
	ConnectTimeoutMillis   int    `toml:"connect_timeout_ms"`
	JobCompletedSubject    string `toml:"job_completed_subject"`
	JobFailedSubject       string `toml:"job_failed_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig     `toml:"server"`
	Paths  PathsConfig      `toml:"paths"`
	TTS    TTSServiceConfig `toml:"tts_service"`
	Queue  QueueConfig      `toml:"queue"`
	CORS   CORSConfig       `toml:"cors"`
	NATS   NATSConfig       `toml:"nats"`
}

// Load loads the configuration for the tts-job-service, applies environment
// overrides and defaults, and validates the result.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &cfg, nil
}

// ApplyEnv overrides file values with OUTPUT_DIR and SPEAKER_WAV when set.
func (c *Config) ApplyEnv(lookup func(key string) (string, bool)) {
	if value, ok := lookup(EnvOutputDir); ok && value != "" {
		c.Paths.OutputDir = value
	}

	if value, ok := lookup(EnvSpeakerWAV); ok && value != "" {
		c.Paths.SpeakerWAV = value
	}
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.Address, defaultAddress)
	setInt(&c.Server.ReadTimeoutSeconds, defaultReadTimeoutSeconds)
	setInt(&c.Server.WriteTimeoutSeconds, defaultWriteTimeoutSeconds)
	setInt(&c.Server.ShutdownTimeoutSeconds, defaultShutdownTimeoutSecs)

	setString(&c.Paths.OutputDir, defaultOutputDir)
	setString(&c.Paths.SpeakerWAV, defaultSpeakerWAV)
	setString(&c.Paths.BaseLogsDir, os.TempDir())

	setString(&c.TTS.Engine, defaultEngine)
	setString(&c.TTS.ServiceURL, defaultServiceURL)
	setString(&c.TTS.BinaryPath, defaultBinaryPath)
	setString(&c.TTS.Voice, defaultVoice)
	setString(&c.TTS.Language, defaultLanguage)
	setInt(&c.TTS.LoadTimeoutSeconds, defaultLoadTimeoutSeconds)

	if c.TTS.Temperature == 0 {
		c.TTS.Temperature = defaultTemperature
	}

	if c.TTS.TopP == 0 {
		c.TTS.TopP = defaultTopP
	}

	if c.TTS.RepetitionPenalty == 0 {
		c.TTS.RepetitionPenalty = defaultRepetitionPenalty
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}

	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}

	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Accept", "Content-Type"}
	}

	setInt(&c.CORS.MaxAgeSeconds, defaultCORSMaxAgeSeconds)

	setInt(&c.NATS.ConnectTimeoutMillis, defaultNATSConnectTimeoutMs)
	setString(&c.NATS.JobCompletedSubject, defaultCompletedSubject)
	setString(&c.NATS.JobFailedSubject, defaultFailedSubject)
	setString(&c.NATS.AudioObjectStoreBucket, defaultAudioObjectBucket)
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Paths.OutputDir == "" {
		return ErrOutputDirEmpty
	}

	if c.Queue.MaxDepth < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeQueueDepth, c.Queue.MaxDepth)
	}

	for name, value := range map[string]int{
		"tts_service.timeout_seconds":      c.TTS.TimeoutSeconds,
		"tts_service.load_timeout_seconds": c.TTS.LoadTimeoutSeconds,
		"server.shutdown_timeout_seconds":  c.Server.ShutdownTimeoutSeconds,
	} {
		if value < 0 {
			return fmt.Errorf("%w: %s = %d", ErrNegativeTimeout, name, value)
		}
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return ErrNATSURLEmpty
	}

	return nil
}

// SynthesisTimeout is the per-job deadline; zero means none.
func (c *TTSServiceConfig) SynthesisTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Seconds converts a configured number of seconds to a duration.
func Seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func setString(target *string, fallback string) {
	if *target == "" {
		*target = fallback
	}
}

func setInt(target *int, fallback int) {
	if *target == 0 {
		*target = fallback
	}
}
