// main package for the tts-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/api"
	"github.com/book-expert/tts-job-service/internal/config"
	"github.com/book-expert/tts-job-service/internal/jobs"
	"github.com/book-expert/tts-job-service/internal/jobstore"
	"github.com/book-expert/tts-job-service/internal/notify"
	"github.com/book-expert/tts-job-service/internal/objectstore"
	"github.com/book-expert/tts-job-service/internal/queue"
	"github.com/book-expert/tts-job-service/internal/tts"
	"github.com/book-expert/tts-job-service/internal/tts/text"
	"github.com/book-expert/tts-job-service/internal/worker"
	"github.com/nats-io/nats.go"
)

const (
	bootstrapLogFile = "tts-service-bootstrap.log"
	serviceLogFile   = "tts-service.log"
	natsClientName   = "tts-job-service"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

// integrations holds the optional NATS-backed collaborators.
type integrations struct {
	conn     *nats.Conn
	notifier *notify.NatsNotifier
	mirror   *objectstore.Bucket
}

func (i *integrations) close() {
	if i.conn != nil {
		i.conn.Close()
	}
}

func connectNATS(cfg config.NATSConfig, log *logger.Logger) (*integrations, error) {
	if !cfg.Enabled {
		log.Info("NATS integration disabled.")

		return &integrations{}, nil
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(natsClientName),
		nats.Timeout(time.Duration(cfg.ConnectTimeoutMillis)*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	notifier, err := notify.New(conn, cfg.JobCompletedSubject, cfg.JobFailedSubject)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to create job notifier: %w", err)
	}

	jetstreamContext, err := conn.JetStream()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	mirror, err := objectstore.Open(jetstreamContext, cfg.AudioObjectStoreBucket)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to open audio bucket: %w", err)
	}

	log.Info("Connected to NATS at %s (bucket %s)", cfg.URL, mirror.Name())

	return &integrations{conn: conn, notifier: notifier, mirror: mirror}, nil
}

func workerOptions(cfg *config.Config, tracker *jobs.Tracker, bus *integrations) []worker.Option {
	opts := []worker.Option{
		worker.WithTracker(tracker),
		worker.WithSpeakerReference(cfg.Paths.SpeakerWAV),
		worker.WithSynthesisOptions(cfg.TTS.Params),
		worker.WithTimeout(cfg.TTS.SynthesisTimeout()),
	}

	if cfg.TTS.NormalizeText {
		opts = append(opts, worker.WithTextNormalizer(text.NewNormalizer().Normalize))
	}

	if bus.notifier != nil {
		opts = append(opts, worker.WithNotifier(bus.notifier))
	}

	if bus.mirror != nil {
		opts = append(opts, worker.WithMirror(bus.mirror))
	}

	return opts
}

func serviceOptions(bus *integrations) []jobs.ServiceOption {
	if bus.mirror == nil {
		return nil
	}

	return []jobs.ServiceOption{jobs.WithMirror(bus.mirror)}
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	log, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, log)
}

// serve wires the job pipeline and blocks until ctx ends, the listener fails,
// or the synthesis engine cannot be loaded.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	store, err := jobstore.New(cfg.Paths.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to prepare output directory: %w", err)
	}

	bus, err := connectNATS(cfg.NATS, log)
	if err != nil {
		return err
	}
	defer bus.close()

	taskQueue := queue.New(cfg.Queue.MaxDepth)
	tracker := jobs.NewTracker()
	loader := tts.NewLoader(cfg.TTS, log)
	jobWorker := worker.New(taskQueue, store, loader, log, workerOptions(cfg, tracker, bus)...)
	service := jobs.NewService(taskQueue, store, tracker, log, serviceOptions(bus)...)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewRouter(api.NewHandler(service, jobWorker, taskQueue, log), cfg.CORS, log),
		ReadTimeout:  config.Seconds(cfg.Server.ReadTimeoutSeconds),
		WriteTimeout: config.Seconds(cfg.Server.WriteTimeoutSeconds),
	}

	workerErr := make(chan error, 1)

	go func() {
		// Submissions queue up while the engine loads.
		startErr := jobWorker.Start(ctx)
		if startErr != nil {
			workerErr <- startErr

			return
		}

		workerErr <- jobWorker.Run(context.Background())
	}()

	serverErr := make(chan error, 1)

	go func() {
		serverErr <- server.ListenAndServe()
	}()

	log.System("TTS job service listening on %s, writing audio to %s", cfg.Server.Address, store.Dir())

	var runErr error

	workerDone := false

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received.")
	case listenErr := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", listenErr)
	case err := <-workerErr:
		workerDone = true

		if err != nil {
			log.Error("Worker stopped: %v", err)

			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Seconds(cfg.Server.ShutdownTimeoutSeconds))
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	if shutdownErr != nil && !errors.Is(shutdownErr, http.ErrServerClosed) {
		log.Warn("HTTP server shutdown: %v", shutdownErr)
	}

	taskQueue.Close()

	if !workerDone {
		select {
		case err := <-workerErr:
			if err != nil && runErr == nil && ctx.Err() == nil {
				runErr = err
			}
		case <-shutdownCtx.Done():
			log.Warn("Worker did not drain before the shutdown deadline; %d job(s) abandoned.", taskQueue.Len())
		}
	}

	log.System("TTS job service stopped.")

	return runErr
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
