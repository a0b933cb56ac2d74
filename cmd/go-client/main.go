// Command go-client submits text to the TTS job service and fetches the audio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/jobclient"
)

// Flag descriptions.
const (
	flagServerDesc  = "Base URL of the TTS job service"
	flagTextDesc    = "Text to convert to speech"
	flagOutputDesc  = "Output file path (.wav); defaults to <job_id>.wav"
	flagWaitDesc    = "Wait for the job to finish and download the audio"
	flagPollDesc    = "Interval between status checks while waiting"
	flagTimeoutDesc = "Overall time limit for the command"
	flagStatusDesc  = "Print the status of the given job id and exit"
	flagDeleteDesc  = "Delete the audio of the given job id and exit"
	flagHealthDesc  = "Check TTS service health and exit"
	flagLogDirDesc  = "Directory for the client log file"
)

// Flag names.
const (
	flagServer  = "server"
	flagText    = "text"
	flagOutput  = "output"
	flagWait    = "wait"
	flagPoll    = "poll-interval"
	flagTimeout = "timeout"
	flagStatus  = "status"
	flagDelete  = "delete"
	flagHealth  = "health"
	flagLogDir  = "log-dir"
)

// Defaults.
const (
	defaultServer       = "http://localhost:5000"
	defaultPollInterval = time.Second
	defaultTimeout      = 10 * time.Minute
	requestTimeout      = 30 * time.Second
	logFileName         = "tts-client.log"
	audioFileSuffix     = ".wav"
	outputFilePerm      = 0o600
)

// User-facing messages.
const (
	msgQueued       = "Queued job %s\n"
	msgSaved        = "Saved %d bytes to %s\n"
	msgDeleted      = "Deleted job %s\n"
	msgStatus       = "%s: %s\n"
	msgStatusFailed = "%s: %s (%s)\n"
	msgHealth       = "service %s, worker %s, %d job(s) queued\n"
)

var (
	// ErrNoAction indicates that no mode flag was given.
	ErrNoAction = errors.New("one of --text, --status, --delete or --health must be provided")
	// ErrConflictingActions indicates that more than one mode flag was given.
	ErrConflictingActions = errors.New("only one of --text, --status, --delete or --health may be provided")
	// ErrOutputWithoutWait indicates --output was given together with --wait=false.
	ErrOutputWithoutWait = errors.New("--output requires --wait")
	// ErrPollIntervalInvalid indicates a non-positive poll interval.
	ErrPollIntervalInvalid = errors.New("--poll-interval must be positive")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	server       string
	text         string
	output       string
	status       string
	deleteID     string
	logDir       string
	pollInterval time.Duration
	timeout      time.Duration
	wait         bool
	health       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	err := run(ctx, os.Args[1:], os.Stdout)

	stop()

	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the application entry point, returning an error on failure.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	validationErr := validateFlags(flags)
	if validationErr != nil {
		return validationErr
	}

	clientLog, err := logger.New(flags.logDir, logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() { _ = clientLog.Close() }()

	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	client := jobclient.New(flags.server, requestTimeout)
	clientLog.Info("TTS client targeting %s", flags.server)

	actionErr := dispatch(ctx, client, flags, stdout)
	if actionErr != nil {
		clientLog.Error("Command failed: %v", actionErr)

		return actionErr
	}

	return nil
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("go-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.server, flagServer, defaultServer, flagServerDesc)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.BoolVar(&flags.wait, flagWait, true, flagWaitDesc)
	flagSet.DurationVar(&flags.pollInterval, flagPoll, defaultPollInterval, flagPollDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	flagSet.StringVar(&flags.status, flagStatus, "", flagStatusDesc)
	flagSet.StringVar(&flags.deleteID, flagDelete, "", flagDeleteDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.StringVar(&flags.logDir, flagLogDir, os.TempDir(), flagLogDirDesc)

	parseErr := flagSet.Parse(args)
	if parseErr != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", parseErr)
	}

	return flags, nil
}

// validateFlags checks for missing and conflicting modes.
func validateFlags(flags appFlags) error {
	actions := 0

	for _, set := range []bool{flags.text != "", flags.status != "", flags.deleteID != "", flags.health} {
		if set {
			actions++
		}
	}

	switch {
	case actions == 0:
		return ErrNoAction
	case actions > 1:
		return ErrConflictingActions
	case flags.output != "" && !flags.wait:
		return ErrOutputWithoutWait
	case flags.pollInterval <= 0:
		return ErrPollIntervalInvalid
	default:
		return nil
	}
}

func dispatch(ctx context.Context, client *jobclient.Client, flags appFlags, stdout io.Writer) error {
	switch {
	case flags.health:
		return handleHealth(ctx, client, stdout)
	case flags.status != "":
		return handleStatus(ctx, client, flags.status, stdout)
	case flags.deleteID != "":
		return handleDelete(ctx, client, flags.deleteID, stdout)
	default:
		return handleGenerate(ctx, client, flags, stdout)
	}
}

func handleHealth(ctx context.Context, client *jobclient.Client, stdout io.Writer) error {
	health, err := client.Health(ctx)
	if health.Status != "" {
		fmt.Fprintf(stdout, msgHealth, health.Status, health.Worker, health.QueueDepth)
	}

	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

func handleStatus(ctx context.Context, client *jobclient.Client, jobID string, stdout io.Writer) error {
	status, err := client.Status(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if status.Error != "" {
		fmt.Fprintf(stdout, msgStatusFailed, status.JobID, status.Status, status.Error)

		return nil
	}

	fmt.Fprintf(stdout, msgStatus, status.JobID, status.Status)

	return nil
}

func handleDelete(ctx context.Context, client *jobclient.Client, jobID string, stdout io.Writer) error {
	err := client.Delete(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	fmt.Fprintf(stdout, msgDeleted, jobID)

	return nil
}

func handleGenerate(ctx context.Context, client *jobclient.Client, flags appFlags, stdout io.Writer) error {
	jobID, err := client.Submit(ctx, flags.text)
	if err != nil {
		return fmt.Errorf("failed to submit text: %w", err)
	}

	fmt.Fprintf(stdout, msgQueued, jobID)

	if !flags.wait {
		return nil
	}

	_, waitErr := client.Wait(ctx, jobID, flags.pollInterval)
	if waitErr != nil {
		return fmt.Errorf("job %s did not complete: %w", jobID, waitErr)
	}

	outputPath := flags.output
	if outputPath == "" {
		outputPath = jobID + audioFileSuffix
	}

	return download(ctx, client, jobID, outputPath, stdout)
}

func download(ctx context.Context, client *jobclient.Client, jobID, outputPath string, stdout io.Writer) error {
	// #nosec G304 -- the output path is chosen by the user running the client
	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFilePerm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}

	written, downloadErr := client.Download(ctx, jobID, file)
	closeErr := file.Close()

	if downloadErr != nil {
		_ = os.Remove(outputPath)

		return fmt.Errorf("failed to download audio: %w", downloadErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, closeErr)
	}

	fmt.Fprintf(stdout, msgSaved, written, outputPath)

	return nil
}
