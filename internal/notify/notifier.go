// Package notify publishes job lifecycle events on NATS.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// A job yields exactly one audio artifact.
const (
	singlePage  = 1
	singleTotal = 1
)

// ErrSubjectEmpty indicates a notifier built without a subject to publish on.
var ErrSubjectEmpty = errors.New("subject cannot be empty")

// JobFailedEvent is published when synthesis for a job fails.
type JobFailedEvent struct {
	Header events.EventHeader `json:"header"`
	Error  string             `json:"error"`
}

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsNotifier implements core.JobNotifier. The job id travels as the workflow id.
type NatsNotifier struct {
	publisher        Publisher
	completedSubject string
	failedSubject    string
	now              func() time.Time
}

// New creates a notifier that publishes on the two subjects.
func New(publisher Publisher, completedSubject, failedSubject string) (*NatsNotifier, error) {
	if completedSubject == "" || failedSubject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsNotifier{
		publisher:        publisher,
		completedSubject: completedSubject,
		failedSubject:    failedSubject,
		now:              time.Now,
	}, nil
}

// JobCompleted announces that audioKey holds the finished audio for jobID.
func (n *NatsNotifier) JobCompleted(_ context.Context, jobID, audioKey string) error {
	event := &events.AudioChunkCreatedEvent{
		Header:     n.header(jobID),
		AudioKey:   audioKey,
		PageNumber: singlePage,
		TotalPages: singleTotal,
	}

	return n.publish(n.completedSubject, event)
}

// JobFailed announces that jobID produced no audio.
func (n *NatsNotifier) JobFailed(_ context.Context, jobID string, cause error) error {
	event := &JobFailedEvent{
		Header: n.header(jobID),
		Error:  cause.Error(),
	}

	return n.publish(n.failedSubject, event)
}

func (n *NatsNotifier) header(jobID string) events.EventHeader {
	return events.EventHeader{
		Timestamp:  n.now().UTC(),
		WorkflowID: jobID,
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
}

func (n *NatsNotifier) publish(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}

	publishErr := n.publisher.Publish(subject, data)
	if publishErr != nil {
		return fmt.Errorf("failed to publish on %s: %w", subject, publishErr)
	}

	return nil
}

var _ Publisher = (*nats.Conn)(nil)
