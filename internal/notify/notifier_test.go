package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/tts-job-service/internal/notify"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	completedSubject = "tts.job.completed"
	failedSubject    = "tts.job.failed"
	testJobID        = "8d3f2a1e-0000-4000-8000-000000000001"
)

var errBrokerDown = errors.New("broker down")

type failingPublisher struct{}

func (failingPublisher) Publish(string, []byte) error {
	return errBrokerDown
}

func startTestServer(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	return natsConnection
}

func TestNatsNotifier_JobCompleted(t *testing.T) {
	t.Parallel()

	natsConnection := startTestServer(t)

	subscription, err := natsConnection.SubscribeSync(completedSubject)
	require.NoError(t, err)
	require.NoError(t, natsConnection.Flush())

	notifier, err := notify.New(natsConnection, completedSubject, failedSubject)
	require.NoError(t, err)

	require.NoError(t, notifier.JobCompleted(context.Background(), testJobID, testJobID+".wav"))

	msg, err := subscription.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var event events.AudioChunkCreatedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))

	assert.Equal(t, testJobID, event.Header.WorkflowID)
	assert.NotEmpty(t, event.Header.EventID)
	assert.False(t, event.Header.Timestamp.IsZero())
	assert.Equal(t, testJobID+".wav", event.AudioKey)
	assert.EqualValues(t, 1, event.PageNumber)
	assert.EqualValues(t, 1, event.TotalPages)
}

func TestNatsNotifier_JobFailed(t *testing.T) {
	t.Parallel()

	natsConnection := startTestServer(t)

	subscription, err := natsConnection.SubscribeSync(failedSubject)
	require.NoError(t, err)
	require.NoError(t, natsConnection.Flush())

	notifier, err := notify.New(natsConnection, completedSubject, failedSubject)
	require.NoError(t, err)

	require.NoError(t, notifier.JobFailed(context.Background(), testJobID, errors.New("model crashed")))

	msg, err := subscription.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var event notify.JobFailedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))

	assert.Equal(t, testJobID, event.Header.WorkflowID)
	assert.Equal(t, "model crashed", event.Error)
}

func TestNatsNotifier_Errors(t *testing.T) {
	t.Parallel()

	_, err := notify.New(failingPublisher{}, "", failedSubject)
	require.ErrorIs(t, err, notify.ErrSubjectEmpty)

	notifier, err := notify.New(failingPublisher{}, completedSubject, failedSubject)
	require.NoError(t, err)

	err = notifier.JobCompleted(context.Background(), testJobID, testJobID+".wav")
	require.ErrorIs(t, err, errBrokerDown)
}
