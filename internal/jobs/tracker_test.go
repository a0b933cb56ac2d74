package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Transitions(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker()
	tracker.now = func() time.Time { return fixed }

	_, ok := tracker.Lookup("job")
	assert.False(t, ok)

	tracker.MarkPending("job")
	record, ok := tracker.Lookup("job")
	require.True(t, ok)
	assert.Equal(t, Record{Status: StatusPending, UpdatedAt: fixed}, record)

	tracker.MarkProcessing("job")
	record, _ = tracker.Lookup("job")
	assert.Equal(t, StatusProcessing, record.Status)

	tracker.MarkFailed("job", "boom")
	record, _ = tracker.Lookup("job")
	assert.Equal(t, StatusFailed, record.Status)
	assert.Equal(t, "boom", record.Reason)
	assert.Equal(t, 1, tracker.Len())

	tracker.Forget("job")
	_, ok = tracker.Lookup("job")
	assert.False(t, ok)
	assert.Zero(t, tracker.Len())
}

func TestValidID(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidID(NewID()))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("hello"))
	assert.False(t, ValidID("urn:uuid:2f1c7c4e-4b8b-4f57-9d43-5b0c3c1f7a10"))
	assert.False(t, ValidID("2F1C7C4E-4B8B-4F57-9D43-5B0C3C1F7A10"))
}
