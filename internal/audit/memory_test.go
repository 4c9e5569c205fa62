package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLog_AppendFillsDefaults(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, Entry{
		JobID:       "job-1",
		RecordIndex: 0,
		Decision:    DecisionValidated,
		Payload:     json.RawMessage(`null`),
	}))

	entries, err := log.QueryByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestMemoryLog_AppendKeepsCallerValues(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Append(ctx, Entry{
		ID:        "entry-1",
		JobID:     "job-1",
		Decision:  DecisionCorrected,
		CreatedAt: created,
	}))

	entries, err := log.QueryByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "entry-1", entries[0].ID)
	assert.Equal(t, created, entries[0].CreatedAt)
}

func TestMemoryLog_QueryByJobFilters(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	for i, jobID := range []string{"job-a", "job-b", "job-a"} {
		require.NoError(t, log.Append(ctx, Entry{
			JobID:       jobID,
			RecordIndex: i,
			Decision:    DecisionRejected,
		}))
	}

	a, err := log.QueryByJob(ctx, "job-a")
	require.NoError(t, err)
	require.Len(t, a, 2)
	// Entries come back in append order.
	assert.Equal(t, 0, a[0].RecordIndex)
	assert.Equal(t, 2, a[1].RecordIndex)

	all, err := log.QueryByJob(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := log.QueryByJob(ctx, "job-c")
	require.NoError(t, err)
	assert.Empty(t, none)
}
