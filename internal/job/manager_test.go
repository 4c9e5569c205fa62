package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/event"
	"github.com/terrafusion/import-service/internal/pipeline/validate"
)

func newTestManager(t *testing.T) (*Manager, *event.Bus) {
	t.Helper()
	bus := event.NewBus(time.Hour, 64, nil)
	return NewManager(bus, 10, nil), bus
}

func collect(t *testing.T, sub *event.Subscription) []event.Event {
	t.Helper()
	var got []event.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-time.After(100 * time.Millisecond):
			return got
		}
	}
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _ := newTestManager(t)

	j := m.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, true)
	assert.NotEmpty(t, j.JobID)
	assert.Equal(t, domain.JobStatusQueued, j.Status)
	assert.True(t, j.AutoCorrect)
	assert.False(t, j.CreatedAt.IsZero())

	got, err := m.Get(j.JobID)
	require.NoError(t, err)
	assert.Equal(t, j, got)

	_, err = m.Get("no-such-job")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestManager_ListByUser(t *testing.T) {
	m, _ := newTestManager(t)

	m.Create("alice", "a.csv", "/tmp/a.csv", domain.FormatDelimitedText, false)
	m.Create("alice", "b.xml", "/tmp/b.xml", domain.FormatMarkup, false)
	m.Create("bob", "c.csv", "/tmp/c.csv", domain.FormatDelimitedText, false)

	assert.Len(t, m.ListByUser("alice"), 2)
	assert.Len(t, m.ListByUser("bob"), 1)
	assert.Empty(t, m.ListByUser("carol"))
}

func TestManager_CancelQueuedJob(t *testing.T) {
	m, bus := newTestManager(t)
	j := m.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, false)

	sub := bus.Subscribe(j.JobID)
	require.True(t, m.Cancel(j.JobID))

	got, err := m.Get(j.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
	require.NotNil(t, got.CompletedAt)

	events := collect(t, sub)
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeJobCancelled, events[0].Type)
}

func TestManager_CancelProcessingJobIsDeferred(t *testing.T) {
	m, _ := newTestManager(t)
	j := m.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, false)

	_, jobCtx, err := m.StartProcessing(context.Background(), j.JobID)
	require.NoError(t, err)

	require.True(t, m.Cancel(j.JobID))
	assert.True(t, m.CancelRequested(j.JobID))

	// The per-job context is cancelled, but the status stays processing until
	// the runner reaches its next checkpoint and finishes the cancellation.
	select {
	case <-jobCtx.Done():
	default:
		t.Fatal("job context not cancelled")
	}
	got, err := m.Get(j.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)

	m.FinishCancelled(j.JobID)
	got, err = m.Get(j.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
}

func TestManager_CancelMissingOrTerminal(t *testing.T) {
	m, _ := newTestManager(t)
	assert.False(t, m.Cancel("no-such-job"))

	j := m.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, false)
	m.Fail(j.JobID, "detector could not classify the file")
	assert.False(t, m.Cancel(j.JobID))
}

func TestManager_StartProcessing(t *testing.T) {
	m, _ := newTestManager(t)
	j := m.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, false)

	snap, jobCtx, err := m.StartProcessing(context.Background(), j.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, snap.Status)
	require.NoError(t, jobCtx.Err())

	// A second start on the same job is rejected.
	_, _, err = m.StartProcessing(context.Background(), j.JobID)
	assert.ErrorIs(t, err, domain.ErrJobTerminal)

	_, _, err = m.StartProcessing(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestManager_CancelBeforeStartCancelsContext(t *testing.T) {
	m, _ := newTestManager(t)
	j := m.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, false)

	// Simulate the race where the cancel request lands while the job message
	// is still in the queue but after it left queued state tracking.
	_, jobCtx, err := m.StartProcessing(context.Background(), j.JobID)
	require.NoError(t, err)
	m.Cancel(j.JobID)
	assert.Error(t, jobCtx.Err())
}

func TestManager_RecordProcessedCountersAndEvents(t *testing.T) {
	bus := event.NewBus(time.Hour, 64, nil)
	m := NewManager(bus, 2, nil)
	j := m.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, false)
	_, _, err := m.StartProcessing(context.Background(), j.JobID)
	require.NoError(t, err)

	sub := bus.Subscribe(j.JobID)
	m.SetTotalRecords(j.JobID, 3)

	rec := domain.CompRecord{Address: "1 Main St"}
	m.RecordProcessed(j.JobID, 0, rec, validate.Result{Valid: true})
	m.RecordProcessed(j.JobID, 1, rec, validate.Result{Valid: false})
	m.RecordProcessed(j.JobID, 2, rec, validate.Result{Valid: true})

	got, err := m.Get(j.JobID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Progress.TotalRecords)
	assert.Equal(t, 3, got.Progress.ProcessedRecords)
	assert.Equal(t, 2, got.Progress.ValidRecords)
	assert.Equal(t, 1, got.Progress.InvalidRecords)

	var types []string
	for _, ev := range collect(t, sub) {
		types = append(types, ev.Type)
	}
	// progress for the total, one record_processed each, plus a progress
	// event after every 2nd record.
	assert.Equal(t, []string{
		event.TypeJobProgress,
		event.TypeRecordProcessed,
		event.TypeRecordProcessed,
		event.TypeJobProgress,
		event.TypeRecordProcessed,
	}, types)
	sub.Close()
}

func TestManager_FinishIsIdempotent(t *testing.T) {
	m, bus := newTestManager(t)
	j := m.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, false)
	sub := bus.Subscribe(j.JobID)

	m.Complete(j.JobID)
	m.Fail(j.JobID, "too late")
	m.FinishCancelled(j.JobID)

	got, err := m.Get(j.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)

	events := collect(t, sub)
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeJobCompleted, events[0].Type)
}

func TestManager_SubscribeToTerminalJobReplaysTerminal(t *testing.T) {
	m, _ := newTestManager(t)
	j := m.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, false)
	m.Fail(j.JobID, "boom")

	sub, err := m.Subscribe(j.JobID)
	require.NoError(t, err)

	events := collect(t, sub)
	require.Len(t, events, 2)
	assert.Equal(t, event.TypeSnapshot, events[0].Type)
	assert.Equal(t, event.TypeJobFailed, events[1].Type)

	_, open := <-sub.Events()
	assert.False(t, open, "a finished job's stream must arrive closed")

	_, err = m.Subscribe("no-such-job")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestManager_SubscribeDuringFinishAlwaysSeesTerminal(t *testing.T) {
	// Attach a subscriber while the job is finishing, repeatedly, to cover
	// both interleavings: the terminal transition either lands in the initial
	// snapshot events or is fanned out to the registered subscription. Under
	// neither may the stream stay open without a terminal event.
	for i := 0; i < 50; i++ {
		m, _ := newTestManager(t)
		j := m.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, false)

		done := make(chan struct{})
		go func() {
			m.Fail(j.JobID, "boom")
			close(done)
		}()

		sub, err := m.Subscribe(j.JobID)
		require.NoError(t, err)
		<-done

		events := collect(t, sub)
		require.NotEmpty(t, events)
		assert.True(t, events[len(events)-1].IsTerminal(),
			"the terminal event must be the last event seen")

		terminals := 0
		for _, ev := range events {
			if ev.IsTerminal() {
				terminals++
			}
		}
		assert.Equal(t, 1, terminals, "exactly one terminal event per stream")

		_, open := <-sub.Events()
		assert.False(t, open, "the stream must be closed server-side")
	}
}

func TestManager_SnapshotEvents(t *testing.T) {
	m, _ := newTestManager(t)
	j := m.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, false)

	events, err := m.SnapshotEvents(j.JobID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeSnapshot, events[0].Type)

	m.Fail(j.JobID, "boom")
	events, err = m.SnapshotEvents(j.JobID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, event.TypeSnapshot, events[0].Type)
	assert.Equal(t, event.TypeJobFailed, events[1].Type)

	_, err = m.SnapshotEvents("no-such-job")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
