package status

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wp_syncer/internal/domain"
)

type fakeRunStore struct {
	saved   []domain.SyncSummary
	latest  *domain.SyncSummary
	saveErr error
	loadErr error
}

func (f *fakeRunStore) Save(_ context.Context, summary domain.SyncSummary) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, summary)
	return nil
}

func (f *fakeRunStore) Latest(context.Context) (*domain.SyncSummary, error) {
	return f.latest, f.loadErr
}

func newReporter(store RunStore) *Reporter {
	return NewReporter("Test Blog", "https://blog.test/wp-json/wp/v2/posts", store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReporter_InitialSnapshot(t *testing.T) {
	snap := newReporter(nil).Snapshot()

	assert.False(t, snap.Running)
	assert.Nil(t, snap.LastSummary)
	assert.Nil(t, snap.LastSyncTime)
	assert.Equal(t, "Test Blog", snap.SourceName)
	assert.Equal(t, "https://blog.test/wp-json/wp/v2/posts", snap.Endpoint)
}

func TestReporter_Lifecycle(t *testing.T) {
	store := &fakeRunStore{}
	r := newReporter(store)
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	r.RunStarted("run-1", start)

	snap := r.Snapshot()
	assert.True(t, snap.Running)
	assert.Equal(t, "run-1", snap.RunID)
	require.NotNil(t, snap.RunStartedAt)
	assert.Equal(t, start, *snap.RunStartedAt)

	run := domain.NewSyncRun("run-1", start)
	run.Record(domain.ActionCreated)
	run.AddItemError(7, errors.New("bad markup"))
	run.Finish(start.Add(time.Minute))

	r.RunFinished(context.Background(), run.Summary())

	snap = r.Snapshot()
	assert.False(t, snap.Running)
	assert.Nil(t, snap.RunStartedAt)
	require.NotNil(t, snap.LastSummary)
	assert.False(t, snap.LastSummary.Success)
	assert.Equal(t, 1, snap.LastSummary.Synced)
	assert.Len(t, snap.LastSummary.Errors, 1)
	require.NotNil(t, snap.LastSyncTime)
	assert.Equal(t, start.Add(time.Minute), *snap.LastSyncTime)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "run-1", store.saved[0].RunID)
}

func TestReporter_SnapshotIsACopy(t *testing.T) {
	r := newReporter(nil)
	run := domain.NewSyncRun("run-1", time.Now())
	run.AddItemError(1, errors.New("x"))
	run.Finish(time.Now())
	r.RunFinished(context.Background(), run.Summary())

	snap := r.Snapshot()
	snap.LastSummary.Errors[0].Error = "mutated"

	assert.Equal(t, "x", r.Snapshot().LastSummary.Errors[0].Error)
}

func TestReporter_SaveFailureIsNotFatal(t *testing.T) {
	r := newReporter(&fakeRunStore{saveErr: errors.New("db down")})
	run := domain.NewSyncRun("run-2", time.Now())
	run.Finish(time.Now())

	r.RunFinished(context.Background(), run.Summary())

	require.NotNil(t, r.Snapshot().LastSummary)
	assert.Equal(t, "run-2", r.Snapshot().LastSummary.RunID)
}

func TestReporter_Load(t *testing.T) {
	finished := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	store := &fakeRunStore{latest: &domain.SyncSummary{
		RunID:      "run-0",
		Success:    true,
		Status:     domain.RunStatusCompleted,
		Synced:     12,
		FinishedAt: finished,
	}}
	r := newReporter(store)

	require.NoError(t, r.Load(context.Background()))

	snap := r.Snapshot()
	require.NotNil(t, snap.LastSummary)
	assert.Equal(t, 12, snap.LastSummary.Synced)
	assert.Equal(t, finished, *snap.LastSyncTime)
}

func TestReporter_LoadEmptyAndError(t *testing.T) {
	assert.NoError(t, newReporter(&fakeRunStore{}).Load(context.Background()))
	assert.NoError(t, newReporter(nil).Load(context.Background()))
	assert.Error(t, newReporter(&fakeRunStore{loadErr: errors.New("boom")}).Load(context.Background()))
}
