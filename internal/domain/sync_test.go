package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyncRun_FinishWithoutErrors(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	run := NewSyncRun("run-1", start)

	run.Record(ActionCreated)
	run.Record(ActionCreated)
	run.Record(ActionUpdated)
	run.Record(ActionSkipped)
	run.Finish(start.Add(2 * time.Second))

	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.True(t, run.Success())
	assert.Equal(t, 4, run.Synced())
	assert.Equal(t, 2*time.Second, run.Duration())
}

func TestSyncRun_FinishWithErrors(t *testing.T) {
	start := time.Now()
	run := NewSyncRun("run-2", start)

	run.Record(ActionCreated)
	run.AddItemError(42, errors.New("boom"))
	run.AddPageError(3, errors.New("unexpected status: 502"))
	run.Finish(start)

	assert.Equal(t, RunStatusCompletedWithErrors, run.Status)
	assert.False(t, run.Success())
	assert.Equal(t, 1, run.Synced())

	summary := run.Summary()
	assert.False(t, summary.Success)
	assert.Len(t, summary.Errors, 2)
	assert.Equal(t, int64(42), summary.Errors[0].SourceID)
	assert.Equal(t, 3, summary.Errors[1].Page)
}

func TestPostMetadata_ValueScan(t *testing.T) {
	meta := PostMetadata{
		SourceID:   42,
		SourceSlug: "the-haunting",
		Categories: []int64{1, 2},
		Provenance: Provenance,
	}

	raw, err := meta.Value()
	assert.NoError(t, err)

	var scanned PostMetadata
	assert.NoError(t, scanned.Scan(raw))
	assert.Equal(t, int64(42), scanned.SourceID)
	assert.Equal(t, "the-haunting", scanned.SourceSlug)
	assert.Equal(t, []int64{1, 2}, scanned.Categories)

	assert.Error(t, scanned.Scan(12))
}
