// Package status keeps the latest sync outcome for the admin surface.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wp_syncer/internal/domain"
)

// RunStore persists finished run summaries.
type RunStore interface {
	Save(ctx context.Context, summary domain.SyncSummary) error
	Latest(ctx context.Context) (*domain.SyncSummary, error)
}

// Snapshot is a read-only copy of the reporter state.
type Snapshot struct {
	Running      bool                `json:"running"`
	RunID        string              `json:"runId,omitempty"`
	RunStartedAt *time.Time          `json:"runStartedAt,omitempty"`
	LastSummary  *domain.SyncSummary `json:"lastSummary"`
	LastSyncTime *time.Time          `json:"lastSyncTime"`
	SourceName   string              `json:"sourceName"`
	Endpoint     string              `json:"endpoint"`
}

type Reporter struct {
	sourceName string
	endpoint   string
	store      RunStore
	logger     *slog.Logger

	mu           sync.RWMutex
	running      bool
	runID        string
	runStartedAt time.Time
	last         *domain.SyncSummary
}

// NewReporter creates a reporter. store may be nil, in which case the state
// lives in memory only.
func NewReporter(sourceName, endpoint string, store RunStore, logger *slog.Logger) *Reporter {
	return &Reporter{
		sourceName: sourceName,
		endpoint:   endpoint,
		store:      store,
		logger:     logger.With("component", "status"),
	}
}

// Load restores the most recent persisted run.
func (r *Reporter) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	latest, err := r.store.Latest(ctx)
	if err != nil {
		return fmt.Errorf("load latest run: %w", err)
	}
	if latest == nil {
		return nil
	}

	r.mu.Lock()
	r.last = latest
	r.mu.Unlock()

	r.logger.Info("restored last sync run", "run_id", latest.RunID, "status", latest.Status)
	return nil
}

func (r *Reporter) RunStarted(runID string, startedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = true
	r.runID = runID
	r.runStartedAt = startedAt
}

// RunFinished records the summary. Persistence failures are logged only.
func (r *Reporter) RunFinished(ctx context.Context, summary domain.SyncSummary) {
	r.mu.Lock()
	r.running = false
	r.runID = ""
	r.runStartedAt = time.Time{}
	r.last = &summary
	r.mu.Unlock()

	r.logger.Info("sync run recorded",
		"run_id", summary.RunID,
		"success", summary.Success,
		"synced", summary.Synced,
		"errors", len(summary.Errors),
	)

	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, summary); err != nil {
		r.logger.Error("failed to persist sync run", "run_id", summary.RunID, "error", err)
	}
}

func (r *Reporter) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Running:    r.running,
		RunID:      r.runID,
		SourceName: r.sourceName,
		Endpoint:   r.endpoint,
	}

	if r.running {
		startedAt := r.runStartedAt
		snap.RunStartedAt = &startedAt
	}

	if r.last != nil {
		last := *r.last
		last.Errors = make([]domain.ItemError, len(r.last.Errors))
		copy(last.Errors, r.last.Errors)
		snap.LastSummary = &last

		finishedAt := last.FinishedAt
		snap.LastSyncTime = &finishedAt
	}

	return snap
}
