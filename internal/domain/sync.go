package domain

import "time"

// RunStatus is the terminal state of a sync run.
type RunStatus string

const (
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
)

// ItemError records a failure for one source item, or for a whole page when SourceID is 0.
type ItemError struct {
	SourceID int64  `json:"sourceId,omitempty"`
	Page     int    `json:"page,omitempty"`
	Error    string `json:"error"`
}

// SyncRun holds the state of one pagination sweep through the source.
type SyncRun struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Page         int
	PagesFetched int
	Created      int
	Updated      int
	Skipped      int
	Errors       []ItemError
	Status       RunStatus
}

func NewSyncRun(id string, startedAt time.Time) *SyncRun {
	return &SyncRun{
		ID:        id,
		StartedAt: startedAt,
		Status:    RunStatusRunning,
		Errors:    []ItemError{},
	}
}

// Record counts a successfully processed item.
func (r *SyncRun) Record(action UpsertAction) {
	switch action {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionSkipped:
		r.Skipped++
	}
}

func (r *SyncRun) AddItemError(sourceID int64, err error) {
	r.Errors = append(r.Errors, ItemError{SourceID: sourceID, Error: err.Error()})
}

func (r *SyncRun) AddPageError(page int, err error) {
	r.Errors = append(r.Errors, ItemError{Page: page, Error: err.Error()})
}

// Synced is the number of items processed without error.
func (r *SyncRun) Synced() int {
	return r.Created + r.Updated + r.Skipped
}

func (r *SyncRun) Success() bool {
	return len(r.Errors) == 0
}

// Finish sets the terminal status.
func (r *SyncRun) Finish(at time.Time) {
	r.FinishedAt = at
	if r.Success() {
		r.Status = RunStatusCompleted
	} else {
		r.Status = RunStatusCompletedWithErrors
	}
}

func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SyncSummary is the read-only view of a run exposed to the admin surface.
type SyncSummary struct {
	RunID        string      `json:"runId"`
	Success      bool        `json:"success"`
	Status       RunStatus   `json:"status"`
	Synced       int         `json:"synced"`
	Created      int         `json:"created"`
	Updated      int         `json:"updated"`
	Skipped      int         `json:"skipped"`
	PagesFetched int         `json:"pagesFetched"`
	Errors       []ItemError `json:"errors"`
	StartedAt    time.Time   `json:"startedAt"`
	FinishedAt   time.Time   `json:"finishedAt"`
	DurationMs   int64       `json:"durationMs"`
}

func (r *SyncRun) Summary() SyncSummary {
	errs := make([]ItemError, len(r.Errors))
	copy(errs, r.Errors)

	return SyncSummary{
		RunID:        r.ID,
		Success:      r.Success(),
		Status:       r.Status,
		Synced:       r.Synced(),
		Created:      r.Created,
		Updated:      r.Updated,
		Skipped:      r.Skipped,
		PagesFetched: r.PagesFetched,
		Errors:       errs,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		DurationMs:   r.Duration().Milliseconds(),
	}
}
