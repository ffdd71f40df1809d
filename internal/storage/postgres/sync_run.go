package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"wp_syncer/internal/domain"
)

// SyncRunStore keeps the history of finished sync runs.
type SyncRunStore struct {
	db *sqlx.DB
}

func NewSyncRunStore(db *sqlx.DB) *SyncRunStore {
	return &SyncRunStore{db: db}
}

type syncRunRow struct {
	ID           string    `db:"id"`
	StartedAt    time.Time `db:"started_at"`
	FinishedAt   time.Time `db:"finished_at"`
	Status       string    `db:"status"`
	PagesFetched int       `db:"pages_fetched"`
	Created      int       `db:"created"`
	Updated      int       `db:"updated"`
	Skipped      int       `db:"skipped"`
	Errors       []byte    `db:"errors"`
}

func (s *SyncRunStore) Save(ctx context.Context, summary domain.SyncSummary) error {
	errs := summary.Errors
	if errs == nil {
		errs = []domain.ItemError{}
	}
	rawErrors, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}

	query := `
		INSERT INTO sync_runs (id, started_at, finished_at, status, pages_fetched, created, updated, skipped, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			pages_fetched = EXCLUDED.pages_fetched,
			created = EXCLUDED.created,
			updated = EXCLUDED.updated,
			skipped = EXCLUDED.skipped,
			errors = EXCLUDED.errors`

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, query,
		summary.RunID,
		summary.StartedAt,
		summary.FinishedAt,
		string(summary.Status),
		summary.PagesFetched,
		summary.Created,
		summary.Updated,
		summary.Skipped,
		string(rawErrors),
	)
	if err != nil {
		return fmt.Errorf("save sync run: %w", err)
	}
	return nil
}

// Latest returns the most recently finished run, or nil when there is none.
func (s *SyncRunStore) Latest(ctx context.Context) (*domain.SyncSummary, error) {
	query := `
		SELECT id, started_at, finished_at, status, pages_fetched, created, updated, skipped, errors
		FROM sync_runs
		ORDER BY finished_at DESC
		LIMIT 1`

	var row syncRunRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest sync run: %w", err)
	}

	summary, err := row.toSummary()
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (r syncRunRow) toSummary() (*domain.SyncSummary, error) {
	errs := []domain.ItemError{}
	if len(r.Errors) > 0 {
		if err := json.Unmarshal(r.Errors, &errs); err != nil {
			return nil, fmt.Errorf("unmarshal run errors: %w", err)
		}
	}

	return &domain.SyncSummary{
		RunID:        r.ID,
		Success:      len(errs) == 0,
		Status:       domain.RunStatus(r.Status),
		Synced:       r.Created + r.Updated + r.Skipped,
		Created:      r.Created,
		Updated:      r.Updated,
		Skipped:      r.Skipped,
		PagesFetched: r.PagesFetched,
		Errors:       errs,
		StartedAt:    r.StartedAt.UTC(),
		FinishedAt:   r.FinishedAt.UTC(),
		DurationMs:   r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
	}, nil
}
