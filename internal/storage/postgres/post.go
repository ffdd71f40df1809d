package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wp_syncer/internal/domain"
)

const (
	slugConstraint     = "posts_slug_key"
	sourceIDConstraint = "posts_source_id_key"
)

const postColumns = `id, title, content, excerpt, slug, author_id, theme_category,
	reading_time_minutes, mature_content, metadata, created_at, updated_at`

type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

// FindBySourceID looks a post up by its metadata.sourceId idempotency key.
func (s *PostStore) FindBySourceID(ctx context.Context, sourceID int64) (*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE metadata->>'sourceId' = $1`

	var post domain.Post
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &post, query, strconv.FormatInt(sourceID, 10))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select post by source id: %w", err)
	}
	return &post, nil
}

// FindSlugOwner returns the source id of the post holding slug. Posts that
// did not come from the source report an owner of 0.
func (s *PostStore) FindSlugOwner(ctx context.Context, slug string) (int64, bool, error) {
	query := `SELECT COALESCE((metadata->>'sourceId')::BIGINT, 0) FROM posts WHERE slug = $1`

	var owner int64
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &owner, query, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select slug owner: %w", err)
	}
	return owner, true, nil
}

func (s *PostStore) Insert(ctx context.Context, post *domain.Post) (int64, error) {
	query := `
		INSERT INTO posts (
			title, content, excerpt, slug, author_id, theme_category,
			reading_time_minutes, mature_content, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		post.Title,
		post.Content,
		post.Excerpt,
		post.Slug,
		post.AuthorID,
		post.ThemeCategory,
		post.ReadingTimeMinutes,
		post.MatureContent,
		post.Metadata,
		post.CreatedAt,
		post.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, mapWriteError(err)
	}

	return id, nil
}

// Update rewrites the derived fields. created_at and author_id are never touched.
func (s *PostStore) Update(ctx context.Context, post *domain.Post) error {
	query := `
		UPDATE posts SET
			title = $2,
			content = $3,
			excerpt = $4,
			slug = $5,
			theme_category = $6,
			reading_time_minutes = $7,
			mature_content = $8,
			metadata = $9,
			updated_at = $10
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		post.ID,
		post.Title,
		post.Content,
		post.Excerpt,
		post.Slug,
		post.ThemeCategory,
		post.ReadingTimeMinutes,
		post.MatureContent,
		post.Metadata,
		post.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPostNotFound
	}

	return nil
}

func (s *PostStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count, `SELECT COUNT(*) FROM posts`); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

// mapWriteError turns unique violations into the domain conflicts the writer retries on.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		switch pqErr.Constraint {
		case slugConstraint:
			return fmt.Errorf("%w: %s", domain.ErrSlugConflict, pqErr.Detail)
		case sourceIDConstraint:
			return fmt.Errorf("%w: %s", domain.ErrDuplicateSource, pqErr.Detail)
		}
	}
	return err
}
