package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wp_syncer/internal/domain"
	"wp_syncer/internal/slug"
)

// PostWriter creates or updates the stored post for one source item. The
// lookup, slug probe and write share a single transaction per item.
type PostWriter struct {
	posts         PostStore
	txManager     TransactionManager
	slugs         *slug.Allocator
	authorID      int64
	attempts      int
	skipUnchanged bool
	logger        *slog.Logger
	now           func() time.Time
}

type WriterConfig struct {
	AuthorID      int64
	WriteAttempts int
	SkipUnchanged bool
	SlugProbes    int
}

func NewPostWriter(posts PostStore, txManager TransactionManager, logger *slog.Logger, cfg WriterConfig) *PostWriter {
	attempts := cfg.WriteAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &PostWriter{
		posts:         posts,
		txManager:     txManager,
		slugs:         slug.NewAllocator(posts, cfg.SlugProbes),
		authorID:      cfg.AuthorID,
		attempts:      attempts,
		skipUnchanged: cfg.SkipUnchanged,
		logger:        logger.With("component", "writer"),
		now:           time.Now,
	}
}

// Upsert writes the transformed item keyed by its source id. With force set
// the item is rewritten even when the source reports no modification.
//
// Unique violations raised by a concurrent writer roll the item back and are
// retried; the retry sees the committed row and turns into an update.
func (w *PostWriter) Upsert(ctx context.Context, src domain.SourcePost, fields domain.Transformed, force bool) (*domain.UpsertResult, error) {
	var lastErr error

	for attempt := 1; attempt <= w.attempts; attempt++ {
		result, err := w.upsertOnce(ctx, src, fields, force)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isWriteConflict(err) || ctx.Err() != nil {
			break
		}

		w.logger.Warn("write conflict, retrying item",
			"source_id", src.ID,
			"attempt", attempt,
			"error", err,
		)
	}

	return nil, lastErr
}

func (w *PostWriter) upsertOnce(ctx context.Context, src domain.SourcePost, fields domain.Transformed, force bool) (*domain.UpsertResult, error) {
	var result *domain.UpsertResult

	err := w.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := w.posts.FindBySourceID(txCtx, src.ID)
		if err != nil && !errors.Is(err, domain.ErrPostNotFound) {
			return fmt.Errorf("find post: %w", err)
		}

		if existing != nil && !force && w.unchanged(existing, src) {
			result = &domain.UpsertResult{
				Action: domain.ActionSkipped,
				ID:     existing.ID,
				Slug:   existing.Slug,
				Post:   existing,
			}
			return nil
		}

		base := src.Slug
		if base == "" {
			base = fields.Title
		}
		allocated, err := w.slugs.Allocate(txCtx, base, src.ID)
		if err != nil {
			return fmt.Errorf("allocate slug: %w", err)
		}

		post := w.buildPost(src, fields, allocated)

		if existing == nil {
			post.AuthorID = w.authorID
			post.CreatedAt = post.UpdatedAt

			id, err := w.posts.Insert(txCtx, post)
			if err != nil {
				return fmt.Errorf("insert post: %w", err)
			}
			post.ID = id

			result = &domain.UpsertResult{Action: domain.ActionCreated, ID: id, Slug: allocated, Post: post}
			return nil
		}

		post.ID = existing.ID
		post.AuthorID = existing.AuthorID
		post.CreatedAt = existing.CreatedAt

		if err := w.posts.Update(txCtx, post); err != nil {
			return fmt.Errorf("update post: %w", err)
		}

		result = &domain.UpsertResult{Action: domain.ActionUpdated, ID: post.ID, Slug: allocated, Post: post}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// unchanged reports whether the stored copy is at least as new as the source item.
func (w *PostWriter) unchanged(existing *domain.Post, src domain.SourcePost) bool {
	if !w.skipUnchanged || src.Modified.IsZero() || existing.Metadata.ModifiedAt.IsZero() {
		return false
	}
	return !existing.Metadata.ModifiedAt.Before(src.Modified)
}

func (w *PostWriter) buildPost(src domain.SourcePost, fields domain.Transformed, slugValue string) *domain.Post {
	return &domain.Post{
		Title:              fields.Title,
		Content:            fields.Content,
		Excerpt:            fields.Excerpt,
		Slug:               slugValue,
		ThemeCategory:      fields.ThemeCategory,
		ReadingTimeMinutes: fields.ReadingTimeMinutes,
		MatureContent:      fields.MatureContent,
		Metadata: domain.PostMetadata{
			SourceID:    src.ID,
			SourceSlug:  src.Slug,
			SourceLink:  src.Link,
			Categories:  src.Categories,
			Tags:        src.Tags,
			PublishedAt: src.Date,
			ModifiedAt:  src.Modified,
			Provenance:  domain.Provenance,
		},
		UpdatedAt: w.now().UTC(),
	}
}

func isWriteConflict(err error) bool {
	return errors.Is(err, domain.ErrSlugConflict) || errors.Is(err, domain.ErrDuplicateSource)
}
