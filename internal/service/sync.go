package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"wp_syncer/internal/config"
	"wp_syncer/internal/domain"
	"wp_syncer/internal/metrics"
)

type SyncService struct {
	source      Source
	transformer Transformer
	writer      *PostWriter
	publisher   Publisher
	reporter    RunReporter
	logger      *slog.Logger
	config      config.SyncConfig
	newRunID    func() string
	now         func() time.Time
}

// NewSyncService wires the pipeline. publisher and reporter may be nil.
func NewSyncService(
	source Source,
	transformer Transformer,
	writer *PostWriter,
	publisher Publisher,
	reporter RunReporter,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		source:      source,
		transformer: transformer,
		writer:      writer,
		publisher:   publisher,
		reporter:    reporter,
		logger:      logger.With("source", source.ID()),
		config:      cfg,
		newRunID:    uuid.NewString,
		now:         time.Now,
	}
}

// Sync walks the source page by page and writes every item. Failures are
// recorded on the returned run and never abort it: an item error moves on to
// the next item, a page error ends pagination.
func (s *SyncService) Sync(ctx context.Context) *domain.SyncRun {
	run := domain.NewSyncRun(s.newRunID(), s.now().UTC())
	logger := s.logger.With("run_id", run.ID)

	logger.Info("starting sync",
		"source_name", s.source.Name(),
		"page_size", s.config.PageSize,
		"max_pages", s.config.MaxPages,
	)

	if s.reporter != nil {
		s.reporter.RunStarted(run.ID, run.StartedAt)
	}
	metrics.SyncInProgress.Set(1)
	defer metrics.SyncInProgress.Set(0)

	limiter := rate.NewLimiter(rate.Every(s.config.PageDelay), 1)

	for page := 1; ; page++ {
		if s.config.MaxPages > 0 && page > s.config.MaxPages {
			logger.Info("page limit reached", "max_pages", s.config.MaxPages)
			break
		}

		if err := limiter.Wait(ctx); err != nil {
			run.AddPageError(page, fmt.Errorf("wait for page: %w", err))
			metrics.SyncPageErrors.Inc()
			logger.Error("sync interrupted", "page", page, "error", err)
			break
		}

		run.Page = page
		result, err := s.fetchPage(ctx, page)
		if err != nil {
			run.AddPageError(page, err)
			metrics.SyncPageErrors.Inc()
			logger.Error("page fetch failed, stopping pagination", "page", page, "error", err)
			break
		}

		run.PagesFetched++
		metrics.SyncPagesFetched.Inc()

		if len(result.Items) == 0 {
			logger.Debug("empty page, pagination finished", "page", page)
			break
		}

		logger.Debug("processing page", "page", page, "items", len(result.Items))

		for _, item := range result.Items {
			s.processItem(ctx, logger, run, item)
		}

		if !result.HasMore {
			break
		}
	}

	run.Finish(s.now().UTC())
	metrics.RecordRun(string(run.Status), run.Duration(), run.FinishedAt)

	if s.reporter != nil {
		s.reporter.RunFinished(context.WithoutCancel(ctx), run.Summary())
	}

	logger.Info("sync completed",
		"status", run.Status,
		"pages", run.PagesFetched,
		"created", run.Created,
		"updated", run.Updated,
		"skipped", run.Skipped,
		"errors", len(run.Errors),
		"duration", run.Duration(),
	)

	return run
}

// SyncOne re-fetches a single source item and rewrites it unconditionally.
func (s *SyncService) SyncOne(ctx context.Context, sourceID int64) (*domain.UpsertResult, error) {
	if sourceID <= 0 {
		return nil, fmt.Errorf("%w: non-positive id %d", domain.ErrInvalidSourcePost, sourceID)
	}

	post, err := s.source.FetchPost(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("fetch post: %w", err)
	}

	result, err := s.syncItem(ctx, *post, true)
	if err != nil {
		return nil, err
	}

	s.logger.Info("post re-synced",
		"source_id", sourceID,
		"action", result.Action,
		"post_id", result.ID,
		"slug", result.Slug,
	)

	return result, nil
}

// Search queries the source directly; nothing is stored.
func (s *SyncService) Search(ctx context.Context, query string, page, pageSize int) ([]domain.SourcePost, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.config.PageSize
	}

	posts, err := s.source.SearchPosts(ctx, query, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	return posts, nil
}

// Endpoint and SourceName describe the source on the status surface.
func (s *SyncService) Endpoint() string {
	return s.source.Endpoint()
}

func (s *SyncService) SourceName() string {
	return s.source.Name()
}

func (s *SyncService) fetchPage(ctx context.Context, page int) (*domain.SourcePage, error) {
	fetchCtx := ctx
	if s.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.config.FetchTimeout)
		defer cancel()
	}

	return s.source.FetchPage(fetchCtx, page, s.config.PageSize)
}

func (s *SyncService) processItem(ctx context.Context, logger *slog.Logger, run *domain.SyncRun, item domain.SourcePost) {
	itemCtx := ctx
	if s.config.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, s.config.ItemTimeout)
		defer cancel()
	}

	result, err := s.safeSyncItem(itemCtx, item)
	if err != nil {
		run.AddItemError(item.ID, err)
		metrics.SyncItemErrors.Inc()
		logger.Warn("item sync failed", "source_id", item.ID, "page", run.Page, "error", err)
		return
	}

	run.Record(result.Action)
	metrics.RecordItem(string(result.Action))
}

// safeSyncItem turns a panic while handling one item into an item error.
func (s *SyncService) safeSyncItem(ctx context.Context, item domain.SourcePost) (result *domain.UpsertResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic while syncing item: %v", r)
		}
	}()

	return s.syncItem(ctx, item, false)
}

func (s *SyncService) syncItem(ctx context.Context, item domain.SourcePost, force bool) (*domain.UpsertResult, error) {
	fields, err := s.transformer.Transform(item)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}

	result, err := s.writer.Upsert(ctx, item, fields, force)
	if err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}

	if result.Action != domain.ActionSkipped {
		s.publish(ctx, result)
	}

	return result, nil
}

func (s *SyncService) publish(ctx context.Context, result *domain.UpsertResult) {
	if s.publisher == nil || result.Post == nil {
		return
	}

	if err := s.publisher.Publish(ctx, result.Post, result.Action); err != nil {
		metrics.PublishFailures.Inc()
		s.logger.Warn("failed to publish post event",
			"post_id", result.ID,
			"source_id", result.Post.Metadata.SourceID,
			"error", err,
		)
	}
}
