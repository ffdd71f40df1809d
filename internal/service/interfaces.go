package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"wp_syncer/internal/domain"
)

type PostStore interface {
	FindBySourceID(ctx context.Context, sourceID int64) (*domain.Post, error)
	FindSlugOwner(ctx context.Context, slug string) (int64, bool, error)
	Insert(ctx context.Context, post *domain.Post) (int64, error)
	Update(ctx context.Context, post *domain.Post) error
	Count(ctx context.Context) (int64, error)
}

type Source interface {
	ID() string
	Name() string
	Endpoint() string
	FetchPage(ctx context.Context, page, pageSize int) (*domain.SourcePage, error)
	FetchPost(ctx context.Context, id int64) (*domain.SourcePost, error)
	SearchPosts(ctx context.Context, search string, page, pageSize int) ([]domain.SourcePost, error)
}

type Transformer interface {
	Transform(post domain.SourcePost) (domain.Transformed, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, post *domain.Post, action domain.UpsertAction) error
	Close() error
}

// RunReporter receives the lifecycle of every sync run.
type RunReporter interface {
	RunStarted(runID string, startedAt time.Time)
	RunFinished(ctx context.Context, summary domain.SyncSummary)
}
