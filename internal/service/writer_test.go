package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wp_syncer/internal/config"
	"wp_syncer/internal/domain"
	"wp_syncer/internal/testutil"
	"wp_syncer/internal/transform"
)

// memStore enforces the same unique constraints as the posts table.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.Post
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]domain.Post)}
}

func (m *memStore) FindBySourceID(_ context.Context, sourceID int64) (*domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.Metadata.SourceID == sourceID {
			post := row
			return &post, nil
		}
	}
	return nil, domain.ErrPostNotFound
}

func (m *memStore) FindSlugOwner(_ context.Context, slug string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.Slug == slug {
			return row.Metadata.SourceID, true, nil
		}
	}
	return 0, false, nil
}

func (m *memStore) Insert(_ context.Context, post *domain.Post) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.Slug == post.Slug {
			return 0, domain.ErrSlugConflict
		}
		if row.Metadata.SourceID == post.Metadata.SourceID {
			return 0, domain.ErrDuplicateSource
		}
	}

	m.nextID++
	stored := *post
	stored.ID = m.nextID
	m.rows[stored.ID] = stored
	return stored.ID, nil
}

func (m *memStore) Update(_ context.Context, post *domain.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.rows[post.ID]
	if !ok {
		return domain.ErrPostNotFound
	}
	for id, row := range m.rows {
		if id != post.ID && row.Slug == post.Slug {
			return domain.ErrSlugConflict
		}
	}

	updated := *post
	updated.CreatedAt = current.CreatedAt
	updated.AuthorID = current.AuthorID
	m.rows[post.ID] = updated
	return nil
}

func (m *memStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// staticSource serves fixed pages and counts requests.
type staticSource struct {
	pages    [][]domain.SourcePost
	requests int
}

func (f *staticSource) ID() string       { return "wordpress" }
func (f *staticSource) Name() string     { return "Static" }
func (f *staticSource) Endpoint() string { return "http://static.test/wp-json/wp/v2/posts" }

func (f *staticSource) FetchPage(_ context.Context, page, _ int) (*domain.SourcePage, error) {
	f.requests++
	if page > len(f.pages) {
		return &domain.SourcePage{}, nil
	}
	return &domain.SourcePage{Items: f.pages[page-1], HasMore: true}, nil
}

func (f *staticSource) FetchPost(_ context.Context, id int64) (*domain.SourcePost, error) {
	for _, page := range f.pages {
		for _, p := range page {
			if p.ID == id {
				post := p
				return &post, nil
			}
		}
	}
	return nil, domain.ErrPostNotFound
}

func (f *staticSource) SearchPosts(context.Context, string, int, int) ([]domain.SourcePost, error) {
	return nil, nil
}

func newMemWriter(store *memStore, skipUnchanged bool) *PostWriter {
	return NewPostWriter(store, passthroughTx{}, testutil.DiscardLogger(), WriterConfig{
		AuthorID:      1,
		WriteAttempts: 3,
		SkipUnchanged: skipUnchanged,
	})
}

func newMemService(t *testing.T, src Source, store *memStore, skipUnchanged bool) *SyncService {
	t.Helper()
	transformer, err := transform.New(transform.Config{})
	require.NoError(t, err)

	return NewSyncService(src, transformer, newMemWriter(store, skipUnchanged), nil, nil, testutil.DiscardLogger(), config.SyncConfig{
		PageSize:      20,
		PageDelay:     time.Millisecond,
		WriteAttempts: 3,
	})
}

func TestSync_Idempotent(t *testing.T) {
	for _, skipUnchanged := range []bool{true, false} {
		store := newMemStore()
		src := &staticSource{pages: [][]domain.SourcePost{makePosts(1, 20), makePosts(21, 5)}}
		service := newMemService(t, src, store, skipUnchanged)

		first := service.Sync(context.Background())
		require.Empty(t, first.Errors)
		assert.Equal(t, 25, first.Created)
		assert.Equal(t, 3, src.requests)

		countAfterFirst, _ := store.Count(context.Background())

		second := service.Sync(context.Background())
		require.Empty(t, second.Errors)
		assert.Equal(t, 0, second.Created)
		assert.Equal(t, 25, second.Synced())
		if skipUnchanged {
			assert.Equal(t, 25, second.Skipped)
		} else {
			assert.Equal(t, 25, second.Updated)
		}

		countAfterSecond, _ := store.Count(context.Background())
		assert.Equal(t, countAfterFirst, countAfterSecond)
	}
}

func TestPostWriter_ReusesOwnSlug(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	writer := newMemWriter(store, true)

	_, err := store.Insert(ctx, &domain.Post{
		Title:    "The Haunting",
		Slug:     "the-haunting",
		AuthorID: 5,
		Metadata: domain.PostMetadata{SourceID: 42},
	})
	require.NoError(t, err)

	src := domain.SourcePost{ID: 42, Modified: time.Now(), Title: "The   HAUNTING!"}
	result, err := writer.Upsert(ctx, src, domain.Transformed{Title: "The HAUNTING!", Content: "x", ReadingTimeMinutes: 1}, false)

	require.NoError(t, err)
	assert.Equal(t, domain.ActionUpdated, result.Action)
	assert.Equal(t, "the-haunting", result.Slug)

	count, _ := store.Count(ctx)
	assert.Equal(t, int64(1), count)
}

func TestPostWriter_DisambiguatesForeignSlug(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	writer := newMemWriter(store, true)

	titles := map[int64]string{42: "The Haunting", 43: "The Haunting", 44: "the haunting"}
	want := map[int64]string{42: "the-haunting", 43: "the-haunting-1", 44: "the-haunting-2"}

	for _, id := range []int64{42, 43, 44} {
		result, err := writer.Upsert(ctx,
			domain.SourcePost{ID: id, Title: titles[id]},
			domain.Transformed{Title: titles[id], Content: "x", ReadingTimeMinutes: 1},
			false,
		)
		require.NoError(t, err)
		assert.Equal(t, domain.ActionCreated, result.Action)
		assert.Equal(t, want[id], result.Slug)
	}

	slugs := make(map[string]bool)
	sources := make(map[int64]bool)
	for _, row := range store.rows {
		assert.False(t, slugs[row.Slug], "duplicate slug %s", row.Slug)
		assert.False(t, sources[row.Metadata.SourceID], "duplicate source id %d", row.Metadata.SourceID)
		slugs[row.Slug] = true
		sources[row.Metadata.SourceID] = true
	}
}

func TestPostWriter_PreservesCreatedAtAndAuthor(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	writer := newMemWriter(store, false)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	writer.now = func() time.Time { return created }

	src := domain.SourcePost{ID: 9, Title: "Crypt"}
	fields := domain.Transformed{Title: "Crypt", Content: "x", ReadingTimeMinutes: 1}

	first, err := writer.Upsert(ctx, src, fields, false)
	require.NoError(t, err)
	require.Equal(t, domain.ActionCreated, first.Action)

	writer.authorID = 2
	writer.now = func() time.Time { return created.Add(48 * time.Hour) }
	fields.Title = "Crypt, revisited"

	second, err := writer.Upsert(ctx, src, fields, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionUpdated, second.Action)
	assert.Equal(t, first.ID, second.ID)

	row := store.rows[first.ID]
	assert.Equal(t, created, row.CreatedAt)
	assert.Equal(t, int64(1), row.AuthorID)
	assert.Equal(t, created.Add(48*time.Hour), row.UpdatedAt)
	assert.Equal(t, "Crypt, revisited", row.Title)
}

func TestPostWriter_EmptySlugFallsBackToSourceID(t *testing.T) {
	store := newMemStore()
	writer := newMemWriter(store, true)

	result, err := writer.Upsert(context.Background(),
		domain.SourcePost{ID: 77, Title: "???"},
		domain.Transformed{Title: "???", Content: "x", ReadingTimeMinutes: 1},
		false,
	)

	require.NoError(t, err)
	assert.Equal(t, "post-77", result.Slug)
}
