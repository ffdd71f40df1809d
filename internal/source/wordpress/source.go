package wordpress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"wp_syncer/internal/domain"
	"wp_syncer/internal/metrics"
)

const (
	SourceID = "wordpress"

	headerTotalPages = "X-WP-TotalPages"
	maxErrorBody     = 4096
)

// Config holds WordPress source configuration.
type Config struct {
	Name        string
	BaseURL     string
	Timeout     time.Duration
	UserAgent   string
	Fields      []string
	MaxFailures uint32
	OpenTimeout time.Duration
}

// FetchError is returned for any failed page request. The caller decides
// whether to retry; the client never does.
type FetchError struct {
	Page       int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch page %d: status %d: %v", e.Page, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type statusError struct {
	code int
	body APIError
}

func (e *statusError) Error() string {
	if e.body.Code != "" {
		return fmt.Sprintf("unexpected status %d: %s: %s", e.code, e.body.Code, e.body.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.code)
}

// Source reads published posts from the WordPress REST API.
type Source struct {
	httpClient *http.Client
	baseURL    string
	name       string
	userAgent  string
	fields     string
	breaker    *gobreaker.CircuitBreaker[*domain.SourcePage]
	logger     *slog.Logger
}

// New creates a new WordPress source.
func New(cfg Config, logger *slog.Logger) *Source {
	s := &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		name:      cfg.Name,
		userAgent: cfg.UserAgent,
		fields:    strings.Join(cfg.Fields, ","),
		logger:    logger.With("source", SourceID),
	}

	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	s.breaker = gobreaker.NewCircuitBreaker[*domain.SourcePage](gobreaker.Settings{
		Name:        "wordpress-posts",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.SourceBreakerState.Set(breakerStateValue(to))
		},
	})

	return s
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return s.name
}

// Endpoint is the posts collection URL, shown on the admin surface.
func (s *Source) Endpoint() string {
	return s.baseURL + "/posts"
}

// FetchPage fetches one page of published posts, newest first.
func (s *Source) FetchPage(ctx context.Context, page, pageSize int) (*domain.SourcePage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(pageSize))
	query.Set("status", "publish")
	query.Set("orderby", "id")
	query.Set("order", "desc")
	s.setFields(query)

	result, err := s.breaker.Execute(func() (*domain.SourcePage, error) {
		return s.fetchPosts(ctx, query, page)
	})
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			return nil, fetchErr
		}
		return nil, &FetchError{Page: page, Err: err}
	}

	s.logger.Debug("fetched page",
		"page", page,
		"posts", len(result.Items),
		"total_pages", result.TotalPages,
	)

	return result, nil
}

// FetchPost fetches a single published post by id.
func (s *Source) FetchPost(ctx context.Context, id int64) (*domain.SourcePost, error) {
	query := url.Values{}
	s.setFields(query)

	var post APIPost
	endpoint := fmt.Sprintf("%s/posts/%d?%s", s.baseURL, id, query.Encode())
	if _, err := s.doRequest(ctx, endpoint, &post); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, fmt.Errorf("post %d: %w", id, domain.ErrPostNotFound)
		}
		return nil, fmt.Errorf("fetch post %d: %w", id, err)
	}

	if post.Status != "" && post.Status != "publish" {
		return nil, fmt.Errorf("post %d is %s: %w", id, post.Status, domain.ErrPostNotFound)
	}

	sp := post.toDomain()
	return &sp, nil
}

// SearchPosts runs a full-text search against the source. Results are not stored.
func (s *Source) SearchPosts(ctx context.Context, search string, page, pageSize int) ([]domain.SourcePost, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(pageSize))
	query.Set("status", "publish")
	if search != "" {
		query.Set("search", search)
	}
	s.setFields(query)

	result, err := s.fetchPosts(ctx, query, page)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

func (s *Source) setFields(query url.Values) {
	if s.fields != "" {
		query.Set("_fields", s.fields)
	}
}

func (s *Source) fetchPosts(ctx context.Context, query url.Values, page int) (*domain.SourcePage, error) {
	var posts []APIPost
	header, err := s.doRequest(ctx, s.baseURL+"/posts?"+query.Encode(), &posts)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			if se.code == http.StatusBadRequest && se.body.Code == codeInvalidPageNumber {
				return &domain.SourcePage{}, nil
			}
			return nil, &FetchError{Page: page, StatusCode: se.code, Err: err}
		}
		return nil, &FetchError{Page: page, Err: err}
	}

	result := &domain.SourcePage{
		Items: make([]domain.SourcePost, 0, len(posts)),
	}
	for _, p := range posts {
		result.Items = append(result.Items, p.toDomain())
	}

	if total, err := strconv.Atoi(header.Get(headerTotalPages)); err == nil {
		result.TotalPages = total
	}
	result.HasMore = len(result.Items) > 0 && (result.TotalPages == 0 || page < result.TotalPages)

	return result, nil
}

func (s *Source) doRequest(ctx context.Context, endpoint string, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &statusError{code: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(body, &se.body)
		return nil, se
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return resp.Header, nil
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
