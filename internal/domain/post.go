package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Provenance tags posts written by the WordPress sync.
const Provenance = "wordpress-sync"

// SourcePost is a post as served by the remote content API.
type SourcePost struct {
	ID         int64     `json:"id"`
	Date       time.Time `json:"date"`
	Modified   time.Time `json:"modified"`
	Slug       string    `json:"slug"`
	Status     string    `json:"status"`
	Link       string    `json:"link,omitempty"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Excerpt    string    `json:"excerpt"`
	AuthorID   int64     `json:"author"`
	Categories []int64   `json:"categories"`
	Tags       []int64   `json:"tags"`
}

// SourcePage is a single page of the source listing.
type SourcePage struct {
	Items      []SourcePost
	HasMore    bool
	TotalPages int
}

// Transformed holds the fields derived from a SourcePost.
type Transformed struct {
	Title              string
	Content            string
	Excerpt            string
	ReadingTimeMinutes int
	ThemeCategory      string
	MatureContent      bool
}

// Post is the locally stored representation of a synchronized post.
type Post struct {
	ID                 int64        `db:"id" json:"id"`
	Title              string       `db:"title" json:"title"`
	Content            string       `db:"content" json:"content"`
	Excerpt            string       `db:"excerpt" json:"excerpt"`
	Slug               string       `db:"slug" json:"slug"`
	AuthorID           int64        `db:"author_id" json:"authorId"`
	ThemeCategory      string       `db:"theme_category" json:"themeCategory"`
	ReadingTimeMinutes int          `db:"reading_time_minutes" json:"readingTimeMinutes"`
	MatureContent      bool         `db:"mature_content" json:"matureContent"`
	Metadata           PostMetadata `db:"metadata" json:"metadata"`
	CreatedAt          time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updatedAt"`
}

// PostMetadata is stored as a JSON document. SourceID is the idempotency key.
type PostMetadata struct {
	SourceID    int64     `json:"sourceId"`
	SourceSlug  string    `json:"sourceSlug"`
	SourceLink  string    `json:"sourceLink,omitempty"`
	Categories  []int64   `json:"categories"`
	Tags        []int64   `json:"tags"`
	PublishedAt time.Time `json:"publishedAt"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	Provenance  string    `json:"provenance"`
}

// Value implements driver.Valuer.
func (m PostMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal post metadata: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *PostMetadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = PostMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("scan post metadata: unsupported type %T", src)
	}
}

// User is a local account. Synchronized posts are authored by a single system user.
type User struct {
	ID          int64     `db:"id"`
	Username    string    `db:"username"`
	Email       string    `db:"email"`
	DisplayName string    `db:"display_name"`
	Role        string    `db:"role"`
	CreatedAt   time.Time `db:"created_at"`
}

type UpsertAction string

const (
	ActionCreated UpsertAction = "created"
	ActionUpdated UpsertAction = "updated"
	ActionSkipped UpsertAction = "skipped"
)

// UpsertResult describes what the writer did with one item.
type UpsertResult struct {
	Action UpsertAction `json:"action"`
	ID     int64        `json:"id"`
	Slug   string       `json:"slug"`
	Post   *Post        `json:"-"`
}
