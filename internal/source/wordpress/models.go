package wordpress

import (
	"strings"
	"time"

	"wp_syncer/internal/domain"
)

// wpTime is a WordPress timestamp. The *_gmt fields carry no zone suffix.
type wpTime struct {
	time.Time
}

const wpTimeLayout = "2006-01-02T15:04:05"

func (t *wpTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		parsed, err = time.ParseInLocation(wpTimeLayout, s, time.UTC)
		if err != nil {
			return err
		}
	}
	t.Time = parsed.UTC()
	return nil
}

type rendered struct {
	Rendered string `json:"rendered"`
}

// APIPost is the /wp/v2/posts resource, limited to the fields requested via _fields.
type APIPost struct {
	ID          int64    `json:"id"`
	DateGMT     wpTime   `json:"date_gmt"`
	ModifiedGMT wpTime   `json:"modified_gmt"`
	Slug        string   `json:"slug"`
	Status      string   `json:"status"`
	Link        string   `json:"link"`
	Title       rendered `json:"title"`
	Content     rendered `json:"content"`
	Excerpt     rendered `json:"excerpt"`
	Author      int64    `json:"author"`
	Categories  []int64  `json:"categories"`
	Tags        []int64  `json:"tags"`
}

// APIError is the body WordPress returns with non-2xx responses.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const codeInvalidPageNumber = "rest_post_invalid_page_number"

func (p APIPost) toDomain() domain.SourcePost {
	return domain.SourcePost{
		ID:         p.ID,
		Date:       p.DateGMT.Time,
		Modified:   p.ModifiedGMT.Time,
		Slug:       p.Slug,
		Status:     p.Status,
		Link:       p.Link,
		Title:      p.Title.Rendered,
		Content:    p.Content.Rendered,
		Excerpt:    p.Excerpt.Rendered,
		AuthorID:   p.Author,
		Categories: p.Categories,
		Tags:       p.Tags,
	}
}
