// Package transform derives the stored representation of a post from the
// markup served by the content source. Everything here is pure: the same
// source post and keyword tables always produce the same output.
package transform

import (
	"fmt"
	"regexp"
	"strings"

	"wp_syncer/internal/domain"
)

// Theme maps a category name to the keywords that select it.
type Theme struct {
	Name     string
	Keywords []string
}

// DefaultThemes is ordered: the first matching theme wins.
var DefaultThemes = []Theme{
	{Name: "cosmic", Keywords: []string{"eldritch", "cosmic", "the void", "ancient ones", "abyss", "stars were wrong"}},
	{Name: "supernatural", Keywords: []string{"ghost", "haunt", "spirit", "poltergeist", "possess", "demon", "exorcis", "apparition"}},
	{Name: "creature", Keywords: []string{"monster", "creature", "werewolf", "vampire", "beast", "wendigo", "zombie"}},
	{Name: "body_horror", Keywords: []string{"flesh", "mutation", "parasite", "infection", "transformation", "bones"}},
	{Name: "psychological", Keywords: []string{"madness", "insanity", "paranoia", "hallucination", "sanity", "nightmare", "obsession"}},
	{Name: "folk", Keywords: []string{"ritual", "pagan", "village", "harvest", "folklore", "cult"}},
	{Name: "gothic", Keywords: []string{"castle", "manor", "crypt", "victorian", "mansion", "cathedral"}},
	{Name: "slasher", Keywords: []string{"killer", "slasher", "stalker", "murder", "knife", "massacre"}},
}

// DefaultMatureKeywords flag content as mature when any of them appears.
var DefaultMatureKeywords = []string{"explicit", "violence", "graphic", "gore", "nsfw"}

const (
	DefaultTheme          = "general"
	DefaultExcerptWords   = 25
	DefaultWordsPerMinute = 200

	ellipsis = "..."
)

type Config struct {
	ExcerptWords   int
	WordsPerMinute int
	DefaultTheme   string
	Themes         []Theme
	MatureKeywords []string
}

type theme struct {
	name    string
	pattern *regexp.Regexp
}

// Transformer cleans source markup and derives excerpt, reading time and classification.
type Transformer struct {
	excerptWords   int
	wordsPerMinute int
	defaultTheme   string
	themes         []theme
	mature         *regexp.Regexp
}

func New(cfg Config) (*Transformer, error) {
	if cfg.ExcerptWords <= 0 {
		cfg.ExcerptWords = DefaultExcerptWords
	}
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = DefaultWordsPerMinute
	}
	if cfg.DefaultTheme == "" {
		cfg.DefaultTheme = DefaultTheme
	}
	if len(cfg.Themes) == 0 {
		cfg.Themes = DefaultThemes
	}
	if len(cfg.MatureKeywords) == 0 {
		cfg.MatureKeywords = DefaultMatureKeywords
	}

	t := &Transformer{
		excerptWords:   cfg.ExcerptWords,
		wordsPerMinute: cfg.WordsPerMinute,
		defaultTheme:   cfg.DefaultTheme,
		themes:         make([]theme, 0, len(cfg.Themes)),
	}

	for _, th := range cfg.Themes {
		pattern, err := compileKeywords(th.Keywords)
		if err != nil {
			return nil, fmt.Errorf("theme %s: %w", th.Name, err)
		}
		t.themes = append(t.themes, theme{name: th.Name, pattern: pattern})
	}

	mature, err := compileKeywords(cfg.MatureKeywords)
	if err != nil {
		return nil, fmt.Errorf("mature keywords: %w", err)
	}
	t.mature = mature

	return t, nil
}

// compileKeywords builds a case-insensitive substring matcher, so "haunt"
// also matches "haunting".
func compileKeywords(keywords []string) (*regexp.Regexp, error) {
	escaped := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			escaped = append(escaped, regexp.QuoteMeta(kw))
		}
	}
	if len(escaped) == 0 {
		return nil, fmt.Errorf("at least one keyword is required")
	}

	pattern, err := regexp.Compile(`(?i)(?:` + strings.Join(escaped, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile keyword pattern: %w", err)
	}
	return pattern, nil
}

// Transform derives the stored fields for a source post. It fails only for
// items that carry nothing to store.
func (t *Transformer) Transform(post domain.SourcePost) (domain.Transformed, error) {
	if post.ID <= 0 {
		return domain.Transformed{}, fmt.Errorf("%w: non-positive id %d", domain.ErrInvalidSourcePost, post.ID)
	}

	title := CleanHTML(post.Title)
	content := CleanHTML(post.Content)
	if title == "" && content == "" {
		return domain.Transformed{}, fmt.Errorf("%w: post %d has no title or content", domain.ErrInvalidSourcePost, post.ID)
	}

	corpus := title + " " + content

	return domain.Transformed{
		Title:              title,
		Content:            content,
		Excerpt:            t.Excerpt(post.Excerpt, content),
		ReadingTimeMinutes: t.ReadingTime(content),
		ThemeCategory:      t.Classify(corpus),
		MatureContent:      t.IsMature(corpus),
	}, nil
}

// Excerpt prefers the source excerpt and falls back to the leading words of the content.
func (t *Transformer) Excerpt(sourceExcerpt, content string) string {
	if excerpt := CleanHTML(sourceExcerpt); excerpt != "" {
		return excerpt
	}

	words := strings.Fields(content)
	if len(words) <= t.excerptWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:t.excerptWords], " ") + ellipsis
}

// ReadingTime is ceil(words / wpm), never less than one minute.
func (t *Transformer) ReadingTime(content string) int {
	words := CountWords(content)
	minutes := (words + t.wordsPerMinute - 1) / t.wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Classify is a best-effort keyword heuristic and misclassifies edge cases.
func (t *Transformer) Classify(text string) string {
	for _, th := range t.themes {
		if th.pattern.MatchString(text) {
			return th.name
		}
	}
	return t.defaultTheme
}

func (t *Transformer) IsMature(text string) bool {
	return t.mature.MatchString(text)
}
