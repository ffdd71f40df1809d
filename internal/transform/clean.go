package transform

import (
	"html"
	"regexp"
	"strings"
)

var (
	blockCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)

	// Wrapper shortcodes are removed together with whatever they wrap.
	wrapperShortcodeRes = compileWrappers("caption", "gallery", "embed", "video", "audio", "playlist")

	// Media blocks are removed with their content. Images go before galleries
	// because gallery blocks nest image blocks.
	wrapperBlockRes = compileBlocks("image", "video", "audio", "embed", `core-embed/[a-z0-9-]+`, "caption", "gallery")

	// Rendered media wrappers, in the same nesting order. Legacy galleries
	// wrap unclassed figures in list items.
	wrapperFigureRes = append(
		compileFigures("li", "blocks-gallery-item"),
		compileFigures("figure", "wp-block-image", "wp-block-video", "wp-block-audio", "wp-block-embed", "wp-caption", "wp-block-gallery")...,
	)
	captionDivRe = regexp.MustCompile(`(?is)<div\b[^>]*\bclass="[^"]*\bwp-caption\b[^"]*"[^>]*>.*?</div>`)

	shortcodeRe    = regexp.MustCompile(`\[/?[a-zA-Z][a-zA-Z0-9_-]*(?:\s[^\]]*)?/?\]`)
	readMoreRe     = regexp.MustCompile(`\[\s*(?:&hellip;|&#8230;|\x{2026}|\.\.\.)\s*\]`)
	tagRe          = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	punctuationMap = strings.NewReplacer(
		"\u00a0", " ",
		"\u2018", "'",
		"\u2019", "'",
		"\u201a", "'",
		"\u201c", `"`,
		"\u201d", `"`,
		"\u201e", `"`,
		"\u2026", "...",
		"\u2013", "-",
		"\u2014", "-",
	)
)

func compileWrappers(names ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(names))
	for _, name := range names {
		res = append(res, regexp.MustCompile(`(?is)\[`+name+`(?:\s[^\]]*)?\].*?\[/`+name+`\]`))
	}
	return res
}

// compileBlocks matches a block comment pair and everything between them.
// Self-closing blocks (`/-->`) are left to blockCommentRe.
func compileBlocks(names ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(names))
	for _, name := range names {
		res = append(res, regexp.MustCompile(
			`(?s)<!--\s*wp:`+name+`(?:\s[^>]*)?[^/]-->.*?<!--\s*/wp:`+name+`\s*-->`,
		))
	}
	return res
}

func compileFigures(tag string, classes ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(classes))
	for _, class := range classes {
		res = append(res, regexp.MustCompile(
			`(?is)<`+tag+`\b[^>]*\bclass="[^"]*\b`+class+`\b[^"]*"[^>]*>.*?</`+tag+`>`,
		))
	}
	return res
}

// CleanHTML turns rendered WordPress markup into plain text.
func CleanHTML(s string) string {
	if s == "" {
		return ""
	}

	for _, re := range wrapperBlockRes {
		s = re.ReplaceAllString(s, " ")
	}
	for _, re := range wrapperFigureRes {
		s = re.ReplaceAllString(s, " ")
	}
	s = captionDivRe.ReplaceAllString(s, " ")
	s = blockCommentRe.ReplaceAllString(s, " ")
	for _, re := range wrapperShortcodeRes {
		s = re.ReplaceAllString(s, " ")
	}
	s = readMoreRe.ReplaceAllString(s, " ")
	s = shortcodeRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = punctuationMap.Replace(s)
	s = whitespaceRe.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// CountWords counts whitespace-separated words.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
