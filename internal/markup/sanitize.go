// Package markup cleans rich-text HTML coming from admin clients.
package markup

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richText  = newRichTextPolicy()
	plainText = bluemonday.StrictPolicy()
	spaces    = regexp.MustCompile(`\s+`)
)

func newRichTextPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowStyles("text-align").
		MatchingEnum("left", "center", "right", "justify").
		OnElements("p", "h1", "h2", "h3", "h4", "h5", "h6")
	policy.AllowStyles("background-color").
		Matching(regexp.MustCompile(`^#[0-9a-fA-F]{3,8}$`)).
		OnElements("mark")
	policy.AllowAttrs("data-color").
		Matching(regexp.MustCompile(`^#[0-9a-fA-F]{3,8}$`)).
		OnElements("mark")
	policy.AllowAttrs("colspan", "rowspan").Matching(bluemonday.Integer).OnElements("td", "th")
	policy.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	return policy
}

// Sanitize strips scripts, event handlers and unknown markup from rich text.
func Sanitize(html string) string {
	return strings.TrimSpace(richText.Sanitize(html))
}

// PlainText reduces markup to whitespace-normalised text.
func PlainText(html string) string {
	text := plainText.Sanitize(strings.NewReplacer("<br>", " ", "</p>", " ", "</li>", " ", "</h1>", " ", "</h2>", " ", "</h3>", " ").Replace(html))
	text = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&#34;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(text)
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}

// Excerpt returns at most limit runes of the plain text, cut on a word boundary.
func Excerpt(html string, limit int) string {
	text := PlainText(html)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "…"
}
