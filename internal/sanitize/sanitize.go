// Package sanitize cleans message text before it is rendered.
package sanitize

import (
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// strict removes every element; script, iframe, object and embed lose
// their content as well.
var strict = bluemonday.StrictPolicy()

// Text strips HTML elements from s, keeping line breaks. Attributes go with
// their element, so script URIs and event handlers never survive, while
// prose that merely looks like them is left alone. The result is plain text
// and must still be escaped when written into HTML.
func Text(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = html.UnescapeString(strict.Sanitize(markupOnly(s)))
	return strings.TrimSpace(s)
}

// markupOnly keeps real HTML tags and comments as they are and escapes
// everything else, so a stray "<" in prose is not read as the start of a tag.
func markupOnly(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		raw := string(z.Raw())
		switch tt {
		case html.ErrorToken:
			// A tag cut off by the end of input is text.
			b.WriteString(html.EscapeString(raw))
			return b.String()
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) != 0 {
				b.WriteString(raw)
				continue
			}
		case html.CommentToken:
			if strings.HasPrefix(raw, "<!--") {
				b.WriteString(raw)
				continue
			}
		case html.DoctypeToken:
			b.WriteString(raw)
			continue
		}
		b.WriteString(html.EscapeString(raw))
	}
}

// LineBreaks escapes plain text for HTML and turns newlines into <br>.
func LineBreaks(s string) template.HTML {
	escaped := template.HTMLEscapeString(s)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>\n"))
}
