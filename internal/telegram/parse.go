package telegram

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bryan-buckman/chanwidget/internal/model"
)

// Widget markup class names used by t.me/s/<channel>.
const (
	blockSelector   = ".tgme_widget_message_wrap"
	textSelector    = ".tgme_widget_message_text"
	captionSelector = ".tgme_widget_message_caption"
)

var (
	lineBreakRe = regexp.MustCompile(`(?i)<br\s*/?>|</p\s*>`)
	anchorRe    = regexp.MustCompile(`(?is)<a\b([^>]*)>(.*?)</a\s*>`)
	hrefRe      = regexp.MustCompile(`(?is)\bhref\s*=\s*["']([^"']*)["']`)
	emphasisRe  = regexp.MustCompile(`(?i)</?(?:b|strong|i|em)(?:\s[^>]*)?>`)
	tagRe       = regexp.MustCompile(`(?s)<[^>]*>`)
	entityRe    = regexp.MustCompile(`&(lt|gt|amp|quot|#[0-9]+|#[xX][0-9a-fA-F]+);`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
)

// ParseOptions controls the fallbacks used while parsing.
type ParseOptions struct {
	// Now supplies the date for blocks without a usable datetime attribute.
	Now func() time.Time
	// NewID supplies ids for blocks without data-post.
	NewID func() string
	// KeepLinks appends the href after anchor text.
	KeepLinks bool
}

// ParsePage extracts messages from a t.me/s preview page. Blocks without a
// text or caption element are skipped; empty text is left for the Policy.
func ParsePage(r io.Reader, channel string, opts ParseOptions) ([]model.Message, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	now := nowOr(opts.Now)
	newID := opts.NewID
	if newID == nil {
		newID = NewGeneratedID
	}

	var messages []model.Message
	doc.Find(blockSelector).Each(func(_ int, block *goquery.Selection) {
		body := block.Find(textSelector).First()
		if body.Length() == 0 {
			body = block.Find(captionSelector).First()
		}
		if body.Length() == 0 {
			return
		}
		inner, err := body.Html()
		if err != nil {
			return
		}

		postedAt := now()
		if v, ok := block.Find("[datetime]").First().Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
				postedAt = t
			}
		}

		id := postID(block.Find("[data-post]").First().AttrOr("data-post", ""))
		if id == "" {
			id = newID()
		}

		messages = append(messages, model.NewMessage(channel, id, CleanText(inner, opts.KeepLinks), postedAt))
	})
	return messages, nil
}

// postID turns "channel/123" into "123".
func postID(dataPost string) string {
	dataPost = strings.TrimSpace(dataPost)
	if i := strings.LastIndex(dataPost, "/"); i >= 0 {
		dataPost = dataPost[i+1:]
	}
	return dataPost
}

// CleanText reduces widget HTML to plain text: line breaks and paragraph ends
// become newlines, anchors keep their visible text, emphasis is unwrapped,
// every other tag is removed and the standard entities are decoded.
func CleanText(s string, keepLinks bool) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = lineBreakRe.ReplaceAllString(s, "\n")
	s = anchorRe.ReplaceAllStringFunc(s, func(a string) string {
		m := anchorRe.FindStringSubmatch(a)
		text := tagRe.ReplaceAllString(m[2], "")
		if !keepLinks {
			return text
		}
		h := hrefRe.FindStringSubmatch(m[1])
		if h == nil || h[1] == "" || decodeEntities(h[1]) == decodeEntities(text) {
			return text
		}
		return text + " (" + h[1] + ")"
	})
	s = emphasisRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	s = decodeEntities(s)
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// decodeEntities decodes &lt; &gt; &amp; &quot; and numeric references in a
// single pass, so "&amp;lt;" becomes "&lt;" and not "<".
func decodeEntities(s string) string {
	return entityRe.ReplaceAllStringFunc(s, func(e string) string {
		name := e[1 : len(e)-1]
		switch name {
		case "lt":
			return "<"
		case "gt":
			return ">"
		case "amp":
			return "&"
		case "quot":
			return `"`
		}
		var (
			n   uint64
			err error
		)
		if name[1] == 'x' || name[1] == 'X' {
			n, err = strconv.ParseUint(name[2:], 16, 32)
		} else {
			n, err = strconv.ParseUint(name[1:], 10, 32)
		}
		if err != nil || n == 0 || n > 0x10FFFF {
			return e
		}
		return string(rune(n))
	})
}
