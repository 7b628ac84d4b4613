package widget

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/bryan-buckman/chanwidget/internal/model"
	"github.com/bryan-buckman/chanwidget/internal/sanitize"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Card is the rendered state of one message.
type Card struct {
	ID           string
	URL          string
	Original     string
	Showing      string // language shown, "" for the original
	Translations map[string]string
	Date         string
}

// Text returns the text currently shown.
func (c Card) Text() string {
	if t, ok := c.Translations[c.Showing]; ok && c.Showing != "" {
		return t
	}
	return c.Original
}

// Translated reports whether a translation is shown.
func (c Card) Translated() bool {
	return c.Showing != ""
}

// Container is the rendered state of one channel container.
type Container struct {
	ID         string
	Channel    model.Channel
	Cards      []Card
	FromCache  bool
	Error      string
	Retry      bool
	Translated string
	UpdatedAt  time.Time
}

// Page is the data behind the full page.
type Page struct {
	Title      string
	Lang       string
	Client     string // visibility lease id of this page view
	Containers []Container
}

// Container returns a snapshot of the container with id.
func (r *Renderer) Container(id string) (Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.containers[id]
	if !ok {
		return Container{}, false
	}
	return r.snapshot(c), true
}

// Page returns a snapshot of every configured container in channel order.
func (r *Renderer) Page(title, lang string) Page {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := Page{Title: title, Lang: lang}
	for _, ch := range r.channels {
		if c, ok := r.containers[ch.Container]; ok {
			p.Containers = append(p.Containers, r.snapshot(c))
		}
	}
	return p
}

// snapshot copies c so templates can run without the lock. Caller holds mu.
func (r *Renderer) snapshot(c *container) Container {
	out := Container{
		ID:         c.id,
		Channel:    c.channel,
		FromCache:  c.fromCache,
		Error:      c.errMsg,
		Retry:      c.retry,
		Translated: c.translated,
		UpdatedAt:  c.updatedAt,
		Cards:      make([]Card, 0, len(c.cards)),
	}
	for _, cd := range c.cards {
		tr := make(map[string]string, len(cd.translations))
		for k, v := range cd.translations {
			tr[k] = v
		}
		out.Cards = append(out.Cards, Card{
			ID:           cd.msg.ID,
			URL:          cd.msg.URL,
			Original:     cd.text,
			Showing:      cd.showing,
			Translations: tr,
			Date:         cd.msg.PostedAt().In(r.loc).Format(DateLayout),
		})
	}
	return out
}

// Templates renders pages and container fragments.
type Templates struct {
	tmpl *template.Template
	loc  *time.Location
}

// NewTemplates parses the embedded templates.
func NewTemplates(loc *time.Location) (*Templates, error) {
	if loc == nil {
		loc = time.Local
	}
	t := &Templates{loc: loc}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"lineBreaks":       sanitize.LineBreaks,
		"translationAttrs": translationAttrs,
		"clock":            t.clock,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	t.tmpl = tmpl
	return t, nil
}

// WritePage renders the full page.
func (t *Templates) WritePage(w io.Writer, p Page) error {
	return t.tmpl.ExecuteTemplate(w, "page.html", p)
}

// WriteContainer renders the inner HTML of one container.
func (t *Templates) WriteContainer(w io.Writer, c Container) error {
	return t.tmpl.ExecuteTemplate(w, "container", c)
}

func (t *Templates) clock(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(t.loc).Format("15:04:05")
}

// translationAttrs renders the stored translations of a card as
// data-translation-<lang> attributes.
func translationAttrs(c Card) template.HTMLAttr {
	langs := make([]string, 0, len(c.Translations))
	for lang := range c.Translations {
		if langRe.MatchString(lang) {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)

	var sb strings.Builder
	for i, lang := range langs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, `data-translation-%s="%s"`, strings.ToLower(lang), template.HTMLEscapeString(c.Translations[lang]))
	}
	return template.HTMLAttr(sb.String())
}
