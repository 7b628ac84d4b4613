package telegram

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bryan-buckman/chanwidget/internal/model"
)

// Policy defaults.
const (
	DefaultLimit     = 10
	DefaultMaxLength = 5000
)

const ellipsis = "..."

// Policy filters, truncates, orders and caps fetched messages.
type Policy struct {
	// MinLength drops messages whose text has at most this many runes.
	// Zero disables the filter; empty text is always dropped.
	MinLength int
	// MaxLength truncates longer texts and appends an ellipsis.
	MaxLength int
	// Limit keeps only the newest messages.
	Limit int
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{MaxLength: DefaultMaxLength, Limit: DefaultLimit}
}

// Apply returns the surviving messages, newest first.
func (p Policy) Apply(msgs []model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		n := utf8.RuneCountInString(text)
		if p.MinLength > 0 && n <= p.MinLength {
			continue
		}
		if p.MaxLength > 0 && n > p.MaxLength {
			text = string([]rune(text)[:p.MaxLength]) + ellipsis
		}
		m.Text = text
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})

	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out
}
