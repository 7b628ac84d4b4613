package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
	"github.com/bryan-buckman/chanwidget/internal/model"
)

// DefaultBridgeURL is an RSSHub route serving a channel as RSS.
const DefaultBridgeURL = "https://rsshub.app/telegram/channel/%s"

// FeedBridgeConfig configures a FeedBridge. Zero values take the defaults.
type FeedBridgeConfig struct {
	// URLTemplate contains a single %s for the channel username.
	URLTemplate string
	Timeout     time.Duration
	KeepLinks   bool
	Now         func() time.Time
	NewID       func() string
}

// FeedBridge reads a channel through an RSS bridge.
type FeedBridge struct {
	urlTemplate string
	parser      *gofeed.Parser
	keepLinks   bool
	now         func() time.Time
	newID       func() string
}

var _ Strategy = (*FeedBridge)(nil)

// NewFeedBridge creates an RSS bridge strategy.
func NewFeedBridge(cfg FeedBridgeConfig) *FeedBridge {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultBridgeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultScrapeTimeout
	}
	newID := cfg.NewID
	if newID == nil {
		newID = NewGeneratedID
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: cfg.Timeout}
	parser.UserAgent = BrowserUserAgent
	return &FeedBridge{
		urlTemplate: cfg.URLTemplate,
		parser:      parser,
		keepLinks:   cfg.KeepLinks,
		now:         nowOr(cfg.Now),
		newID:       newID,
	}
}

// Name returns "feed".
func (f *FeedBridge) Name() string {
	return StrategyFeed
}

// Fetch parses the bridge feed of channel.
func (f *FeedBridge) Fetch(ctx context.Context, channel string) ([]model.Message, error) {
	feedURL := fmt.Sprintf(f.urlTemplate, url.PathEscape(channel))
	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			if httpErr.StatusCode == http.StatusNotFound {
				return nil, apierr.NotFound("Channel not found", fmt.Errorf("feed %s: %w", channel, err))
			}
			return nil, apierr.Unavailable(fmt.Errorf("feed %s: %w", channel, err))
		}
		if ctx.Err() != nil {
			return nil, transportError(ctx, "feed "+channel, err)
		}
		return nil, apierr.Unavailable(fmt.Errorf("feed %s: %w", channel, err))
	}

	now := f.now()
	msgs := make([]model.Message, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		body := item.Description
		if body == "" {
			body = item.Content
		}
		postedAt := now
		if item.PublishedParsed != nil {
			postedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			postedAt = *item.UpdatedParsed
		}
		id := itemID(item)
		if id == "" {
			id = f.newID()
		}
		msgs = append(msgs, model.NewMessage(channel, id, CleanText(body, f.keepLinks), postedAt))
	}
	return msgs, nil
}

// itemID takes the post number from https://t.me/<channel>/<id> links,
// falling back to the GUID.
func itemID(item *gofeed.Item) string {
	for _, candidate := range []string{item.Link, item.GUID} {
		if candidate == "" {
			continue
		}
		if u, err := url.Parse(candidate); err == nil && u.Host != "" {
			if seg := path.Base(strings.TrimSuffix(u.Path, "/")); seg != "" && seg != "/" && seg != "." {
				return seg
			}
			continue
		}
		return candidate
	}
	return ""
}
