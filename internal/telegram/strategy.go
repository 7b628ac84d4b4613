// Package telegram fetches recent channel posts from Telegram, either through
// the Bot API, by scraping the public t.me/s preview page, or through an RSS
// bridge.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
	"github.com/bryan-buckman/chanwidget/internal/model"
)

// Strategy names.
const (
	StrategyAPI    = "api"
	StrategyScrape = "scrape"
	StrategyFeed   = "feed"
)

// BrowserUserAgent is sent to t.me, which serves a reduced page to bots.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Strategy fetches the recent posts of one channel.
// Returned messages are unfiltered; callers apply a Policy.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, channel string) ([]model.Message, error)
}

// NewGeneratedID returns a fallback message id.
func NewGeneratedID() string {
	return model.GeneratedIDPrefix + uuid.NewString()
}

// transportError classifies a failed HTTP round trip. The URL is dropped
// because Bot API URLs embed the token.
func transportError(ctx context.Context, op string, err error) error {
	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	err = fmt.Errorf("%s: %w", op, err)
	if timedOut {
		return apierr.Timeout(err)
	}
	return apierr.Unavailable(err)
}

func nowOr(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
