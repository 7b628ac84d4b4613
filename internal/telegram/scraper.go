package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
	"github.com/bryan-buckman/chanwidget/internal/model"
)

// Scraper defaults.
const (
	DefaultPreviewURL    = "https://t.me/s/"
	DefaultScrapeTimeout = 10 * time.Second
	DefaultMaxBodyBytes  = 1 << 20
)

// ScraperConfig configures a Scraper. Zero values take the defaults.
type ScraperConfig struct {
	BaseURL      string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	KeepLinks    bool
	Now          func() time.Time
	NewID        func() string
}

// Scraper reads the public preview page of a channel.
type Scraper struct {
	baseURL   string
	client    *http.Client
	userAgent string
	maxBody   int64
	parseOpts ParseOptions
}

var _ Strategy = (*Scraper)(nil)

// NewScraper creates a preview-page scraper.
func NewScraper(cfg ScraperConfig) *Scraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPreviewURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultScrapeTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = BrowserUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Scraper{
		baseURL:   cfg.BaseURL,
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
		parseOpts: ParseOptions{Now: cfg.Now, NewID: cfg.NewID, KeepLinks: cfg.KeepLinks},
	}
}

// Name returns "scrape".
func (s *Scraper) Name() string {
	return StrategyScrape
}

// Fetch downloads and parses the preview page of channel.
func (s *Scraper) Fetch(ctx context.Context, channel string) ([]model.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+url.PathEscape(channel), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, "t.me/s/"+channel, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apierr.NotFound("Channel not found", fmt.Errorf("t.me/s/%s: HTTP 404", channel))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apierr.Unavailable(fmt.Errorf("t.me/s/%s: HTTP %d", channel, resp.StatusCode))
	}

	if resp.ContentLength > s.maxBody {
		return nil, apierr.TooLarge(s.maxBody)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, transportError(ctx, "t.me/s/"+channel, err)
	}
	if int64(len(body)) > s.maxBody {
		return nil, apierr.TooLarge(s.maxBody)
	}

	msgs, err := ParsePage(bytes.NewReader(body), channel, s.parseOpts)
	if err != nil {
		return nil, apierr.Unavailable(err)
	}
	return msgs, nil
}
