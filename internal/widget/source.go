// Package widget renders channel messages into page containers.
//
// A Renderer pulls messages from a Source, caches them, and keeps per-card
// translation state. A Scheduler drives periodic and on-demand refreshes.
package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
	"github.com/bryan-buckman/chanwidget/internal/model"
)

// Source returns the recent messages of a channel.
// *fetcher.Service satisfies it, as does HTTPSource.
type Source interface {
	Fetch(ctx context.Context, channel string) ([]model.Message, error)
}

// Translator turns text into another language. It never fails.
type Translator interface {
	Translate(ctx context.Context, text, lang string) string
}

// HTTPSource calls a remote fetch endpoint.
type HTTPSource struct {
	endpoint string
	client   *http.Client
}

var _ Source = (*HTTPSource)(nil)

// NewHTTPSource creates a Source for endpoint, e.g. "https://host/fetch".
func NewHTTPSource(endpoint string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type errorBody struct {
	Error string `json:"error"`
}

// Fetch requests endpoint?channel=<channel>. Error bodies of the form
// {"error": "..."} become upstream errors carrying that text.
func (s *HTTPSource) Fetch(ctx context.Context, channel string) ([]model.Message, error) {
	sep := "?"
	if strings.Contains(s.endpoint, "?") {
		sep = "&"
	}
	rawURL := s.endpoint + sep + "channel=" + url.QueryEscape(channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apierr.Timeout(err)
		}
		return nil, apierr.Unavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apierr.Unavailable(fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var eb errorBody
		public := "Service temporarily unavailable"
		if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
			public = eb.Error
		}
		return nil, apierr.Upstream(resp.StatusCode, public, fmt.Errorf("fetch %s: HTTP %d", channel, resp.StatusCode))
	}

	var msgs []model.Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return nil, apierr.Upstream(http.StatusBadGateway, "Malformed response", fmt.Errorf("decode messages: %w", err))
	}
	return msgs, nil
}
