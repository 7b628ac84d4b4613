// Package translate turns message text into another language.
//
// Providers talk to public machine-translation endpoints. Service wraps a
// provider with a cache and a fallback so that callers always get text back.
package translate

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
)

// Provider names.
const (
	ProviderGoogle   = "google"
	ProviderMyMemory = "mymemory"
)

// Default endpoints.
const (
	DefaultGoogleURL   = "https://translate.googleapis.com/translate_a/single"
	DefaultMyMemoryURL = "https://api.mymemory.translated.net/get"
)

const maxResponseBytes = 1 << 20

// Provider translates text into the target language.
type Provider interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// ErrEmptyTranslation is returned when a provider answers without text.
var ErrEmptyTranslation = errors.New("empty translation")

// Google calls the keyless gtx endpoint, which detects the source language.
type Google struct {
	endpoint string
	client   *http.Client
}

var _ Provider = (*Google)(nil)

// NewGoogle creates a Google provider. An empty endpoint uses DefaultGoogleURL.
func NewGoogle(endpoint string, timeout time.Duration) *Google {
	if endpoint == "" {
		endpoint = DefaultGoogleURL
	}
	return &Google{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

// Translate returns the concatenated translated segments.
func (g *Google) Translate(ctx context.Context, text, target string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", text)

	body, err := get(ctx, g.client, g.endpoint+"?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("google: %w", err)
	}

	// [[["translated","source",...],...],null,"he",...]
	var top []json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || len(top) == 0 {
		return "", fmt.Errorf("google: malformed response")
	}
	var segments [][]any
	if err := json.Unmarshal(top[0], &segments); err != nil {
		return "", fmt.Errorf("google: malformed segments: %w", err)
	}
	var sb strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			sb.WriteString(s)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("google: %w", ErrEmptyTranslation)
	}
	return out, nil
}

// MyMemory calls the MyMemory translation API, which needs a source language.
type MyMemory struct {
	endpoint string
	source   string
	client   *http.Client
}

var _ Provider = (*MyMemory)(nil)

// NewMyMemory creates a MyMemory provider translating from source.
func NewMyMemory(endpoint, source string, timeout time.Duration) *MyMemory {
	if endpoint == "" {
		endpoint = DefaultMyMemoryURL
	}
	if source == "" {
		source = "he"
	}
	return &MyMemory{endpoint: endpoint, source: source, client: &http.Client{Timeout: timeout}}
}

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText string `json:"translatedText"`
	} `json:"responseData"`
	ResponseStatus  json.Number `json:"responseStatus"`
	ResponseDetails string      `json:"responseDetails"`
}

// Translate returns responseData.translatedText.
func (m *MyMemory) Translate(ctx context.Context, text, target string) (string, error) {
	q := url.Values{}
	q.Set("q", text)
	q.Set("langpair", m.source+"|"+target)

	body, err := get(ctx, m.client, m.endpoint+"?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("mymemory: %w", err)
	}
	var resp myMemoryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("mymemory: malformed response: %w", err)
	}
	if resp.ResponseStatus.String() != "200" {
		return "", fmt.Errorf("mymemory: status %s: %s", resp.ResponseStatus, resp.ResponseDetails)
	}
	out := strings.TrimSpace(resp.ResponseData.TranslatedText)
	if out == "" {
		return "", fmt.Errorf("mymemory: %w", ErrEmptyTranslation)
	}
	return out, nil
}

// NewProvider returns the provider registered under name.
func NewProvider(name, endpoint, source string, timeout time.Duration) (Provider, error) {
	switch name {
	case "", ProviderGoogle:
		return NewGoogle(endpoint, timeout), nil
	case ProviderMyMemory:
		return NewMyMemory(endpoint, source, timeout), nil
	default:
		return nil, fmt.Errorf("unknown translation provider %q", name)
	}
}

func get(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}
