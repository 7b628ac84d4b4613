package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
)

func TestScraper_Name(t *testing.T) {
	if got := NewScraper(ScraperConfig{}).Name(); got != "scrape" {
		t.Errorf("name = %q, want scrape", got)
	}
}

func TestScraper_Fetch(t *testing.T) {
	var gotUA, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(widgetPage(
			widgetBlock("testchan/5", "2024-03-01T10:00:00+00:00", "tgme_widget_message_text", "hello from the channel"),
		)))
	}))
	defer ts.Close()

	s := NewScraper(ScraperConfig{BaseURL: ts.URL + "/s"})
	msgs, err := s.Fetch(context.Background(), "testchan")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath != "/s/testchan" {
		t.Errorf("path = %q, want /s/testchan", gotPath)
	}
	if !strings.Contains(gotUA, "Mozilla/5.0") {
		t.Errorf("user agent = %q, want a browser user agent", gotUA)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello from the channel" || msgs[0].ID != "5" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestScraper_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		maxBody    int64
		wantKind   apierr.Kind
		wantStatus int
	}{
		{
			name:       "not found",
			handler:    func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) },
			wantKind:   apierr.KindNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "server error",
			handler:    func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantKind:   apierr.KindUpstream,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name: "declared too large",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
			},
			maxBody:    1024,
			wantKind:   apierr.KindTooLarge,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name: "streamed too large",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				flusher := w.(http.Flusher)
				for i := 0; i < 8; i++ {
					_, _ = w.Write([]byte(strings.Repeat("y", 512)))
					flusher.Flush()
				}
			},
			maxBody:    1024,
			wantKind:   apierr.KindTooLarge,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			s := NewScraper(ScraperConfig{BaseURL: ts.URL, MaxBodyBytes: tt.maxBody})
			_, err := s.Fetch(context.Background(), "testchan")
			if err == nil {
				t.Fatal("expected error")
			}
			if !apierr.Is(err, tt.wantKind) {
				t.Errorf("kind: got %v, want %v", err, tt.wantKind)
			}
			if got := apierr.StatusOf(err); got != tt.wantStatus {
				t.Errorf("status = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestScraper_Timeout(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	s := NewScraper(ScraperConfig{BaseURL: ts.URL, Timeout: 50 * time.Millisecond})
	_, err := s.Fetch(context.Background(), "testchan")
	if !apierr.Is(err, apierr.KindTimeout) {
		t.Fatalf("got %v, want timeout", err)
	}
	if apierr.StatusOf(err) != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", apierr.StatusOf(err))
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}
