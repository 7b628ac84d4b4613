package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
)

const bridgeRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>testchan - Telegram Channel</title>
  <link>https://t.me/s/testchan</link>
  <description>bridge</description>
  <item>
    <title>first</title>
    <description><![CDATA[First line<br>second <b>line</b>]]></description>
    <link>https://t.me/testchan/41</link>
    <guid>https://t.me/testchan/41</guid>
    <pubDate>Fri, 01 Mar 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>second</title>
    <description>no date and no link</description>
  </item>
</channel>
</rss>`

func TestFeedBridge_Fetch(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(bridgeRSS))
	}))
	defer ts.Close()

	f := NewFeedBridge(FeedBridgeConfig{
		URLTemplate: ts.URL + "/telegram/channel/%s",
		Now:         func() time.Time { return fixedNow },
		NewID:       func() string { return "gen-fixed" },
	})
	if f.Name() != "feed" {
		t.Errorf("name = %q, want feed", f.Name())
	}

	msgs, err := f.Fetch(context.Background(), "testchan")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath != "/telegram/channel/testchan" {
		t.Errorf("path = %q", gotPath)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "41" || msgs[0].Text != "First line\nsecond line" {
		t.Errorf("first = %+v", msgs[0])
	}
	if msgs[0].DateISO != "2024-03-01T10:00:00Z" {
		t.Errorf("first date = %q", msgs[0].DateISO)
	}
	if msgs[1].ID != "gen-fixed" || !msgs[1].PostedAt().Equal(fixedNow) {
		t.Errorf("fallbacks = %+v", msgs[1])
	}
}

func TestFeedBridge_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	f := NewFeedBridge(FeedBridgeConfig{URLTemplate: ts.URL + "/%s"})
	_, err := f.Fetch(context.Background(), "testchan")
	if !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestFeedBridge_Unavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	f := NewFeedBridge(FeedBridgeConfig{URLTemplate: ts.URL + "/%s"})
	_, err := f.Fetch(context.Background(), "testchan")
	if apierr.StatusOf(err) != http.StatusServiceUnavailable {
		t.Fatalf("got %v, want 503", err)
	}
}

func TestItemID(t *testing.T) {
	tests := []struct {
		item gofeed.Item
		want string
	}{
		{gofeed.Item{Link: "https://t.me/chan/123"}, "123"},
		{gofeed.Item{Link: "https://t.me/chan/123/"}, "123"},
		{gofeed.Item{GUID: "urn:post:9"}, "urn:post:9"},
		{gofeed.Item{}, ""},
	}
	for _, tt := range tests {
		item := tt.item
		if got := itemID(&item); got != tt.want {
			t.Errorf("itemID(%+v) = %q, want %q", tt.item, got, tt.want)
		}
	}
}
