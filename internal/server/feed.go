package server

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/feeds"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
	"github.com/bryan-buckman/chanwidget/internal/model"
	"github.com/bryan-buckman/chanwidget/internal/opml"
)

// feedItems is how many archived messages a channel feed lists.
const feedItems = 50

const titleRunes = 80

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	channel, ok := strings.CutSuffix(chi.URLParam(r, "file"), ".rss")
	if !ok {
		s.writeError(w, r, apierr.NotFound("Feed not found", nil))
		return
	}
	if err := s.fetcher.Validate(channel); err != nil {
		s.writeError(w, r, err)
		return
	}

	// The archive answers while the channel was fetched within FeedTTL.
	key := strings.ToLower(channel)
	var msgs []model.Message
	var liveErr error
	if _, fresh := s.feedFetched.Get(key); !fresh || s.archive == nil {
		msgs, liveErr = s.fetchLive(r, channel)
		if liveErr == nil {
			s.feedFetched.Set(key, struct{}{})
		}
	}
	if s.archive != nil {
		stored, err := s.archive.RecentMessages(r.Context(), key, feedItems)
		if err != nil {
			log.WithError(err).WithField("channel", channel).Warn("Archive read failed")
		}
		if len(stored) > 0 {
			msgs = stored
		}
	}
	if liveErr != nil {
		if len(msgs) == 0 {
			s.writeError(w, r, liveErr)
			return
		}
		log.WithError(liveErr).WithField("channel", channel).Warn("Live fetch failed, serving archived feed")
	}

	feed := &feeds.Feed{
		Title:       "Telegram: " + channel,
		Link:        &feeds.Link{Href: "https://t.me/" + channel, Rel: "alternate", Type: "text/html"},
		Description: "Recent posts from the Telegram channel " + channel,
		Created:     time.Now(),
	}
	if len(msgs) > 0 {
		feed.Created = msgs[0].PostedAt()
	}
	for _, m := range msgs {
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          m.URL,
			Title:       itemTitle(m.Text),
			Link:        &feeds.Link{Href: m.URL},
			Description: m.Text,
			Created:     m.PostedAt(),
		})
	}

	rss, err := feed.ToRss()
	if err != nil {
		log.WithError(err).WithField("channel", channel).Error("Render RSS failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write([]byte(rss))
}

func (s *Server) fetchLive(r *http.Request, channel string) ([]model.Message, error) {
	if !s.limiter.Allow(clientIP(r)) {
		return nil, apierr.RateLimited()
	}
	return s.fetcher.Fetch(r.Context(), channel)
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	names := make(map[string]string)
	if s.renderer != nil {
		for _, ch := range s.renderer.Channels() {
			names[strings.ToLower(ch.Username)] = ch.Name
		}
	}

	var entries []opml.FeedEntry
	for _, ch := range s.fetcher.AllowList() {
		title := names[strings.ToLower(ch)]
		if title == "" {
			title = ch
		}
		entries = append(entries, opml.FeedEntry{
			Folder:  "Telegram",
			Title:   title,
			URL:     base + "/feed/" + ch + ".rss",
			HTMLURL: "https://t.me/" + ch,
		})
	}

	data, err := opml.Export(s.title(), entries, time.Now())
	if err != nil {
		log.WithError(err).Error("OPML export failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to export"})
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=chanwidget-feeds.opml")
	w.Write(data)
}

func (s *Server) title() string {
	if s.opts.Title != "" {
		return s.opts.Title
	}
	return "Telegram Channels"
}

// itemTitle is the first line of text, shortened.
func itemTitle(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) > titleRunes {
		line = string([]rune(line)[:titleRunes]) + "..."
	}
	return line
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
