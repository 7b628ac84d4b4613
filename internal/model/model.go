// Package model defines shared data structures.
package model

import (
	"strings"
	"time"
)

// GeneratedIDPrefix marks ids that were not taken from the provider.
const GeneratedIDPrefix = "gen-"

// Message is a single channel post in the shape served to clients.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	DateISO   string `json:"dateISO"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds of DateISO
	Date      string `json:"date"`      // RFC 1123 UTC, kept for older widgets
	Channel   string `json:"channel"`
	URL       string `json:"url"`
}

// NewMessage builds a Message, deriving the date fields and the deep link.
func NewMessage(channel, id, text string, postedAt time.Time) Message {
	utc := postedAt.UTC()
	return Message{
		ID:        id,
		Text:      text,
		DateISO:   utc.Format(time.RFC3339),
		Timestamp: utc.UnixMilli(),
		Date:      utc.Format(time.RFC1123),
		Channel:   channel,
		URL:       PostURL(channel, id),
	}
}

// PostedAt returns the publication time.
func (m Message) PostedAt() time.Time {
	return time.UnixMilli(m.Timestamp).UTC()
}

// WithChannel rebinds the message to channel, recomputing the link.
func (m Message) WithChannel(channel string) Message {
	m.Channel = channel
	m.URL = PostURL(channel, m.ID)
	return m
}

// HasGeneratedID reports whether the id is a fallback token.
func (m Message) HasGeneratedID() bool {
	return m.ID == "" || strings.HasPrefix(m.ID, GeneratedIDPrefix)
}

// PostURL returns the t.me link for a post. Generated ids link to the channel.
func PostURL(channel, id string) string {
	if id == "" || strings.HasPrefix(id, GeneratedIDPrefix) {
		return "https://t.me/" + channel
	}
	return "https://t.me/" + channel + "/" + id
}

// Channel is an allow-listed Telegram channel and where it is rendered.
type Channel struct {
	Name      string `koanf:"name" json:"name"`
	Username  string `koanf:"username" json:"username"`
	Container string `koanf:"container" json:"container"`
}

// DefaultChannels is the channel set the widget ships with.
func DefaultChannels() []Channel {
	return []Channel{
		{Name: "N12 Chat", Username: "N12Chat", Container: "n12chat-container"},
		{Name: "Kodkod News IL", Username: "kodkodnews", Container: "kodkod-container"},
		{Name: "Abu Ali Express", Username: "abualiexpress", Container: "abuali-container"},
		{Name: "News IL 2022", Username: "newsil2022", Container: "newsil-container"},
		{Name: "Real Time Security", Username: "realtimesecurity", Container: "realtimesecurity-container"},
	}
}
