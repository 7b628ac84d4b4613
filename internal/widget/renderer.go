package widget

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
	"github.com/bryan-buckman/chanwidget/internal/cache"
	"github.com/bryan-buckman/chanwidget/internal/model"
	"github.com/bryan-buckman/chanwidget/internal/ratelimit"
	"github.com/bryan-buckman/chanwidget/internal/sanitize"
)

// Renderer defaults.
const (
	DefaultCacheTTL       = 5 * time.Minute
	DefaultCacheSize      = 100
	DefaultRateLimit      = 10
	DefaultFetchTimeout   = 15 * time.Second
	DefaultChannelDelay   = time.Second
	DefaultTranslateDelay = 500 * time.Millisecond
	DateLayout            = "02/01/2006 15:04"
)

// limiterKey is the single bucket shared by every outgoing fetch.
const limiterKey = "renderer"

var langRe = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z]{2,4})?$`)

// Errors returned by the toggle operations.
var (
	ErrUnknownChannel  = errors.New("unknown channel")
	ErrUnknownMessage  = errors.New("unknown message")
	ErrInvalidLanguage = errors.New("invalid language")
)

// Config configures a Renderer. Zero durations take the defaults; a negative
// delay disables it.
type Config struct {
	Channels       []model.Channel
	Source         Source
	Translator     Translator
	CacheTTL       time.Duration
	CacheSize      int
	RateLimit      int
	FetchTimeout   time.Duration
	ChannelDelay   time.Duration
	TranslateDelay time.Duration
	Location       *time.Location
	Clock          clock.Clock
}

// Renderer keeps the rendered state of every container.
type Renderer struct {
	source     Source
	translator Translator
	channels   []model.Channel
	byName     map[string]model.Channel // lowercased username
	cache      *cache.Cache[[]model.Message]
	limiter    *ratelimit.Window
	clock      clock.Clock
	loc        *time.Location

	fetchTimeout   time.Duration
	channelDelay   time.Duration
	translateDelay time.Duration

	mu         sync.Mutex
	containers map[string]*container
}

type card struct {
	msg          model.Message
	text         string // sanitized original
	showing      string // language shown, "" for the original
	translations map[string]string
}

type container struct {
	id         string
	channel    model.Channel
	cards      []*card
	fromCache  bool
	errMsg     string
	retry      bool
	translated string // language of the last channel-wide toggle
	updatedAt  time.Time
}

// NewRenderer creates a Renderer with one empty container per channel.
func NewRenderer(cfg Config) *Renderer {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.ChannelDelay == 0 {
		cfg.ChannelDelay = DefaultChannelDelay
	}
	if cfg.TranslateDelay == 0 {
		cfg.TranslateDelay = DefaultTranslateDelay
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	r := &Renderer{
		source:         cfg.Source,
		translator:     cfg.Translator,
		channels:       cfg.Channels,
		byName:         make(map[string]model.Channel, len(cfg.Channels)),
		cache:          cache.New[[]model.Message](cfg.CacheTTL, cfg.CacheSize, cfg.Clock),
		limiter:        ratelimit.New(cfg.RateLimit, ratelimit.DefaultWindow, cfg.Clock),
		clock:          cfg.Clock,
		loc:            cfg.Location,
		fetchTimeout:   cfg.FetchTimeout,
		channelDelay:   cfg.ChannelDelay,
		translateDelay: cfg.TranslateDelay,
		containers:     make(map[string]*container, len(cfg.Channels)),
	}
	for _, ch := range cfg.Channels {
		r.byName[strings.ToLower(ch.Username)] = ch
		r.containers[ch.Container] = &container{id: ch.Container, channel: ch}
	}
	return r
}

// Channels returns the configured channels in display order.
func (r *Renderer) Channels() []model.Channel {
	return append([]model.Channel(nil), r.channels...)
}

// ContainerOf returns the container id of an allow-listed channel.
func (r *Renderer) ContainerOf(channel string) (string, bool) {
	ch, ok := r.byName[strings.ToLower(channel)]
	return ch.Container, ok
}

// Refresh loads channel into its container. An empty containerID uses the
// channel's configured container. Failures are rendered, never returned.
func (r *Renderer) Refresh(ctx context.Context, channel, containerID string, force bool) {
	r.refresh(ctx, channel, containerID, force)
}

// refresh is Refresh, reporting whether the source was called.
func (r *Renderer) refresh(ctx context.Context, channel, containerID string, force bool) bool {
	logger := log.WithFields(log.Fields{"channel": channel, "force": force})

	ch, ok := r.byName[strings.ToLower(channel)]
	if !ok {
		logger.Warn("Refresh of channel outside the allow-list")
		if containerID != "" {
			r.renderError(containerID, model.Channel{Username: channel}, "Channel not allowed", false)
		}
		return false
	}
	if containerID == "" {
		containerID = ch.Container
	}
	key := strings.ToLower(ch.Username)

	if !force {
		if msgs, ok := r.cache.Get(key); ok {
			logger.Debug("Serving channel from cache")
			r.render(containerID, ch, msgs, true, r.storedAt(key))
			return false
		}
	}

	if !r.limiter.Allow(limiterKey) {
		logger.Warn("Fetch rate limit reached")
		r.fallback(containerID, ch, key, "Too many requests, please try again later")
		return false
	}

	fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	msgs, err := r.source.Fetch(fctx, ch.Username)
	cancel()
	if err != nil {
		logger.WithError(err).Error("Fetch failed")
		r.fallback(containerID, ch, key, "Failed to load messages: "+apierr.PublicMessage(err))
		return true
	}

	clean := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		m.Text = sanitize.Text(m.Text)
		if m.Text == "" {
			continue
		}
		clean = append(clean, m)
	}
	r.cache.Set(key, clean)
	r.render(containerID, ch, clean, false, r.clock.Now())
	logger.WithField("messages", len(clean)).Info("Channel refreshed")
	return true
}

// RefreshAll refreshes every channel in order, pausing after each channel
// that went to the source.
func (r *Renderer) RefreshAll(ctx context.Context, force bool) {
	fetched := false
	for _, ch := range r.channels {
		if fetched {
			if err := r.pause(ctx, r.channelDelay); err != nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		fetched = r.refresh(ctx, ch.Username, ch.Container, force)
	}
}

// ToggleMessage switches one message between its original text and its
// translation into lang.
func (r *Renderer) ToggleMessage(ctx context.Context, channel, id, lang string) error {
	if !langRe.MatchString(lang) {
		return ErrInvalidLanguage
	}
	lang = strings.ToLower(lang)

	r.mu.Lock()
	c, err := r.containerFor(channel)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	cd := c.find(id)
	if cd == nil {
		r.mu.Unlock()
		return ErrUnknownMessage
	}
	if cd.showing != "" {
		cd.showing = ""
		r.mu.Unlock()
		return nil
	}
	if _, ok := cd.translations[lang]; ok {
		cd.showing = lang
		r.mu.Unlock()
		return nil
	}
	text := cd.text
	r.mu.Unlock()

	translated := r.translate(ctx, text, lang)

	r.mu.Lock()
	defer r.mu.Unlock()
	// The card may have been replaced by a refresh meanwhile.
	if c, err = r.containerFor(channel); err == nil {
		if cd = c.find(id); cd != nil {
			cd.store(lang, translated)
			cd.showing = lang
		}
	}
	return nil
}

// ToggleChannel restores every original when the channel is translated;
// otherwise it translates each message into lang, one at a time.
func (r *Renderer) ToggleChannel(ctx context.Context, channel, lang string) error {
	if !langRe.MatchString(lang) {
		return ErrInvalidLanguage
	}
	lang = strings.ToLower(lang)

	r.mu.Lock()
	c, err := r.containerFor(channel)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if c.translated != "" {
		c.translated = ""
		for _, cd := range c.cards {
			cd.showing = ""
		}
		r.mu.Unlock()
		return nil
	}
	type pending struct{ id, text string }
	var todo []pending
	for _, cd := range c.cards {
		if _, ok := cd.translations[lang]; ok {
			cd.showing = lang
			continue
		}
		todo = append(todo, pending{cd.msg.ID, cd.text})
	}
	c.translated = lang
	r.mu.Unlock()

	for i, p := range todo {
		if i > 0 {
			if err := r.pause(ctx, r.translateDelay); err != nil {
				return err
			}
		}
		translated := r.translate(ctx, p.text, lang)

		r.mu.Lock()
		if c, err := r.containerFor(channel); err == nil && c.translated == lang {
			if cd := c.find(p.id); cd != nil {
				cd.store(lang, translated)
				cd.showing = lang
			}
		}
		r.mu.Unlock()
	}
	return nil
}

// Sweep drops expired cache entries and idle limiter state.
func (r *Renderer) Sweep() int {
	return r.cache.Sweep() + r.limiter.Sweep()
}

func (r *Renderer) translate(ctx context.Context, text, lang string) string {
	if r.translator == nil {
		return text
	}
	return r.translator.Translate(ctx, text, lang)
}

func (r *Renderer) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-r.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Renderer) storedAt(key string) time.Time {
	if e, ok := r.cache.Peek(key); ok {
		return e.StoredAt
	}
	return r.clock.Now()
}

// fallback renders stale cached messages if there are any, otherwise an
// error with a retry action.
func (r *Renderer) fallback(containerID string, ch model.Channel, key, msg string) {
	if e, ok := r.cache.Peek(key); ok {
		r.render(containerID, ch, e.Value, true, e.StoredAt)
		return
	}
	r.renderError(containerID, ch, msg, true)
}

func (r *Renderer) render(containerID string, ch model.Channel, msgs []model.Message, fromCache bool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.container(containerID, ch)
	previous := make(map[string]*card, len(c.cards))
	for _, cd := range c.cards {
		previous[cd.msg.ID] = cd
	}

	cards := make([]*card, 0, len(msgs))
	for _, m := range msgs {
		cd := &card{msg: m, text: m.Text}
		if old, ok := previous[m.ID]; ok && old.text == m.Text {
			cd.showing = old.showing
			cd.translations = old.translations
		}
		cards = append(cards, cd)
	}
	c.cards = cards
	c.fromCache = fromCache
	c.errMsg = ""
	c.retry = false
	c.updatedAt = at
}

func (r *Renderer) renderError(containerID string, ch model.Channel, msg string, retry bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.container(containerID, ch)
	c.cards = nil
	c.fromCache = false
	c.errMsg = msg
	c.retry = retry
	c.translated = ""
	c.updatedAt = r.clock.Now()
}

// container returns the container with id, creating it. Caller holds mu.
func (r *Renderer) container(id string, ch model.Channel) *container {
	c, ok := r.containers[id]
	if !ok {
		c = &container{id: id}
		r.containers[id] = c
	}
	c.channel = ch
	return c
}

// containerFor returns the configured container of channel. Caller holds mu.
func (r *Renderer) containerFor(channel string) (*container, error) {
	ch, ok := r.byName[strings.ToLower(channel)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return r.containers[ch.Container], nil
}

func (c *container) find(id string) *card {
	for _, cd := range c.cards {
		if cd.msg.ID == id {
			return cd
		}
	}
	return nil
}

func (cd *card) store(lang, text string) {
	if cd.translations == nil {
		cd.translations = make(map[string]string)
	}
	cd.translations[lang] = text
}
