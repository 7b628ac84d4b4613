package cli

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/chanwidget/internal/config"
	"github.com/bryan-buckman/chanwidget/internal/database"
	"github.com/bryan-buckman/chanwidget/internal/fetcher"
	"github.com/bryan-buckman/chanwidget/internal/ratelimit"
	"github.com/bryan-buckman/chanwidget/internal/server"
	"github.com/bryan-buckman/chanwidget/internal/telegram"
	"github.com/bryan-buckman/chanwidget/internal/translate"
	"github.com/bryan-buckman/chanwidget/internal/widget"
)

// app holds the wired components of a running instance.
type app struct {
	archive   database.Store
	fetcher   *fetcher.Service
	server    *server.Server
	scheduler *widget.Scheduler
}

func (a *app) Close() {
	if a.archive == nil {
		return
	}
	if err := a.archive.Close(); err != nil {
		log.WithError(err).Warn("Close archive failed")
	}
}

// newFetcher builds the fetch service from cfg.
func newFetcher(cfg *config.Config, archive database.Store) (*fetcher.Service, error) {
	strategy, err := fetcher.NewStrategy(fetcher.StrategyOptions{
		Name:         cfg.Fetcher.Strategy,
		Timeout:      cfg.Fetcher.Timeout,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
		KeepLinks:    cfg.Fetcher.KeepLinks,
		BotToken:     cfg.BotToken(),
		BotAPIURL:    cfg.Telegram.APIURL,
		UpdateLimit:  cfg.Telegram.UpdateLimit,
		PreviewURL:   cfg.Telegram.PreviewURL,
		BridgeURL:    cfg.Telegram.BridgeURL,
	})
	if err != nil {
		return nil, err
	}
	return fetcher.New(fetcher.Config{
		Strategy: strategy,
		Policy: telegram.Policy{
			MinLength: cfg.Fetcher.MinLength,
			MaxLength: cfg.Fetcher.MaxLength,
			Limit:     cfg.Fetcher.Limit,
		},
		AllowList: cfg.Fetcher.AllowList,
		Timeout:   cfg.Fetcher.Timeout,
		Archive:   archive,
	}), nil
}

// newApp opens storage and wires every component described by cfg.
func newApp(cfg *config.Config) (*app, error) {
	archive, err := database.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a := &app{archive: archive}

	a.fetcher, err = newFetcher(cfg, archive)
	if err != nil {
		a.Close()
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window, nil)
	opts := server.Options{
		Fetcher:        a.fetcher,
		Archive:        archive,
		Limiter:        limiter,
		Location:       loc,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Title:          cfg.Widget.Title,
		Language:       cfg.Widget.Language,
		Retain:         cfg.Storage.Retain,
		FeedTTL:        cfg.Widget.CacheTTL,
	}

	if cfg.Widget.Enabled {
		provider, err := translate.NewProvider(cfg.Translate.Provider, cfg.Translate.Endpoint, cfg.Translate.SourceLang, cfg.Translate.Timeout)
		if err != nil {
			a.Close()
			return nil, err
		}
		translator := translate.NewService(translate.Config{
			Provider: provider,
			CacheTTL: cfg.Translate.CacheTTL,
			Timeout:  cfg.Translate.Timeout,
		})

		var source widget.Source = a.fetcher
		if cfg.Widget.SourceURL != "" {
			source = widget.NewHTTPSource(cfg.Widget.SourceURL, cfg.Widget.FetchTimeout)
		}
		renderer := widget.NewRenderer(widget.Config{
			Channels:       cfg.Widget.Channels,
			Source:         source,
			Translator:     translator,
			CacheTTL:       cfg.Widget.CacheTTL,
			CacheSize:      cfg.Widget.CacheSize,
			RateLimit:      cfg.Widget.RateLimit,
			FetchTimeout:   cfg.Widget.FetchTimeout,
			ChannelDelay:   cfg.Widget.ChannelDelay,
			TranslateDelay: cfg.Translate.Delay,
			Location:       loc,
		})
		a.scheduler = widget.NewScheduler(renderer, cfg.Widget.RefreshInterval, cfg.Cache.SweepInterval, nil,
			renderer, translator, limiter)
		opts.Renderer = renderer
		opts.Scheduler = a.scheduler
	}

	a.server, err = server.New(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
