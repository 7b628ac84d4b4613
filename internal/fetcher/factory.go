package fetcher

import (
	"fmt"
	"time"

	"github.com/bryan-buckman/chanwidget/internal/telegram"
)

// StrategyOptions selects and configures a strategy.
type StrategyOptions struct {
	Name         string
	Timeout      time.Duration
	MaxBodyBytes int64
	KeepLinks    bool

	BotToken    string
	BotAPIURL   string
	UpdateLimit int

	PreviewURL string
	BridgeURL  string
}

// NewStrategy creates the strategy named by o.Name. An empty name selects
// the scraper.
func NewStrategy(o StrategyOptions) (telegram.Strategy, error) {
	switch o.Name {
	case telegram.StrategyAPI:
		return telegram.NewBotAPI(telegram.BotAPIConfig{
			BaseURL:     o.BotAPIURL,
			Token:       o.BotToken,
			UpdateLimit: o.UpdateLimit,
			Timeout:     o.Timeout,
		}), nil
	case "", telegram.StrategyScrape:
		return telegram.NewScraper(telegram.ScraperConfig{
			BaseURL:      o.PreviewURL,
			Timeout:      o.Timeout,
			MaxBodyBytes: o.MaxBodyBytes,
			KeepLinks:    o.KeepLinks,
		}), nil
	case telegram.StrategyFeed:
		return telegram.NewFeedBridge(telegram.FeedBridgeConfig{
			URLTemplate: o.BridgeURL,
			Timeout:     o.Timeout,
			KeepLinks:   o.KeepLinks,
		}), nil
	default:
		return nil, fmt.Errorf("unknown strategy: %s", o.Name)
	}
}
