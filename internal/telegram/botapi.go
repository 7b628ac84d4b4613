package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
	"github.com/bryan-buckman/chanwidget/internal/model"
)

// Bot API defaults.
const (
	DefaultBotAPIURL   = "https://api.telegram.org"
	DefaultUpdateLimit = 100
	botAPITimeout      = 10 * time.Second
)

// BotAPIConfig configures a BotAPI. Zero values take the defaults.
type BotAPIConfig struct {
	BaseURL     string
	Token       string
	UpdateLimit int
	Timeout     time.Duration
}

// BotAPI reads channel posts delivered to a bot through getUpdates.
type BotAPI struct {
	baseURL     string
	token       string
	updateLimit int
	client      *http.Client
}

var _ Strategy = (*BotAPI)(nil)

// NewBotAPI creates a Bot API strategy. An empty token is reported on Fetch.
func NewBotAPI(cfg BotAPIConfig) *BotAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBotAPIURL
	}
	if cfg.UpdateLimit <= 0 {
		cfg.UpdateLimit = DefaultUpdateLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = botAPITimeout
	}
	return &BotAPI{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		token:       cfg.Token,
		updateLimit: cfg.UpdateLimit,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns "api".
func (b *BotAPI) Name() string {
	return StrategyAPI
}

// botResponse is the envelope of every Bot API reply.
type botResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

type botChat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Username string `json:"username"`
}

type botMessage struct {
	MessageID int64   `json:"message_id"`
	Date      int64   `json:"date"`
	Chat      botChat `json:"chat"`
	Text      string  `json:"text"`
	Caption   string  `json:"caption"`
}

type botUpdate struct {
	UpdateID    int64       `json:"update_id"`
	ChannelPost *botMessage `json:"channel_post"`
}

// Fetch resolves channel to a chat id and returns its posts among the
// bot's recent updates.
func (b *BotAPI) Fetch(ctx context.Context, channel string) ([]model.Message, error) {
	if b.token == "" {
		return nil, apierr.Config(errors.New("telegram bot token is not set"))
	}

	var chat botChat
	if err := b.call(ctx, "getChat", url.Values{"chat_id": {"@" + channel}}, &chat); err != nil {
		return nil, err
	}

	var updates []botUpdate
	params := url.Values{
		"offset": {strconv.Itoa(-b.updateLimit)},
		"limit":  {strconv.Itoa(b.updateLimit)},
	}
	if err := b.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}

	var msgs []model.Message
	for _, u := range updates {
		post := u.ChannelPost
		if post == nil || post.Chat.ID != chat.ID {
			continue
		}
		text := post.Text
		if text == "" {
			text = post.Caption
		}
		if text == "" {
			continue
		}
		id := strconv.FormatInt(post.MessageID, 10)
		msgs = append(msgs, model.NewMessage(channel, id, text, time.Unix(post.Date, 0)))
	}
	return msgs, nil
}

func (b *BotAPI) call(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s?%s", b.baseURL, b.token, method, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: build request failed", method)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return transportError(ctx, method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env botResponse[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apierr.Upstream(http.StatusBadGateway, "Malformed Telegram API response",
			fmt.Errorf("%s: HTTP %d: decode: %w", method, resp.StatusCode, err))
	}
	if !env.OK {
		status := env.ErrorCode
		if status == 0 {
			status = resp.StatusCode
		}
		return apierr.Upstream(status, "Telegram API error: "+env.Description,
			fmt.Errorf("%s: %d %s", method, env.ErrorCode, env.Description))
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return apierr.Upstream(http.StatusBadGateway, "Malformed Telegram API response",
			fmt.Errorf("%s: decode result: %w", method, err))
	}
	return nil
}
