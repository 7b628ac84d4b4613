// Package fetcher serves the recent posts of allow-listed channels.
package fetcher

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
	"github.com/bryan-buckman/chanwidget/internal/database"
	"github.com/bryan-buckman/chanwidget/internal/model"
	"github.com/bryan-buckman/chanwidget/internal/telegram"
)

// DefaultTimeout bounds a single strategy call.
const DefaultTimeout = 10 * time.Second

var channelRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Config configures a Service.
type Config struct {
	Strategy  telegram.Strategy
	Policy    telegram.Policy
	AllowList []string
	Timeout   time.Duration
	// Archive stores every served message. Nil disables archiving.
	Archive database.Store
}

// Service validates channel requests and runs them through a strategy.
type Service struct {
	strategy telegram.Strategy
	policy   telegram.Policy
	allowed  map[string]string // lowercased -> configured spelling
	timeout  time.Duration
	archive  database.Store
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	allowed := make(map[string]string, len(cfg.AllowList))
	for _, ch := range cfg.AllowList {
		ch = strings.TrimSpace(ch)
		if ch != "" {
			allowed[strings.ToLower(ch)] = ch
		}
	}
	return &Service{
		strategy: cfg.Strategy,
		policy:   cfg.Policy,
		allowed:  allowed,
		timeout:  cfg.Timeout,
		archive:  cfg.Archive,
	}
}

// StrategyName returns the name of the configured strategy.
func (s *Service) StrategyName() string {
	return s.strategy.Name()
}

// AllowList returns the allow-listed channels, sorted.
func (s *Service) AllowList() []string {
	out := make([]string, 0, len(s.allowed))
	for _, ch := range s.allowed {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Validate checks channel against the pattern and the allow-list.
func (s *Service) Validate(channel string) error {
	if channel == "" {
		return apierr.Input("Channel username is required")
	}
	if !channelRe.MatchString(channel) {
		return apierr.Input("Invalid channel username")
	}
	if _, ok := s.allowed[strings.ToLower(channel)]; !ok {
		return apierr.NotAllowed(channel)
	}
	return nil
}

// Fetch returns up to Policy.Limit recent messages of channel, newest first.
// Every error is an *apierr.Error.
func (s *Service) Fetch(ctx context.Context, channel string) ([]model.Message, error) {
	if err := s.Validate(channel); err != nil {
		return nil, err
	}
	logger := log.WithFields(log.Fields{"channel": channel, "strategy": s.strategy.Name()})

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msgs, err := s.strategy.Fetch(tctx, channel)
	if err != nil {
		err = classify(tctx, err)
		logger.WithError(err).WithField("status", apierr.StatusOf(err)).Error("Fetch failed")
		return nil, err
	}

	for i := range msgs {
		msgs[i] = msgs[i].WithChannel(channel)
	}
	msgs = s.policy.Apply(msgs)
	logger.WithField("messages", len(msgs)).Debug("Fetched channel")

	if s.archive != nil {
		s.store(ctx, channel, msgs, logger)
	}
	return msgs, nil
}

// store archives messages with provider ids. Failures are only logged.
func (s *Service) store(ctx context.Context, channel string, msgs []model.Message, logger *log.Entry) {
	keep := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.HasGeneratedID() {
			keep = append(keep, m)
		}
	}
	if len(keep) == 0 {
		return
	}
	n, err := s.archive.SaveMessages(ctx, strings.ToLower(channel), keep)
	if err != nil {
		logger.WithError(err).Warn("Archive write failed")
		return
	}
	if n > 0 {
		logger.WithField("new", n).Debug("Archived messages")
	}
}

func classify(ctx context.Context, err error) error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		if ae.Kind == apierr.KindUpstream && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apierr.Timeout(err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apierr.Timeout(err)
	}
	return apierr.Unavailable(err)
}
