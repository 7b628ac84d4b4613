package translate

import (
	"context"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/chanwidget/internal/cache"
)

// Service defaults.
const (
	DefaultLanguage = "en"
	DefaultCacheTTL = 24 * time.Hour
	DefaultTimeout  = 10 * time.Second
	DefaultCacheMax = 2000
)

// UntranslatedSuffix marks text no provider or dictionary could handle.
const UntranslatedSuffix = " [untranslated]"

// Config configures a Service.
type Config struct {
	Provider   Provider
	Dictionary *Dictionary
	CacheTTL   time.Duration
	CacheSize  int
	Timeout    time.Duration
	Clock      clock.Clock
}

// Service translates text, caching provider results and degrading to a
// dictionary substitution or the annotated original on failure.
type Service struct {
	provider Provider
	dict     *Dictionary
	cache    *cache.Cache[string]
	timeout  time.Duration
}

// NewService creates a translation service.
func NewService(cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheMax
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dictionary == nil {
		cfg.Dictionary = NewDictionary(DefaultTerms)
	}
	return &Service{
		provider: cfg.Provider,
		dict:     cfg.Dictionary,
		cache:    cache.New[string](cfg.CacheTTL, cfg.CacheSize, cfg.Clock),
		timeout:  cfg.Timeout,
	}
}

// Translate returns text in lang. It never fails: when the provider is
// unavailable the result is a dictionary substitution or the original text
// followed by UntranslatedSuffix. Only provider results are cached.
func (s *Service) Translate(ctx context.Context, text, lang string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if lang == "" {
		lang = DefaultLanguage
	}
	key := lang + "\x00" + text
	if out, ok := s.cache.Get(key); ok {
		return out
	}

	if s.provider != nil {
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		out, err := s.provider.Translate(tctx, text, lang)
		cancel()
		if err == nil {
			s.cache.Set(key, out)
			return out
		}
		log.WithError(err).WithField("lang", lang).Warn("Translation failed, using fallback")
	}

	return s.Fallback(text)
}

// Fallback returns the offline rendition of text.
func (s *Service) Fallback(text string) string {
	if out, ok := s.dict.Substitute(text); ok {
		return out
	}
	return text + UntranslatedSuffix
}

// Sweep drops expired translations.
func (s *Service) Sweep() int {
	return s.cache.Sweep()
}
