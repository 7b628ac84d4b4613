// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
	"github.com/bryan-buckman/chanwidget/internal/cache"
	"github.com/bryan-buckman/chanwidget/internal/database"
	"github.com/bryan-buckman/chanwidget/internal/fetcher"
	"github.com/bryan-buckman/chanwidget/internal/model"
	"github.com/bryan-buckman/chanwidget/internal/ratelimit"
	"github.com/bryan-buckman/chanwidget/internal/telegram"
	"github.com/bryan-buckman/chanwidget/internal/widget"
)

// maxFeeds caps how many channels have their feed freshness tracked.
const maxFeeds = 256

// Options wires the server to its collaborators. Archive, Renderer and
// Scheduler are optional.
type Options struct {
	Fetcher   *fetcher.Service
	Archive   database.Store
	Limiter   *ratelimit.Window
	Renderer  *widget.Renderer
	Scheduler *widget.Scheduler
	Location  *time.Location
	// FeedTTL is how long a channel feed is served from the archive before
	// it is fetched again. Zero takes widget.DefaultCacheTTL.
	FeedTTL time.Duration
	Clock   clock.Clock

	AllowedOrigins []string
	Title          string
	Language       string
	Retain         time.Duration
}

// Server is the main HTTP server.
type Server struct {
	opts      Options
	fetcher   *fetcher.Service
	archive   database.Store
	limiter   *ratelimit.Window
	renderer  *widget.Renderer
	scheduler *widget.Scheduler
	templates *widget.Templates
	router    chi.Router

	feedFetched *cache.Cache[struct{}] // channels fetched live within FeedTTL
}

// New creates a new server.
func New(opts Options) (*Server, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("server: fetcher is required")
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(0, ratelimit.DefaultWindow, nil)
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.FeedTTL <= 0 {
		opts.FeedTTL = widget.DefaultCacheTTL
	}

	s := &Server{
		opts:      opts,
		fetcher:   opts.Fetcher,
		archive:   opts.Archive,
		limiter:   opts.Limiter,
		renderer:  opts.Renderer,
		scheduler: opts.Scheduler,

		feedFetched: cache.New[struct{}](opts.FeedTTL, maxFeeds, opts.Clock),
	}
	if s.renderer != nil {
		tmpl, err := widget.NewTemplates(opts.Location)
		if err != nil {
			return nil, err
		}
		s.templates = tmpl
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.StandardLogger(), NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Accept", "Content-Type"},
		MaxAge:             300,
		OptionsPassthrough: true,
	}))

	// Fetcher.
	for _, path := range []string{"/fetch", "/api/fetch-telegram"} {
		r.Get(path, s.handleFetch)
		r.Options(path, s.handlePreflight)
	}
	r.Get("/health", s.handleHealth)
	r.Get("/feed/{file}", s.handleFeed)

	r.Route("/api", func(r chi.Router) {
		r.Get("/export-opml", s.handleExportOPML)
		r.Post("/cleanup", s.handleCleanup)
	})

	// Renderer.
	if s.renderer != nil {
		r.Get("/", s.handleHome)
		r.Route("/widget", func(r chi.Router) {
			r.Get("/containers/{container}", s.handleContainer)
			r.Post("/refresh", s.handleRefreshAll)
			r.Post("/refresh/{channel}", s.handleRefreshChannel)
			r.Post("/visibility", s.handleVisibility)
			r.Post("/pull", s.handlePull)
			r.Post("/translate/{channel}", s.handleTranslateChannel)
			r.Post("/translate/{channel}/{id}", s.handleTranslateMessage)
		})
	}

	s.router = r
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	if s.scheduler != nil {
		s.scheduler.Start(ctx)
		defer s.scheduler.Stop()
	} else {
		go s.sweep(ctx)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(widget.DefaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Sweep()
			s.feedFetched.Sweep()
		}
	}
}

// --- Fetcher Handlers ---

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	allowed := s.limiter.Allow(ip)
	if left := s.limiter.Remaining(ip); left >= 0 {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(left))
	}
	if !allowed {
		s.writeError(w, r, apierr.RateLimited())
		return
	}

	msgs, err := s.fetcher.Fetch(r.Context(), r.URL.Query().Get("channel"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.fetcher.StrategyName() == telegram.StrategyAPI {
		w.Header().Set("Cache-Control", "s-maxage=300, stale-while-revalidate")
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handlePreflight ends a preflight the cors middleware has already answered.
// An approved one advertises every method the API accepts.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbType := "none"
	if s.archive != nil {
		dbType = s.archive.DatabaseType()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"strategy":     s.fetcher.StrategyName(),
		"database":     dbType,
		"cached_feeds": s.feedFetched.Len(),
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var deleted int64
	if s.archive != nil && s.opts.Retain > 0 {
		var err error
		deleted, err = s.archive.PruneOlderThan(r.Context(), s.opts.Retain)
		if err != nil {
			log.WithError(err).Error("Cleanup failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Cleanup failed"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"deleted": deleted,
	})
}

// --- Helpers ---

// writeError logs err in full and sends only its public message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apierr.StatusOf(err)
	entry := log.WithFields(log.Fields{
		"status":     status,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}
	writeJSON(w, status, map[string]string{"error": apierr.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Write response failed")
	}
}

// clientIP returns the address RealIP left in RemoteAddr, without the port.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
