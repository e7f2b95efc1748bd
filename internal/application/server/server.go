package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/stampede"
)

// faviconCacheTTL coalesces favicon bursts, the feed list requests one
// icon per feed at once
const faviconCacheTTL = 10 * time.Second

// Server defines HTTP server
type Server struct {
	httpServer   *http.Server
	handler      *Handler
	logger       Logger
	drainTimeout time.Duration
}

// Config defines webserver configuration
type Config struct {
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port"`
	BaseURL               string `mapstructure:"base_url"`
	CookieSigningKey      string `mapstructure:"cookie_signing_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	DrainTimeoutSeconds   int    `mapstructure:"drain_timeout_seconds"`
}

// New creates new server configuration and configurates middleware
func New(serverConfig Config, logger Logger, handler *Handler) *Server {
	requestTimeout := time.Duration(serverConfig.RequestTimeoutSeconds) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	drainTimeout := time.Duration(serverConfig.DrainTimeoutSeconds) * time.Second
	if drainTimeout <= 0 {
		drainTimeout = 15 * time.Second
	}

	r := chi.NewRouter()
	s := &Server{
		httpServer: &http.Server{
			Addr:    net.JoinHostPort(serverConfig.Host, strconv.Itoa(serverConfig.Port)),
			Handler: r,
		},
		logger:       logger,
		handler:      handler,
		drainTimeout: drainTimeout,
	}
	// Specify here only shared middlewares
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		// Prometheus metrics
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/status", handler.status)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(middlewareLogger(logger))
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300, // Maximum value not ignored by any of major browsers
		}))
		r.Use(handler.sessionCtx)

		r.Get("/", handler.home)
		r.Get("/login", handler.loginForm)
		r.Post("/login", handler.login)
		r.Post("/logout", handler.logout)

		r.Group(func(r chi.Router) {
			r.Use(handler.requireUser)

			r.Get("/unread", handler.getUnreadEntries)
			r.Get("/settings", handler.settings)
			r.Post("/settings/password", handler.changePassword)

			r.Route("/feeds", func(r chi.Router) {
				r.Get("/", handler.getFeeds)
				r.Get("/add", handler.addFeedForm)
				r.Post("/add", handler.addFeed)
				r.Post("/refresh", handler.refreshFeeds)

				r.Route("/{feedID}", func(r chi.Router) {
					r.Use(handler.feedCtx)
					r.Get("/", handler.getFeedEntries)
					r.Get("/entries/{entryID}", handler.getFeedEntry)
					// Response caching and request coalescing, favicons rarely
					// change. Keyed per user, the responses are user specific.
					cached := stampede.HandlerWithKey(512, faviconCacheTTL, faviconCacheKey)
					r.With(cached).Get("/favicon", handler.getFeedFavicon)
				})
			})
		})
	})
	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests before
// returning
func (s *Server) Run(ctx context.Context) error {
	serveResult := make(chan error, 1)
	go func() {
		s.logger.Info("Server is ready to serve on ", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveResult <- fmt.Errorf("couldn't serve on %s: %w", s.httpServer.Addr, err)
			return
		}
		serveResult <- nil
	}()

	select {
	case err := <-serveResult:
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("couldn't drain server: %w", err)
	}
	return <-serveResult
}
