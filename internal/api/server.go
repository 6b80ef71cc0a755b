// Package api provides the HTTP API server for wahistory.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wesm/wahistory/internal/chat"
	"github.com/wesm/wahistory/internal/config"
	"github.com/wesm/wahistory/internal/scheduler"
	"github.com/wesm/wahistory/internal/source"
	"github.com/wesm/wahistory/internal/store"
)

// ChatStore defines the store operations the API needs.
type ChatStore interface {
	Stats(ctx context.Context) (*store.Stats, error)
	ListChats(ctx context.Context) ([]store.ChatSummary, error)
	GetChat(ctx context.Context, id string) (*chat.Chat, error)
	DeleteChat(ctx context.Context, id string) error
	MarkRead(ctx context.Context, chatID string) (int64, error)
	PhoneNumbers(ctx context.Context) (map[string]bool, error)
	SearchMessages(ctx context.Context, f store.MessageFilter) ([]store.MessageHit, error)
}

// ImportScheduler defines the scheduler operations the API needs.
type ImportScheduler interface {
	TriggerAll() []string
	Status() []WatchStatus
	IsRunning() bool
}

// WatchStatus is an alias for scheduler.WatchStatus.
type WatchStatus = scheduler.WatchStatus

// MediaFiles opens stored media. *media.LocalStore implements it.
type MediaFiles interface {
	Open(chatID, name string) (*os.File, error)
	RemoveChat(chatID string) error
}

// Decrypter returns the plaintext of sealed media by URL.
// *media.DecryptCache implements it.
type Decrypter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Deps are the server's collaborators. Only Store is required; a missing
// collaborator disables the routes that need it.
type Deps struct {
	Store     ChatStore
	Scheduler ImportScheduler
	Media     MediaFiles
	Decrypter Decrypter
	Raw       source.Fetcher
	Scan      func() ([]source.ImportFile, error)
}

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	deps        Deps
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS is off unless origins are configured.
	r.Use(CORSMiddleware(CORSConfig{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         86400,
	}))

	rps := s.cfg.Server.RateLimit
	if rps <= 0 {
		rps = 10
	}
	s.rateLimiter = NewRateLimiter(rps, int(2*rps))
	r.Use(RateLimitMiddleware(s.rateLimiter))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/stats", s.handleStats)

			r.Get("/chats", s.handleListChats)
			r.Get("/chats/{id}", s.handleGetChat)
			r.Delete("/chats/{id}", s.handleDeleteChat)
			r.Post("/chats/{id}/read", s.handleMarkRead)
			r.Get("/search", s.handleSearch)

			r.Get("/scan", s.handleScan)
			r.Post("/import", s.handleTriggerImport)
			r.Get("/scheduler/status", s.handleSchedulerStatus)
		})

		r.Get("/media/{chatID}/{file}", s.handleMedia)
		r.Get("/read-chat", s.handleReadChat)
	})

	return r
}

// Start begins listening for HTTP requests.
// Returns an error if the security posture is invalid.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))

	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication; set [server] api_key in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Authorization")
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		if len(key) > 7 && key[:7] == "Bearer " {
			key = key[7:]
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
