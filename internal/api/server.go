// Package api exposes the ledger over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/quotes"
	"github.com/eddiefleurent/wheel_tracker/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Server is the REST front of a service.Ledger.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	ledger         *service.Ledger
	quotes         quotes.Provider
	logger         *logrus.Logger
	addr           string
	authToken      string
	requestTimeout time.Duration
	maxUpload      int64
	importLimiter  *rate.Limiter
}

// Config holds the HTTP settings of a Server.
type Config struct {
	Addr           string
	AuthToken      string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	// ImportRate limits validate and confirm calls per second; zero disables it.
	ImportRate  float64
	ImportBurst int
}

// NewServer wires the routes. A nil prices provider makes /quotes answer 503.
func NewServer(cfg Config, ledger *service.Ledger, prices quotes.Provider, logger *logrus.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:         chi.NewRouter(),
		ledger:         ledger,
		quotes:         prices,
		logger:         logger,
		addr:           cfg.Addr,
		authToken:      cfg.AuthToken,
		requestTimeout: cfg.RequestTimeout,
		maxUpload:      cfg.MaxUploadBytes,
	}
	if cfg.ImportRate > 0 {
		burst := cfg.ImportBurst
		if burst < 1 {
			burst = 1
		}
		s.importLimiter = rate.NewLimiter(rate.Limit(cfg.ImportRate), burst)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true}))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.requestTimeout))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/accounts", func(r chi.Router) {
		r.Get("/", s.handleListAccounts)
		r.Post("/", s.handleCreateAccount)
		r.Get("/active", s.handleActiveAccount)
		r.Get("/{id}", s.handleGetAccount)
		r.Put("/{id}", s.handleUpdateAccount)
		r.Post("/{id}/activate", s.handleActivateAccount)
	})

	s.router.Route("/trades", func(r chi.Router) {
		r.Get("/", s.handleListTrades)
		r.Post("/", s.handleOpenTrade)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/performance", s.handlePerformance)
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/validate", s.handleValidateImport)
			r.Post("/confirm", s.handleConfirmImport)
			r.Post("/confirm-one", s.handleConfirmOne)
		})
		r.Get("/{id}", s.handleGetTrade)
		r.Put("/{id}", s.handleUpdateTrade)
		r.Delete("/{id}", s.handleDeleteTrade)
		r.Post("/{id}/close", s.handleCloseTrade)
	})

	s.router.Route("/positions", func(r chi.Router) {
		r.Get("/", s.handleListPositions)
		r.Get("/{id}", s.handleGetPosition)
		r.Post("/{id}/close", s.handleClosePosition)
	})

	s.router.Route("/wheels", func(r chi.Router) {
		r.Get("/", s.handleListWheels)
		r.Get("/{id}", s.handleGetWheel)
	})

	s.router.Get("/quotes/{symbol}", s.handleGetQuote)
	s.router.Get("/audit", s.handleAudit)
}

// authMiddleware accepts "Authorization: Bearer <token>" or X-Auth-Token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.importLimiter != nil && !s.importLimiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many import requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting API server on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}
