package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/XOOChatx/Chat-X/internal/httputil"
	"github.com/XOOChatx/Chat-X/internal/metrics"
	"github.com/XOOChatx/Chat-X/internal/middleware"
	"github.com/XOOChatx/Chat-X/internal/models"
	"github.com/XOOChatx/Chat-X/internal/session"
	connwa "github.com/XOOChatx/Chat-X/pkg/connector/whatsapp"
	waha "github.com/XOOChatx/Chat-X/pkg/whatsapp"
)

const rateLimitCleanupInterval = 5 * time.Minute

type Server struct {
	router   *mux.Router
	handler  http.Handler
	cfg      *models.Config
	manager  *session.Manager
	logger   *logrus.Logger
	ips      *httputil.ClientIPResolver
	limiter  *middleware.RateLimiter
	webhooks waha.WebhookHandler
	now      func() time.Time

	server      *http.Server
	stopCleanup chan struct{}
}

func NewServer(cfg *models.Config, manager *session.Manager, logger *logrus.Logger) (*Server, error) {
	ips, err := httputil.NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	s := &Server{
		router:      mux.NewRouter(),
		cfg:         cfg,
		manager:     manager,
		logger:      logger,
		ips:         ips,
		limiter:     middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst),
		webhooks:    connwa.NewWebhookHandler(manager.HandleProviderEvent, nil),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	s.setupRoutes()
	s.handler = middleware.CORS(cfg.Server.CORSOrigins)(s.router)
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.ips))

	// Health check and metrics
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Gateway webhook, authenticated by signature
	s.router.HandleFunc("/webhook/whatsapp", s.handleWhatsAppWebhook()).Methods(http.MethodPost)

	// Event stream, authenticated inside the handler since browsers cannot
	// set headers on a WebSocket handshake
	s.router.HandleFunc("/ws/events", s.handleEvents()).Methods(http.MethodGet)

	admin := s.router.NewRoute().Subrouter()
	admin.Use(middleware.AdminAuth(s.cfg.Server.AdminToken, s.logger))
	admin.Use(s.limiter.Middleware(s.ips))

	wa := admin.PathPrefix("/wa").Subrouter()
	wa.HandleFunc("/sessions/create", s.handleCreateSession()).Methods(http.MethodPost)
	wa.HandleFunc("/login/qr", s.handleLoginQR()).Methods(http.MethodGet)
	wa.HandleFunc("/login/status", s.handleLoginStatus()).Methods(http.MethodGet)
	wa.HandleFunc("/sessions/connected", s.handleConnectedSessions()).Methods(http.MethodGet)

	admin.HandleFunc("/sessions", s.handleListSessions()).Methods(http.MethodGet)
	admin.HandleFunc("/sessions/{id}", s.handleStopSession()).Methods(http.MethodDelete)
	admin.HandleFunc("/sessions/{id}/reset", s.handleResetSession()).Methods(http.MethodPost)
	admin.HandleFunc("/sessions/{id}/reconnect", s.handleReconnectSession()).Methods(http.MethodPost)
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	go s.limiter.RunCleanup(rateLimitCleanupInterval, s.stopCleanup)

	s.logger.WithField("port", s.cfg.Server.Port).Info("Starting server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopCleanup)
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
