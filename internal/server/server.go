// Package server wires the HTTP API together: stores, payment gateway,
// escrow and dispute services, webhook ingress, and the realtime hub.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"log/slog"

	"github.com/jmcale/bookpay/internal/booking"
	"github.com/jmcale/bookpay/internal/circuitbreaker"
	"github.com/jmcale/bookpay/internal/config"
	"github.com/jmcale/bookpay/internal/dispute"
	"github.com/jmcale/bookpay/internal/escrow"
	"github.com/jmcale/bookpay/internal/gateway"
	"github.com/jmcale/bookpay/internal/idgen"
	"github.com/jmcale/bookpay/internal/ledger"
	"github.com/jmcale/bookpay/internal/logging"
	"github.com/jmcale/bookpay/internal/metrics"
	"github.com/jmcale/bookpay/internal/ratelimit"
	"github.com/jmcale/bookpay/internal/realtime"
	"github.com/jmcale/bookpay/internal/security"
	"github.com/jmcale/bookpay/internal/traces"
	"github.com/jmcale/bookpay/internal/validation"
	"github.com/jmcale/bookpay/internal/webhook"
)

// Server is the assembled BookPay API process.
type Server struct {
	cfg            *config.Config
	bookings       booking.Store
	ledger         *ledger.Ledger
	gateway        gateway.PaymentGateway
	escrowService  *escrow.Service
	disputeService *dispute.Service
	disputeTimer   *dispute.Timer
	processor      *webhook.Processor
	realtimeHub    *realtime.Hub
	rateLimiter    *ratelimit.Limiter
	db             *sql.DB // nil if using in-memory stores
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	shutdownTraces func(context.Context) error
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGateway injects a payment gateway (for testing).
func WithGateway(gw gateway.PaymentGateway) Option {
	return func(s *Server) {
		s.gateway = gw
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set gateway/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
		if err != nil {
			s.logger.Warn("failed to initialize tracing", "error", err)
		} else {
			s.shutdownTraces = shutdown
		}
	}

	// Storage: Postgres if DATABASE_URL is set, otherwise in-memory.
	var (
		escrowStore  escrow.Store
		disputeStore dispute.Store
		webhookStore webhook.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.bookings = booking.NewPostgresStore(db)
		s.ledger = ledger.New(ledger.NewPostgresStore(db))
		escrowStore = escrow.NewPostgresStore(db)
		disputeStore = dispute.NewPostgresStore(db)
		webhookStore = webhook.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.bookings = booking.NewMemoryStore()
		s.ledger = ledger.New(ledger.NewMemoryStore())
		escrowStore = escrow.NewMemoryStore()
		disputeStore = dispute.NewMemoryStore()
		webhookStore = webhook.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Payment gateway: Stripe when configured, otherwise the in-memory fake.
	// Either way the escrow service sees it through a circuit breaker.
	if s.gateway == nil {
		if cfg.StripeSecretKey != "" {
			s.gateway = gateway.NewStripeGateway(cfg.StripeSecretKey)
			s.logger.Info("stripe gateway enabled")
		} else {
			s.gateway = gateway.NewFakeGateway()
			s.logger.Info("fake gateway enabled (no real money moves)")
		}
	}
	s.gateway = gateway.WithBreaker(s.gateway, circuitbreaker.New(5, 30*time.Second))

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	// Escrow
	s.escrowService = escrow.NewService(escrowStore, s.bookings, s.ledger, s.gateway, escrow.Policy{
		CommissionBps:      cfg.CommissionBps,
		MinChargeAmount:    cfg.MinChargeAmount,
		FeeRefundable:      cfg.FeeRefundable,
		DefaultCaptureMode: gateway.CaptureMode(cfg.DefaultCaptureMode),
		GatewayAttempts:    cfg.GatewayAttempts,
	}).WithPublisher(s.realtimeHub)
	s.logger.Info("escrow enabled", "commissionBps", cfg.CommissionBps)

	// Disputes. A nil decider escalates everything to manual review.
	s.disputeService = dispute.NewService(disputeStore, s.escrowService, nil, dispute.Policy{
		EvidenceWindow: cfg.EvidenceWindow,
		ReviewTimeout:  cfg.ReviewTimeout,
	}).WithPublisher(s.realtimeHub)
	s.disputeTimer = dispute.NewTimer(s.disputeService, disputeStore, cfg.TimerInterval, s.logger)
	s.logger.Info("disputes enabled", "evidenceWindow", cfg.EvidenceWindow)

	// Webhook ingress
	verifier := webhook.NewStripeVerifier(cfg.StripeWebhookSecret)
	s.processor = webhook.NewProcessor(verifier, webhookStore, s.escrowService, s.ledger)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting. Webhook deliveries bypass it (see DefaultConfig).
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Honor an existing request ID (from a load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.WithPrefix("req_")
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}

		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for realtime booking and dispute events
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	booking.NewHandler(s.bookings).RegisterRoutes(v1)
	escrow.NewHandler(s.escrowService).RegisterRoutes(v1)
	ledger.NewHandler(s.ledger).RegisterRoutes(v1)
	dispute.NewHandler(s.disputeService).RegisterRoutes(v1)
	webhook.NewHandler(s.processor).RegisterRoutes(v1)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "BookPay",
		"description": "Escrow payments and dispute resolution for service bookings",
		"version":     "0.1.0",
		"currency":    s.cfg.Currency,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start dispute deadline/settlement timer
	go s.disputeTimer.Start(runCtx)

	// Export connection pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timer)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.disputeTimer.Stop()
	s.rateLimiter.Stop()

	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Warn("trace exporter shutdown failed", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("database close failed", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}
