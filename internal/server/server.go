// Package server sets up the HTTP server with all routes
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

	"log/slog"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/chainfolio/chainfolio/internal/access"
	"github.com/chainfolio/chainfolio/internal/baseunit"
	"github.com/chainfolio/chainfolio/internal/config"
	"github.com/chainfolio/chainfolio/internal/events"
	"github.com/chainfolio/chainfolio/internal/idgen"
	"github.com/chainfolio/chainfolio/internal/investment"
	"github.com/chainfolio/chainfolio/internal/logging"
	"github.com/chainfolio/chainfolio/internal/metrics"
	"github.com/chainfolio/chainfolio/internal/monitor"
	"github.com/chainfolio/chainfolio/internal/pagination"
	"github.com/chainfolio/chainfolio/internal/portfolio"
	"github.com/chainfolio/chainfolio/internal/ratelimit"
	"github.com/chainfolio/chainfolio/internal/realtime"
	"github.com/chainfolio/chainfolio/internal/risk"
	"github.com/chainfolio/chainfolio/internal/security"
	"github.com/chainfolio/chainfolio/internal/traces"
	"github.com/chainfolio/chainfolio/internal/treasury"
	"github.com/chainfolio/chainfolio/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	guard         *access.Guard
	bus           *events.Bus
	treasury      *treasury.Treasury
	monitorSvc    *monitor.Service
	portfolioSvc  *portfolio.Service
	investmentSvc *investment.Service
	realtimeHub   *realtime.Hub
	rateLimiter   *ratelimit.Limiter
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run
	stopTraces    func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	guard, err := access.NewGuard(cfg.AdminAddress, cfg.KeeperAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid platform roles: %w", err)
	}
	s.guard = guard

	thresholds, err := riskThresholds(cfg)
	if err != nil {
		return nil, err
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		eventStore      events.Store
		riskStore       risk.Store
		monitorStore    monitor.Store
		treasuryStore   treasury.Store
		portfolioStore  portfolio.Store
		investmentStore investment.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		eventStore = events.NewPostgresStore(db)
		riskStore = risk.NewPostgresStore(db)
		monitorStore = monitor.NewPostgresStore(db)
		treasuryStore = treasury.NewPostgresStore(db)
		portfolioStore = portfolio.NewPostgresStore(db)
		investmentStore = investment.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		eventStore = events.NewMemoryStore()
		riskStore = risk.NewMemoryStore()
		monitorStore = monitor.NewMemoryStore()
		treasuryStore = treasury.NewMemoryStore()
		portfolioStore = portfolio.NewMemoryStore()
		investmentStore = investment.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.bus = events.NewBus(eventStore, s.logger)
	s.treasury = treasury.New(treasuryStore)

	scorer := risk.NewScorer(riskStore, thresholds)
	s.monitorSvc = monitor.NewService(monitorStore, scorer, s.bus, cfg.AdminAddress)
	s.logger.Info("transaction monitoring enabled",
		"highRiskThreshold", thresholds.HighRisk,
	)

	s.portfolioSvc = portfolio.NewService(portfolioStore, guard, s.bus)
	s.logger.Info("portfolio accounting enabled")

	s.investmentSvc, err = investment.NewService(investmentStore, guard, s.treasury, s.bus, investment.Config{
		PlatformFeeBps: cfg.PlatformFeeBPS,
		FeeCollector:   cfg.FeeCollector,
		Vault:          cfg.VaultAddress,
		Enabled:        cfg.InvestmentsEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid investment settings: %w", err)
	}
	s.logger.Info("investment ledger enabled",
		"feeBps", cfg.PlatformFeeBPS,
		"enabled", cfg.InvestmentsEnabled,
	)

	// Tracing (no-op when OTLP_ENDPOINT unset)
	stopTraces, err := traces.Init(context.Background(), cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.stopTraces = stopTraces
	}

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.bus, s.logger)
	s.logger.Info("realtime streaming enabled")

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

// riskThresholds builds scorer thresholds from config strings.
func riskThresholds(cfg *config.Config) (risk.Thresholds, error) {
	high, ok := baseunit.Parse(cfg.HighValueThreshold)
	if !ok {
		return risk.Thresholds{}, fmt.Errorf("invalid HIGH_VALUE_THRESHOLD %q", cfg.HighValueThreshold)
	}
	medium, ok := baseunit.Parse(cfg.MediumValueThreshold)
	if !ok {
		return risk.Thresholds{}, fmt.Errorf("invalid MEDIUM_VALUE_THRESHOLD %q", cfg.MediumValueThreshold)
	}
	return risk.Thresholds{
		HighRisk:    cfg.HighRiskThreshold,
		HighValue:   high,
		MediumValue: medium,
	}, nil
}

// maskDSN hides password in connection string for logging
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
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
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

	// CORS (allow all origins in development - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Caller identity
	s.router.Use(callerMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.WithPrefix("req")
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// callerMiddleware resolves the caller identity from X-Caller-Address.
// The wallet/session layer upstream authenticates the address; here it is
// validated, normalized, and made available to handlers. Missing header
// means an anonymous caller and mutating handlers reject it downstream.
func callerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetHeader("X-Caller-Address")
		if caller == "" {
			c.Next()
			return
		}
		if !validation.IsValidAddress(caller) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_caller",
				"message": "X-Caller-Address must be a valid address (0x + 40 hex chars)",
			})
			return
		}
		c.Set("callerAddr", validation.NormalizeAddress(caller))
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
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

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})

	// API info endpoint
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :address URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.AddressParamMiddleware())

	v1.GET("/platform", s.platformHandler)
	v1.GET("/events", s.listEvents)

	monitor.NewHandler(s.monitorSvc).RegisterRoutes(v1)
	treasury.NewHandler(s.treasury, s.guard).RegisterRoutes(v1)
	portfolio.NewHandler(s.portfolioSvc).RegisterRoutes(v1)
	investment.NewHandler(s.investmentSvc).RegisterRoutes(v1)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
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
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
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
		"name":        "Chainfolio",
		"description": "Portfolio accounting and transaction risk monitoring",
		"version":     "0.1.0",
	})
}

// platformHandler returns platform roles and investment settings
func (s *Server) platformHandler(c *gin.Context) {
	settings := s.investmentSvc.PlatformSettings()
	c.JSON(http.StatusOK, gin.H{
		"platform": gin.H{
			"name":    "Chainfolio",
			"version": "0.1.0",
			"admin":   s.guard.Admin(),
			"keeper":  s.guard.Keeper(),
		},
		"investments": gin.H{
			"platformFeeBps": settings.PlatformFeeBps,
			"feeCollector":   settings.FeeCollector,
			"enabled":        settings.Enabled,
		},
	})
}

// listEvents returns the event log, optionally filtered by type.
// GET /v1/events?type=yield_claimed&start=0&count=50
func (s *Server) listEvents(c *gin.Context) {
	page := pagination.FromQuery(c)

	var (
		items []*events.Event
		err   error
	)
	if t := c.Query("type"); t != "" {
		items, err = s.bus.ListByType(c.Request.Context(), events.Type(t), page.Start, page.Count)
	} else {
		items, err = s.bus.List(c.Request.Context(), page.Start, page.Count)
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list events",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": items,
		"count":  len(items),
		"start":  page.Start,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
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

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	if s.realtimeHub != nil {
		go s.realtimeHub.Run(runCtx)
	}

	// DB pool stats for Prometheus
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
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

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
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

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.stopTraces != nil {
		if err := s.stopTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
