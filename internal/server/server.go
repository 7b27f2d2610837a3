/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timetablegenerator/ttg-legacy/internal/auth"
	"github.com/timetablegenerator/ttg-legacy/internal/cache"
	"github.com/timetablegenerator/ttg-legacy/internal/catalogue"
	"github.com/timetablegenerator/ttg-legacy/internal/config"
	"github.com/timetablegenerator/ttg-legacy/internal/logging"
	"github.com/timetablegenerator/ttg-legacy/internal/metrics"
	"github.com/timetablegenerator/ttg-legacy/internal/middleware"
	"github.com/timetablegenerator/ttg-legacy/internal/schedule"
	"github.com/timetablegenerator/ttg-legacy/internal/storage"
)

// Version is reported by the health and readiness probes
const Version = "1.0"

// Server represents the legacy snapshot HTTP server
type Server struct {
	config         *config.Config
	httpServer     *http.Server
	router         *gin.Engine
	store          storage.BlobStore
	cache          *cache.MemoryCache
	schedules      *schedule.Service
	authorizer     auth.Authorizer
	catalogue      *catalogue.Store
	logger         *logging.Logger
	accessLog      io.Writer
	metrics        metrics.MetricsProvider
	metricsEnabled bool
}

// Option customizes a Server during construction
type Option func(*Server)

// WithCatalogue supplies an already opened catalogue store
func WithCatalogue(store *catalogue.Store) Option {
	return func(s *Server) {
		s.catalogue = store
	}
}

// WithLogger replaces the logger built from the logging config
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAccessLog sends gin access log lines to w instead of gin.DefaultWriter
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) {
		s.accessLog = w
	}
}

// New creates a new legacy snapshot server
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	server := &Server{
		config:  cfg,
		logger:    logging.NewLogger(cfg.Logging),
		accessLog: gin.DefaultWriter,
		metrics:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(server)
	}
	server.logger = server.logger.WithComponent("server")

	// Create metrics if enabled
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		server.metrics = metrics.NewMetricsProvider()
		server.metricsEnabled = true
	}

	authorizer, err := auth.New(cfg.Auth, cfg.Legacy.PostKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer: %w", err)
	}
	server.authorizer = authorizer

	server.store = storage.NewFileStore(cfg.Legacy.Dir, server.logger)
	server.cache = cache.NewMemoryCache()
	server.schedules = schedule.NewService(server.store, server.cache, schedule.Options{
		InvalidateOnWrite: cfg.Cache.InvalidateOnWrite,
		Metrics:           server.metrics,
		Logger:            server.logger,
	})

	// The catalogue is optional
	if server.catalogue == nil && cfg.Database != nil {
		store, err := catalogue.Open(*cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open catalogue: %w", err)
		}
		server.catalogue = store
	}

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server.router = gin.New()
	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Configure TLS if enabled
	if cfg.TLS.Enabled {
		tlsConfig, err := server.createTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		server.httpServer.TLSConfig = tlsConfig
	}

	return server, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	if s.config.TLS.Enabled {
		return s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server, then releases the cache and
// the catalogue connection
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.schedules.Close()
	if s.catalogue != nil {
		if cerr := s.catalogue.Close(); cerr != nil {
			s.logger.Error("Failed to close catalogue", cerr)
		}
	}
	return err
}

// GetRouter returns the Gin router for testing purposes
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Schedules exposes the read-through service
func (s *Server) Schedules() *schedule.Service {
	return s.schedules
}

// Metrics exposes the metrics provider
func (s *Server) Metrics() metrics.MetricsProvider {
	return s.metrics
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.LoggerWithWriter(s.config.Logging, s.accessLog))
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.RequestSizeLimit(s.config.Server.MaxBodySize))
	s.router.Use(s.withRequestMetrics())
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	// Capture server instance to avoid method value binding issues
	server := s

	// Health check endpoints
	server.router.GET("/health", func(c *gin.Context) { server.handleHealth(c) })
	server.router.GET("/ready", func(c *gin.Context) { server.handleReady(c) })

	if server.metricsEnabled {
		server.router.GET("/metrics", gin.WrapH(server.metrics.Handler()))
	}

	// School listing is read-only and unauthenticated
	server.router.GET("/:level/", server.resolveLevel(), func(c *gin.Context) { server.handleListSchools(c) })

	snapshots := server.router.Group("/:level/:school",
		server.resolveKey(),
		auth.Middleware(server.authorizer, server.logger),
	)
	for _, path := range []string{"", "/"} {
		snapshots.GET(path, func(c *gin.Context) { server.handleGetSchedule(c) })
		snapshots.HEAD(path, func(c *gin.Context) { server.handleGetSchedule(c) })
		snapshots.POST(path, func(c *gin.Context) { server.handlePostSchedule(c) })
	}

	server.router.NoRoute(func(c *gin.Context) { server.handleNotFound(c) })
}

// createTLSConfig creates TLS configuration
func (s *Server) createTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
	}

	// Set minimum TLS version based on configuration
	switch s.config.TLS.MinVersion {
	case "1.2":
		tlsConfig.MinVersion = tls.VersionTLS12
		tlsConfig.CipherSuites = []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		}
	case "1.3", "":
		tlsConfig.MinVersion = tls.VersionTLS13
	default:
		return nil, fmt.Errorf("unsupported TLS min version: %q", s.config.TLS.MinVersion)
	}

	return tlsConfig, nil
}

// handleHealth handles health check requests (liveness probe)
func (s *Server) handleHealth(c *gin.Context) {
	health := s.checkHealth()

	statusCode := http.StatusOK
	if !health.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// handleReady handles readiness check requests (readiness probe)
func (s *Server) handleReady(c *gin.Context) {
	readiness := s.checkReadiness(c.Request.Context())

	statusCode := http.StatusOK
	if !readiness.Ready {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, readiness)
}

// HealthStatus represents the liveness of the service
type HealthStatus struct {
	Status     string            `json:"status"`
	Healthy    bool              `json:"healthy"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// ReadinessStatus represents the readiness of the service
type ReadinessStatus struct {
	Status       string            `json:"status"`
	Ready        bool              `json:"ready"`
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	Cache        *cache.Stats      `json:"cache,omitempty"`
	Documents    map[string]int    `json:"documents,omitempty"`
}

// checkHealth performs basic health checks (liveness)
func (s *Server) checkHealth() HealthStatus {
	healthy := true
	components := make(map[string]string)

	check := func(name string, initialized bool) {
		if initialized {
			components[name] = "healthy"
			return
		}
		healthy = false
		components[name] = "not_initialized"
	}
	check("router", s.router != nil)
	check("blob_store", s.store != nil)
	check("cache", s.cache != nil)
	check("schedule_service", s.schedules != nil)
	check("authorizer", s.authorizer != nil)

	// Catalogue is optional
	if s.catalogue != nil {
		components["catalogue"] = "healthy"
	} else {
		components["catalogue"] = "not_configured"
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthStatus{
		Status:     status,
		Healthy:    healthy,
		Timestamp:  time.Now().UTC(),
		Version:    Version,
		Components: components,
	}
}

// checkReadiness checks that the legacy directory and the catalogue
// database are reachable
func (s *Server) checkReadiness(ctx context.Context) ReadinessStatus {
	ready := true
	dependencies := make(map[string]string)
	status := ReadinessStatus{}

	if s.schedules == nil {
		ready = false
		dependencies["blob_store"] = "not_initialized"
	} else if err := s.schedules.HealthCheck(ctx); err != nil {
		ready = false
		dependencies["blob_store"] = "unavailable"
		s.logger.WithContext(ctx).Warnf("Blob store not ready: %v", err)
	} else {
		dependencies["blob_store"] = "ready"
		if stats, err := s.schedules.StoreStats(ctx); err == nil {
			status.Documents = stats.Documents
		}
		cacheStats := s.schedules.CacheStats()
		status.Cache = &cacheStats
	}

	if s.catalogue == nil {
		dependencies["catalogue"] = "not_configured"
	} else if err := s.catalogue.HealthCheck(ctx); err != nil {
		ready = false
		dependencies["catalogue"] = "unavailable"
		s.logger.WithContext(ctx).Warnf("Catalogue not ready: %v", err)
	} else {
		dependencies["catalogue"] = "ready"
	}

	status.Status = "ready"
	if !ready {
		status.Status = "not_ready"
	}
	status.Ready = ready
	status.Timestamp = time.Now().UTC()
	status.Version = Version
	status.Dependencies = dependencies
	return status
}
