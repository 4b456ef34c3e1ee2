// Package server exposes the state of a running watch over HTTP
package server

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/fluxbase-eu/jsonpns/internal/cache"
	"github.com/fluxbase-eu/jsonpns/internal/config"
	"github.com/fluxbase-eu/jsonpns/internal/diagnostics"
	"github.com/fluxbase-eu/jsonpns/internal/observability"
	"github.com/fluxbase-eu/jsonpns/internal/pipeline"
)

// Server is the status server of the watch command
type Server struct {
	app     *fiber.App
	config  config.ServerConfig
	stage   *pipeline.Stage
	metrics *observability.Metrics
	version string
	started time.Time

	mu      sync.RWMutex
	last    *pipeline.Output
	batches int
}

// New creates the status server. metrics may be nil.
func New(cfg config.ServerConfig, stage *pipeline.Stage, metrics *observability.Metrics, version string, debug bool) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "jsonpns",
		AppName:               "jsonpns " + version,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: !debug,
		ErrorHandler:          customErrorHandler,
	})

	s := &Server{
		app:     app,
		config:  cfg,
		stage:   stage,
		metrics: metrics,
		version: version,
		started: time.Now(),
	}

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(requestLogger(time.Second, "/health", "/metrics"))
	if metrics != nil {
		app.Use(metrics.MetricsMiddleware())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/diagnostics", s.handleDiagnostics)
	if metrics != nil {
		app.Get("/metrics", s.handleMetrics(metrics.Handler()))
	}

	return s
}

// App returns the underlying Fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Record stores the output of the latest batch
func (s *Server) Record(out *pipeline.Output) {
	if out == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = out
	s.batches++
}

// Start listens on the configured address until Shutdown is called
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Address).Msg("Starting status server")
	return s.app.Listen(s.config.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lastBatch := ""
	if s.last != nil {
		lastBatch = s.last.BatchID
	}

	memory := fiber.Map{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memory["available_mb"] = vmStat.Available / 1024 / 1024
		memory["total_mb"] = vmStat.Total / 1024 / 1024
	}

	return c.JSON(fiber.Map{
		"status":     "ok",
		"version":    s.version,
		"enabled":    s.stage.Enabled(),
		"global":     s.stage.Global(),
		"engine":     s.stage.Engine(),
		"batches":    s.batches,
		"last_batch": lastBatch,
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"memory":     memory,
	})
}

// diagnosticsResponse is the body of GET /diagnostics
type diagnosticsResponse struct {
	BatchID     string                   `json:"batch_id"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
	Stats       *pipeline.Stats          `json:"stats,omitempty"`
	Cache       *cache.Stats             `json:"cache,omitempty"`
}

func (s *Server) handleDiagnostics(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := diagnosticsResponse{Diagnostics: []diagnostics.Diagnostic{}}
	if s.last != nil {
		resp.BatchID = s.last.BatchID
		resp.Diagnostics = s.last.Diagnostics
		stats := s.last.Stats
		resp.Stats = &stats
	}
	if ac := s.stage.Cache(); ac != nil {
		stats := ac.Stats()
		resp.Cache = &stats
	}

	if kind := c.Query("kind"); kind != "" {
		filtered := []diagnostics.Diagnostic{}
		for _, d := range resp.Diagnostics {
			if string(d.Kind) == kind {
				filtered = append(filtered, d)
			}
		}
		resp.Diagnostics = filtered
	}

	return c.JSON(resp)
}

func (s *Server) handleMetrics(next fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s.metrics.UpdateUptime(s.started)
		return next(c)
	}
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
