package api

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/rewind/pkg/capture"
	"github.com/papercomputeco/rewind/pkg/recall"
	"github.com/papercomputeco/rewind/pkg/storage"
)

// ErrorResponse is the JSON body for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the HTTP API server for the memory layer.
type Server struct {
	config  Config
	driver  storage.Driver
	capture *capture.Service
	recall  *recall.Service
	logger  *slog.Logger
	app     *fiber.App

	startedAt time.Time

	tierMu   sync.Mutex
	tierName string
}

// NewServer creates the API server. The storage driver and services are
// injected so the watcher and HTTP layer share one instance of each.
func NewServer(config Config, driver storage.Driver, captureSvc *capture.Service, recallSvc *recall.Service, logger *slog.Logger) *Server {
	if config.DefaultTurns <= 0 {
		config.DefaultTurns = recall.DefaultLimit
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		driver:    driver,
		capture:   captureSvc,
		recall:    recallSvc,
		logger:    logger,
		app:       app,
		startedAt: time.Now(),
	}

	app.Get("/health", s.handleHealth)
	app.Get("/status", s.handleHealth)
	app.Post("/capture", s.handleCapture)
	app.Get("/context", s.handleContext)
	app.Get("/sessions", s.handleSessions)
	app.Get("/stats", s.handleStats)
	app.Get("/search", s.handleSearch)
	app.Post("/cleanup", s.handleCleanup)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "not found"})
	})

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting api server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the API server on an existing listener.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting api server", "listen", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// tier returns the active tier name. The tier never changes after startup
// selection, so a successful lookup is cached; a failed lookup is retried on
// the next request rather than pinning "unknown" for the process lifetime.
func (s *Server) tier(ctx context.Context) string {
	s.tierMu.Lock()
	defer s.tierMu.Unlock()

	if s.tierName != "" {
		return s.tierName
	}

	stats, err := s.driver.Stats(ctx)
	if err != nil {
		return "unknown"
	}
	s.tierName = stats.Tier
	return s.tierName
}
