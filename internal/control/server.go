// Package control exposes a running session over HTTP (status, step, stop
// and Prometheus metrics) and over the gRPC health protocol.
package control

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const shutdownGrace = 5 * time.Second

// Server is the HTTP control API.
type Server struct {
	echo    *echo.Echo
	handler *Handler
	logger  *slog.Logger
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithStepper enables POST /api/step.
func WithStepper(st Stepper) Option {
	return func(s *Server) { s.handler.stepper = st }
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.echo.GET("/metrics", echo.WrapHandler(h)) }
}

// WithJournal adds journal counters to the status response.
func WithJournal(j JournalStats) Option {
	return func(s *Server) { s.handler.journal = j }
}

// WithBroker makes /api/ready depend on the MQTT connection.
func WithBroker(b Broker) Option {
	return func(s *Server) { s.handler.broker = b }
}

func WithVersion(v string) Option {
	return func(s *Server) { s.handler.version = v }
}

func NewServer(seq Sequencer, pins PinReader, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))

	s := &Server{
		echo:    e,
		handler: NewHandler(seq, pins),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api")
	api.GET("/health", s.handler.HandleHealth)
	api.GET("/ready", s.handler.HandleReady)
	api.GET("/status", s.handler.HandleStatus)
	api.POST("/step", s.handler.HandleStep)
	api.POST("/stop", s.handler.HandleStop)
}

// Echo returns the underlying router, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Serve answers requests on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.echo.Listener = lis
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", "addr", lis.Addr().String())
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.echo.Shutdown(shCtx); err != nil {
		return err
	}
	return nil
}
