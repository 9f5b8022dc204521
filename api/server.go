package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"iot-gateway/common"
	"iot-gateway/relay"
	"iot-gateway/router"
)

const shutdownTimeout = 10 * time.Second

// Broker is the outbound side of the broker session.
type Broker interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// Records is the storage read API.
type Records interface {
	Recent(ctx context.Context, limit int) ([]common.Record, error)
	HealthCheck(ctx context.Context) error
}

// Serial runs debug exchanges with the attached peripheral.
type Serial interface {
	Exchange(cmd common.SerialCommand) (common.SerialResponse, error)
	Available() bool
}

// Config holds the listener settings and outbound addressing.
type Config struct {
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PublishTopic string
	Topics       relay.Topics
}

// Deps are the collaborators the handlers call. Stats may be nil.
type Deps struct {
	Broker  Broker
	Records Records
	Serial  Serial
	Stats   func() router.Stats
	Logger  *logrus.Entry
}

// Server is the gateway's JSON API. Callers are assumed pre-authorized.
type Server struct {
	cfg     Config
	broker  Broker
	records Records
	serial  Serial
	stats   func() router.Stats
	logger  *logrus.Entry
	server  *http.Server
}

// New creates a server. It is not listening until Start.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if deps.Records == nil {
		return nil, fmt.Errorf("records are required")
	}
	if cfg.Topics.Namespace == "" {
		cfg.Topics = relay.NewTopics(relay.DefaultNamespace)
	}

	return &Server{
		cfg:     cfg,
		broker:  deps.Broker,
		records: deps.Records,
		serial:  deps.Serial,
		stats:   deps.Stats,
		logger:  deps.Logger,
	}, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/data", s.handleData)
		r.Post("/publish", s.handlePublish)
		r.Post("/debug/serial", s.handleDebugSerial)
		r.Post("/relay/{deviceId}/control", s.handleRelayControl)
	})

	return r
}

// Start listens in the background until Close.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	go func() {
		s.logger.WithField("address", s.cfg.Listen).Info("HTTP API listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP API server error")
		}
	}()

	return nil
}

// Close waits for in-flight requests, then stops the listener.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP API: %w", err)
	}
	return nil
}
