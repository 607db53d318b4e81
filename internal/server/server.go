// Package server exposes the inventory data-access core over HTTP.
//
// Every route runs behind request-ID, logging and recovery middleware. Bearer
// tokens are verified once per request and the resulting claim is checked by
// the access gate before a protected handler touches the database.
//
//	srv, err := server.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	invdb "github.com/yggai/ygggo_invdb"
	"github.com/yggai/ygggo_invdb/access"
)

// LogCategory is attached to HTTP log events.
const LogCategory = "http"

// Deps holds what the server needs.
type Deps struct {
	Config  Config
	Manager *invdb.Manager
	Gate    *access.Gate
	Logger  *slog.Logger
	// Registry receives the server's collectors. A fresh registry is used when nil.
	Registry *prometheus.Registry
	// Querier serves the route handlers. An Executor over Manager is used when nil.
	Querier invdb.Querier
	// TracerProvider traces each request. The global provider is used when nil.
	TracerProvider trace.TracerProvider
}

// Server is the HTTP surface. It is safe for concurrent use.
type Server struct {
	cfg      Config
	secret   string
	m        *invdb.Manager
	e        invdb.Querier
	gate     *access.Gate
	logger   *slog.Logger
	registry *prometheus.Registry
	tracer   trace.TracerProvider

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New builds a server. The manager and gate are required.
func New(deps Deps) (*Server, error) {
	if deps.Manager == nil {
		return nil, errors.New("manager is required")
	}
	if deps.Gate == nil {
		return nil, errors.New("access gate is required")
	}
	if deps.Config.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("registering go collector: %w", err)
		}
	}
	if err := reg.Register(newManagerCollector(deps.Manager)); err != nil {
		return nil, fmt.Errorf("registering manager collector: %w", err)
	}

	var q invdb.Querier = invdb.NewExecutor(deps.Manager)
	if deps.Querier != nil {
		q = deps.Querier
	}

	return &Server{
		cfg:      deps.Config,
		secret:   deps.Config.JWTSecret,
		m:        deps.Manager,
		e:        q,
		gate:     deps.Gate,
		logger:   logger,
		registry: reg,
		tracer:   deps.TracerProvider,
	}, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.gate.Guard(access.NameRoot, access.ModeExact)).Post("/system/reconnect", s.handleReconnect)
		r.With(s.gate.Guard(access.NameGuest, access.ModeAtLeast)).Get("/access_levels", s.handleAccessLevels)

		r.Route("/locations", func(r chi.Router) {
			r.With(s.gate.Guard(access.NameGuest, access.ModeAtLeast)).Get("/", s.handleListLocations)
			r.With(s.gate.Guard(access.NameGuest, access.ModeAtLeast)).Get("/analytics/total", s.handleLocationTotal)
			r.Group(func(r chi.Router) {
				r.Use(s.gate.Guard(access.NameAdmin, access.ModeAtLeast))
				r.Post("/", s.handleCreateLocation)
				r.Put("/{id}", s.handleUpdateLocation)
				r.Delete("/{id}", s.handleDeleteLocation)
			})
		})
	})

	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
		otelhttp.WithFilter(func(req *http.Request) bool { return req.URL.Path != "/metrics" }),
	}
	if s.tracer != nil {
		opts = append(opts, otelhttp.WithTracerProvider(s.tracer))
	}
	return otelhttp.NewHandler(r, "ygggo_invdb", opts...)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("server already started")
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.Timeouts.Read,
		ReadHeaderTimeout: s.cfg.Timeouts.Read,
		WriteTimeout:      s.cfg.Timeouts.Write,
		IdleTimeout:       s.cfg.Timeouts.Idle,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := s.server
	go func() {
		s.logger.Info("HTTP server listening", "category", LogCategory, "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "category", LogCategory, "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the listener down, waiting up to the shutdown timeout for
// in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	timeout := s.cfg.Timeouts.Shutdown
	if timeout <= 0 {
		timeout = DefaultConfig().Timeouts.Shutdown
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down", "category", LogCategory)
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}
