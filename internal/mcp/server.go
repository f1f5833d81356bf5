// Package mcp serves the vector store tools over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nickcecere/qdrant-mcp/internal/app"
	"github.com/nickcecere/qdrant-mcp/internal/config"
	"github.com/nickcecere/qdrant-mcp/internal/metrics"
)

// ServerName is the implementation name reported to clients.
const ServerName = "qdrant-mcp"

// ServerVersion is the implementation version reported to clients.
var ServerVersion = "dev"

// Paths served by the HTTP transports.
const (
	SSEPath        = "/sse"
	StreamablePath = "/mcp"
	HealthPath     = "/healthz"
	MetricsPath    = "/metrics"
)

const shutdownTimeout = 10 * time.Second

// Server is the MCP server for qdrant-mcp.
type Server struct {
	app    *app.App
	cfg    *config.Config
	server *mcp.Server
	tools  *Tools
}

// NewServer builds the application from cfg and registers the tools.
func NewServer(ctx context.Context, cfg *config.Config, opts ...app.Option) (*Server, error) {
	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	tools, err := NewTools(a.Connector, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)
	tools.Register(server)

	metrics.Register()

	return &Server{app: a, cfg: cfg, server: server, tools: tools}, nil
}

// App returns the components behind the tools.
func (s *Server) App() *app.App {
	return s.app
}

// Connect serves one session over t, for in-process clients.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// Close releases the store and the cache.
func (s *Server) Close() error {
	return s.app.Close()
}

// Run serves the configured transport until ctx is cancelled or, for stdio,
// the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	switch s.cfg.Server.Transport {
	case "", "stdio":
		log.Info("MCP server starting", "transport", "stdio")
		err := s.server.Run(ctx, &mcp.StdioTransport{})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case "sse", "streamable-http":
		ln, err := net.Listen("tcp", s.cfg.Server.Addr())
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Addr(), err)
		}
		return s.Serve(ctx, ln)
	default:
		return fmt.Errorf("%w: unknown transport %q", config.ErrInvalid, s.cfg.Server.Transport)
	}
}

// Serve serves the HTTP transport on ln and shuts down gracefully when ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("MCP server starting", "transport", s.cfg.Server.Transport, "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Handler returns the HTTP router for the configured transport, with health
// and metrics endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle(MetricsPath, promhttp.Handler())

	getServer := func(*http.Request) *mcp.Server { return s.server }
	switch s.cfg.Server.Transport {
	case "sse":
		r.Handle(SSEPath, mcp.NewSSEHandler(getServer, nil))
	default:
		r.Handle(StreamablePath, mcp.NewStreamableHTTPHandler(getServer, nil))
	}
	return r
}
