// Package mcp exposes a running plant simulation over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/plantsim/internal/constants"
	"github.com/nvandessel/plantsim/internal/ratelimit"
	"github.com/nvandessel/plantsim/internal/signals"
	"github.com/nvandessel/plantsim/internal/simulation"
	"github.com/nvandessel/plantsim/internal/store"
)

// Transports accepted by Run.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// shutdownTimeout bounds how long the HTTP transport waits for open sessions.
const shutdownTimeout = 5 * time.Second

// Plant is the simulation surface the server needs. *simulation.Engine satisfies it.
type Plant interface {
	Snapshot() *signals.Snapshot
	Signals() []signals.Descriptor
	TickPeriod() time.Duration
	Write(ctx context.Context, name string, value float64) (simulation.WriteResult, error)
}

// Server wraps the MCP SDK server around a plant.
type Server struct {
	server       *sdk.Server
	plant        Plant
	history      store.HistoryStore
	runID        string
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "plantsim")
	Version string // Server version
	Plant   Plant

	// History backs plant_history. Nil disables the tool's queries.
	History store.HistoryStore
	// RunID is the default run for history queries.
	RunID string

	// WriteRate and WriteBurst bound plant_write calls per signal.
	// Zero values use the defaults.
	WriteRate  float64
	WriteBurst int

	// AuditDir holds audit.jsonl. Empty disables auditing.
	AuditDir string

	Logger *slog.Logger
}

// NewServer creates an MCP server with the plant tools and resources registered.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.Plant == nil {
		return nil, fmt.Errorf("plant is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	writeRate := cfg.WriteRate
	if writeRate <= 0 {
		writeRate = constants.DefaultWriteRate
	}
	writeBurst := cfg.WriteBurst
	if writeBurst <= 0 {
		writeBurst = constants.DefaultWriteBurst
	}

	var audit *AuditLogger
	if cfg.AuditDir != "" {
		var err error
		audit, err = NewAuditLogger(cfg.AuditDir)
		if err != nil {
			logger.Warn("audit log disabled", "error", err)
		}
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		plant:        cfg.Plant,
		history:      cfg.History,
		runID:        cfg.RunID,
		toolLimiters: ratelimit.NewToolLimiters(writeRate, writeBurst),
		auditLogger:  audit,
		logger:       logger,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves until ctx is cancelled or the transport fails. transport is
// "stdio" or "http"; addr and path are used by the http transport only.
func (s *Server) Run(ctx context.Context, transport, addr, path string) error {
	switch transport {
	case "", TransportStdio:
		s.logger.Info("mcp server listening", "transport", TransportStdio)
		if err := s.server.Run(ctx, &sdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp stdio: %w", err)
		}
		return nil
	case TransportHTTP:
		return s.serveHTTP(ctx, addr, path)
	default:
		return fmt.Errorf("unknown mcp transport: %s", transport)
	}
}

// Handler returns the streamable HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return sdk.NewStreamableHTTPHandler(func(*http.Request) *sdk.Server {
		return s.server
	}, nil)
}

func (s *Server) serveHTTP(ctx context.Context, addr, path string) error {
	if addr == "" {
		addr = constants.DefaultMCPAddr
	}
	if path == "" {
		path = constants.DefaultMCPPath
	}

	mux := http.NewServeMux()
	mux.Handle(path, s.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening", "transport", TransportHTTP, "addr", addr, "path", path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("mcp http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mcp http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mcp http: %w", err)
	}
	return nil
}

// Close releases the audit log. The plant and history store belong to the caller.
func (s *Server) Close() error {
	if err := s.auditLogger.Close(); err != nil {
		return fmt.Errorf("closing audit log: %w", err)
	}
	return nil
}
