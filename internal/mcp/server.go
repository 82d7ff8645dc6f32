package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/memory"
	"github.com/fyrsmithlabs/complyd/internal/profile"
	"github.com/fyrsmithlabs/complyd/internal/workflow"
)

// Runner answers queries.
type Runner interface {
	Run(ctx context.Context, query string, opts workflow.RunOptions) (*workflow.Result, error)
}

// Server serves complyd tools over MCP.
type Server struct {
	mcp     *mcp.Server
	runner  Runner
	memory  *memory.Coordinator
	profile *profile.Store
	metrics *Metrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the implementation name reported to clients (default: "complyd").
	Name string

	// Version is the implementation version (default: "1.0.0").
	Version string

	Logger *zap.Logger
}

// DefaultConfig returns the default server identity.
func DefaultConfig() *Config {
	return &Config{
		Name:    "complyd",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server and registers its tools.
func NewServer(cfg *Config, runner Runner, coord *memory.Coordinator) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Name == "" {
		cfg.Name = "complyd"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if coord == nil {
		return nil, fmt.Errorf("memory coordinator is required")
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		runner:  runner,
		memory:  coord,
		profile: coord.Profile(),
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves one session over t. It is used to embed the server
// behind transports other than stdio.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
