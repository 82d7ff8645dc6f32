// Complyd is the compliance assistant daemon.
//
// By default it serves the HTTP API. The mcp subcommand serves the MCP
// tools over stdio instead; logs then go to stderr.
//
// Usage:
//
//	# Start the HTTP server
//	complyd
//
//	# Use an explicit config file
//	complyd -config ./complyd.yaml
//
//	# Serve MCP over stdio
//	complyd mcp
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/config"
	"github.com/fyrsmithlabs/complyd/internal/http"
	"github.com/fyrsmithlabs/complyd/internal/logging"
	"github.com/fyrsmithlabs/complyd/internal/mcp"
	"github.com/fyrsmithlabs/complyd/internal/services"
	"github.com/fyrsmithlabs/complyd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type mode int

const (
	modeHTTP mode = iota
	modeStdio
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()
	args := flag.Args()

	m := modeHTTP
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		case "mcp":
			m = modeStdio
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  complyd           Start the HTTP server\n")
			fmt.Fprintf(os.Stderr, "  complyd mcp       Serve MCP tools over stdio\n")
			fmt.Fprintf(os.Stderr, "  complyd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, m, *configPath); err != nil {
		log.Fatalf("complyd: %v", err)
	}
}

func printVersion() {
	fmt.Printf("complyd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires every service from config and serves until ctx is canceled.
func run(ctx context.Context, m mode, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	logger, err := initLogger(cfg, m, tel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
		_ = logger.Close()
	}()
	zlog := logger.Underlying()

	for _, reason := range tel.Degraded() {
		zlog.Warn("telemetry degraded", zap.String("reason", reason))
	}

	reg, err := services.Build(cfg, zlog, services.Options{})
	if err != nil {
		return fmt.Errorf("building services: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			zlog.Warn("closing services", zap.Error(err))
		}
	}()

	zlog.Info("complyd starting",
		zap.String("version", version),
		zap.String("generator", cfg.Generator.Provider),
		zap.String("memory_backend", cfg.Memory.Backend))

	if m == modeStdio {
		return serveStdio(ctx, reg, zlog)
	}
	return serveHTTP(ctx, cfg, reg, zlog)
}

func initLogger(cfg *config.Config, m mode, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lc, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if m == modeStdio {
		lc.Output.Stderr = true
	}
	return logging.NewLogger(lc, tel.LoggerProvider())
}

func serveStdio(ctx context.Context, reg services.Registry, logger *zap.Logger) error {
	srv, err := mcp.NewServer(&mcp.Config{Name: "complyd", Version: version, Logger: logger}, reg.Engine(), reg.Memory())
	if err != nil {
		return err
	}
	logger.Info("serving mcp over stdio")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func serveHTTP(ctx context.Context, cfg *config.Config, reg services.Registry, logger *zap.Logger) error {
	srv, err := http.NewServer(reg.Engine(), reg.Memory(), reg.Profile(), logger, &http.Config{Port: cfg.Server.Port})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	timeout := cfg.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("complyd stopped")
	return nil
}
