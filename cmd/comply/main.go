// Package main implements the comply CLI for local operations against the
// compliance assistant: asking questions, ingesting documents, inspecting
// memory and the profile, and running evaluations.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/config"
	"github.com/fyrsmithlabs/complyd/internal/logging"
	"github.com/fyrsmithlabs/complyd/internal/services"
	"github.com/fyrsmithlabs/complyd/internal/workflow"
)

var (
	// configPath overrides the default config file location
	configPath string
	// version information
	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "comply",
	Short: "Compliance assistant CLI",
	Long: `comply answers compliance and security questions from your indexed
documents and remembers what it learned about you between sessions.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(evalCmd)
}

// app holds the services one command needs.
type app struct {
	cfg    *config.Config
	reg    services.Registry
	logger *logging.Logger
}

// loadConfig reads the config file named by --config, or the default one.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newApp builds every service. Logs go to stderr so stdout carries only
// command output.
func newApp(cfg *config.Config, opts services.Options) (*app, error) {
	lc, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}
	lc.Output.Stderr = true
	logger, err := logging.NewLogger(lc, nil)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	reg, err := services.Build(cfg, logger.Underlying(), opts)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("building services: %w", err)
	}
	return &app{cfg: cfg, reg: reg, logger: logger}, nil
}

func (a *app) close() {
	if err := a.reg.Close(); err != nil {
		a.logger.Underlying().Warn("closing services", zap.Error(err))
	}
	_ = a.logger.Sync()
	_ = a.logger.Close()
}

// setup loads config and builds the app. The approver reads decisions
// from in; pass a *bufio.Reader to share it with other prompts.
func setup(cmd *cobra.Command, in io.Reader) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, services.Options{
		Approver: workflow.NewStdinApprover(in, cmd.OutOrStdout()),
	})
}
