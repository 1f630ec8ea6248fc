package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhahub/NHA-065/internal/config"
	"github.com/nhahub/NHA-065/internal/repl"
	"github.com/nhahub/NHA-065/internal/startup"
	"github.com/nhahub/NHA-065/internal/ui"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse configuration from CLI flags
	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if errors.Is(err, config.ErrShowHelp) || errors.Is(err, config.ErrShowVersion) {
		// Help or version was shown, exit successfully
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Create logger early
	logger, err := startup.CreateLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger.Info("Starting glyph %s...", config.Version)
	logger.Debug("Configuration: server=%s, steps=%d, width=%d, height=%d, plain=%t",
		cfg.ServerURL, cfg.Steps, cfg.Width, cfg.Height, cfg.Plain)
	logger.Debug("Log level: %s", cfg.LogLevel)

	// Initialize all components
	logger.Debug("Initializing components...")
	components, err := startup.InitializeAll(cfg, logger)
	if err != nil {
		logger.Error("Initialization failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer components.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Plain {
		r := repl.New(components.Controller, components.Client, components.Saver, logger, os.Stdin, os.Stdout)
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("REPL error: %v", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	model := ui.NewModel(components.Controller, components.Client, components.Saver, logger)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Interface error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}
