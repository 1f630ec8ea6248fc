// Package startup wires the client's components together for main.
package startup

import (
	"fmt"
	"os"

	"github.com/nhahub/NHA-065/internal/api"
	"github.com/nhahub/NHA-065/internal/config"
	"github.com/nhahub/NHA-065/internal/download"
	"github.com/nhahub/NHA-065/internal/exchange"
	"github.com/nhahub/NHA-065/internal/logging"
	"github.com/nhahub/NHA-065/internal/store"
)

// Components holds all initialized application components.
type Components struct {
	Logger     *logging.Logger
	Store      *store.Store
	Client     *api.Client
	Saver      *download.Saver
	Controller *exchange.Controller
}

// CreateLogger creates the logger the configuration asks for: a file logger
// in TUI mode, stderr in plain mode.
func CreateLogger(cfg *config.Config) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.LogLevel)
	if cfg.LogFile == "" {
		return logging.New(level, os.Stderr), nil
	}
	return logging.NewFile(level, cfg.LogFile)
}

// InitializeAll creates and wires all application components. The returned
// Components must be released with Shutdown.
//
// Token precedence: a token given via flag or environment is persisted and
// used; otherwise the stored token is used; with neither, calls go out
// anonymously.
func InitializeAll(cfg *config.Config, logger *logging.Logger) (*Components, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	if cfg.Token != "" {
		if err := st.SetToken(cfg.Token); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("persist token: %w", err)
		}
		logger.Debug("persisted auth token from flag/environment")
	}

	client := api.NewClient(cfg.ServerURL, st.Token)
	logger.Debug("created API client: server=%s, authenticated=%t", cfg.ServerURL, st.Token() != "")

	saver := download.NewSaver(cfg.OutputDir, client)

	initial := cfg.InitialSettings()
	if cfg.ReferenceImage != "" {
		uri, err := download.EncodeFileDataURI(cfg.ReferenceImage)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("load reference image: %w", err)
		}
		initial.UseIPAdapter = true
		initial.ReferenceImage = uri
		logger.Debug("reference conditioning enabled from %s", cfg.ReferenceImage)
	}

	controller := exchange.NewController(
		client,
		logger.With("exchange"),
		exchange.WithSettings(initial),
	)
	controller.SetWebSearch(cfg.WebSearch)

	// Seed the sidebar from the local mirror; the first remote load
	// replaces it.
	if cached, err := st.CachedSummaries(); err == nil && len(cached) > 0 {
		controller.SeedHistory(cached)
		logger.Debug("seeded %d cached conversation summaries", len(cached))
	}

	return &Components{
		Logger:     logger,
		Store:      st,
		Client:     client,
		Saver:      saver,
		Controller: controller,
	}, nil
}

// Shutdown mirrors the sidebar back to the local store and releases
// resources.
func (c *Components) Shutdown() {
	if summaries := c.Controller.HistorySummaries(); len(summaries) > 0 {
		if err := c.Store.SaveSummaries(summaries); err != nil {
			c.Logger.Warn("mirror summaries: %v", err)
		}
	}
	if err := c.Store.Close(); err != nil {
		c.Logger.Warn("close store: %v", err)
	}
	_ = c.Logger.Close()
}
