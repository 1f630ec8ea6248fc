package startup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nhahub/NHA-065/internal/config"
	"github.com/nhahub/NHA-065/internal/history"
	"github.com/nhahub/NHA-065/internal/logging"
	"github.com/nhahub/NHA-065/internal/settings"
	"github.com/nhahub/NHA-065/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dataDir := t.TempDir()
	return &config.Config{
		ServerURL: "http://localhost:5000",
		DataDir:   dataDir,
		DBPath:    filepath.Join(dataDir, "glyph.db"),
		OutputDir: filepath.Join(dataDir, "outputs"),
		Steps:     settings.DefaultSteps,
		Width:     settings.DefaultWidth,
		Height:    settings.DefaultHeight,
		LogLevel:  "error",
	}
}

func TestCreateLoggerStderr(t *testing.T) {
	cfg := testConfig(t)

	logger, err := CreateLogger(cfg)
	if err != nil {
		t.Fatalf("CreateLogger failed: %v", err)
	}
	if logger.GetLevel() != logging.LevelError {
		t.Errorf("Expected error level, got %v", logger.GetLevel())
	}
}

func TestCreateLoggerFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogFile = filepath.Join(cfg.DataDir, "glyph.log")

	logger, err := CreateLogger(cfg)
	if err != nil {
		t.Fatalf("CreateLogger failed: %v", err)
	}
	defer logger.Close()
}

func TestInitializeAll(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := CreateLogger(cfg)

	components, err := InitializeAll(cfg, logger)
	if err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}
	defer components.Shutdown()

	if components.Store == nil || components.Client == nil || components.Saver == nil || components.Controller == nil {
		t.Fatal("All components should be initialized")
	}
	if components.Client.BaseURL() != cfg.ServerURL {
		t.Errorf("Client base URL wrong: %s", components.Client.BaseURL())
	}
	if got := components.Controller.Settings().Steps; got != cfg.Steps {
		t.Errorf("Controller should start with configured settings, got %d steps", got)
	}
}

func TestInitializeAllLoadsReferenceImage(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReferenceImage = filepath.Join(cfg.DataDir, "ref.png")
	if err := os.WriteFile(cfg.ReferenceImage, []byte{0x89, 0x50, 0x4E, 0x47}, 0o644); err != nil {
		t.Fatalf("Writing fixture failed: %v", err)
	}
	logger, _ := CreateLogger(cfg)

	components, err := InitializeAll(cfg, logger)
	if err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}
	defer components.Shutdown()

	s := components.Controller.Settings()
	if !s.UseIPAdapter {
		t.Error("Reference conditioning should be enabled by the flag")
	}
	if !strings.HasPrefix(s.ReferenceImage, "data:image/png;base64,") {
		t.Errorf("Reference image should be encoded as a data URI, got %q", s.ReferenceImage)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Loaded settings should validate: %v", err)
	}
}

func TestInitializeAllRejectsMissingReferenceImage(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReferenceImage = filepath.Join(cfg.DataDir, "absent.png")
	logger, _ := CreateLogger(cfg)

	if _, err := InitializeAll(cfg, logger); err == nil {
		t.Fatal("A missing reference image should fail initialization")
	}
}

func TestInitializeAllPersistsToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Token = "tok-from-flag"
	logger, _ := CreateLogger(cfg)

	components, err := InitializeAll(cfg, logger)
	if err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}
	defer components.Shutdown()

	if got := components.Store.Token(); got != "tok-from-flag" {
		t.Errorf("Token should be persisted, got %q", got)
	}
}

func TestInitializeAllSeedsCachedHistory(t *testing.T) {
	cfg := testConfig(t)

	// Pre-populate the local mirror as a prior run would have.
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("Open store failed: %v", err)
	}
	if err := st.SaveSummaries([]history.Summary{
		{ConversationID: "conv_1_a", Preview: "a cat logo", LastUpdated: time.Now(), MessageCount: 4},
	}); err != nil {
		t.Fatalf("SaveSummaries failed: %v", err)
	}
	st.Close()

	logger, _ := CreateLogger(cfg)
	components, err := InitializeAll(cfg, logger)
	if err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}
	defer components.Shutdown()

	summaries := components.Controller.HistorySummaries()
	if len(summaries) != 1 || summaries[0].ConversationID != "conv_1_a" {
		t.Errorf("Sidebar should be seeded from the mirror: %+v", summaries)
	}
}

func TestShutdownMirrorsSummaries(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := CreateLogger(cfg)

	components, err := InitializeAll(cfg, logger)
	if err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}

	components.Controller.SeedHistory([]history.Summary{
		{ConversationID: "conv_2_b", Preview: "a fox logo", LastUpdated: time.Now(), MessageCount: 2},
	})
	components.Shutdown()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("Reopen store failed: %v", err)
	}
	defer st.Close()
	cached, err := st.CachedSummaries()
	if err != nil {
		t.Fatalf("CachedSummaries failed: %v", err)
	}
	if len(cached) != 1 || cached[0].ConversationID != "conv_2_b" {
		t.Errorf("Shutdown should mirror the sidebar: %+v", cached)
	}
}
