package config

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nhahub/NHA-065/internal/settings"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var buf bytes.Buffer
	return Parse(args, &buf)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(t)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.ServerURL != defaultServerURL {
		t.Errorf("Expected default server URL, got %q", cfg.ServerURL)
	}
	if cfg.Steps != settings.DefaultSteps {
		t.Errorf("Expected %d steps, got %d", settings.DefaultSteps, cfg.Steps)
	}
	if cfg.Width != settings.DefaultWidth || cfg.Height != settings.DefaultHeight {
		t.Errorf("Unexpected dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Plain {
		t.Error("Plain mode should default off")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected info log level, got %q", cfg.LogLevel)
	}
}

func TestParseDerivedPaths(t *testing.T) {
	dataDir := t.TempDir()
	cfg, err := parse(t, "-data-dir", dataDir)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.DBPath != filepath.Join(dataDir, "glyph.db") {
		t.Errorf("Unexpected DB path: %s", cfg.DBPath)
	}
	if cfg.OutputDir != filepath.Join(dataDir, "outputs") {
		t.Errorf("Unexpected output dir: %s", cfg.OutputDir)
	}
	// TUI mode logs to a file by default.
	if cfg.LogFile != filepath.Join(dataDir, "glyph.log") {
		t.Errorf("Unexpected log file: %s", cfg.LogFile)
	}
}

func TestParsePlainModeLogsToStderr(t *testing.T) {
	cfg, err := parse(t, "-plain")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !cfg.Plain {
		t.Error("Plain flag not applied")
	}
	if cfg.LogFile != "" {
		t.Errorf("Plain mode should default to stderr logging, got %q", cfg.LogFile)
	}
}

func TestParseExplicitValues(t *testing.T) {
	cfg, err := parse(t,
		"-server", "https://api.example.com",
		"-steps", "8",
		"-width", "512",
		"-height", "768",
		"-log-level", "debug",
		"-web-search",
		"-reference-image", "ref.png",
	)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.ServerURL != "https://api.example.com" {
		t.Errorf("Unexpected server URL: %s", cfg.ServerURL)
	}
	if cfg.Steps != 8 || cfg.Width != 512 || cfg.Height != 768 {
		t.Errorf("Unexpected generation values: %d %d %d", cfg.Steps, cfg.Width, cfg.Height)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Unexpected log level: %s", cfg.LogLevel)
	}
	if !cfg.WebSearch {
		t.Error("Web search flag not applied")
	}
	if cfg.ReferenceImage != "ref.png" {
		t.Errorf("Unexpected reference image path: %q", cfg.ReferenceImage)
	}
}

func TestParseHelp(t *testing.T) {
	_, err := parse(t, "-h")
	if !errors.Is(err, ErrShowHelp) {
		t.Errorf("Expected ErrShowHelp, got %v", err)
	}
}

func TestParseVersion(t *testing.T) {
	var buf bytes.Buffer
	_, err := Parse([]string{"-version"}, &buf)
	if !errors.Is(err, ErrShowVersion) {
		t.Errorf("Expected ErrShowVersion, got %v", err)
	}
	if !strings.Contains(buf.String(), Version) {
		t.Errorf("Version output missing version string: %q", buf.String())
	}
}

func TestValidateServerURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://localhost:5000", false},
		{"https://api.example.com", false},
		{"ftp://example.com", true},
		{"not a url", true},
		{"/relative/path", true},
		{"", true},
	}
	for _, tt := range tests {
		_, err := parse(t, "-server", tt.url)
		gotErr := errors.Is(err, ErrInvalidServerURL)
		if gotErr != tt.wantErr {
			t.Errorf("Parse(-server %q) error = %v, wantErr %t", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateSteps(t *testing.T) {
	if _, err := parse(t, "-steps", "0"); !errors.Is(err, settings.ErrInvalidSteps) {
		t.Errorf("Expected ErrInvalidSteps, got %v", err)
	}
	if _, err := parse(t, "-steps", "101"); !errors.Is(err, settings.ErrInvalidSteps) {
		t.Errorf("Expected ErrInvalidSteps, got %v", err)
	}
}

func TestValidateDimensions(t *testing.T) {
	if _, err := parse(t, "-width", "100"); !errors.Is(err, settings.ErrInvalidWidth) {
		t.Errorf("Expected ErrInvalidWidth, got %v", err)
	}
	if _, err := parse(t, "-height", "9999"); !errors.Is(err, settings.ErrInvalidHeight) {
		t.Errorf("Expected ErrInvalidHeight, got %v", err)
	}
}

func TestValidateLogLevel(t *testing.T) {
	if _, err := parse(t, "-log-level", "verbose"); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("Expected ErrInvalidLogLevel, got %v", err)
	}
}

func TestInitialSettings(t *testing.T) {
	cfg, err := parse(t, "-steps", "8", "-width", "512", "-height", "512")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	s := cfg.InitialSettings()
	if s.Steps != 8 || s.Width != 512 || s.Height != 512 {
		t.Errorf("Initial settings should carry flag values: %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Initial settings should validate: %v", err)
	}
}
