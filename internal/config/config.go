// Package config provides configuration management for the glyph client.
//
// Configuration is parsed from CLI flags with sensible defaults. The Config
// struct is passed to components during initialization.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/nhahub/NHA-065/internal/settings"
)

const (
	// Version is the glyph client version.
	Version = "0.1.0"

	// EnvToken names the environment variable consulted for the auth token
	// when the -token flag is not given.
	EnvToken = "GLYPH_TOKEN"

	defaultServerURL = "http://localhost:5000"
	defaultLogLevel  = "info"
	dataDirName      = "glyph"
)

var (
	// ErrInvalidServerURL is returned when the server URL cannot be parsed.
	ErrInvalidServerURL = errors.New("server must be a valid absolute http(s) URL")
	// ErrInvalidLogLevel is returned when the log level is not recognized.
	ErrInvalidLogLevel = errors.New("log-level must be one of: debug, info, warn, error")
	// ErrShowHelp is returned when --help is requested.
	ErrShowHelp = errors.New("help requested")
	// ErrShowVersion is returned when --version is requested.
	ErrShowVersion = errors.New("version requested")
)

// Config holds all configuration values for the glyph client.
type Config struct {
	// ServerURL is the backend base URL.
	ServerURL string

	// Token is an auth token supplied on the command line or environment.
	// When set it replaces the persisted token. Empty means "use whatever
	// the local store has", which may be nothing (anonymous mode).
	Token string

	// DataDir holds the local store, logs, and default output directory.
	DataDir string
	// DBPath is the sqlite local store location.
	DBPath string
	// OutputDir is where downloaded images are written.
	OutputDir string

	// Initial generation settings.
	Steps  int
	Width  int
	Height int

	// ReferenceImage is the path of a local image to condition generation on.
	// The file is read and encoded at startup; empty disables conditioning.
	ReferenceImage string

	// Plain selects the line-oriented REPL instead of the TUI.
	Plain bool
	// WebSearch enables web-search grounding on chat calls.
	WebSearch bool

	// Logging configuration. An empty LogFile means DataDir/glyph.log in TUI
	// mode and stderr in plain mode.
	LogLevel string
	LogFile  string

	showHelp    bool
	showVersion bool
}

// Parse parses CLI flags into a Config. It returns the parsed Config or an
// error if validation fails. ErrShowHelp and ErrShowVersion report that the
// corresponding output was printed.
func Parse(args []string, output io.Writer) (*Config, error) {
	c := &Config{}

	defaultDataDir, err := defaultDataDir()
	if err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("glyph", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&c.ServerURL, "server", defaultServerURL, "Backend base URL")
	fs.StringVar(&c.Token, "token", os.Getenv(EnvToken), "Auth token (persisted to the local store)")
	fs.StringVar(&c.DataDir, "data-dir", defaultDataDir, "Directory for local state")
	fs.StringVar(&c.OutputDir, "output-dir", "", "Directory for downloaded images (default: <data-dir>/outputs)")

	fs.IntVar(&c.Steps, "steps", settings.DefaultSteps, "Number of inference steps")
	fs.IntVar(&c.Width, "width", settings.DefaultWidth, "Image width in pixels")
	fs.IntVar(&c.Height, "height", settings.DefaultHeight, "Image height in pixels")
	fs.StringVar(&c.ReferenceImage, "reference-image", "", "Path to a local image to condition generation on")

	fs.BoolVar(&c.Plain, "plain", false, "Use the line-oriented REPL instead of the TUI")
	fs.BoolVar(&c.WebSearch, "web-search", false, "Ground chat replies with web search")

	fs.StringVar(&c.LogLevel, "log-level", defaultLogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFile, "log-file", "", "Log file path (default: <data-dir>/glyph.log)")

	fs.BoolVar(&c.showVersion, "version", false, "Show version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, ErrShowHelp
		}
		return nil, err
	}

	if c.showVersion {
		fmt.Fprintf(output, "glyph %s\n", Version)
		return nil, ErrShowVersion
	}

	c.DBPath = filepath.Join(c.DataDir, "glyph.db")
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.DataDir, "outputs")
	}
	if c.LogFile == "" && !c.Plain {
		c.LogFile = filepath.Join(c.DataDir, "glyph.log")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks all configuration values, returning the first violation.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidServerURL, c.ServerURL)
	}
	if c.Steps < settings.MinSteps || c.Steps > settings.MaxSteps {
		return settings.ErrInvalidSteps
	}
	if err := (settings.Settings{
		Steps:          c.Steps,
		Width:          c.Width,
		Height:         c.Height,
		IPAdapterScale: settings.DefaultIPAdapterScale,
	}).Validate(); err != nil {
		return err
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

// InitialSettings builds the generation settings the session starts with.
func (c *Config) InitialSettings() settings.Settings {
	s := settings.Default()
	s.Steps = c.Steps
	s.Width = c.Width
	s.Height = c.Height
	return s
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}
