package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all vista configuration.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Server  ServerConfig  `yaml:"server"`
	Desktop DesktopConfig `yaml:"desktop"`
	Logging LogConfig     `yaml:"logging"`
}

// AppConfig holds session-level defaults.
type AppConfig struct {
	// Port is the default server port for new sessions.
	Port int `envconfig:"VISTA_DEFAULT_APP_PORT" yaml:"default_port"`
	// DesktopApp launches the desktop App instead of a browser tab by default.
	DesktopApp bool `envconfig:"VISTA_DESKTOP_APP" yaml:"desktop_app"`
	// AutoShow re-renders the App after every state update in notebooks.
	AutoShow bool `envconfig:"VISTA_AUTO_SHOW" yaml:"auto_show"`
	// Height is the default height, in pixels, of notebook App cells.
	Height int `envconfig:"VISTA_APP_HEIGHT" yaml:"height"`
	// DoNotTrack is passed opaquely to the server process.
	DoNotTrack bool `envconfig:"VISTA_DO_NOT_TRACK" yaml:"do_not_track"`
}

// ServerConfig holds server process launcher configuration.
type ServerConfig struct {
	Command        string        `envconfig:"VISTA_SERVER_COMMAND" yaml:"command"`
	StartupTimeout time.Duration `envconfig:"VISTA_SERVER_STARTUP_TIMEOUT" yaml:"startup_timeout"`
}

// DesktopConfig holds desktop App launcher configuration. An empty Command
// means the desktop App package is not installed.
type DesktopConfig struct {
	Command string `envconfig:"VISTA_DESKTOP_COMMAND" yaml:"command"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"VISTA_LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"VISTA_LOG_DEV" yaml:"development"`
}

// DefaultHeight is the sentinel height for notebook App cells. A caller
// passing this value is treated as "no explicit override".
const DefaultHeight = 800

// DefaultPort is the default server port.
const DefaultPort = 5151

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Port:       DefaultPort,
			DesktopApp: false,
			AutoShow:   true,
			Height:     DefaultHeight,
			DoNotTrack: false,
		},
		Server: ServerConfig{
			Command:        "vista-server",
			StartupTimeout: 10 * time.Second,
		},
		Desktop: DesktopConfig{
			Command: "vista-desktop",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Load builds the effective configuration by layering, in order: built-in
// defaults, the user config file (if present), and environment variables.
func Load() (*Config, error) {
	cfg := Default()

	path := configPath()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads configuration or falls back to the defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func configPath() string {
	if path := os.Getenv("VISTA_CONFIG_PATH"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".vista", "config.yaml")
}
