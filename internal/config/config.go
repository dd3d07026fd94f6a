// Package config holds the settings of the control tool itself. Metric
// configuration lives in package metricconfig.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jandubois/rsvctl/internal/notify"
)

// Default values applied when fields are absent from the settings file.
const (
	DefaultPathSeparator   = ":"
	DefaultMaxConcurrent   = 8
	DefaultInterval        = 15 * time.Minute
	DefaultRunTimeout      = 5 * time.Minute
	DefaultLogLevel        = "warn"
	DefaultDatabaseRelPath = "var/rsvctl/rsvctl.db"
)

// Environment variables consulted when flags are not given.
const (
	EnvInstallRoot = "VDT_LOCATION"
	EnvDatabase    = "RSVCTL_DATABASE"
	EnvAuthToken   = "RSVCTL_AUTH_TOKEN"
)

// ErrNoInstallRoot is returned when the installation root cannot be determined.
var ErrNoInstallRoot = errors.New("installation root is not set (use --vdt-location or set VDT_LOCATION)")

// Settings is the control tool's settings file.
type Settings struct {
	// InstallRoot is the installation root holding bin/metrics and etc/metrics.
	InstallRoot string `yaml:"vdt_location"`

	// Database is the path of the scheduling backend database.
	Database string `yaml:"database"`

	LogLevel string `yaml:"log_level"`

	// PathSeparator joins values of APPEND and PREPEND env directives.
	// An empty string concatenates.
	PathSeparator *string `yaml:"path_separator"`

	// MaxConcurrent bounds parallel status queries when listing.
	MaxConcurrent int `yaml:"max_concurrent"`

	// DefaultInterval is the run interval of metrics without one.
	DefaultInterval time.Duration `yaml:"default_interval"`

	// RunTimeout bounds a single metric execution.
	RunTimeout time.Duration `yaml:"run_timeout"`

	// HTTPAddr is the listen address of the status API. Empty disables it.
	HTTPAddr string `yaml:"http_addr"`

	// AuthToken is the bearer token required by the status API.
	AuthToken string `yaml:"auth_token"`

	// Notify lists the channels alerted when a scheduled metric changes result.
	Notify []notify.ChannelConfig `yaml:"notify"`
}

// Load reads the settings file at path. An empty path or a missing file
// yields the defaults.
func Load(path string) (*Settings, error) {
	s := &Settings{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read file: %w", err)
		default:
			if err := yaml.Unmarshal(data, s); err != nil {
				return nil, fmt.Errorf("config: parse yaml: %w", err)
			}
		}
	}

	s.applyDefaults()
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

func (s *Settings) applyDefaults() {
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.PathSeparator == nil {
		sep := DefaultPathSeparator
		s.PathSeparator = &sep
	}
	if s.MaxConcurrent == 0 {
		s.MaxConcurrent = DefaultMaxConcurrent
	}
	if s.DefaultInterval == 0 {
		s.DefaultInterval = DefaultInterval
	}
	if s.RunTimeout == 0 {
		s.RunTimeout = DefaultRunTimeout
	}
}

func (s *Settings) validate() error {
	if s.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}
	if s.DefaultInterval < 0 {
		return fmt.Errorf("default_interval must be positive")
	}
	if s.RunTimeout < 0 {
		return fmt.Errorf("run_timeout must be positive")
	}
	for i, ch := range s.Notify {
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("notify[%d]: %w", i, err)
		}
	}
	return nil
}

// Separator returns the APPEND/PREPEND path separator.
func (s *Settings) Separator() string {
	if s.PathSeparator == nil {
		return DefaultPathSeparator
	}
	return *s.PathSeparator
}

// ResolveInstallRoot returns the installation root from the flag value, the
// VDT_LOCATION environment variable or the settings file, in that order.
func (s *Settings) ResolveInstallRoot(flag string) (string, error) {
	root := flag
	if root == "" {
		root = os.Getenv(EnvInstallRoot)
	}
	if root == "" {
		root = s.InstallRoot
	}
	if root == "" {
		return "", ErrNoInstallRoot
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoInstallRoot, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrNoInstallRoot, root)
	}
	return root, nil
}

// DatabasePath returns the backend database path from the flag value, the
// RSVCTL_DATABASE environment variable, the settings file, or the default
// location under root. The default needs a root.
func (s *Settings) DatabasePath(flag, root string) (string, error) {
	switch {
	case flag != "":
		return flag, nil
	case os.Getenv(EnvDatabase) != "":
		return os.Getenv(EnvDatabase), nil
	case s.Database != "":
		return s.Database, nil
	case root == "":
		return "", ErrNoInstallRoot
	default:
		return filepath.Join(root, DefaultDatabaseRelPath), nil
	}
}
