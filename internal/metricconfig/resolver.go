package metricconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrMetricNotFound is returned when no executable is installed for a metric.
var ErrMetricNotFound = errors.New("metric not found")

// Exister checks whether a metric executable is present.
type Exister interface {
	Exists(path string) bool
}

// ExisterFunc adapts a function to the Exister interface.
type ExisterFunc func(path string) bool

func (f ExisterFunc) Exists(path string) bool { return f(path) }

// fileExists reports whether path names an existing non-directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Options controls a single resolution.
type Options struct {
	// Defaults is applied as the lowest-precedence layer.
	Defaults *Config
	// Host selects the host-specific override file.
	Host string
}

// Metric is a resolved metric: its executable and effective configuration.
type Metric struct {
	Name       string
	Host       string
	Executable string
	Config     *Config
}

// Value returns a general setting of the metric.
func (m *Metric) Value(key string) (string, bool) {
	return m.Config.Value(General, key)
}

// ServiceType returns the service-type setting, or "UNKNOWN" when unset.
func (m *Metric) ServiceType() string {
	v, ok := m.Config.General.Get("service-type")
	if !ok {
		slog.Error("metric missing service-type", "metric", m.Name)
		return "UNKNOWN"
	}
	return v
}

// Resolver computes the effective configuration of metrics installed under
// an installation root.
type Resolver struct {
	root    string
	loader  Loader
	exister Exister
}

// NewResolver creates a Resolver for the installation root.
func NewResolver(root string) *Resolver {
	return &Resolver{
		root:    root,
		loader:  INILoader{},
		exister: ExisterFunc(fileExists),
	}
}

// WithLoader replaces the configuration file loader.
func (r *Resolver) WithLoader(l Loader) *Resolver {
	r.loader = l
	return r
}

// WithExister replaces the executable existence check.
func (r *Resolver) WithExister(e Exister) *Resolver {
	r.exister = e
	return r
}

// Root returns the installation root.
func (r *Resolver) Root() string { return r.root }

// ExecutableDir is the directory holding metric executables.
func (r *Resolver) ExecutableDir() string {
	return filepath.Join(r.root, "bin", "metrics")
}

// ConfigDir is the directory holding metric configuration files.
func (r *Resolver) ConfigDir() string {
	return filepath.Join(r.root, "etc", "metrics")
}

// GeneralConfigPath returns the general configuration file of a metric.
func (r *Resolver) GeneralConfigPath(name string) string {
	return filepath.Join(r.ConfigDir(), name+".conf")
}

// HostConfigPath returns the host-specific configuration file of a metric.
func (r *Resolver) HostConfigPath(name, host string) string {
	return filepath.Join(r.ConfigDir(), host, name+".conf")
}

// Resolve builds the effective configuration of a metric by layering the
// defaults, the general file and, when opts.Host is set, the host file.
func (r *Resolver) Resolve(name string, opts Options) (*Metric, error) {
	exe := filepath.Join(r.ExecutableDir(), name)
	if !r.exister.Exists(exe) {
		slog.Error("metric does not exist", "metric", name, "path", exe)
		return nil, fmt.Errorf("%w: %s", ErrMetricNotFound, exe)
	}

	cfg := NewConfig()
	cfg.Merge(opts.Defaults)

	path := r.GeneralConfigPath(name)
	if err := r.loadLayer(cfg, name, path); err != nil {
		slog.Error("metric config file not loaded", "metric", name, "path", path, "error", err)
	}

	if opts.Host != "" {
		path := r.HostConfigPath(name, opts.Host)
		if err := r.loadLayer(cfg, name, path); err != nil {
			if errors.Is(err, ErrConfigFileMissing) {
				slog.Info("metric/host config file does not exist", "metric", name, "host", opts.Host, "path", path)
			} else {
				slog.Error("metric/host config file not loaded", "metric", name, "host", opts.Host, "path", path, "error", err)
			}
		}
	}

	return &Metric{
		Name:       name,
		Host:       opts.Host,
		Executable: exe,
		Config:     cfg,
	}, nil
}

func (r *Resolver) loadLayer(cfg *Config, name, path string) error {
	f, err := r.loader.Load(path)
	if err != nil {
		return err
	}
	cfg.Merge(f.ForMetric(name))
	return nil
}
