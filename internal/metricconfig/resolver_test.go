package metricconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// installRoot creates an installation root with the given metric executables.
func installRoot(t *testing.T, metrics ...string) string {
	t.Helper()
	root := t.TempDir()
	bin := filepath.Join(root, "bin", "metrics")
	if err := os.MkdirAll(bin, 0755); err != nil {
		t.Fatal(err)
	}
	for _, m := range metrics {
		if err := os.WriteFile(filepath.Join(bin, m), []byte("#!/bin/sh\n"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func writeConf(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveMissingExecutable(t *testing.T) {
	root := installRoot(t)
	r := NewResolver(root)

	_, err := r.Resolve("ping-host", Options{})
	if !errors.Is(err, ErrMetricNotFound) {
		t.Fatalf("expected ErrMetricNotFound, got %v", err)
	}
}

func TestResolveChecksExecutableBeforeLoading(t *testing.T) {
	loads := 0
	r := NewResolver("/nonexistent").
		WithExister(ExisterFunc(func(string) bool { return false })).
		WithLoader(loaderFunc(func(string) (*File, error) {
			loads++
			return nil, ErrConfigFileMissing
		}))

	if _, err := r.Resolve("ping-host", Options{Host: "host1"}); err == nil {
		t.Fatal("expected error")
	}
	if loads != 0 {
		t.Errorf("expected no config loads, got %d", loads)
	}
}

type loaderFunc func(path string) (*File, error)

func (f loaderFunc) Load(path string) (*File, error) { return f(path) }

func TestResolveServiceType(t *testing.T) {
	root := installRoot(t, "ping-host")
	r := NewResolver(root)
	writeConf(t, r.GeneralConfigPath("ping-host"), "[ping-host]\nservice-type = OSG-CE\n")

	m, err := r.Resolve("ping-host", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.ServiceType(); got != "OSG-CE" {
		t.Errorf("expected service-type OSG-CE, got %q", got)
	}
	if m.Executable != filepath.Join(root, "bin", "metrics", "ping-host") {
		t.Errorf("unexpected executable %q", m.Executable)
	}
}

func TestResolveServiceTypeUnset(t *testing.T) {
	root := installRoot(t, "ping-host")
	m, err := NewResolver(root).Resolve("ping-host", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.ServiceType(); got != "UNKNOWN" {
		t.Errorf("expected UNKNOWN, got %q", got)
	}
}

func TestResolveLayering(t *testing.T) {
	defaults := NewConfig()
	defaults.General.Set("timeout", "default")
	defaults.General.Set("only-default", "d")

	tests := []struct {
		name     string
		general  string
		host     string
		useHost  bool
		expected map[string]string
	}{
		{
			name:     "defaults only",
			expected: map[string]string{"timeout": "default", "only-default": "d"},
		},
		{
			name:     "general overrides defaults",
			general:  "[ping-host]\ntimeout = general\n",
			expected: map[string]string{"timeout": "general", "only-default": "d"},
		},
		{
			name:     "host overrides general",
			general:  "[ping-host]\ntimeout = general\n",
			host:     "[ping-host]\ntimeout = host\n",
			useHost:  true,
			expected: map[string]string{"timeout": "host", "only-default": "d"},
		},
		{
			name:     "host file ignored without host",
			general:  "[ping-host]\ntimeout = general\n",
			host:     "[ping-host]\ntimeout = host\n",
			expected: map[string]string{"timeout": "general", "only-default": "d"},
		},
		{
			name:     "host applies when general missing",
			host:     "[ping-host]\ntimeout = host\n",
			useHost:  true,
			expected: map[string]string{"timeout": "host", "only-default": "d"},
		},
		{
			name:     "other metric sections ignored",
			general:  "[other]\ntimeout = other\n[ping-host]\nextra = yes\n",
			expected: map[string]string{"timeout": "default", "only-default": "d", "extra": "yes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := installRoot(t, "ping-host")
			r := NewResolver(root)
			if tt.general != "" {
				writeConf(t, r.GeneralConfigPath("ping-host"), tt.general)
			}
			if tt.host != "" {
				writeConf(t, r.HostConfigPath("ping-host", "host1"), tt.host)
			}

			opts := Options{Defaults: defaults}
			if tt.useHost {
				opts.Host = "host1"
			}
			m, err := r.Resolve("ping-host", opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := make(map[string]string)
			for _, k := range m.Config.General.Keys() {
				got[k], _ = m.Config.General.Get(k)
			}
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("general section mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveDoesNotMutateDefaults(t *testing.T) {
	root := installRoot(t, "ping-host")
	r := NewResolver(root)
	writeConf(t, r.GeneralConfigPath("ping-host"), "[ping-host]\ntimeout = general\n")

	defaults := NewConfig()
	defaults.General.Set("timeout", "default")
	if _, err := r.Resolve("ping-host", Options{Defaults: defaults}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := defaults.General.Get("timeout"); v != "default" {
		t.Errorf("defaults were modified: timeout = %q", v)
	}
}

func TestResolveArgsAndEnvSections(t *testing.T) {
	root := installRoot(t, "ping-host")
	r := NewResolver(root)
	writeConf(t, r.GeneralConfigPath("ping-host"), `[ping-host]
service-type = OSG-CE

[ping-host args]
verbose = 3
ping-count = 5

[ping-host env]
PATH = PREPEND | !!VDT_LOCATION!!/bin
`)
	writeConf(t, r.HostConfigPath("ping-host", "host1"), `[ping-host args]
ping-count = 10
timeout = 30
`)

	m, err := r.Resolve("ping-host", Options{Host: "host1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := m.Config.ArgsString(); got != "--verbose 3 --ping-count 10 --timeout 30" {
		t.Errorf("unexpected args string %q", got)
	}
	if v, ok := m.Config.Env.Get("PATH"); !ok || v != "PREPEND | !!VDT_LOCATION!!/bin" {
		t.Errorf("unexpected env entry %q", v)
	}
}
