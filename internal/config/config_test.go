package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rsvctl.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		s, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", path, err)
		}
		if s.LogLevel != DefaultLogLevel {
			t.Errorf("expected log level %q, got %q", DefaultLogLevel, s.LogLevel)
		}
		if s.Separator() != DefaultPathSeparator {
			t.Errorf("expected separator %q, got %q", DefaultPathSeparator, s.Separator())
		}
		if s.MaxConcurrent != DefaultMaxConcurrent {
			t.Errorf("expected max concurrent %d, got %d", DefaultMaxConcurrent, s.MaxConcurrent)
		}
		if s.DefaultInterval != DefaultInterval || s.RunTimeout != DefaultRunTimeout {
			t.Errorf("unexpected durations %v, %v", s.DefaultInterval, s.RunTimeout)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := writeSettings(t, `
vdt_location: /opt/osg
database: /tmp/rsv.db
log_level: debug
path_separator: ""
max_concurrent: 2
default_interval: 5m
run_timeout: 30s
notify:
  - type: ntfy
    topic: rsv-alerts
  - type: pushover
    api_token: tok
    user_key: usr
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.InstallRoot != "/opt/osg" || s.Database != "/tmp/rsv.db" || s.LogLevel != "debug" {
		t.Errorf("unexpected settings %+v", s)
	}
	if s.Separator() != "" {
		t.Errorf("expected empty separator, got %q", s.Separator())
	}
	if s.MaxConcurrent != 2 || s.DefaultInterval != 5*time.Minute || s.RunTimeout != 30*time.Second {
		t.Errorf("unexpected settings %+v", s)
	}
	if len(s.Notify) != 2 || s.Notify[0].Topic != "rsv-alerts" || s.Notify[1].UserKey != "usr" {
		t.Errorf("unexpected notify channels %+v", s.Notify)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "max_concurrent: [1, 2"},
		{"negative concurrency", "max_concurrent: -1"},
		{"bad duration", "run_timeout: soon"},
		{"bad channel", "notify:\n  - type: email\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeSettings(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResolveInstallRoot(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	s := &Settings{InstallRoot: other}

	t.Setenv(EnvInstallRoot, "")
	root, err := s.ResolveInstallRoot(dir)
	if err != nil || root != dir {
		t.Errorf("flag: got %q, %v", root, err)
	}

	root, err = s.ResolveInstallRoot("")
	if err != nil || root != other {
		t.Errorf("settings: got %q, %v", root, err)
	}

	t.Setenv(EnvInstallRoot, dir)
	root, err = s.ResolveInstallRoot("")
	if err != nil || root != dir {
		t.Errorf("env: got %q, %v", root, err)
	}

	t.Setenv(EnvInstallRoot, "")
	empty := &Settings{}
	if _, err := empty.ResolveInstallRoot(""); !errors.Is(err, ErrNoInstallRoot) {
		t.Errorf("expected ErrNoInstallRoot, got %v", err)
	}
	if _, err := empty.ResolveInstallRoot(filepath.Join(dir, "missing")); !errors.Is(err, ErrNoInstallRoot) {
		t.Errorf("expected ErrNoInstallRoot for missing dir, got %v", err)
	}
}

func TestDatabasePath(t *testing.T) {
	s := &Settings{}
	t.Setenv(EnvDatabase, "")

	tests := []struct {
		name     string
		setup    func()
		flag     string
		root     string
		expected string
	}{
		{"default", func() {}, "", "/opt/osg", filepath.Join("/opt/osg", DefaultDatabaseRelPath)},
		{"settings", func() { s.Database = "/srv/file.db" }, "", "", "/srv/file.db"},
		{"env", func() { t.Setenv(EnvDatabase, "/srv/env.db") }, "", "", "/srv/env.db"},
		{"flag", func() {}, "/srv/flag.db", "", "/srv/flag.db"},
	}

	for _, tt := range tests {
		tt.setup()
		got, err := s.DatabasePath(tt.flag, tt.root)
		if err != nil || got != tt.expected {
			t.Errorf("%s: expected %q, got %q, %v", tt.name, tt.expected, got, err)
		}
	}

	t.Setenv(EnvDatabase, "")
	if _, err := (&Settings{}).DatabasePath("", ""); !errors.Is(err, ErrNoInstallRoot) {
		t.Errorf("expected ErrNoInstallRoot, got %v", err)
	}
}
