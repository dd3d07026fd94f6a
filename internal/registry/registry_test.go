package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jandubois/rsvctl/internal/metricconfig"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}

// testRegistry lays out an installation root with:
//   - ping-host: general config, overrides for ce1 and ce2
//   - gridftp: general config only
//   - host-only: no general config, override for ce1
//   - unconfigured: executable only
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	root := t.TempDir()
	for _, m := range []string{"ping-host", "gridftp", "host-only", "unconfigured"} {
		writeFile(t, filepath.Join(root, "bin", "metrics", m), "#!/bin/sh\n", 0755)
	}
	etc := filepath.Join(root, "etc", "metrics")
	writeFile(t, filepath.Join(etc, "ping-host.conf"), "[ping-host]\nservice-type = OSG-CE\n", 0644)
	writeFile(t, filepath.Join(etc, "ce2", "ping-host.conf"), "[ping-host args]\ncount = 5\n", 0644)
	writeFile(t, filepath.Join(etc, "ce1", "ping-host.conf"), "", 0644)
	writeFile(t, filepath.Join(etc, "gridftp.conf"), "[gridftp]\nservice-type = OSG-GridFTP\n", 0644)
	writeFile(t, filepath.Join(etc, "ce1", "host-only.conf"), "[host-only]\nservice-type = OSG-CE\n", 0644)

	return New(metricconfig.NewResolver(root), "local.example.org", nil)
}

func TestConfiguredProbes(t *testing.T) {
	r := testRegistry(t)

	probes, err := r.ConfiguredProbes(context.Background(), Options{})
	if err != nil {
		t.Fatalf("ConfiguredProbes failed: %v", err)
	}

	got := make(map[string][]string)
	for _, p := range probes {
		got[p.MetricName] = p.URIs
	}
	expected := map[string][]string{
		"gridftp":   {"local.example.org"},
		"host-only": {"ce1"},
		"ping-host": {"ce1", "ce2"},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("probes mismatch (-want +got):\n%s", diff)
	}

	for _, p := range probes {
		if len(p.URIs) == 0 {
			t.Errorf("probe %s has no URIs", p.MetricName)
		}
		if p.MetricName == "ping-host" && p.ServiceType != "OSG-CE" {
			t.Errorf("expected OSG-CE, got %q", p.ServiceType)
		}
	}
}

func TestConfiguredProbesPattern(t *testing.T) {
	r := testRegistry(t)

	probes, err := r.ConfiguredProbes(context.Background(), Options{Pattern: "^ping"})
	if err != nil {
		t.Fatalf("ConfiguredProbes failed: %v", err)
	}
	if len(probes) != 1 || probes[0].MetricName != "ping-host" {
		t.Errorf("unexpected probes %v", probes)
	}

	if _, err := r.ConfiguredProbes(context.Background(), Options{Pattern: "("}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestInstalled(t *testing.T) {
	r := testRegistry(t)

	names, err := r.Installed()
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"gridftp", "host-only", "ping-host", "unconfigured"}
	if diff := cmp.Diff(expected, names); diff != "" {
		t.Errorf("installed mismatch (-want +got):\n%s", diff)
	}

	empty := New(metricconfig.NewResolver(t.TempDir()), "localhost", nil)
	names, err = empty.Installed()
	if err != nil || len(names) != 0 {
		t.Errorf("expected no metrics, got %v, %v", names, err)
	}
}

func TestProbeByID(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	p, err := r.ProbeByID(ctx, "ce9__ping-host@ping-host")
	if err != nil {
		t.Fatalf("ProbeByID failed: %v", err)
	}
	if diff := cmp.Diff([]string{"ce9"}, p.URIs); diff != "" {
		t.Errorf("URIs mismatch (-want +got):\n%s", diff)
	}
	if p.Key() != "ping-host@ping-host" {
		t.Errorf("unexpected key %q", p.Key())
	}

	tests := []struct {
		id       string
		expected error
	}{
		{"garbage", ErrInvalidProbeID},
		{"ce1__missing@missing", ErrProbeNotFound},
		{"ce1__other@ping-host", ErrProbeNotFound},
		{"ce1__x@../../etc/passwd", ErrInvalidProbeID},
		{"ce1__ping-host@..", ErrInvalidProbeID},
		{`ce1__ping-host@sub\ping-host`, ErrInvalidProbeID},
		{"ce1__../bin@ping-host", ErrInvalidProbeID},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := r.ProbeByID(ctx, tt.id)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestProbeByName(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	p, err := r.ProbeByName(ctx, "gridftp")
	if err != nil {
		t.Fatalf("ProbeByName failed: %v", err)
	}
	if p.ServiceType != "OSG-GridFTP" {
		t.Errorf("unexpected service type %q", p.ServiceType)
	}

	if _, err := r.ProbeByName(ctx, "unconfigured"); !errors.Is(err, ErrProbeNotFound) {
		t.Errorf("expected ErrProbeNotFound, got %v", err)
	}
}

func TestIsValidProbeID(t *testing.T) {
	if !IsValidProbeID("host1__ping@org.osg.general.ping-host") {
		t.Error("expected valid ID")
	}
	if IsValidProbeID("garbage") {
		t.Error("expected invalid ID")
	}
}
